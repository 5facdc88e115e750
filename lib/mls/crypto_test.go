package mls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealAESGCMRoundTrips(t *testing.T) {
	key, err := deriveEpochKey([]byte("a 32 byte epoch secret value!!!"), "group-message", 0)
	require.NoError(t, err)

	sealed, err := sealAESGCM(key, []byte("hello group"), []byte("group-id"))
	require.NoError(t, err)

	plaintext, err := openAESGCM(key, sealed, []byte("group-id"))
	require.NoError(t, err)
	assert.Equal(t, "hello group", string(plaintext))
}

func TestOpenAESGCMRejectsWrongAAD(t *testing.T) {
	key, err := deriveEpochKey([]byte("a 32 byte epoch secret value!!!"), "group-message", 0)
	require.NoError(t, err)

	sealed, err := sealAESGCM(key, []byte("hello group"), []byte("group-id-a"))
	require.NoError(t, err)

	_, err = openAESGCM(key, sealed, []byte("group-id-b"))
	assert.Error(t, err)
}

func TestDeriveEpochKeyVariesByEpoch(t *testing.T) {
	secret := []byte("a 32 byte epoch secret value!!!")
	k0, err := deriveEpochKey(secret, "group-message", 0)
	require.NoError(t, err)
	k1, err := deriveEpochKey(secret, "group-message", 1)
	require.NoError(t, err)
	assert.NotEqual(t, k0, k1)
}
