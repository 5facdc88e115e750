package mls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPackageMarshalRoundTrips(t *testing.T) {
	kp := KeyPackage{
		Member:      "npub1abc",
		InitKey:     []byte{1, 2, 3},
		SigningKey:  []byte{4, 5, 6},
		ProtocolVer: "1.0",
		Ciphersuite: "MLS_128_DHKEMX25519_AES128GCM_SHA256_Ed25519",
	}
	raw, err := MarshalKeyPackage(kp)
	require.NoError(t, err)

	out, err := UnmarshalKeyPackage(raw)
	require.NoError(t, err)
	assert.Equal(t, kp, out)
}

func TestWelcomeEnvelopeMarshalRoundTrips(t *testing.T) {
	env := WelcomeEnvelope{
		Inviter: "npub1inviter",
		Welcome: Welcome{
			GroupID:     "g1",
			GroupName:   "test group",
			Epoch:       0,
			Members:     []string{"npub1inviter", "npub1invitee"},
			EpochSecret: []byte("secret-bytes"),
		},
	}
	raw, err := MarshalWelcomeEnvelope(env)
	require.NoError(t, err)

	out, err := UnmarshalWelcomeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, env, out)
}

func TestUnmarshalCiphertextRejectsGarbage(t *testing.T) {
	_, err := UnmarshalCiphertext([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}
