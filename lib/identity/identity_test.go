package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProducesVerifiableIdentity(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	npub, err := id.Npub()
	require.NoError(t, err)
	assert.Contains(t, npub, PublicKeyPrefix)

	digest := [32]byte{1, 2, 3}
	sig, err := id.SignHash(digest)
	require.NoError(t, err)

	pub, err := DeserializePublicKey(id.PublicIdentifier())
	require.NoError(t, err)
	require.NoError(t, VerifySignature(sig, digest[:], pub))
}

func TestSaveAndLoadRoundTripsInTheClear(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "identity.pem")
	require.NoError(t, id.SaveToFile(path, ""))

	loaded, err := LoadFromFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, id.PublicIdentifier(), loaded.PublicIdentifier())
}

func TestSaveAndLoadRoundTripsWithPassphrase(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "identity.pem")
	require.NoError(t, id.SaveToFile(path, "correct horse battery staple"))

	loaded, err := LoadFromFile(path, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, id.PublicIdentifier(), loaded.PublicIdentifier())

	_, err = LoadFromFile(path, "wrong passphrase")
	assert.Error(t, err)
}

func TestSaveUsesPassphraseEnvWhenArgumentEmpty(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	t.Setenv(PassphraseEnv, "env-passphrase")

	path := filepath.Join(t.TempDir(), "identity.pem")
	require.NoError(t, id.SaveToFile(path, ""))

	loaded, err := LoadFromFile(path, "env-passphrase")
	require.NoError(t, err)
	assert.Equal(t, id.PublicIdentifier(), loaded.PublicIdentifier())
}

func TestLoadFromFileRejectsMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(os.TempDir(), "does-not-exist.pem"), "")
	assert.Error(t, err)
}
