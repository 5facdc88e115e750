package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDefaultsToMemoryBackendAndAcceptLoss(t *testing.T) {
	cfg, err := NewBuilder().WithRelays("wss://relay.example").Build()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend())
	assert.Equal(t, StaleAcceptLoss, cfg.StalePolicy())
}

func TestBuilderRequiresAtLeastOneRelay(t *testing.T) {
	_, err := NewBuilder().Build()
	assert.Error(t, err)
}

func TestBuilderRejectsSQLBackendWithoutPath(t *testing.T) {
	_, err := NewBuilder().WithSQLBackend("").WithRelays("wss://relay.example").Build()
	assert.Error(t, err)
}

func TestBuilderRejectsWrongLengthIdentitySeed(t *testing.T) {
	_, err := NewBuilder().WithRelays("wss://relay.example").WithIdentitySeed([]byte("too short")).Build()
	assert.Error(t, err)
}

func TestBuilderRejectsUnknownStalePolicy(t *testing.T) {
	_, err := NewBuilder().WithRelays("wss://relay.example").WithStalePolicy("not-a-real-policy").Build()
	assert.Error(t, err)
}

func TestFromViperReadsSQLBackendAndRelays(t *testing.T) {
	v := viper.New()
	v.Set("storage.backend", "sql")
	v.Set("storage.path", "/tmp/hornet-messaging.sqlite")
	v.Set("relays", []string{"wss://relay-a.example", "wss://relay-b.example"})
	v.Set("identity.stale_policy", "refuse_start")

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, BackendSQL, cfg.Backend())
	assert.Equal(t, "/tmp/hornet-messaging.sqlite", cfg.SQLitePath())
	assert.ElementsMatch(t, []string{"wss://relay-a.example", "wss://relay-b.example"}, cfg.RelayURLs())
	assert.Equal(t, StaleRefuseStart, cfg.StalePolicy())
}

func TestFromViperDecodesIdentitySeedHex(t *testing.T) {
	v := viper.New()
	v.Set("relays", []string{"wss://relay.example"})
	v.Set("identity.seed_hex", "0x"+"11"+"22"+"33"+"44"+"55"+"66"+"77"+"88"+"99"+"aa"+"bb"+"cc"+"dd"+"ee"+"ff"+"00"+"11"+"22"+"33"+"44"+"55"+"66"+"77"+"88"+"99"+"aa"+"bb"+"cc"+"dd"+"ee"+"ff"+"00")

	cfg, err := FromViper(v)
	require.NoError(t, err)
	require.Len(t, cfg.IdentitySeed(), 32)
}

func TestFromViperRejectsMalformedSeedHex(t *testing.T) {
	v := viper.New()
	v.Set("relays", []string{"wss://relay.example"})
	v.Set("identity.seed_hex", "not-hex")

	_, err := FromViper(v)
	assert.Error(t, err)
}
