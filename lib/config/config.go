// Package config builds the Configuration the service facade is wired
// from: storage backend selection, relay set, identity source, and the
// stale-key-package policy spec.md §9 requires to be explicit rather than
// implicit. Loading is viper-backed, following the teacher's convention
// of a single process-wide settings tree with env-var overrides.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Backend selects which store.Backend implementation the service uses.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQL    Backend = "sql"
)

// StalePolicy is the configured stance for an ephemeral identity that
// re-uses a public key which already has key packages published on the
// relay set, per spec.md §9's "must be explicit in configuration" design
// note. Builder validates it and Configuration carries it; no other
// package reads it, so none of the values below changes how the service
// starts or handles welcomes.
type StalePolicy string

const (
	// StaleRefuseStart names refusing to start rather than risking undecryptable welcomes.
	StaleRefuseStart StalePolicy = "refuse_start"
	// StaleRevokeOnStart names republishing a fresh key package on startup.
	StaleRevokeOnStart StalePolicy = "revoke_on_start"
	// StaleAcceptLoss names starting anyway and accepting undecryptable welcomes.
	StaleAcceptLoss StalePolicy = "accept_loss"
)

// Configuration is immutable once built. Use NewBuilder to construct one.
type Configuration struct {
	backend       Backend
	sqlitePath    string
	relayURLs     []string
	identitySeed  []byte // nil means "generate"
	identityPath  string // optional PEM-at-rest path
	stalePolicy   StalePolicy
	logLevel      string
	logOutput     string
}

func (c *Configuration) Backend() Backend          { return c.backend }
func (c *Configuration) SQLitePath() string         { return c.sqlitePath }
func (c *Configuration) RelayURLs() []string        { return append([]string(nil), c.relayURLs...) }
func (c *Configuration) IdentitySeed() []byte        { return c.identitySeed }
func (c *Configuration) IdentityPath() string        { return c.identityPath }
func (c *Configuration) StalePolicy() StalePolicy    { return c.stalePolicy }
func (c *Configuration) LogLevel() string            { return c.logLevel }
func (c *Configuration) LogOutput() string           { return c.logOutput }

// Builder assembles a Configuration with the teacher's builder-style
// chained-setter convention.
type Builder struct {
	cfg Configuration
	err error
}

// NewBuilder starts from sensible defaults: ephemeral in-memory storage,
// no relays configured, a freshly generated identity, and the
// accept-loss stale-key policy (the least surprising default for a
// throwaway dev identity).
func NewBuilder() *Builder {
	return &Builder{
		cfg: Configuration{
			backend:     BackendMemory,
			stalePolicy: StaleAcceptLoss,
			logLevel:    "info",
			logOutput:   "stdout",
		},
	}
}

func (b *Builder) WithMemoryBackend() *Builder {
	b.cfg.backend = BackendMemory
	return b
}

func (b *Builder) WithSQLBackend(path string) *Builder {
	if path == "" {
		b.err = fmt.Errorf("config: sql backend requires a non-empty path")
		return b
	}
	b.cfg.backend = BackendSQL
	b.cfg.sqlitePath = path
	return b
}

func (b *Builder) WithRelays(urls ...string) *Builder {
	b.cfg.relayURLs = append(b.cfg.relayURLs, urls...)
	return b
}

// WithIdentitySeed pins the identity to an explicit 32-byte secret scalar
// instead of generating one.
func (b *Builder) WithIdentitySeed(seed []byte) *Builder {
	if len(seed) != 32 {
		b.err = fmt.Errorf("config: identity seed must be 32 bytes, got %d", len(seed))
		return b
	}
	b.cfg.identitySeed = seed
	return b
}

// WithIdentityAtRest enables PEM-at-rest persistence of the identity key.
func (b *Builder) WithIdentityAtRest(path string) *Builder {
	b.cfg.identityPath = path
	return b
}

func (b *Builder) WithStalePolicy(p StalePolicy) *Builder {
	switch p {
	case StaleRefuseStart, StaleRevokeOnStart, StaleAcceptLoss:
		b.cfg.stalePolicy = p
	default:
		b.err = fmt.Errorf("config: unknown stale policy %q", p)
	}
	return b
}

func (b *Builder) WithLogging(level, output string) *Builder {
	b.cfg.logLevel = level
	b.cfg.logOutput = output
	return b
}

// Build validates the accumulated options and returns the Configuration.
func (b *Builder) Build() (*Configuration, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.cfg.backend == BackendSQL && b.cfg.sqlitePath == "" {
		return nil, fmt.Errorf("config: sql backend selected without a path")
	}
	if len(b.cfg.relayURLs) == 0 {
		return nil, fmt.Errorf("config: at least one relay URL is required")
	}
	cfg := b.cfg
	return &cfg, nil
}

// FromViper reads a Configuration out of an already-loaded viper instance,
// following the teacher's convention of driving runtime settings through
// a single global config tree (keys: storage.backend, storage.path,
// relays, identity.seed_hex, identity.path, identity.stale_policy,
// logging.level, logging.output). Argument parsing and file discovery
// themselves are out of scope here; the caller owns viper.ReadInConfig.
func FromViper(v *viper.Viper) (*Configuration, error) {
	b := NewBuilder()

	switch Backend(v.GetString("storage.backend")) {
	case BackendSQL:
		b.WithSQLBackend(v.GetString("storage.path"))
	default:
		b.WithMemoryBackend()
	}

	if relays := v.GetStringSlice("relays"); len(relays) > 0 {
		b.WithRelays(relays...)
	}

	if seedHex := v.GetString("identity.seed_hex"); seedHex != "" {
		seed, err := decodeHex32(seedHex)
		if err != nil {
			return nil, fmt.Errorf("config: identity.seed_hex: %w", err)
		}
		b.WithIdentitySeed(seed)
	}

	if path := v.GetString("identity.path"); path != "" {
		b.WithIdentityAtRest(path)
	}

	if policy := v.GetString("identity.stale_policy"); policy != "" {
		b.WithStalePolicy(StalePolicy(policy))
	}

	b.WithLogging(
		orDefault(v.GetString("logging.level"), "info"),
		orDefault(v.GetString("logging.output"), "stdout"),
	)

	return b.Build()
}

func orDefault(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

func decodeHex32(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	return b, nil
}
