package testsupport

import (
	"path/filepath"
	"testing"

	"tally/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config rooted in a per-test temp directory with fast
// timings so engine tests do not sleep.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SocketPath = filepath.Join(base, "tally.sock")
	cfg.Paths.DBPath = filepath.Join(base, "data", "tally.db")
	cfg.Ingest.YieldMillis = 0

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithChunkSizeMB overrides the base chunk size.
func WithChunkSizeMB(mb int) ConfigOption {
	return func(c *config.Config) {
		c.Ingest.ChunkSizeMB = mb
	}
}

// WithCurrencies overrides the recognized currency codes.
func WithCurrencies(codes ...string) ConfigOption {
	return func(c *config.Config) {
		c.Ingest.Currencies = codes
	}
}

// WithAutosaveInterval overrides the minimum spacing between throttled saves.
func WithAutosaveInterval(ms int) ConfigOption {
	return func(c *config.Config) {
		c.Checkpoint.AutosaveMinIntervalMs = ms
	}
}
