package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
	DBPath     string `toml:"db_path"`
}

// Ingest controls how input files are read and scanned.
type Ingest struct {
	ChunkSizeMB    int      `toml:"chunk_size_mb"`
	AdaptiveChunks bool     `toml:"adaptive_chunks"`
	YieldMillis    int      `toml:"yield_ms"`
	Currencies     []string `toml:"currencies"`
}

// Checkpoint controls progress persistence.
type Checkpoint struct {
	MaxAgeHours           int     `toml:"max_age_hours"`
	AutosavePercentStep   float64 `toml:"autosave_percent_step"`
	AutosaveMinIntervalMs int     `toml:"autosave_min_interval_ms"`
	MilestonePercent      int     `toml:"milestone_percent"`
	SessionSyncSeconds    int     `toml:"session_sync_seconds"`
	Compress              bool    `toml:"compress"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics configures the optional Prometheus endpoint. Empty bind disables it.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Notifications configures ntfy alerts for finished runs. Empty topic disables them.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_s"`
}

// Config encapsulates all configuration values for tally.
//
// Configuration sections by subsystem:
//   - Paths: data, log, socket and database locations
//   - Ingest: chunk sizing, cooperative yield and recognized currencies
//   - Checkpoint: autosave throttle, milestone interval and retention
//   - Logging: log format and level
//   - Metrics: Prometheus bind address
//   - Notifications: ntfy topic for completion and failure alerts
type Config struct {
	Paths         Paths         `toml:"paths"`
	Ingest        Ingest        `toml:"ingest"`
	Checkpoint    Checkpoint    `toml:"checkpoint"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, filepath.Dir(c.Paths.SocketPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath is the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, lockFileName)
}

// ChunkSize returns the configured base chunk size in bytes.
func (c *Config) ChunkSize() int {
	return c.Ingest.ChunkSizeMB * 1024 * 1024
}

// Yield is the pause between consecutive chunks.
func (c *Config) Yield() time.Duration {
	return time.Duration(c.Ingest.YieldMillis) * time.Millisecond
}

// CheckpointMaxAge is the age after which a progress checkpoint is stale.
func (c *Config) CheckpointMaxAge() time.Duration {
	return time.Duration(c.Checkpoint.MaxAgeHours) * time.Hour
}

// AutosaveMinInterval is the minimum spacing between throttled saves.
func (c *Config) AutosaveMinInterval() time.Duration {
	return time.Duration(c.Checkpoint.AutosaveMinIntervalMs) * time.Millisecond
}

// SessionSyncInterval is the periodic persistence interval of the session ledger.
func (c *Config) SessionSyncInterval() time.Duration {
	return time.Duration(c.Checkpoint.SessionSyncSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		switch {
		case pathValue == "~":
			pathValue = home
		case pathValue[1] == '/' || pathValue[1] == '\\':
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// NotifyTimeout is the per-request timeout for ntfy deliveries.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeoutSeconds) * time.Second
}
