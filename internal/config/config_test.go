package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"tally/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != filepath.Join(tempHome, ".config", "tally", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "tally")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.SocketPath != filepath.Join(wantData, "tally.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.Paths.SocketPath)
	}
	if cfg.Paths.DBPath != filepath.Join(wantData, "tally.db") {
		t.Fatalf("unexpected db path: %q", cfg.Paths.DBPath)
	}
	if cfg.ChunkSize() != 10*1024*1024 {
		t.Fatalf("unexpected chunk size %d", cfg.ChunkSize())
	}
	if cfg.CheckpointMaxAge() != 7*24*time.Hour {
		t.Fatalf("unexpected max age %s", cfg.CheckpointMaxAge())
	}
	if cfg.AutosaveMinInterval() != time.Second {
		t.Fatalf("unexpected autosave interval %s", cfg.AutosaveMinInterval())
	}
	if cfg.SessionSyncInterval() != 10*time.Second {
		t.Fatalf("unexpected session sync interval %s", cfg.SessionSyncInterval())
	}
	if len(cfg.Ingest.Currencies) != len(config.DefaultCurrencies) {
		t.Fatalf("expected default currencies, got %v", cfg.Ingest.Currencies)
	}
}

func TestLoadCustomConfigNormalizesValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "tally.toml")

	custom := config.Default()
	custom.Paths.DataDir = filepath.Join(dir, "data")
	custom.Ingest.Currencies = []string{" usd", "EUR", "usd", ""}
	custom.Logging.Format = " JSON "
	custom.Logging.Level = ""
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected %q to be used, got %q (exists=%v)", path, resolved, exists)
	}
	if got := strings.Join(cfg.Ingest.Currencies, ","); got != "USD,EUR" {
		t.Fatalf("unexpected currencies %q", got)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
	if cfg.Paths.DBPath != filepath.Join(dir, "data", "tally.db") {
		t.Fatalf("unexpected db path %q", cfg.Paths.DBPath)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"chunk size", func(c *config.Config) { c.Ingest.ChunkSizeMB = 0 }, "ingest.chunk_size_mb"},
		{"currency", func(c *config.Config) { c.Ingest.Currencies = []string{"US1"} }, "ingest.currencies"},
		{"milestone", func(c *config.Config) { c.Checkpoint.MilestonePercent = 0 }, "checkpoint.milestone_percent"},
		{"max age", func(c *config.Config) { c.Checkpoint.MaxAgeHours = -1 }, "checkpoint.max_age_hours"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"ntfy topic", func(c *config.Config) { c.Notifications.NtfyTopic = "my-topic" }, "notifications.ntfy_topic"},
		{"ntfy timeout", func(c *config.Config) { c.Notifications.RequestTimeoutSeconds = 0 }, "notifications.request_timeout_s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Checkpoint.MilestonePercent != 5 {
		t.Fatalf("unexpected milestone percent %d", cfg.Checkpoint.MilestonePercent)
	}
}
