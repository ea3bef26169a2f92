package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateCheckpoint(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validateIngest() error {
	if c.Ingest.ChunkSizeMB <= 0 {
		return errors.New("ingest.chunk_size_mb must be positive")
	}
	if c.Ingest.YieldMillis < 0 {
		return errors.New("ingest.yield_ms must be >= 0")
	}
	for _, code := range c.Ingest.Currencies {
		if !isCurrencyCode(code) {
			return fmt.Errorf("ingest.currencies: %q is not a three-letter currency code", code)
		}
	}
	return nil
}

func (c *Config) validateCheckpoint() error {
	if c.Checkpoint.MaxAgeHours <= 0 {
		return errors.New("checkpoint.max_age_hours must be positive")
	}
	if c.Checkpoint.AutosavePercentStep < 0 || c.Checkpoint.AutosavePercentStep > 100 {
		return errors.New("checkpoint.autosave_percent_step must be between 0 and 100")
	}
	if c.Checkpoint.AutosaveMinIntervalMs < 0 {
		return errors.New("checkpoint.autosave_min_interval_ms must be >= 0")
	}
	if c.Checkpoint.MilestonePercent <= 0 || c.Checkpoint.MilestonePercent > 100 {
		return errors.New("checkpoint.milestone_percent must be between 1 and 100")
	}
	if c.Checkpoint.SessionSyncSeconds <= 0 {
		return errors.New("checkpoint.session_sync_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		return errors.New("notifications.request_timeout_s must be positive")
	}
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic: %q must be an http(s) URL", topic)
	}
	return nil
}

func isCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}
