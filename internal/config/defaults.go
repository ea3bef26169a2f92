package config

const (
	defaultDataDir    = "~/.local/share/tally"
	defaultLogDir     = "~/.local/share/tally/logs"
	defaultConfigPath = "~/.config/tally/config.toml"
	projectConfigName = "tally.toml"
	socketFileName    = "tally.sock"
	databaseFileName  = "tally.db"
	lockFileName      = "tally.lock"

	defaultChunkSizeMB = 10
	defaultYieldMillis = 10

	defaultMaxAgeHours          = 7 * 24
	defaultAutosavePercentStep  = 0.1
	defaultAutosaveMinIntervalM = 1000
	defaultMilestonePercent     = 5
	defaultSessionSyncSeconds   = 10

	defaultNotifyTimeoutSeconds = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// DefaultCurrencies lists the ISO 4217 codes recognized when ingest.currencies is empty.
var DefaultCurrencies = []string{
	"USD", "EUR", "GBP", "CAD", "AUD", "JPY", "CHF", "CNY",
	"INR", "MXN", "BRL", "RUB", "KRW", "SGD", "HKD",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Ingest: Ingest{
			ChunkSizeMB:    defaultChunkSizeMB,
			AdaptiveChunks: true,
			YieldMillis:    defaultYieldMillis,
			Currencies:     append([]string(nil), DefaultCurrencies...),
		},
		Checkpoint: Checkpoint{
			MaxAgeHours:           defaultMaxAgeHours,
			AutosavePercentStep:   defaultAutosavePercentStep,
			AutosaveMinIntervalMs: defaultAutosaveMinIntervalM,
			MilestonePercent:      defaultMilestonePercent,
			SessionSyncSeconds:    defaultSessionSyncSeconds,
			Compress:              true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
	}
}
