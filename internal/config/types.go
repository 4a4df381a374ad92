package config

// Config is the root of the on-disk configuration. YAML and JSON are
// both accepted; YAML is coerced to JSON so one strict decoder
// (DisallowUnknownFields) covers both formats.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Store     StoreConfig     `json:"store"`
	Push      PushConfig      `json:"push"`
	Reminders RemindersConfig `json:"reminders"`
	Scheduler SchedulerConfig `json:"scheduler,omitempty"`
	API       APIConfig       `json:"api,omitempty"`
	AI        AIConfig        `json:"ai,omitempty"`
	Export    ExportConfig    `json:"export,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StoreConfig selects the document store backend.
//
// Example:
//
//	"store": { "driver": "sqlite", "path": "./notlarim.db" }
type StoreConfig struct {
	Driver      string `json:"driver"`                 // "sqlite" (default) or "postgres"
	Path        string `json:"path"`                   // file path (sqlite) or DSN (postgres)
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// PushConfig selects the delivery channel.
type PushConfig struct {
	Channel         string `json:"channel"` // "fcm", "telegram", or "none"
	CredentialsFile string `json:"credentials_file,omitempty"`
	BotToken        string `json:"bot_token,omitempty"` // telegram channel (do not log)
}

// RemindersConfig controls the reminder engine.
//
// Horizon should match the tick cadence so consecutive scan windows
// are contiguous.
type RemindersConfig struct {
	Enabled    bool   `json:"enabled"`
	Horizon    string `json:"horizon,omitempty"`
	Workers    int    `json:"workers,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Dedup      bool   `json:"dedup,omitempty"`
}

// SchedulerConfig controls the trigger service shared by the reminder
// tick and maintenance jobs.
type SchedulerConfig struct {
	Workers     int    `json:"workers,omitempty"`
	QueueSize   int    `json:"queue_size,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
	Timezone    string `json:"timezone,omitempty"` // IANA TZ, e.g. "Europe/Istanbul"
}

// APIConfig controls the HTTP API for on-demand operations
// (message generation, exports).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8080").
//   - If you bind to a non-loopback address, set a token.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`  // default: "127.0.0.1:8080"
	Token   string `json:"token,omitempty"` // optional bearer token (do not log)

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// AIConfig controls daily message generation.
type AIConfig struct {
	APIKey      string  `json:"api_key,omitempty"` // do not log
	Model       string  `json:"model,omitempty"`   // default: "gpt-4o-mini"
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

// ExportConfig controls user data exports.
type ExportConfig struct {
	BackupDir string `json:"backup_dir,omitempty"` // default: "./backups"
}
