// Package configtypes defines the configuration value types loaded by
// internal/common/config, kept as a separate package from config.go the
// way the teacher splits its config struct definitions from the loader
// that populates them.
package configtypes

import "time"

// Log level constants.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log format constants.
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// Config is the monitoring engine's top-level runtime configuration,
// populated entirely from environment variables (spec.md §6.3) rather
// than the teacher's YAML file, since this domain has no multi-tenant
// host configuration to load.
type Config struct {
	Production bool

	Port          int
	DatabaseURL   string
	CheckInterval Duration
	RequestTimeoutMs int
	SSRFProtection   bool

	ClickHouseURL string

	Metrics MetricsConfig
	Log     LogConfig
	Browser BrowserConfig
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Listen  string
	Path    string
}

// LogConfig mirrors the teacher's structured logging knobs.
type LogConfig struct {
	Level   string
	Console ConsoleLogConfig
	File    FileLogConfig
}

type ConsoleLogConfig struct {
	Enabled bool
	Format  string
	Level   string
}

type FileLogConfig struct {
	Enabled  bool
	Path     string
	Format   string
	Level    string
	Rotation RotationConfig
}

type RotationConfig struct {
	MaxSize    int
	MaxAge     int
	MaxBackups int
	Compress   bool
}

// BrowserConfig holds the headless-prober timing tunables called out as
// approximate defaults in spec.md §4.4/§4.4.1.
type BrowserConfig struct {
	IdleTimeoutMs       int
	NetworkIdleTimeoutMs int
	LoginTimeoutMs      int
}

// Duration is a millisecond-granularity duration sourced from an env var
// integer, kept as its own type (rather than time.Duration directly) so
// config.go's parsing stays symmetric with the teacher's
// types.Duration-over-YAML pattern.
type Duration int64

// AsDuration converts the millisecond value to a time.Duration.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d) * time.Millisecond
}
