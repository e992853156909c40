// Package config loads internal/common/configtypes.Config from the
// process environment. The teacher's EGConfigManager wraps a loaded
// config behind LoadConfig/GetConfig with defaults applied once at
// startup; this package keeps that manager shape but sources values from
// os.Getenv rather than a YAML file, per spec.md §6.3 — no example repo
// in the corpus binds env vars through a third-party library, so the
// parsing below is hand-rolled os.Getenv+strconv, matching the corpus's
// own ad-hoc practice for this exact concern.
package config

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/watchvane/sentinel/internal/common/configtypes"
)

const (
	defaultPort             = 3000
	defaultCheckIntervalMs  = 300_000
	defaultRequestTimeoutMs = 35_000
	defaultMetricsListen    = ":9090"
	defaultMetricsPath      = "/metrics"
	defaultBrowserIdleMs    = 300_000
	defaultNetworkIdleMs    = 30_000
	defaultLoginTimeoutMs   = 20_000
)

// Manager holds the loaded configuration, mirroring the teacher's
// EGConfigManager: load once at startup, then serve it read-only via
// GetConfig for the remainder of the process lifetime.
type Manager struct {
	config *configtypes.Config
	logger *zap.Logger
}

// Load reads and validates the process environment into a Config.
func Load(logger *zap.Logger) (*Manager, error) {
	production := envBool("PRODUCTION", false)

	cfg := &configtypes.Config{
		Production:       production,
		Port:             envInt("PORT", defaultPort),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		CheckInterval:    configtypes.Duration(envInt("CHECK_INTERVAL", defaultCheckIntervalMs)),
		RequestTimeoutMs: envInt("REQUEST_TIMEOUT_MS", defaultRequestTimeoutMs),
		SSRFProtection:   envBool("SSRF_PROTECTION", true),
		ClickHouseURL:    os.Getenv("CLICKHOUSE_URL"),
		Metrics: configtypes.MetricsConfig{
			Enabled: envBool("METRICS_ENABLED", true),
			Listen:  envString("METRICS_ADDR", defaultMetricsListen),
			Path:    envString("METRICS_PATH", defaultMetricsPath),
		},
		Log:     loadLogConfig(production),
		Browser: loadBrowserConfig(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	m := &Manager{config: cfg, logger: logger}
	m.applyDefaults()
	return m, nil
}

func loadLogConfig(production bool) configtypes.LogConfig {
	defaultLevel := configtypes.LogLevelInfo
	if !production {
		defaultLevel = configtypes.LogLevelDebug
	}
	return configtypes.LogConfig{
		Level: envString("LOG_LEVEL", defaultLevel),
		Console: configtypes.ConsoleLogConfig{
			Enabled: true,
			Format:  configtypes.LogFormatConsole,
		},
		File: configtypes.FileLogConfig{
			Enabled: envBool("LOG_FILE_ENABLED", false),
			Path:    envString("LOG_FILE_PATH", ""),
			Format:  configtypes.LogFormatJSON,
			Rotation: configtypes.RotationConfig{
				MaxSize:    envInt("LOG_FILE_MAX_SIZE_MB", 100),
				MaxAge:     envInt("LOG_FILE_MAX_AGE_DAYS", 14),
				MaxBackups: envInt("LOG_FILE_MAX_BACKUPS", 5),
				Compress:   envBool("LOG_FILE_COMPRESS", true),
			},
		},
	}
}

func loadBrowserConfig() configtypes.BrowserConfig {
	return configtypes.BrowserConfig{
		IdleTimeoutMs:        envInt("BROWSER_IDLE_TIMEOUT_MS", defaultBrowserIdleMs),
		NetworkIdleTimeoutMs: envInt("NETWORK_IDLE_TIMEOUT_MS", defaultNetworkIdleMs),
		LoginTimeoutMs:       envInt("LOGIN_TIMEOUT_MS", defaultLoginTimeoutMs),
	}
}

// validate enforces spec.md §6.3's "DATABASE_URL required in production".
func validate(cfg *configtypes.Config) error {
	if cfg.Production && cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when PRODUCTION=true")
	}
	return nil
}

// applyDefaults logs the effective configuration, mirroring the teacher's
// post-load defaults/warnings pass.
func (m *Manager) applyDefaults() {
	m.logger.Info("configuration loaded",
		zap.Bool("production", m.config.Production),
		zap.Int("port", m.config.Port),
		zap.Bool("clickhouse_enabled", m.config.ClickHouseURL != ""),
		zap.String("metrics_listen", m.config.Metrics.Listen))
}

// GetConfig returns the loaded configuration.
func (m *Manager) GetConfig() *configtypes.Config {
	return m.config
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
