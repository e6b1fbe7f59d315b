package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"`

	// Telegram (optional — the core can run headless for tests/ops)
	TelegramToken       string `envconfig:"BOT_TELEGRAM_TOKEN"`
	TelegramPollTimeout int    `envconfig:"BOT_TELEGRAM_POLL_TIMEOUT" default:"30"` // long-poll seconds

	// Storage
	DBPath string `envconfig:"BOT_DB_PATH" default:"helpdesk.db"`

	// Auth: comma-separated list of email domains allowed to sign in.
	// Empty means any domain.
	AllowedEmailDomains []string `envconfig:"BOT_ALLOWED_EMAIL_DOMAINS"`

	// Session lifecycle
	SessionWarnAfter   time.Duration `envconfig:"SESSION_WARN_AFTER" default:"8m"`
	SessionLogoutAfter time.Duration `envconfig:"SESSION_LOGOUT_AFTER" default:"10m"`
	MonitorInterval    time.Duration `envconfig:"MONITOR_INTERVAL" default:"30s"`

	// Rate limiting
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"30"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`
	RateLimitSweep    time.Duration `envconfig:"RATE_LIMIT_SWEEP" default:"5m"`

	// Remember-me mapping
	MappingTTL           time.Duration `envconfig:"MAPPING_TTL" default:"720h"` // 30 days
	MappingPurgeInterval time.Duration `envconfig:"MAPPING_PURGE_INTERVAL" default:"6h"`
	MappingPurgeGrace    time.Duration `envconfig:"MAPPING_PURGE_GRACE" default:"24h"`

	// Retry
	RetryMaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay   time.Duration `envconfig:"RETRY_BASE_DELAY" default:"500ms"`

	// Ops API
	OpsListenAddr string `envconfig:"OPS_LISTEN_ADDR" default:":8090"`
}

// TelegramEnabled returns true if a bot token is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

// Validate checks the configuration for values that would silently misbehave
// at runtime. It fails fast instead of degrading.
func (c *Config) Validate() error {
	if c.SessionWarnAfter <= 0 {
		return fmt.Errorf("SESSION_WARN_AFTER must be positive, got %s", c.SessionWarnAfter)
	}
	if c.SessionLogoutAfter <= c.SessionWarnAfter {
		return fmt.Errorf("SESSION_LOGOUT_AFTER (%s) must be greater than SESSION_WARN_AFTER (%s)",
			c.SessionLogoutAfter, c.SessionWarnAfter)
	}
	if c.MonitorInterval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL must be positive, got %s", c.MonitorInterval)
	}
	if c.RateLimitRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimitRequests)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	}
	if c.MappingTTL <= 0 {
		return fmt.Errorf("MAPPING_TTL must be positive, got %s", c.MappingTTL)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts)
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("RETRY_BASE_DELAY must be positive, got %s", c.RetryBaseDelay)
	}
	if c.DBPath == "" {
		return fmt.Errorf("BOT_DB_PATH must not be empty")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}
