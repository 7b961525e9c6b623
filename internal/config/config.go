package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	AdminUser     string
	AdminPassword string

	// KVURL is the redis:// (or rediss://) URL of the shared key-value
	// store. When empty, analytics is disabled but the server still runs.
	KVURL string
	// KVToken overrides the password embedded in KVURL, if set.
	KVToken string

	// DatabaseURL points at the optional Postgres rollup archive.
	DatabaseURL string

	// RetentionDays is how long archived daily rollups are kept.
	RetentionDays int

	// RollupSchedule is a cron expression for the rollup worker.
	RollupSchedule string

	ListenAddr string

	// APIToken guards machine endpoints (/metrics, history). Empty means open.
	APIToken string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		AdminUser:      getenv("APP_ADMIN_USER", "admin"),
		AdminPassword:  os.Getenv("APP_ADMIN_PASSWORD"),
		KVURL:          strings.TrimSpace(os.Getenv("KV_URL")),
		KVToken:        os.Getenv("KV_TOKEN"),
		DatabaseURL:    strings.TrimSpace(os.Getenv("APP_DATABASE_URL")),
		ListenAddr:     getenv("APP_LISTEN_ADDR", ":8080"),
		RetentionDays:  365,
		RollupSchedule: getenv("APP_ROLLUP_SCHEDULE", "@hourly"),
		APIToken:       os.Getenv("APP_API_TOKEN"),
		LogLevel:       getenv("APP_LOG_LEVEL", "info"),
		LogFormat:      getenv("APP_LOG_FORMAT", "text"),
	}

	if v := os.Getenv("APP_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.RetentionDays = days
		}
	}

	return cfg
}

// AnalyticsEnabled reports whether a key-value store is configured.
func (c *Config) AnalyticsEnabled() bool {
	return c.KVURL != ""
}

// DashboardProtected reports whether the dashboard requires a login.
func (c *Config) DashboardProtected() bool {
	return c.AdminPassword != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
