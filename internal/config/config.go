// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads the application configuration from environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/olegiv/warden-go/internal/ratelimit"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ServerHost string `env:"WARDEN_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"WARDEN_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"WARDEN_ENV" envDefault:"development"`
	LogLevel   string `env:"WARDEN_LOG_LEVEL" envDefault:"info"`

	// AdminToken authorizes the admin query API. When empty the admin
	// surface rejects every request.
	AdminToken string `env:"WARDEN_ADMIN_TOKEN"`

	// APIPrefix is the first path segment of audited API routes.
	APIPrefix string `env:"WARDEN_API_PREFIX" envDefault:"api"`

	// Audit log configuration
	AuditMaxEntries    int `env:"WARDEN_AUDIT_MAX_ENTRIES" envDefault:"10000"`
	AuditRetentionDays int `env:"WARDEN_AUDIT_RETENTION_DAYS" envDefault:"30"`

	// Counter store configuration
	RedisURL    string `env:"WARDEN_REDIS_URL"` // Optional Redis URL for a shared counter store
	RedisPrefix string `env:"WARDEN_REDIS_PREFIX" envDefault:"warden:limit:"`

	// FailOpen switches the limiter posture on store failure from deny
	// (the default) to allow.
	FailOpen bool `env:"WARDEN_FAIL_OPEN" envDefault:"false"`

	// Transport backstop (token bucket per client IP)
	ThrottleRPS   float64 `env:"WARDEN_THROTTLE_RPS" envDefault:"50"`
	ThrottleBurst int     `env:"WARDEN_THROTTLE_BURST" envDefault:"100"`

	// Request handling
	RequestTimeout time.Duration `env:"WARDEN_REQUEST_TIMEOUT" envDefault:"60s"`

	// Anomaly detection thresholds
	AnomalyFailedLogins  int `env:"WARDEN_ANOMALY_FAILED_LOGINS" envDefault:"5"`
	AnomalyHighFrequency int `env:"WARDEN_ANOMALY_HIGH_FREQUENCY" envDefault:"1000"`

	// GeoIP configuration
	GeoIPDBPath string `env:"WARDEN_GEOIP_DB_PATH"` // Path to GeoLite2-Country.mmdb file

	// Rate-limit policies
	APILimit    PolicyConfig `envPrefix:"WARDEN_LIMIT_API_"`
	AuthLimit   PolicyConfig `envPrefix:"WARDEN_LIMIT_AUTH_"`
	WriteLimit  PolicyConfig `envPrefix:"WARDEN_LIMIT_WRITE_"`
	ReadLimit   PolicyConfig `envPrefix:"WARDEN_LIMIT_READ_"`
	PublicLimit PolicyConfig `envPrefix:"WARDEN_LIMIT_PUBLIC_"`
	UploadLimit PolicyConfig `envPrefix:"WARDEN_LIMIT_UPLOAD_"`
	SearchLimit PolicyConfig `envPrefix:"WARDEN_LIMIT_SEARCH_"`
}

// PolicyConfig is the environment shape of one rate-limit policy.
type PolicyConfig struct {
	Enabled        bool          `env:"ENABLED" envDefault:"true"`
	Window         time.Duration `env:"WINDOW"`
	Max            int           `env:"MAX"`
	Message        string        `env:"MESSAGE"`
	SkipSuccessful bool          `env:"SKIP_SUCCESSFUL"`
	SkipFailed     bool          `env:"SKIP_FAILED"`
	BurstWindow    time.Duration `env:"BURST_WINDOW"`
	BurstMax       int           `env:"BURST_MAX"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisStore returns true if a shared Redis counter store is configured.
func (c Config) UseRedisStore() bool {
	return c.RedisURL != ""
}

// GeoIPEnabled returns true if the GeoIP database is configured.
func (c Config) GeoIPEnabled() bool {
	return c.GeoIPDBPath != ""
}

// AuditRetention returns the retention horizon as a duration.
func (c Config) AuditRetention() time.Duration {
	return time.Duration(c.AuditRetentionDays) * 24 * time.Hour
}

// Policy materializes one configured policy, applying the code-side
// defaults for fields the environment left unset.
func (pc PolicyConfig) Policy(name string, defaults ratelimit.Policy) ratelimit.Policy {
	p := defaults
	p.Name = name
	if pc.Window > 0 {
		p.Window = pc.Window
	}
	if pc.Max > 0 {
		p.Max = pc.Max
	}
	if pc.Message != "" {
		p.Message = pc.Message
	}
	if pc.SkipSuccessful {
		p.SkipSuccessful = true
	}
	if pc.SkipFailed {
		p.SkipFailed = true
	}
	if pc.BurstWindow > 0 {
		p.BurstWindow = pc.BurstWindow
	}
	if pc.BurstMax > 0 {
		p.BurstMax = pc.BurstMax
	}
	return p
}

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.AuditMaxEntries <= 0 {
		return nil, fmt.Errorf("WARDEN_AUDIT_MAX_ENTRIES must be positive, got %d", cfg.AuditMaxEntries)
	}
	if cfg.AuditRetentionDays <= 0 {
		return nil, fmt.Errorf("WARDEN_AUDIT_RETENTION_DAYS must be positive, got %d", cfg.AuditRetentionDays)
	}
	if cfg.ThrottleRPS <= 0 || cfg.ThrottleBurst <= 0 {
		return nil, fmt.Errorf("throttle settings must be positive, got rps=%g burst=%d",
			cfg.ThrottleRPS, cfg.ThrottleBurst)
	}

	return cfg, nil
}
