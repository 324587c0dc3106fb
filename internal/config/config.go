// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration loaded from environment
// variables. It is assembled once at startup and passed explicitly to the
// components that need it.
type Config struct {
	DBPath        string `env:"OBJEVENTS_DB_PATH" envDefault:"./data/objevents.db"`
	SessionSecret string `env:"OBJEVENTS_SESSION_SECRET"`
	ServerHost    string `env:"OBJEVENTS_SERVER_HOST" envDefault:"localhost"`
	ServerPort    int    `env:"OBJEVENTS_SERVER_PORT" envDefault:"8080"`
	Env           string `env:"OBJEVENTS_ENV" envDefault:"development"`
	LogLevel      string `env:"OBJEVENTS_LOG_LEVEL" envDefault:"info"`

	// Notification feed
	FeedPerPage int `env:"OBJEVENTS_FEED_PER_PAGE" envDefault:"30"`

	// Email transport
	SMTPHost     string `env:"OBJEVENTS_SMTP_HOST"`
	SMTPPort     int    `env:"OBJEVENTS_SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"OBJEVENTS_SMTP_USER"`
	SMTPPassword string `env:"OBJEVENTS_SMTP_PASSWORD"`
	FromEmail    string `env:"OBJEVENTS_FROM_EMAIL" envDefault:"notifications@localhost"`

	// Digest scheduling (serve mode). Empty spec disables the interval.
	DigestCronRealtime string `env:"OBJEVENTS_DIGEST_CRON_REALTIME" envDefault:"* * * * *"`
	DigestCronDaily    string `env:"OBJEVENTS_DIGEST_CRON_DAILY" envDefault:"0 0 * * *"`
	DigestCronWeekly   string `env:"OBJEVENTS_DIGEST_CRON_WEEKLY" envDefault:"0 3 * * 0"`
	DigestCronMonthly  string `env:"OBJEVENTS_DIGEST_CRON_MONTHLY" envDefault:"0 5 1 * *"`

	// Cache configuration
	RedisURL    string `env:"OBJEVENTS_REDIS_URL"`                          // Optional Redis URL for distributed caching
	CachePrefix string `env:"OBJEVENTS_CACHE_PREFIX" envDefault:"objev:"`   // Redis key prefix
	CacheTTL    int    `env:"OBJEVENTS_CACHE_TTL" envDefault:"300"`         // Unread-count cache TTL in seconds

	// Seeding configuration
	DoSeed bool `env:"OBJEVENTS_DO_SEED" envDefault:"false"`
}

// MinSessionSecretLength is the minimum required length for the session secret.
const MinSessionSecretLength = 32

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// SMTPEnabled returns true if an SMTP transport is configured.
func (c Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.FeedPerPage < 1 {
		return nil, fmt.Errorf("OBJEVENTS_FEED_PER_PAGE must be positive, got %d", cfg.FeedPerPage)
	}

	return cfg, nil
}

// ValidateServer checks the settings only the HTTP server needs. The batch
// command runs without them.
func (c Config) ValidateServer() error {
	if len(c.SessionSecret) < MinSessionSecretLength {
		return fmt.Errorf("OBJEVENTS_SESSION_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			MinSessionSecretLength, len(c.SessionSecret))
	}
	return nil
}
