package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, loaded from environment variables.
type Config struct {
	// Server
	Host string `env:"POLICY_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"POLICY_PORT" envDefault:"8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Circuit breaker (sliding window over lock-producing transitions)
	BreakerMaxLocksInWindow int `env:"BREAKER_MAX_LOCKS_IN_WINDOW" envDefault:"50"`
	BreakerWindowSeconds    int `env:"BREAKER_WINDOW_SECONDS" envDefault:"300"`
	BreakerCooldownSeconds  int `env:"BREAKER_COOLDOWN_SECONDS" envDefault:"600"`

	// Canary rollout controller
	CanaryErrorRateThreshold     float64 `env:"CANARY_ERROR_RATE_THRESHOLD" envDefault:"0.02"`
	CanaryHeartbeatLossThreshold float64 `env:"CANARY_HEARTBEAT_LOSS_THRESHOLD" envDefault:"0.05"`

	// Postgres (optional — if unset, the in-memory repository is used)
	DatabaseURL string `env:"POLICY_DATABASE_URL"`

	// Redis (optional — if unset, processed transaction IDs are tracked by the
	// base repository: in memory, or in Postgres when DatabaseURL is set)
	RedisURL string `env:"POLICY_REDIS_URL"`

	// Migrations (only consulted when DatabaseURL is set)
	MigrationsDir string `env:"POLICY_MIGRATIONS_DIR" envDefault:"migrations"`

	// Slack (optional — if unset, operational notifications are a no-op)
	SlackBotToken     string `env:"SLACK_BOT_TOKEN"`
	SlackAlertChannel string `env:"SLACK_ALERT_CHANNEL"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
