package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	RedisURL  string `env:"REDIS_URL,required" validate:"required"`
	Namespace string `env:"NAMESPACE" envDefault:"jobrepeat" validate:"required"`

	// DemoPollIntervalSec only drives cmd/schedulerd's illustrative
	// delayed-set poller; the real dispatcher/worker are out of scope.
	DemoPollIntervalSec int `env:"DEMO_POLL_INTERVAL_SEC" envDefault:"1" validate:"min=1,max=60"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	// AdminTokenSecret signs/verifies the bearer token protecting the admin
	// HTTP surface. There is no per-tenant auth — see Non-goals.
	AdminTokenSecret string `env:"ADMIN_TOKEN_SECRET,required" validate:"required,min=16"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
