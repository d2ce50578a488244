// Package config handles loading and validation of application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"voicekeeper/internal/database"
)

// Config holds all configuration for our application
type Config struct {
	Discord    DiscordConfig    `yaml:"discord" envPrefix:"DISCORD_"`
	Database   DatabaseConfig   `yaml:"database" envPrefix:"DATABASE_"`
	Logging    LoggingConfig    `yaml:"logging" envPrefix:"LOG_"`
	Metrics    MetricsConfig    `yaml:"metrics" envPrefix:"METRICS_"`
	LogEmitter LogEmitterConfig `yaml:"log_emitter" envPrefix:"LOG_EMITTER_"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	Token  string `yaml:"token" env:"TOKEN"`
	Prefix string `yaml:"prefix" env:"PREFIX"`
	// Owner is shown to blacklisted users as the person to contact.
	Owner string `yaml:"owner" env:"OWNER"`
}

// DatabaseConfig holds store settings.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"`
	DSN             string        `yaml:"dsn" env:"DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	QueryTimeout    time.Duration `yaml:"query_timeout" env:"QUERY_TIMEOUT"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// MetricsConfig holds the Prometheus listener. An empty address disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// LogEmitterConfig limits how fast lines are posted to a guild's log channel.
type LogEmitterConfig struct {
	Rate  float64 `yaml:"rate" env:"RATE"`
	Burst int     `yaml:"burst" env:"BURST"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Discord: DiscordConfig{
			Prefix: "!",
		},
		Database: DatabaseConfig{
			Driver:          database.DriverPostgres,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		LogEmitter: LogEmitterConfig{
			Rate:  1,
			Burst: 5,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path, a .env
// file if present, and finally environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// .env file is optional, continue with environment variables
	_ = godotenv.Load()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return &ConfigError{Field: "DISCORD_TOKEN", Message: "DISCORD_TOKEN is required"}
	}

	if c.Discord.Prefix == "" {
		return &ConfigError{Field: "DISCORD_PREFIX", Message: "DISCORD_PREFIX must not be empty"}
	}

	if c.Database.DSN == "" {
		return &ConfigError{Field: "DATABASE_DSN", Message: "DATABASE_DSN is required"}
	}

	switch c.Database.Driver {
	case database.DriverPostgres, database.DriverPgx, database.DriverSQLite:
	default:
		return &ConfigError{Field: "DATABASE_DRIVER", Message: fmt.Sprintf("unsupported database driver %q", c.Database.Driver)}
	}

	if c.Database.QueryTimeout <= 0 {
		return &ConfigError{Field: "DATABASE_QUERY_TIMEOUT", Message: "DATABASE_QUERY_TIMEOUT must be positive"}
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return &ConfigError{Field: "LOG_LEVEL", Message: err.Error()}
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return &ConfigError{Field: "LOG_FORMAT", Message: "LOG_FORMAT must be text or json"}
	}

	if c.LogEmitter.Rate < 0 || c.LogEmitter.Burst < 0 {
		return &ConfigError{Field: "LOG_EMITTER_RATE", Message: "log emitter rate and burst must not be negative"}
	}

	return nil
}

// DatabaseOptions converts the database section for database.New.
func (c *Config) DatabaseOptions() database.Options {
	return database.Options{
		Driver:          c.Database.Driver,
		DSN:             c.Database.DSN,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		QueryTimeout:    c.Database.QueryTimeout,
	}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// IsConfigError reports whether err is a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
