package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DISCORD_TOKEN", "DISCORD_PREFIX", "DISCORD_OWNER",
		"DATABASE_DRIVER", "DATABASE_DSN", "DATABASE_MAX_OPEN_CONNS", "DATABASE_MAX_IDLE_CONNS",
		"DATABASE_CONN_MAX_LIFETIME", "DATABASE_QUERY_TIMEOUT",
		"LOG_LEVEL", "LOG_FORMAT", "METRICS_ADDR", "LOG_EMITTER_RATE", "LOG_EMITTER_BURST",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_EnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DATABASE_DSN", "postgres://localhost/voice")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.Discord.Token)
	assert.Equal(t, "!", cfg.Discord.Prefix)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoad_FileThenEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
discord:
  token: file-token
  prefix: "?"
  owner: admin#0001
database:
  driver: sqlite3
  dsn: file.db
  query_timeout: 2s
logging:
  level: debug
  format: json
metrics:
  addr: ":9090"
log_emitter:
  rate: 0.5
  burst: 2
`)
	t.Setenv("DATABASE_DSN", "env.db")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-token", cfg.Discord.Token)
	assert.Equal(t, "?", cfg.Discord.Prefix)
	assert.Equal(t, "admin#0001", cfg.Discord.Owner)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "env.db", cfg.Database.DSN)
	assert.Equal(t, 2*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, 0.5, cfg.LogEmitter.Rate)
	assert.Equal(t, 2, cfg.LogEmitter.Burst)

	opts := cfg.DatabaseOptions()
	assert.Equal(t, "env.db", opts.DSN)
	assert.Equal(t, 2*time.Second, opts.QueryTimeout)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DATABASE_DSN", "x")
	t.Setenv("DATABASE_QUERY_TIMEOUT", "soon")

	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Discord.Token = "t"
		c.Database.DSN = "d"
		return c
	}

	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"missing token", func(c *Config) { c.Discord.Token = "" }, "DISCORD_TOKEN"},
		{"empty prefix", func(c *Config) { c.Discord.Prefix = "" }, "DISCORD_PREFIX"},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "DATABASE_DSN"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "DATABASE_DRIVER"},
		{"zero timeout", func(c *Config) { c.Database.QueryTimeout = 0 }, "DATABASE_QUERY_TIMEOUT"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
		{"negative rate", func(c *Config) { c.LogEmitter.Rate = -1 }, "LOG_EMITTER_RATE"},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.edit(c)

			err := c.Validate()
			require.Error(t, err)
			assert.True(t, IsConfigError(err))

			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}
