package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "annotator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// TestLoadConfig tests the configuration loading from environment and files
func TestLoadConfig(t *testing.T) {
	t.Run("Defaults without a file", func(t *testing.T) {
		cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load()
		require.NoError(t, err)

		assert.Equal(t, 8081, cfg.Server.Port)
		assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.True(t, cfg.Metrics.Enabled)
		assert.False(t, cfg.Cache.Enabled)
		assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
		assert.False(t, cfg.Store.Enabled)
		assert.Equal(t, "postgres", cfg.Store.Driver)
		assert.Zero(t, cfg.RateLimit.RequestsPerSecond)
	})

	t.Run("File values", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: 9000
  max_body_bytes: 2048
logging:
  level: debug
  format: console
cache:
  enabled: true
  redis_url: redis://localhost:6379/2
  ttl: 30s
rate_limit:
  requests_per_second: 5
  burst: 10
`)
		cfg, err := NewLoader(path).Load()
		require.NoError(t, err)

		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, int64(2048), cfg.Server.MaxBodyBytes)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "console", cfg.Logging.Format)
		assert.True(t, cfg.Cache.Enabled)
		assert.Equal(t, "redis://localhost:6379/2", cfg.Cache.RedisURL)
		assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
		assert.Equal(t, 5.0, cfg.RateLimit.RequestsPerSecond)
		assert.Equal(t, 10, cfg.RateLimit.Burst)
	})

	t.Run("Environment variable override", func(t *testing.T) {
		path := writeConfig(t, "logging:\n  level: warn\n")
		t.Setenv("LOGGING_LEVEL", "debug")
		t.Setenv("SERVER_PORT", "7070")

		cfg, err := NewLoader(path).Load()
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, 7070, cfg.Server.Port)
	})

	t.Run("Store configuration", func(t *testing.T) {
		t.Setenv("STORE_ENABLED", "true")
		t.Setenv("STORE_HOST", "testhost")
		t.Setenv("STORE_PORT", "54321")
		t.Setenv("STORE_USER", "testuser")
		t.Setenv("STORE_PASSWORD", "testpass")
		t.Setenv("STORE_DATABASE", "testdb")

		cfg, err := NewLoader("").Load()
		require.NoError(t, err)
		assert.True(t, cfg.Store.Enabled)
		assert.Equal(t, "host=testhost port=54321 user=testuser password=testpass dbname=testdb sslmode=disable",
			cfg.Store.PostgresDSN())
	})

	t.Run("Explicit DSN wins", func(t *testing.T) {
		s := StoreConfig{DSN: "postgres://u:p@db/annotator", Host: "ignored"}
		assert.Equal(t, "postgres://u:p@db/annotator", s.PostgresDSN())
	})

	t.Run("CONFIG_PATH", func(t *testing.T) {
		t.Setenv("CONFIG_PATH", "/tmp/custom.yaml")
		assert.Equal(t, "/tmp/custom.yaml", Path())
	})

	t.Run("Malformed file", func(t *testing.T) {
		path := writeConfig(t, "server: [unclosed\n")
		_, err := NewLoader(path).Load()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := NewLoader("").Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad body limit", func(c *Config) { c.Server.MaxBodyBytes = 0 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"cache without url", func(c *Config) { c.Cache.Enabled = true; c.Cache.RedisURL = "" }},
		{"cache without ttl", func(c *Config) { c.Cache.Enabled = true; c.Cache.TTL = 0 }},
		{"unknown driver", func(c *Config) { c.Store.Enabled = true; c.Store.Driver = "mysql" }},
		{"sqlite without dsn", func(c *Config) { c.Store.Enabled = true; c.Store.Driver = "sqlite3" }},
		{"negative rate", func(c *Config) { c.RateLimit.RequestsPerSecond = -1 }},
		{"rate without burst", func(c *Config) { c.RateLimit.RequestsPerSecond = 1; c.RateLimit.Burst = 0 }},
	}

	assert.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
