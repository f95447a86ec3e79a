package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.Session.Path = filepath.Join(t.TempDir(), "session.db")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15*time.Second, cfg.GetAPITimeoutDuration())
	assert.Equal(t, 30*time.Second, cfg.GetCacheTTLDuration())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codeyard.yaml")
	content := `
api:
  base_url: http://file.example/api
  timeout: 3s
session:
  store: memory
cache:
  ttl: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CODEYARD_CONFIG", path)
	t.Setenv("API_BASE_URL", "http://env.example/api")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://env.example/api", cfg.API.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.GetAPITimeoutDuration())
	assert.Equal(t, StoreMemory, cfg.Session.Store)
	assert.Equal(t, time.Minute, cfg.GetCacheTTLDuration())
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CODEYARD_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"relative base url", func(c *Config) { c.API.BaseURL = "/api" }, "API_BASE_URL"},
		{"unknown store", func(c *Config) { c.Session.Store = "redis" }, "unknown SESSION_STORE"},
		{"postgres without dsn", func(c *Config) { c.Session.Store = StorePostgres }, "SESSION_DSN"},
		{"bad duration", func(c *Config) { c.Cache.TTL = "soon" }, "CACHE_TTL"},
		{"sample rate", func(c *Config) { c.Tracing.SampleRate = 2 }, "OTEL_SAMPLE_RATE"},
		{"production secret", func(c *Config) { c.Service.Env = "production" }, "JWT_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Session.Path = "session.db"
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDurationFallback(t *testing.T) {
	cfg := Default()
	cfg.Shutdown.Timeout = "garbage"
	assert.Equal(t, 10*time.Second, cfg.GetShutdownTimeoutDuration())
}
