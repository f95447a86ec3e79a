// Package config loads runtime configuration for the Codeyard client, the CLI
// and the sandbox API.
//
// Sources, lowest precedence first:
//   - built-in defaults
//   - a .env file in the working directory (godotenv, never overrides the real environment)
//   - an optional YAML file named by CODEYARD_CONFIG
//   - environment variables
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Session store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the root configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Profiling ProfilingConfig `yaml:"profiling"`
	API       APIConfig       `yaml:"api"`
	Session   SessionConfig   `yaml:"session"`
	Cache     CacheConfig     `yaml:"cache"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Shutdown  ShutdownConfig  `yaml:"shutdown"`
}

type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
	Port    string `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate"`
}

type ProfilingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// APIConfig describes how the client reaches the Codeyard REST API.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout bounds a single HTTP round trip, e.g. "15s".
	Timeout string `yaml:"timeout"`
	// RefreshTimeout bounds the token refresh call.
	RefreshTimeout    string  `yaml:"refresh_timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// SessionConfig selects where the access token is persisted between runs.
type SessionConfig struct {
	Store string `yaml:"store"`
	Path  string `yaml:"path"`
	DSN   string `yaml:"dsn"`
}

type CacheConfig struct {
	TTL string `yaml:"ttl"`
}

// SandboxConfig configures the in-memory sandbox API.
type SandboxConfig struct {
	JWTSecret        string  `yaml:"jwt_secret"`
	AccessTTL        string  `yaml:"access_ttl"`
	RefreshTTL       string  `yaml:"refresh_ttl"`
	RefreshCookie    string  `yaml:"refresh_cookie"`
	AuthRateLimitRPS float64 `yaml:"auth_rate_limit_rps"`
	AuthRateBurst    int     `yaml:"auth_rate_burst"`
}

type ShutdownConfig struct {
	Timeout             string `yaml:"timeout"`
	ReadinessDrainDelay string `yaml:"readiness_drain_delay"`
}

const devJWTSecret = "dev-secret-change-in-production"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:    "codeyard",
			Version: "dev",
			Env:     "development",
			Port:    "8000",
		},
		Logging: LoggingConfig{Level: "info"},
		Tracing: TracingConfig{
			Endpoint:   "localhost:4318",
			SampleRate: 1.0,
		},
		Profiling: ProfilingConfig{Endpoint: "http://localhost:4040"},
		API: APIConfig{
			BaseURL:           "http://localhost:8000/api",
			Timeout:           "15s",
			RefreshTimeout:    "10s",
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Session: SessionConfig{
			Store: StoreSQLite,
			Path:  defaultSessionPath(),
		},
		Cache: CacheConfig{TTL: "30s"},
		Sandbox: SandboxConfig{
			JWTSecret:        devJWTSecret,
			AccessTTL:        "5m",
			RefreshTTL:       "168h",
			RefreshCookie:    "refresh_token",
			AuthRateLimitRPS: 5,
			AuthRateBurst:    10,
		},
		Shutdown: ShutdownConfig{
			Timeout:             "10s",
			ReadinessDrainDelay: "0s",
		},
	}
}

// Load builds the configuration from defaults, .env, the optional YAML file
// and the environment.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CODEYARD_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Service.Name = getEnv("SERVICE_NAME", c.Service.Name)
	c.Service.Version = getEnv("SERVICE_VERSION", c.Service.Version)
	c.Service.Env = getEnv("ENV", c.Service.Env)
	c.Service.Port = getEnv("PORT", c.Service.Port)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)

	c.Tracing.Enabled = getEnvBool("TRACING_ENABLED", c.Tracing.Enabled)
	c.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.Endpoint)
	c.Tracing.SampleRate = getEnvFloat("OTEL_SAMPLE_RATE", c.Tracing.SampleRate)

	c.Profiling.Enabled = getEnvBool("PROFILING_ENABLED", c.Profiling.Enabled)
	c.Profiling.Endpoint = getEnv("PYROSCOPE_ENDPOINT", c.Profiling.Endpoint)

	c.API.BaseURL = getEnv("API_BASE_URL", c.API.BaseURL)
	c.API.Timeout = getEnv("API_TIMEOUT", c.API.Timeout)
	c.API.RefreshTimeout = getEnv("API_REFRESH_TIMEOUT", c.API.RefreshTimeout)
	c.API.RequestsPerSecond = getEnvFloat("API_RATE_LIMIT_RPS", c.API.RequestsPerSecond)
	c.API.Burst = getEnvInt("API_RATE_LIMIT_BURST", c.API.Burst)

	c.Session.Store = getEnv("SESSION_STORE", c.Session.Store)
	c.Session.Path = getEnv("SESSION_PATH", c.Session.Path)
	c.Session.DSN = getEnv("SESSION_DSN", c.Session.DSN)

	c.Cache.TTL = getEnv("CACHE_TTL", c.Cache.TTL)

	c.Sandbox.JWTSecret = getEnv("JWT_SECRET", c.Sandbox.JWTSecret)
	c.Sandbox.AccessTTL = getEnv("ACCESS_TOKEN_TTL", c.Sandbox.AccessTTL)
	c.Sandbox.RefreshTTL = getEnv("REFRESH_TOKEN_TTL", c.Sandbox.RefreshTTL)
	c.Sandbox.RefreshCookie = getEnv("REFRESH_COOKIE_NAME", c.Sandbox.RefreshCookie)
	c.Sandbox.AuthRateLimitRPS = getEnvFloat("AUTH_RATE_LIMIT_RPS", c.Sandbox.AuthRateLimitRPS)
	c.Sandbox.AuthRateBurst = getEnvInt("AUTH_RATE_LIMIT_BURST", c.Sandbox.AuthRateBurst)

	c.Shutdown.Timeout = getEnv("SHUTDOWN_TIMEOUT", c.Shutdown.Timeout)
	c.Shutdown.ReadinessDrainDelay = getEnv("READINESS_DRAIN_DELAY", c.Shutdown.ReadinessDrainDelay)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Service.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("API_BASE_URL %q is not an absolute URL", c.API.BaseURL))
	}
	if c.API.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("API_RATE_LIMIT_RPS must not be negative"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE %v must be within [0, 1]", c.Tracing.SampleRate))
	}

	switch c.Session.Store {
	case StoreSQLite:
		if c.Session.Path == "" {
			errs = append(errs, errors.New("SESSION_PATH is required for the sqlite store"))
		}
	case StorePostgres:
		if c.Session.DSN == "" {
			errs = append(errs, errors.New("SESSION_DSN is required for the postgres store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_STORE %q", c.Session.Store))
	}

	for name, value := range map[string]string{
		"API_TIMEOUT":           c.API.Timeout,
		"API_REFRESH_TIMEOUT":   c.API.RefreshTimeout,
		"CACHE_TTL":             c.Cache.TTL,
		"ACCESS_TOKEN_TTL":      c.Sandbox.AccessTTL,
		"REFRESH_TOKEN_TTL":     c.Sandbox.RefreshTTL,
		"SHUTDOWN_TIMEOUT":      c.Shutdown.Timeout,
		"READINESS_DRAIN_DELAY": c.Shutdown.ReadinessDrainDelay,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if c.Service.Env == "production" && c.Sandbox.JWTSecret == devJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be set in production environment"))
	}

	return errors.Join(errs...)
}

func (c *Config) GetAPITimeoutDuration() time.Duration {
	return parseDuration(c.API.Timeout, 15*time.Second)
}

func (c *Config) GetRefreshTimeoutDuration() time.Duration {
	return parseDuration(c.API.RefreshTimeout, 10*time.Second)
}

func (c *Config) GetCacheTTLDuration() time.Duration {
	return parseDuration(c.Cache.TTL, 30*time.Second)
}

func (c *Config) GetAccessTTLDuration() time.Duration {
	return parseDuration(c.Sandbox.AccessTTL, 5*time.Minute)
}

func (c *Config) GetRefreshTTLDuration() time.Duration {
	return parseDuration(c.Sandbox.RefreshTTL, 7*24*time.Hour)
}

func (c *Config) GetShutdownTimeoutDuration() time.Duration {
	return parseDuration(c.Shutdown.Timeout, 10*time.Second)
}

func (c *Config) GetReadinessDrainDelayDuration() time.Duration {
	return parseDuration(c.Shutdown.ReadinessDrainDelay, 0)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "codeyard-session.db"
	}
	return dir + string(os.PathSeparator) + "codeyard" + string(os.PathSeparator) + "session.db"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}
