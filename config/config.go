// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ErrNoConfig is returned when neither a file nor environment supplies configuration.
var ErrNoConfig = errors.New("no configuration found: provide a config file or set COSTBOARD_UPSTREAM_URL")

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	OpenAPI   OpenAPIConfig   `yaml:"openapi"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// UpstreamConfig configures the admin API that reports live usage.
type UpstreamConfig struct {
	URL        string            `yaml:"url"`
	AdminToken string            `yaml:"admin_token"`
	Path       string            `yaml:"path"`
	Timeout    time.Duration     `yaml:"timeout"`
	PageSize   int               `yaml:"page_size"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	Retry      RetryConfig       `yaml:"retry"`
}

// RetryConfig configures retries of transient upstream failures.
type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

// DatabaseConfig configures the snapshot store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
	// Memory keeps snapshots in process memory. Development only.
	Memory bool `yaml:"memory"`
}

// CacheConfig configures the Redis cache in front of the upstream.
// An empty RedisAddr disables caching.
type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
	Key       string        `yaml:"key"`
}

// SnapshotsConfig configures period closing.
type SnapshotsConfig struct {
	Interval time.Duration `yaml:"interval"` // 0 disables scheduled snapshots
	Timezone string        `yaml:"timezone"`
}

// AuthConfig configures caller identity and admin access.
type AuthConfig struct {
	AdminTokenHash string      `yaml:"admin_token_hash"`
	BcryptCost     int         `yaml:"bcrypt_cost"`
	Keys           []KeyConfig `yaml:"keys"`
}

// KeyConfig binds a bcrypt-hashed API key to a user ID.
type KeyConfig struct {
	UserID  string `yaml:"user_id"`
	KeyHash string `yaml:"key_hash"`
}

// RateLimitConfig limits /api requests per caller.
// A zero RequestsPerMinute disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // Enable /metrics endpoint
}

// OpenAPIConfig configures OpenAPI/Swagger documentation.
type OpenAPIConfig struct {
	Enabled bool `yaml:"enabled"` // Enable OpenAPI endpoints
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	data = expandEnv(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${NAME} references. Bare $ is left alone so bcrypt
// hashes survive.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(os.Getenv(string(ref[2 : len(ref)-1])))
	})
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	COSTBOARD_UPSTREAM_URL          - Upstream admin API URL (required)
//	COSTBOARD_UPSTREAM_ADMIN_TOKEN  - Bearer token for the upstream
//	COSTBOARD_DATABASE_DSN          - SQLite path (default: costboard.db)
//	COSTBOARD_REDIS_ADDR            - Redis address; enables the usage cache
//	COSTBOARD_SNAPSHOT_INTERVAL     - Scheduled snapshot interval, e.g. 720h
//	COSTBOARD_SNAPSHOT_TIMEZONE     - Timezone recorded with snapshots (default: UTC)
//	COSTBOARD_ADMIN_TOKEN_HASH      - bcrypt hash of the admin token
//	COSTBOARD_RATE_LIMIT_RPM        - Requests per minute per caller on /api (0 disables)
//	COSTBOARD_RATE_LIMIT_BURST      - Extra requests allowed per window
//	COSTBOARD_LOG_LEVEL             - debug, info, warn, error (default: info)
//	COSTBOARD_LOG_FORMAT            - json or console (default: json)
//	COSTBOARD_METRICS_ENABLED       - Enable /metrics
//	COSTBOARD_OPENAPI_ENABLED       - Enable OpenAPI/Swagger
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if HasEnvConfig() {
		return LoadFromEnv()
	}

	return nil, ErrNoConfig
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("COSTBOARD_UPSTREAM_URL") != ""
}

// applyEnvOverrides applies COSTBOARD_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("COSTBOARD_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("COSTBOARD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Upstream configuration
	if v := os.Getenv("COSTBOARD_UPSTREAM_URL"); v != "" {
		cfg.Upstream.URL = v
	}
	if v := os.Getenv("COSTBOARD_UPSTREAM_ADMIN_TOKEN"); v != "" {
		cfg.Upstream.AdminToken = v
	}
	if v := os.Getenv("COSTBOARD_UPSTREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Upstream.Timeout = d
		}
	}
	if v := os.Getenv("COSTBOARD_UPSTREAM_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Upstream.PageSize = n
		}
	}
	if v := os.Getenv("COSTBOARD_UPSTREAM_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Upstream.Retry.Attempts = n
		}
	}

	// Database configuration
	if v := os.Getenv("COSTBOARD_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("COSTBOARD_DATABASE_MEMORY"); v != "" {
		cfg.Database.Memory = parseBool(v)
	}

	// Cache configuration
	if v := os.Getenv("COSTBOARD_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("COSTBOARD_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}

	// Snapshot configuration
	if v := os.Getenv("COSTBOARD_SNAPSHOT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Snapshots.Interval = d
		}
	}
	if v := os.Getenv("COSTBOARD_SNAPSHOT_TIMEZONE"); v != "" {
		cfg.Snapshots.Timezone = v
	}

	// Auth configuration
	if v := os.Getenv("COSTBOARD_ADMIN_TOKEN_HASH"); v != "" {
		cfg.Auth.AdminTokenHash = v
	}

	// Rate limit configuration
	if v := os.Getenv("COSTBOARD_RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("COSTBOARD_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Burst = n
		}
	}

	// Logging configuration
	if v := os.Getenv("COSTBOARD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("COSTBOARD_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("COSTBOARD_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}

	// OpenAPI configuration
	if v := os.Getenv("COSTBOARD_OPENAPI_ENABLED"); v != "" {
		cfg.OpenAPI.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}

	if cfg.Upstream.Path == "" {
		cfg.Upstream.Path = "/admin/users"
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 10 * time.Second
	}
	if cfg.Upstream.PageSize == 0 {
		cfg.Upstream.PageSize = 100
	}
	if cfg.Upstream.Retry.Attempts == 0 {
		cfg.Upstream.Retry.Attempts = 3
	}
	if cfg.Upstream.Retry.BaseDelay == 0 {
		cfg.Upstream.Retry.BaseDelay = 200 * time.Millisecond
	}
	if cfg.Upstream.Retry.MaxDelay == 0 {
		cfg.Upstream.Retry.MaxDelay = 5 * time.Second
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "costboard.db"
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 30 * time.Second
	}

	if cfg.Snapshots.Timezone == "" {
		cfg.Snapshots.Timezone = "UTC"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}
	if !strings.HasPrefix(cfg.Upstream.URL, "http://") && !strings.HasPrefix(cfg.Upstream.URL, "https://") {
		return fmt.Errorf("upstream.url must be an http(s) URL, got %q", cfg.Upstream.URL)
	}
	if cfg.Upstream.PageSize < 0 {
		return fmt.Errorf("upstream.page_size must be positive, got %d", cfg.Upstream.PageSize)
	}
	if cfg.Upstream.Retry.Attempts < 0 {
		return fmt.Errorf("upstream.retry.attempts must not be negative, got %d", cfg.Upstream.Retry.Attempts)
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}

	if cfg.Snapshots.Interval < 0 {
		return fmt.Errorf("snapshots.interval must not be negative, got %s", cfg.Snapshots.Interval)
	}
	if _, err := time.LoadLocation(cfg.Snapshots.Timezone); err != nil {
		return fmt.Errorf("snapshots.timezone: %w", err)
	}

	for i, k := range cfg.Auth.Keys {
		if k.UserID == "" {
			return fmt.Errorf("auth.keys[%d].user_id is required", i)
		}
		if k.KeyHash == "" {
			return fmt.Errorf("auth.keys[%d].key_hash is required", i)
		}
	}

	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}
