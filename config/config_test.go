package config_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/costboard/config"
)

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
upstream:
  url: https://relay.example.com
  admin_token: tok
  page_size: 50
  headers:
    X-Tenant: main
  retry:
    attempts: 5
    base_delay: 100ms
database:
  dsn: /var/lib/costboard/snapshots.db
cache:
  redis_addr: localhost:6379
  ttl: 1m
snapshots:
  interval: 720h
  timezone: Asia/Shanghai
auth:
  admin_token_hash: "$2a$10$abc"
  keys:
    - user_id: u1
      key_hash: "$2a$10$def"
logging:
  level: debug
  format: console
metrics:
  enabled: true
openapi:
  enabled: true
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Server.Addr() != "127.0.0.1:9090" {
		t.Errorf("Addr = %s", cfg.Server.Addr())
	}
	if cfg.Upstream.URL != "https://relay.example.com" || cfg.Upstream.AdminToken != "tok" {
		t.Errorf("Upstream = %+v", cfg.Upstream)
	}
	if cfg.Upstream.PageSize != 50 || cfg.Upstream.Headers["X-Tenant"] != "main" {
		t.Errorf("Upstream = %+v", cfg.Upstream)
	}
	if cfg.Upstream.Retry.Attempts != 5 || cfg.Upstream.Retry.BaseDelay != 100*time.Millisecond {
		t.Errorf("Retry = %+v", cfg.Upstream.Retry)
	}
	if cfg.Upstream.Retry.MaxDelay != 5*time.Second {
		t.Errorf("MaxDelay default = %v, want 5s", cfg.Upstream.Retry.MaxDelay)
	}
	if cfg.Database.DSN != "/var/lib/costboard/snapshots.db" {
		t.Errorf("DSN = %s", cfg.Database.DSN)
	}
	if cfg.Cache.RedisAddr != "localhost:6379" || cfg.Cache.TTL != time.Minute {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Snapshots.Interval != 720*time.Hour || cfg.Snapshots.Timezone != "Asia/Shanghai" {
		t.Errorf("Snapshots = %+v", cfg.Snapshots)
	}
	if cfg.Auth.AdminTokenHash != "$2a$10$abc" || len(cfg.Auth.Keys) != 1 || cfg.Auth.Keys[0].UserID != "u1" {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || !cfg.OpenAPI.Enabled {
		t.Error("metrics/openapi not enabled")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
upstream:
  url: http://localhost:3000
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"server.host", cfg.Server.Host, "0.0.0.0"},
		{"server.port", cfg.Server.Port, 8080},
		{"server.request_timeout", cfg.Server.RequestTimeout, 60 * time.Second},
		{"upstream.path", cfg.Upstream.Path, "/admin/users"},
		{"upstream.timeout", cfg.Upstream.Timeout, 10 * time.Second},
		{"upstream.page_size", cfg.Upstream.PageSize, 100},
		{"upstream.retry.attempts", cfg.Upstream.Retry.Attempts, 3},
		{"database.dsn", cfg.Database.DSN, "costboard.db"},
		{"cache.ttl", cfg.Cache.TTL, 30 * time.Second},
		{"cache.redis_addr", cfg.Cache.RedisAddr, ""},
		{"snapshots.interval", cfg.Snapshots.Interval, time.Duration(0)},
		{"snapshots.timezone", cfg.Snapshots.Timezone, "UTC"},
		{"logging.level", cfg.Logging.Level, "info"},
		{"logging.format", cfg.Logging.Format, "json"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_RELAY_TOKEN", "from-env")
	path := writeConfig(t, `
upstream:
  url: http://localhost:3000
  admin_token: ${TEST_RELAY_TOKEN}
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Upstream.AdminToken != "from-env" {
		t.Errorf("AdminToken = %q, want from-env", cfg.Upstream.AdminToken)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COSTBOARD_SERVER_PORT", "7000")
	t.Setenv("COSTBOARD_UPSTREAM_URL", "https://override.example.com")
	t.Setenv("COSTBOARD_REDIS_ADDR", "redis://cache:6379/1")
	t.Setenv("COSTBOARD_SNAPSHOT_INTERVAL", "168h")
	t.Setenv("COSTBOARD_LOG_LEVEL", "warn")
	t.Setenv("COSTBOARD_METRICS_ENABLED", "yes")
	t.Setenv("COSTBOARD_DATABASE_MEMORY", "1")
	t.Setenv("COSTBOARD_RATE_LIMIT_RPM", "120")
	t.Setenv("COSTBOARD_RATE_LIMIT_BURST", "10")

	path := writeConfig(t, `
server:
  port: 9090
upstream:
  url: http://localhost:3000
logging:
  level: debug
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Errorf("Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Upstream.URL != "https://override.example.com" {
		t.Errorf("URL = %s", cfg.Upstream.URL)
	}
	if cfg.Cache.RedisAddr != "redis://cache:6379/1" {
		t.Errorf("RedisAddr = %s", cfg.Cache.RedisAddr)
	}
	if cfg.Snapshots.Interval != 168*time.Hour {
		t.Errorf("Interval = %v", cfg.Snapshots.Interval)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level = %s, want warn", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled || !cfg.Database.Memory {
		t.Error("boolean overrides not applied")
	}
	if cfg.RateLimit.RequestsPerMinute != 120 || cfg.RateLimit.Burst != 10 {
		t.Errorf("RateLimit = %+v, want 120/10", cfg.RateLimit)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing upstream",
			content: "server:\n  port: 8080\n",
			wantErr: "upstream.url is required",
		},
		{
			name:    "non-http upstream",
			content: "upstream:\n  url: ftp://x\n",
			wantErr: "http(s) URL",
		},
		{
			name:    "bad timezone",
			content: "upstream:\n  url: http://x\nsnapshots:\n  timezone: Mars/Olympus\n",
			wantErr: "snapshots.timezone",
		},
		{
			name:    "negative interval",
			content: "upstream:\n  url: http://x\nsnapshots:\n  interval: -1h\n",
			wantErr: "snapshots.interval",
		},
		{
			name:    "key without user",
			content: "upstream:\n  url: http://x\nauth:\n  keys:\n    - key_hash: abc\n",
			wantErr: "auth.keys[0].user_id",
		},
		{
			name:    "key without hash",
			content: "upstream:\n  url: http://x\nauth:\n  keys:\n    - user_id: u1\n",
			wantErr: "auth.keys[0].key_hash",
		},
		{
			name:    "bad log level",
			content: "upstream:\n  url: http://x\nlogging:\n  level: loud\n",
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			content: "upstream:\n  url: http://x\nlogging:\n  format: xml\n",
			wantErr: "logging.format",
		},
		{
			name:    "negative rate limit",
			content: "upstream:\n  url: http://x\nrate_limit:\n  requests_per_minute: -5\n",
			wantErr: "rate_limit",
		},
		{
			name:    "invalid yaml",
			content: "upstream: [unclosed\n",
			wantErr: "parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("COSTBOARD_UPSTREAM_URL", "http://relay:3000")
	t.Setenv("COSTBOARD_SNAPSHOT_TIMEZONE", "Europe/Paris")

	if !config.HasEnvConfig() {
		t.Fatal("HasEnvConfig = false")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	if cfg.Upstream.URL != "http://relay:3000" || cfg.Snapshots.Timezone != "Europe/Paris" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadWithFallback(t *testing.T) {
	t.Run("file wins", func(t *testing.T) {
		t.Setenv("COSTBOARD_UPSTREAM_URL", "")
		path := writeConfig(t, baseYAML)

		cfg, err := config.LoadWithFallback(path)
		if err != nil {
			t.Fatalf("LoadWithFallback error: %v", err)
		}
		if cfg.Upstream.URL != "http://localhost:3000" {
			t.Errorf("URL = %s", cfg.Upstream.URL)
		}
	})

	t.Run("env fallback", func(t *testing.T) {
		t.Setenv("COSTBOARD_UPSTREAM_URL", "http://env:1")

		cfg, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("LoadWithFallback error: %v", err)
		}
		if cfg.Upstream.URL != "http://env:1" {
			t.Errorf("URL = %s", cfg.Upstream.URL)
		}
	})

	t.Run("nothing", func(t *testing.T) {
		t.Setenv("COSTBOARD_UPSTREAM_URL", "")

		_, err := config.LoadWithFallback("")
		if !errors.Is(err, config.ErrNoConfig) {
			t.Errorf("err = %v, want ErrNoConfig", err)
		}
	})
}
