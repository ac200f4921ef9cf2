package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Listen)
	}
	if cfg.Store.Driver != DriverSQLite {
		t.Errorf("expected sqlite driver, got %s", cfg.Store.Driver)
	}
	if cfg.Store.Timeout != 5*time.Second {
		t.Errorf("expected 5s store timeout, got %v", cfg.Store.Timeout)
	}
	if len(cfg.Gateway.Features) != 4 {
		t.Errorf("expected 4 default features, got %d", len(cfg.Gateway.Features))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_DATABASE_URL", "postgres://u:p@localhost:5432/resume")

	content := `
listen: ":9090"
store:
  driver: postgres
  postgres_dsn: ${TEST_DATABASE_URL}
  timeout: 2s
cache:
  enabled: false
rate_limit:
  rps: 5
  burst: 10
  trusted_proxies:
    - 10.0.0.0/8
log:
  level: debug
  format: console
gateway:
  enabled: true
  upstream: http://analysis:8000
  features:
    - name: analyze
      path: /analyze
      cost: 10
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Listen)
	}
	if cfg.Store.PostgresDSN != "postgres://u:p@localhost:5432/resume" {
		t.Errorf("env var not expanded: got %s", cfg.Store.PostgresDSN)
	}
	if cfg.Store.Timeout != 2*time.Second {
		t.Errorf("expected 2s timeout, got %v", cfg.Store.Timeout)
	}
	if cfg.Cache.Enabled {
		t.Error("expected cache disabled")
	}
	if cfg.RateLimit.Burst != 10 {
		t.Errorf("expected burst 10, got %d", cfg.RateLimit.Burst)
	}
	if len(cfg.RateLimit.TrustedProxies) != 1 || cfg.RateLimit.TrustedProxies[0] != "10.0.0.0/8" {
		t.Errorf("unexpected trusted proxies: %v", cfg.RateLimit.TrustedProxies)
	}
	if len(cfg.Gateway.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(cfg.Gateway.Features))
	}
	if cfg.Gateway.Features[0].Cost != 10 {
		t.Errorf("expected cost 10, got %d", cfg.Gateway.Features[0].Cost)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown driver":  func(c *Config) { c.Store.Driver = "mongo" },
		"postgres no dsn": func(c *Config) { c.Store.Driver = DriverPostgres },
		"redis no url":    func(c *Config) { c.Store.Driver = DriverRedis },
		"events no topic": func(c *Config) { c.Events.Enabled = true; c.Events.Brokers = nil },
		"zero cost":       func(c *Config) { c.Gateway.Features[0].Cost = 0 },
		"bad proxy cidr":  func(c *Config) { c.RateLimit.TrustedProxies = []string{"10.0.0.1"} },
		"zero retention":  func(c *Config) { c.Audit.Enabled = true; c.Audit.RetentionDays = 0 },
		"negative retention": func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.RetentionDays = -3
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
