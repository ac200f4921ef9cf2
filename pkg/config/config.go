package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/resumeassist/usagegate/pkg/models"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config holds all usagegate configuration.
type Config struct {
	Listen    string             `yaml:"listen"`
	Store     StoreConfig        `yaml:"store"`
	Cache     CacheConfig        `yaml:"cache"`
	RateLimit RateLimitConfig    `yaml:"rate_limit"`
	Audit     models.AuditConfig `yaml:"audit"`
	Events    EventsConfig       `yaml:"events"`
	Log       LogConfig          `yaml:"log"`
	Gateway   GatewayConfig      `yaml:"gateway"`
}

// StoreConfig selects the backend holding the usage ledger.
type StoreConfig struct {
	Driver      string        `yaml:"driver"`
	DBPath      string        `yaml:"db_path"`
	PostgresDSN string        `yaml:"postgres_dsn"`
	RedisURL    string        `yaml:"redis_url"`
	KeyPrefix   string        `yaml:"key_prefix"`
	Timeout     time.Duration `yaml:"timeout"`
}

// CacheConfig controls the in-process exhausted-user cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	LifeWindow time.Duration `yaml:"life_window"`
}

// RateLimitConfig controls per-IP request throttling on the HTTP API.
// X-Forwarded-For is only honoured for connections from TrustedProxies
// (CIDR ranges); otherwise the client IP is the connection's remote address.
type RateLimitConfig struct {
	Enabled        bool     `yaml:"enabled"`
	RPS            float64  `yaml:"rps"`
	Burst          int      `yaml:"burst"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// EventsConfig controls publishing decisions to Kafka.
type EventsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LogConfig controls the zap logger.
// Format is "json" (default) or "console".
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatewayConfig defines the metered upstream analysis service.
type GatewayConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Upstream string           `yaml:"upstream"`
	Features []models.Feature `yaml:"features"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Store: StoreConfig{
			Driver:    DriverSQLite,
			DBPath:    "usagegate.db",
			KeyPrefix: "usage",
			Timeout:   5 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:    true,
			LifeWindow: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     20,
			Burst:   40,
		},
		Audit: models.AuditConfig{
			Enabled:       false,
			DBPath:        "usagegate-audit.db",
			RetentionDays: 30,
		},
		Events: EventsConfig{
			Topic: "usagegate.decisions",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Gateway: GatewayConfig{
			Enabled:  false,
			Upstream: "http://localhost:8000",
			Features: models.DefaultFeatures(),
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when set, otherwise returns the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks that the selected store backend is fully configured.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.DBPath == "" {
			return fmt.Errorf("store.db_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required for the postgres driver")
		}
	case DriverRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	for _, cidr := range c.RateLimit.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("rate_limit.trusted_proxies: %w", err)
		}
	}
	if c.Audit.Enabled && c.Audit.RetentionDays < 1 {
		return fmt.Errorf("audit.retention_days must be at least 1, got %d", c.Audit.RetentionDays)
	}
	if c.Events.Enabled && (len(c.Events.Brokers) == 0 || c.Events.Topic == "") {
		return fmt.Errorf("events.brokers and events.topic are required when events are enabled")
	}
	for _, f := range c.Gateway.Features {
		if f.Name == "" || f.Cost < 1 {
			return fmt.Errorf("gateway feature %q needs a name and a positive cost", f.Name)
		}
	}
	return nil
}
