package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
	History   HistoryConfig   `yaml:"history"`
	Events    EventsConfig    `yaml:"events"`
	CORS      CORSConfig      `yaml:"cors"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// ScraperConfig controls storefront fetching and pagination.
type ScraperConfig struct {
	// RequestTimeout bounds every upstream request.
	RequestTimeout time.Duration `yaml:"request_timeout"` // default: 20s

	// PageDelay is the pause between successive page fetches.
	PageDelay time.Duration `yaml:"page_delay"` // default: 100ms

	// MaxPages caps pagination per scrape.
	MaxPages int `yaml:"max_pages"` // default: 50

	ShopifyPageSize int `yaml:"shopify_page_size"` // default: 250
	WooPageSize     int `yaml:"woo_page_size"`     // default: 100

	// MaxBodyBytes limits how much of one upstream response is read.
	MaxBodyBytes int64 `yaml:"max_body_bytes"` // default: 32MB

	UserAgent string `yaml:"user_agent"`

	// Proxy is an http, https or socks5 proxy URL for all upstream requests.
	Proxy string `yaml:"proxy"`

	// DescriptionFormat applies when a request does not name one.
	DescriptionFormat string `yaml:"description_format"` // default: "html"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool `yaml:"enabled"` // default: true

	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 5

	// Burst is the maximum burst size per API key.
	Burst int `yaml:"burst"` // default: 10
}

// CacheConfig controls the scrape result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached results.
	MaxEntries int `yaml:"max_entries"` // default: 200
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "json"
}

// HistoryConfig selects the scrape history backend.
type HistoryConfig struct {
	// Driver is "sqlite", "postgres" or "none".
	Driver string `yaml:"driver"` // default: "sqlite"

	// DSN is a file path for sqlite or a connection string for postgres.
	DSN string `yaml:"dsn"` // default: "storefront.db"

	// MaxConns caps the postgres pool.
	MaxConns int `yaml:"max_conns"` // default: 10
}

// EventsConfig controls run event publishing. An empty RedisAddr disables it.
type EventsConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Stream        string `yaml:"stream"` // default: "stream:scrape_runs"
}

// CORSConfig controls cross-origin access to the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"` // default: ["*"]
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, Mode: "release"},
		Scraper: ScraperConfig{
			RequestTimeout:    20 * time.Second,
			PageDelay:         100 * time.Millisecond,
			MaxPages:          50,
			ShopifyPageSize:   250,
			WooPageSize:       100,
			MaxBodyBytes:      32 << 20,
			DescriptionFormat: "html",
		},
		Auth:      AuthConfig{Enabled: true},
		RateLimit: RateLimitConfig{RequestsPerSecond: 5, Burst: 10},
		Cache:     CacheConfig{MaxEntries: 200},
		Log:       LogConfig{Level: "info", Format: "json"},
		History:   HistoryConfig{Driver: "sqlite", DSN: "storefront.db", MaxConns: 10},
		Events:    EventsConfig{Stream: "stream:scrape_runs"},
		CORS:      CORSConfig{AllowedOrigins: []string{"*"}},
		Metrics:   MetricsConfig{Enabled: true},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// STOREFRONT_CONFIG (if any) and STOREFRONT_* environment variables, in
// that order of precedence.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("STOREFRONT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = envOr("STOREFRONT_HOST", c.Server.Host)
	c.Server.Port = envIntOr("STOREFRONT_PORT", c.Server.Port)
	c.Server.Mode = envOr("STOREFRONT_MODE", c.Server.Mode)

	c.Scraper.RequestTimeout = envDurationOr("STOREFRONT_REQUEST_TIMEOUT", c.Scraper.RequestTimeout)
	c.Scraper.PageDelay = envDurationOr("STOREFRONT_PAGE_DELAY", c.Scraper.PageDelay)
	c.Scraper.MaxPages = envIntOr("STOREFRONT_MAX_PAGES", c.Scraper.MaxPages)
	c.Scraper.ShopifyPageSize = envIntOr("STOREFRONT_SHOPIFY_PAGE_SIZE", c.Scraper.ShopifyPageSize)
	c.Scraper.WooPageSize = envIntOr("STOREFRONT_WOO_PAGE_SIZE", c.Scraper.WooPageSize)
	c.Scraper.MaxBodyBytes = int64(envIntOr("STOREFRONT_MAX_BODY_BYTES", int(c.Scraper.MaxBodyBytes)))
	c.Scraper.UserAgent = envOr("STOREFRONT_USER_AGENT", c.Scraper.UserAgent)
	c.Scraper.Proxy = envOr("STOREFRONT_PROXY", c.Scraper.Proxy)
	c.Scraper.DescriptionFormat = envOr("STOREFRONT_DESCRIPTION_FORMAT", c.Scraper.DescriptionFormat)

	c.Auth.Enabled = envBoolOr("STOREFRONT_AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.APIKeys = envSliceOr("STOREFRONT_API_KEYS", c.Auth.APIKeys)

	c.RateLimit.RequestsPerSecond = envFloatOr("STOREFRONT_RATE_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = envIntOr("STOREFRONT_RATE_BURST", c.RateLimit.Burst)

	c.Cache.MaxEntries = envIntOr("STOREFRONT_CACHE_MAX_ENTRIES", c.Cache.MaxEntries)

	c.Log.Level = envOr("STOREFRONT_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("STOREFRONT_LOG_FORMAT", c.Log.Format)

	c.History.Driver = envOr("STOREFRONT_HISTORY_DRIVER", c.History.Driver)
	c.History.DSN = envOr("STOREFRONT_HISTORY_DSN", c.History.DSN)
	c.History.MaxConns = envIntOr("STOREFRONT_HISTORY_MAX_CONNS", c.History.MaxConns)

	c.Events.RedisAddr = envOr("STOREFRONT_REDIS_ADDR", c.Events.RedisAddr)
	c.Events.RedisPassword = envOr("STOREFRONT_REDIS_PASSWORD", c.Events.RedisPassword)
	c.Events.RedisDB = envIntOr("STOREFRONT_REDIS_DB", c.Events.RedisDB)
	c.Events.Stream = envOr("STOREFRONT_EVENTS_STREAM", c.Events.Stream)

	c.CORS.AllowedOrigins = envSliceOr("STOREFRONT_CORS_ORIGINS", c.CORS.AllowedOrigins)

	c.Metrics.Enabled = envBoolOr("STOREFRONT_METRICS_ENABLED", c.Metrics.Enabled)
}

// MaxPagesLimit is the hard pagination cap; MaxPages may lower it, never raise it.
const MaxPagesLimit = 50

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server port %d out of range", c.Server.Port)
	}
	if c.Scraper.RequestTimeout <= 0 {
		return fmt.Errorf("config: request timeout must be positive")
	}
	if c.Scraper.PageDelay < 0 {
		return fmt.Errorf("config: page delay must not be negative")
	}
	if c.Scraper.MaxPages <= 0 || c.Scraper.MaxPages > MaxPagesLimit {
		return fmt.Errorf("config: max pages must be between 1 and %d", MaxPagesLimit)
	}
	if c.Scraper.ShopifyPageSize <= 0 || c.Scraper.ShopifyPageSize > 250 {
		return fmt.Errorf("config: shopify page size must be between 1 and 250")
	}
	if c.Scraper.WooPageSize <= 0 || c.Scraper.WooPageSize > 100 {
		return fmt.Errorf("config: woocommerce page size must be between 1 and 100")
	}
	switch c.Scraper.DescriptionFormat {
	case "html", "text", "markdown":
	default:
		return fmt.Errorf("config: unknown description format %q", c.Scraper.DescriptionFormat)
	}
	switch c.History.Driver {
	case "sqlite", "postgres":
		if c.History.DSN == "" {
			return fmt.Errorf("config: history dsn is required for driver %s", c.History.Driver)
		}
	case "none":
	default:
		return fmt.Errorf("config: unknown history driver %q", c.History.Driver)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("config: cache max entries must be positive")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("config: rate limit must be positive")
	}
	return nil
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
