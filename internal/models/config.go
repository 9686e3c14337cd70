// Package models - Gateway configuration and admission-control policy tables.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, upstream, rate limit, cache)
// - Environment-friendly defaults that work out of the box
// - Comprehensive validation to catch misconfigurations early, before serving traffic
// - A single Redis address switches both stores from in-process to shared backends
package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure containing all gateway settings.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`               // HTTP server configuration
	Upstream      UpstreamConfig      `yaml:"upstream" json:"upstream"`           // Backend the gateway fronts
	Redis         RedisConfig         `yaml:"redis" json:"redis"`                 // Shared backend (empty addr = in-process stores)
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`       // Sliding-window admission policies
	Cache         CacheConfig         `yaml:"cache" json:"cache"`                 // Response cache policies
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`             // Structured logging
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`             // Prometheus metrics endpoint
	Observability ObservabilityConfig `yaml:"observability" json:"observability"` // Tracing configuration
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

type UpstreamConfig struct {
	URL     string        `yaml:"url" json:"url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

type RedisConfig struct {
	Addr        string        `yaml:"addr" json:"addr"`
	Password    string        `yaml:"password" json:"password"`
	DB          int           `yaml:"db" json:"db"`
	PoolSize    int           `yaml:"pool_size" json:"pool_size"`
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
}

// Enabled reports whether a shared Redis backend is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// RateLimitPolicy binds a path prefix to a request budget over a sliding window.
// Policies are evaluated exact-match first, then longest prefix; the default
// limit and window apply when nothing matches.
type RateLimitPolicy struct {
	Path   string        `yaml:"path" json:"path"`
	Limit  int           `yaml:"limit" json:"limit"`
	Window time.Duration `yaml:"window" json:"window"`
}

type RateLimitConfig struct {
	Enabled       bool              `yaml:"enabled" json:"enabled"`
	DefaultLimit  int               `yaml:"default_limit" json:"default_limit"`
	DefaultWindow time.Duration     `yaml:"default_window" json:"default_window"`
	Policies      []RateLimitPolicy `yaml:"policies" json:"policies"`
}

// CachePolicy marks a path (exact or prefix) as cacheable with a TTL.
// VaryByUser partitions entries by the resolved client identity; VaryHeaders
// adds the named request header values to the cache key.
type CachePolicy struct {
	Path        string        `yaml:"path" json:"path"`
	TTL         time.Duration `yaml:"ttl" json:"ttl"`
	VaryByUser  bool          `yaml:"vary_by_user" json:"vary_by_user"`
	VaryHeaders []string      `yaml:"vary_headers" json:"vary_headers"`
}

type CacheConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	MaxSize  int           `yaml:"max_size" json:"max_size"`
	NoStore  []string      `yaml:"no_store" json:"no_store"`
	Policies []CachePolicy `yaml:"policies" json:"policies"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
// The policy tables mirror the limits the backend has always enforced:
// chat and upload are tightly limited, auth endpoints are never cached,
// dashboards and status are cached per user for short windows.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Upstream: UpstreamConfig{
			URL:     "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			DB:          0,
			PoolSize:    10,
			DialTimeout: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			DefaultLimit:  100,
			DefaultWindow: time.Minute,
			Policies: []RateLimitPolicy{
				{Path: "/api/chat", Limit: 20, Window: time.Minute},
				{Path: "/api/upload", Limit: 10, Window: time.Minute},
				{Path: "/api/auth/login", Limit: 5, Window: 5 * time.Minute},
				{Path: "/api/auth/register", Limit: 3, Window: time.Hour},
			},
		},
		Cache: CacheConfig{
			Enabled: true,
			MaxSize: 1000,
			NoStore: []string{"/api/chat", "/api/upload", "/api/auth"},
			Policies: []CachePolicy{
				{Path: "/api/dashboards", TTL: time.Minute, VaryByUser: true},
				{Path: "/api/status", TTL: 30 * time.Second, VaryByUser: true},
				{Path: "/health", TTL: 30 * time.Second},
				{Path: "/api/chat/health", TTL: time.Minute},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "bibbi-gateway",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

// Validate checks the configuration for errors that must stop startup.
// A zero rate-limit window or cache TTL is a configuration error, not a
// request-time concern.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Upstream.URL == "" {
		errs = append(errs, errors.New("upstream.url is required"))
	} else if u, err := url.Parse(c.Upstream.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("upstream.url is not a valid absolute URL: %q", c.Upstream.URL))
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.DefaultLimit < 0 {
			errs = append(errs, fmt.Errorf("rate_limit.default_limit must not be negative, got %d", c.RateLimit.DefaultLimit))
		}
		if c.RateLimit.DefaultWindow <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.default_window must be positive, got %v", c.RateLimit.DefaultWindow))
		}
		for _, p := range c.RateLimit.Policies {
			if p.Path == "" || !strings.HasPrefix(p.Path, "/") {
				errs = append(errs, fmt.Errorf("rate_limit policy path must start with /, got %q", p.Path))
			}
			if p.Limit < 0 {
				errs = append(errs, fmt.Errorf("rate_limit policy %q: limit must not be negative, got %d", p.Path, p.Limit))
			}
			if p.Window <= 0 {
				errs = append(errs, fmt.Errorf("rate_limit policy %q: window must be positive, got %v", p.Path, p.Window))
			}
		}
	}

	if c.Cache.Enabled {
		if c.Cache.MaxSize <= 0 {
			errs = append(errs, fmt.Errorf("cache.max_size must be positive, got %d", c.Cache.MaxSize))
		}
		for _, p := range c.Cache.Policies {
			if p.Path == "" || !strings.HasPrefix(p.Path, "/") {
				errs = append(errs, fmt.Errorf("cache policy path must start with /, got %q", p.Path))
			}
			if p.TTL <= 0 {
				errs = append(errs, fmt.Errorf("cache policy %q: ttl must be positive, got %v", p.Path, p.TTL))
			}
		}
		for _, prefix := range c.Cache.NoStore {
			if prefix == "" || !strings.HasPrefix(prefix, "/") {
				errs = append(errs, fmt.Errorf("cache no_store prefix must start with /, got %q", prefix))
			}
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level))
	}

	if c.Observability.Tracing.Enabled {
		switch c.Observability.Tracing.Exporter {
		case "stdout", "otlp":
		default:
			errs = append(errs, fmt.Errorf("observability.tracing.exporter must be stdout or otlp, got %q", c.Observability.Tracing.Exporter))
		}
		if c.Observability.Tracing.SampleRate < 0 || c.Observability.Tracing.SampleRate > 1 {
			errs = append(errs, fmt.Errorf("observability.tracing.sample_rate must be within [0, 1], got %v", c.Observability.Tracing.SampleRate))
		}
	}

	return errors.Join(errs...)
}
