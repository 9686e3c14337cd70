// Package config loads gateway configuration from an optional YAML file with
// environment variable overrides, then validates the result before the
// service starts serving traffic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TaskifaiDavid/bibbi-site/internal/models"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables.
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables.
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	if port := os.Getenv("GATEWAY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if host := os.Getenv("GATEWAY_HOST"); host != "" {
		config.Server.Host = host
	}

	if timeout := os.Getenv("GATEWAY_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.ReadTimeout = d
		}
	}

	if timeout := os.Getenv("GATEWAY_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.WriteTimeout = d
		}
	}

	if timeout := os.Getenv("GATEWAY_IDLE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.IdleTimeout = d
		}
	}

	// Upstream configuration
	if upstream := os.Getenv("GATEWAY_UPSTREAM_URL"); upstream != "" {
		config.Upstream.URL = upstream
	}

	if timeout := os.Getenv("GATEWAY_UPSTREAM_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Upstream.Timeout = d
		}
	}

	// Redis configuration. An empty address keeps both stores in-process.
	if addr := os.Getenv("GATEWAY_REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}

	if password := os.Getenv("GATEWAY_REDIS_PASSWORD"); password != "" {
		config.Redis.Password = password
	}

	if db := os.Getenv("GATEWAY_REDIS_DB"); db != "" {
		if dbNum, err := strconv.Atoi(db); err == nil {
			config.Redis.DB = dbNum
		}
	}

	if poolSize := os.Getenv("GATEWAY_REDIS_POOL_SIZE"); poolSize != "" {
		if size, err := strconv.Atoi(poolSize); err == nil {
			config.Redis.PoolSize = size
		}
	}

	// Rate limit configuration
	if enabled := os.Getenv("GATEWAY_RATE_LIMIT_ENABLED"); enabled != "" {
		config.RateLimit.Enabled = strings.ToLower(enabled) == "true"
	}

	if limit := os.Getenv("GATEWAY_RATE_LIMIT_DEFAULT_LIMIT"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			config.RateLimit.DefaultLimit = l
		}
	}

	if window := os.Getenv("GATEWAY_RATE_LIMIT_DEFAULT_WINDOW"); window != "" {
		if d, err := time.ParseDuration(window); err == nil {
			config.RateLimit.DefaultWindow = d
		}
	}

	// Cache configuration
	if enabled := os.Getenv("GATEWAY_CACHE_ENABLED"); enabled != "" {
		config.Cache.Enabled = strings.ToLower(enabled) == "true"
	}

	if maxSize := os.Getenv("GATEWAY_CACHE_MAX_SIZE"); maxSize != "" {
		if size, err := strconv.Atoi(maxSize); err == nil {
			config.Cache.MaxSize = size
		}
	}

	// Logging configuration
	if level := os.Getenv("GATEWAY_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if format := os.Getenv("GATEWAY_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if output := os.Getenv("GATEWAY_LOG_OUTPUT"); output != "" {
		config.Logging.Output = output
	}

	if filePath := os.Getenv("GATEWAY_LOG_FILE_PATH"); filePath != "" {
		config.Logging.FilePath = filePath
	}

	// Metrics configuration
	if metrics := os.Getenv("GATEWAY_METRICS_ENABLED"); metrics != "" {
		config.Metrics.Enabled = strings.ToLower(metrics) == "true"
	}

	if path := os.Getenv("GATEWAY_METRICS_PATH"); path != "" {
		config.Metrics.Path = path
	}

	if port := os.Getenv("GATEWAY_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Metrics.Port = p
		}
	}

	// Tracing configuration
	if tracing := os.Getenv("GATEWAY_TRACING_ENABLED"); tracing != "" {
		config.Observability.Tracing.Enabled = strings.ToLower(tracing) == "true"
	}

	if exporter := os.Getenv("GATEWAY_TRACING_EXPORTER"); exporter != "" {
		config.Observability.Tracing.Exporter = exporter
	}

	if endpoint := os.Getenv("GATEWAY_TRACING_OTLP_ENDPOINT"); endpoint != "" {
		config.Observability.Tracing.OTLPEndpoint = endpoint
	}
}
