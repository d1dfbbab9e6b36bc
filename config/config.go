// Package config provides configuration management for the cache service.
// It loads configuration from environment variables with sensible defaults
// and validates the result before the service starts.
//
// Environment Variables:
//
// Cache behavior:
//   - CACHE_DEFAULT_TTL: Default entry TTL (default: 1h)
//   - CACHE_LOCAL_CAPACITY: Local tier capacity in entries (default: 1000)
//   - CACHE_SWEEP_INTERVAL: Local tier sweep interval (default: 5m)
//   - CACHE_TAG_EXPIRY_MARGIN: Grace added to tag set expiry (default: 5m)
//   - CACHE_KEY_PREFIX: Prefix applied to every remote key (default: "cache:")
//   - CACHE_WARM_CONCURRENCY: Max concurrent warm-up producers (default: 8)
//   - CACHE_SINGLE_FLIGHT: Collapse concurrent misses per key (default: false)
//
// Redis configuration:
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Logging:
//   - LOG_LEVEL: Logging level (default: info)
//
// A .env file in the working directory is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the cache service.
type Config struct {
	// Cache behavior
	DefaultTTL      time.Duration // Applied when a caller passes no TTL
	LocalCapacity   int           // Max entries held by the local tier
	SweepInterval   time.Duration // How often the local tier sweeps expired entries
	TagExpiryMargin time.Duration // Added to a tag set's TTL so it outlives its members
	KeyPrefix       string        // Namespace prefix for all remote keys
	WarmConcurrency int           // Upper bound on concurrent warm-up producers
	SingleFlight    bool          // Opt-in stampede protection for Get

	// Redis configuration
	RedisAddress  string // Redis server address (host:port)
	RedisPassword string // Redis authentication password
	RedisDB       int    // Redis database number (0-15)
	RedisPoolSize int    // Redis connection pool size

	// Logging
	LogLevel string // Logging level (debug, info, warn, error)
}

// Load creates a Config with values from environment variables, falling back
// to defaults for anything unset. A .env file is loaded first if one exists.
//
// Load does not validate; call Validate on the result before use.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DefaultTTL:      getDurationEnv("CACHE_DEFAULT_TTL", time.Hour),
		LocalCapacity:   getIntEnv("CACHE_LOCAL_CAPACITY", 1000),
		SweepInterval:   getDurationEnv("CACHE_SWEEP_INTERVAL", 5*time.Minute),
		TagExpiryMargin: getDurationEnv("CACHE_TAG_EXPIRY_MARGIN", 5*time.Minute),
		KeyPrefix:       getEnv("CACHE_KEY_PREFIX", "cache:"),
		WarmConcurrency: getIntEnv("CACHE_WARM_CONCURRENCY", 8),
		SingleFlight:    getBoolEnv("CACHE_SINGLE_FLIGHT", false),

		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisPoolSize: getIntEnv("REDIS_POOL_SIZE", 10),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks that every configured value is usable. The service should
// call this once after Load and refuse to start on error.
func (c *Config) Validate() error {
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("CACHE_DEFAULT_TTL must be a positive duration")
	}
	if c.LocalCapacity < 1 {
		return fmt.Errorf("CACHE_LOCAL_CAPACITY must be a positive number")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("CACHE_SWEEP_INTERVAL must be a positive duration")
	}
	if c.TagExpiryMargin < 0 {
		return fmt.Errorf("CACHE_TAG_EXPIRY_MARGIN must not be negative")
	}
	if c.WarmConcurrency < 1 {
		return fmt.Errorf("CACHE_WARM_CONCURRENCY must be a positive number")
	}
	if c.RedisAddress == "" {
		return fmt.Errorf("REDIS_ADDRESS is required")
	}
	if c.RedisDB < 0 || c.RedisDB > 15 {
		return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
	}
	if c.RedisPoolSize < 1 {
		return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
	}
	return nil
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves an integer environment variable or returns a default value.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getBoolEnv retrieves a boolean environment variable or returns a default value.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv retrieves a duration environment variable or returns a default
// value. Plain integers are treated as seconds ("300" == "300s") so that the
// second-based knobs of earlier deployments keep working.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
