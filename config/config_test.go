package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, time.Hour, cfg.DefaultTTL)
	assert.Equal(t, 1000, cfg.LocalCapacity)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 5*time.Minute, cfg.TagExpiryMargin)
	assert.Equal(t, "cache:", cfg.KeyPrefix)
	assert.Equal(t, 8, cfg.WarmConcurrency)
	assert.False(t, cfg.SingleFlight)
	assert.Equal(t, "localhost:6379", cfg.RedisAddress)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, 10, cfg.RedisPoolSize)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CACHE_DEFAULT_TTL", "90s")
	t.Setenv("CACHE_LOCAL_CAPACITY", "50")
	t.Setenv("CACHE_SWEEP_INTERVAL", "30s")
	t.Setenv("CACHE_SINGLE_FLIGHT", "true")
	t.Setenv("REDIS_ADDRESS", "redis.internal:6380")
	t.Setenv("REDIS_DB", "3")

	cfg := Load()

	assert.Equal(t, 90*time.Second, cfg.DefaultTTL)
	assert.Equal(t, 50, cfg.LocalCapacity)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.True(t, cfg.SingleFlight)
	assert.Equal(t, "redis.internal:6380", cfg.RedisAddress)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoad_BareSecondsDuration(t *testing.T) {
	t.Setenv("CACHE_DEFAULT_TTL", "3600")
	t.Setenv("CACHE_TAG_EXPIRY_MARGIN", "300")

	cfg := Load()

	assert.Equal(t, time.Hour, cfg.DefaultTTL)
	assert.Equal(t, 5*time.Minute, cfg.TagExpiryMargin)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CACHE_LOCAL_CAPACITY", "lots")
	t.Setenv("CACHE_SINGLE_FLIGHT", "maybe")

	cfg := Load()

	assert.Equal(t, 1000, cfg.LocalCapacity)
	assert.False(t, cfg.SingleFlight)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DefaultTTL:      time.Hour,
			LocalCapacity:   1000,
			SweepInterval:   5 * time.Minute,
			TagExpiryMargin: 5 * time.Minute,
			KeyPrefix:       "cache:",
			WarmConcurrency: 8,
			RedisAddress:    "localhost:6379",
			RedisDB:         0,
			RedisPoolSize:   10,
		}
	}

	t.Run("accepts valid config", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("rejects bad values", func(t *testing.T) {
		cases := []struct {
			name   string
			mutate func(*Config)
		}{
			{"zero ttl", func(c *Config) { c.DefaultTTL = 0 }},
			{"zero capacity", func(c *Config) { c.LocalCapacity = 0 }},
			{"zero sweep interval", func(c *Config) { c.SweepInterval = 0 }},
			{"negative tag margin", func(c *Config) { c.TagExpiryMargin = -time.Second }},
			{"zero warm concurrency", func(c *Config) { c.WarmConcurrency = 0 }},
			{"missing redis address", func(c *Config) { c.RedisAddress = "" }},
			{"redis db out of range", func(c *Config) { c.RedisDB = 16 }},
			{"zero pool size", func(c *Config) { c.RedisPoolSize = 0 }},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				cfg := valid()
				tc.mutate(cfg)
				assert.Error(t, cfg.Validate())
			})
		}
	})
}
