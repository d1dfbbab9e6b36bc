// Package remote implements the networked cache tier on top of Redis.
//
// Every key is namespaced with a fixed application prefix before it reaches
// the store; Key and TrimKey are the only translation points between the
// service's key space and the stored one. All calls pass through a circuit
// breaker so a dead Redis degrades to fast failures instead of per-call
// timeouts.
package remote

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"

	"tiercache/errors"
	"tiercache/logging"
)

// Config holds the Redis connection settings for the remote tier.
type Config struct {
	Address   string // host:port, defaults to localhost:6379
	Password  string
	DB        int
	PoolSize  int    // defaults to 10
	KeyPrefix string // namespace prefix applied to every key
}

// Client is the remote tier. It is safe for concurrent use.
type Client struct {
	rdb     *redis.Client
	prefix  string
	breaker *gobreaker.CircuitBreaker
	logger  logging.Logger
}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(config *Config, logger logging.Logger) (*Client, error) {
	if config == nil {
		return nil, errors.ConfigError("remote tier config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.TransportError("failed to connect to Redis", err)
	}

	return NewClientFromRedis(rdb, config.KeyPrefix, logger), nil
}

// NewClientFromRedis wraps an already-constructed go-redis client. Tests use
// this to point the tier at a miniredis instance.
func NewClientFromRedis(rdb *redis.Client, prefix string, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "redis",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("remote tier breaker state change",
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
	})

	return &Client{
		rdb:     rdb,
		prefix:  prefix,
		breaker: breaker,
		logger:  logger,
	}
}

// Key translates a cache key into its stored, prefixed form.
func (c *Client) Key(key string) string {
	return c.prefix + key
}

// TrimKey is the inverse of Key. Keys without the prefix pass through
// unchanged.
func (c *Client) TrimKey(stored string) string {
	return strings.TrimPrefix(stored, c.prefix)
}

// execute runs fn through the circuit breaker and normalizes failures into
// transport errors.
func (c *Client) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := c.breaker.Execute(fn)
	if err != nil {
		return nil, errors.TransportError("remote tier "+op+" failed", err)
	}
	return result, nil
}

// Get returns the stored bytes for key, reporting absence without error.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	result, err := c.execute("get", func() (interface{}, error) {
		data, err := c.rdb.Get(ctx, c.Key(key)).Bytes()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		return nil, false, err
	}
	if result == nil {
		return nil, false, nil
	}
	return result.([]byte), true, nil
}

// Set stores data under key with the given TTL.
func (c *Client) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	_, err := c.execute("set", func() (interface{}, error) {
		return nil, c.rdb.Set(ctx, c.Key(key), data, ttl).Err()
	})
	return err
}

// Delete removes the given cache keys and returns how many existed.
func (c *Client) Delete(ctx context.Context, keys ...string) (int64, error) {
	stored := make([]string, len(keys))
	for i, k := range keys {
		stored[i] = c.Key(k)
	}
	return c.DeleteStored(ctx, stored...)
}

// DeleteStored removes keys that are already in stored (prefixed) form, such
// as tag set members, in one batch.
func (c *Client) DeleteStored(ctx context.Context, stored ...string) (int64, error) {
	if len(stored) == 0 {
		return 0, nil
	}
	result, err := c.execute("delete", func() (interface{}, error) {
		return c.rdb.Del(ctx, stored...).Result()
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// Keys lists every stored key matching the glob pattern. The pattern is
// expressed in the cache key space; returned keys are in stored form.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	result, err := c.execute("keys", func() (interface{}, error) {
		var keys []string
		iter := c.rdb.Scan(ctx, 0, c.Key(pattern), 0).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return nil, err
		}
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// AddToSet adds a member to the set stored under setKey.
func (c *Client) AddToSet(ctx context.Context, setKey, member string) error {
	_, err := c.execute("sadd", func() (interface{}, error) {
		return nil, c.rdb.SAdd(ctx, c.Key(setKey), member).Err()
	})
	return err
}

// Expire sets the TTL on an existing key (set or plain).
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := c.execute("expire", func() (interface{}, error) {
		return nil, c.rdb.Expire(ctx, c.Key(key), ttl).Err()
	})
	return err
}

// SetMembers returns the members of the set stored under setKey. A missing
// set yields an empty slice.
func (c *Client) SetMembers(ctx context.Context, setKey string) ([]string, error) {
	result, err := c.execute("smembers", func() (interface{}, error) {
		return c.rdb.SMembers(ctx, c.Key(setKey)).Result()
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.execute("exists", func() (interface{}, error) {
		return c.rdb.Exists(ctx, c.Key(key)).Result()
	})
	if err != nil {
		return false, err
	}
	return result.(int64) > 0, nil
}

// Introspect returns the store's used-memory figure in bytes and its total
// key count. Both are best-effort operational numbers.
func (c *Client) Introspect(ctx context.Context) (memoryBytes int64, keyCount int64, err error) {
	result, err := c.execute("introspect", func() (interface{}, error) {
		keys, err := c.rdb.DBSize(ctx).Result()
		if err != nil {
			return nil, err
		}

		var memory int64
		if info, err := c.rdb.Info(ctx, "memory").Result(); err == nil {
			memory = parseUsedMemory(info)
		}

		return [2]int64{memory, keys}, nil
	})
	if err != nil {
		return 0, 0, err
	}
	pair := result.([2]int64)
	return pair[0], pair[1], nil
}

// parseUsedMemory extracts the used_memory byte count from INFO output.
func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if strings.HasPrefix(line, "used_memory:") {
			if v, err := strconv.ParseInt(strings.TrimPrefix(line, "used_memory:"), 10, 64); err == nil {
				return v
			}
		}
	}
	return 0
}

// GoRedis exposes the underlying go-redis client for collaborators that need
// it directly, such as the distributed lock manager.
func (c *Client) GoRedis() *redis.Client {
	return c.rdb
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
