package tiercache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiercache/config"
	"tiercache/errors"
	"tiercache/logging"
	"tiercache/remote"
)

func testConfig() *config.Config {
	return &config.Config{
		DefaultTTL:      time.Hour,
		LocalCapacity:   100,
		SweepInterval:   time.Minute,
		TagExpiryMargin: 5 * time.Minute,
		KeyPrefix:       "cache:",
		WarmConcurrency: 4,
		RedisAddress:    "localhost:6379",
		RedisPoolSize:   10,
		LogLevel:        "error",
	}
}

// newTestService wires a Service to a miniredis instance and hands both back.
func newTestService(t *testing.T, mutate func(*config.Config)) (*Service, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := testConfig()
	cfg.RedisAddress = mr.Addr()
	if mutate != nil {
		mutate(cfg)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tier := remote.NewClientFromRedis(rdb, cfg.KeyPrefix, logging.NopLogger{})

	svc, err := New(cfg, WithRemoteTier(tier), WithLogger(logging.NopLogger{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Shutdown() })

	return svc, mr
}

func TestNew(t *testing.T) {
	t.Run("requires config", func(t *testing.T) {
		svc, err := New(nil)
		assert.Error(t, err)
		assert.Nil(t, svc)
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		cfg := testConfig()
		cfg.LocalCapacity = 0
		svc, err := New(cfg)
		assert.Error(t, err)
		assert.Nil(t, svc)
	})
}

func TestService_SetGet(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	t.Run("round-trips values through both tiers", func(t *testing.T) {
		require.NoError(t, svc.Set(ctx, "a", map[string]interface{}{"x": float64(1)}, time.Minute))

		value, found, err := svc.Get(ctx, "a")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, map[string]interface{}{"x": float64(1)}, value)

		// The first read after a local write is an L1 hit.
		assert.Equal(t, int64(1), svc.GetStats(ctx).L1Hits)
	})

	t.Run("normalizes keys on every operation", func(t *testing.T) {
		require.NoError(t, svc.Set(ctx, "User Profile:7", "v", time.Minute))

		_, found, err := svc.Get(ctx, "user profile:7")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("missing key is absent and counts a miss", func(t *testing.T) {
		before := svc.GetStats(ctx).Misses

		_, found, err := svc.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, before+1, svc.GetStats(ctx).Misses)
	})
}

func TestService_TierPromotion(t *testing.T) {
	svc, mr := newTestService(t, nil)
	ctx := context.Background()

	// Seed the remote tier only.
	require.NoError(t, mr.Set("cache:report:q3", `{"total":42}`))

	value, found, err := svc.Get(ctx, "report:q3")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]interface{}{"total": float64(42)}, value)
	assert.Equal(t, int64(1), svc.GetStats(ctx).L2Hits)

	// Second read must come from the local tier.
	_, found, err = svc.Get(ctx, "report:q3")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), svc.GetStats(ctx).L1Hits)
}

func TestService_FallbackAndStore(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	t.Run("producer fills the cache once", func(t *testing.T) {
		calls := 0
		producer := func(ctx context.Context) (interface{}, error) {
			calls++
			return map[string]interface{}{"expensive": true}, nil
		}

		value, found, err := svc.Get(ctx, "slow:query", WithProducer(producer), WithTTL(time.Minute))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, 1, calls)
		assert.Equal(t, map[string]interface{}{"expensive": true}, value)

		// A produced value counts as an l3 hit and as a miss of both tiers.
		s := svc.GetStats(ctx)
		assert.Equal(t, int64(1), s.L3Hits)
		assert.Equal(t, int64(1), s.Misses)

		// The next read needs no producer.
		value, found, err = svc.Get(ctx, "slow:query")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, 1, calls, "producer must not run again")
		assert.NotNil(t, value)
	})

	t.Run("producer returning nothing leaves a miss", func(t *testing.T) {
		producer := func(ctx context.Context) (interface{}, error) { return nil, nil }

		_, found, err := svc.Get(ctx, "empty", WithProducer(producer))
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("producer error surfaces as a producer error", func(t *testing.T) {
		producer := func(ctx context.Context) (interface{}, error) {
			return nil, fmt.Errorf("database unreachable")
		}

		_, found, err := svc.Get(ctx, "broken", WithProducer(producer))
		require.Error(t, err)
		assert.False(t, found)
		assert.True(t, errors.IsProducer(err))
	})
}

func TestService_Delete(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, svc.Delete(ctx, "k"))

	_, found, err := svc.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestService_Has(t *testing.T) {
	svc, mr := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "present", "v", time.Minute))

	found, err := svc.Has(ctx, "present")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = svc.Has(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, found)

	// Remote-only keys count as present.
	require.NoError(t, mr.Set("cache:remote-only", `"v"`))
	found, err = svc.Has(ctx, "remote-only")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestService_EndToEndExpiry(t *testing.T) {
	svc, mr := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "a", map[string]interface{}{"x": float64(1)}, 50*time.Millisecond))

	value, found, err := svc.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]interface{}{"x": float64(1)}, value)
	assert.Equal(t, int64(1), svc.GetStats(ctx).L1Hits)

	// Let both tiers expire: wall clock for the local tier, FastForward for
	// the remote one.
	time.Sleep(80 * time.Millisecond)
	mr.FastForward(100 * time.Millisecond)

	before := svc.GetStats(ctx).Misses
	_, found, err = svc.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, before+1, svc.GetStats(ctx).Misses)
}

func TestService_StatsHitRate(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "hot", "v", time.Minute))

	// 2 hits, 1 miss.
	_, _, _ = svc.Get(ctx, "hot")
	_, _, _ = svc.Get(ctx, "hot")
	_, _, _ = svc.Get(ctx, "cold")

	s := svc.GetStats(ctx)
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, 66.67, s.HitRate)
	assert.Equal(t, int64(1), s.KeyCount, "remote tier holds the one stored key")
}

func TestService_Clear(t *testing.T) {
	svc, mr := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, svc.Set(ctx, "b", "2", time.Minute))

	require.NoError(t, svc.Clear(ctx))

	_, found, err := svc.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, mr.Exists("cache:a"))
}

func TestService_Shutdown(t *testing.T) {
	svc, _ := newTestService(t, nil)

	require.NoError(t, svc.Shutdown())
	// Idempotent.
	require.NoError(t, svc.Shutdown())
}

// failingRemote simulates a dead remote store: every operation reports a
// transport error.
type failingRemote struct{}

func (failingRemote) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.TransportError("down", nil)
}
func (failingRemote) Set(context.Context, string, []byte, time.Duration) error {
	return errors.TransportError("down", nil)
}
func (failingRemote) Delete(context.Context, ...string) (int64, error) {
	return 0, errors.TransportError("down", nil)
}
func (failingRemote) DeleteStored(context.Context, ...string) (int64, error) {
	return 0, errors.TransportError("down", nil)
}
func (failingRemote) Keys(context.Context, string) ([]string, error) {
	return nil, errors.TransportError("down", nil)
}
func (failingRemote) AddToSet(context.Context, string, string) error {
	return errors.TransportError("down", nil)
}
func (failingRemote) Expire(context.Context, string, time.Duration) error {
	return errors.TransportError("down", nil)
}
func (failingRemote) SetMembers(context.Context, string) ([]string, error) {
	return nil, errors.TransportError("down", nil)
}
func (failingRemote) Exists(context.Context, string) (bool, error) {
	return false, errors.TransportError("down", nil)
}
func (failingRemote) Introspect(context.Context) (int64, int64, error) {
	return 0, 0, errors.TransportError("down", nil)
}
func (failingRemote) Key(key string) string      { return "cache:" + key }
func (failingRemote) TrimKey(stored string) string {
	return stored
}
func (failingRemote) Close() error { return nil }

func newDegradedService(t *testing.T) *Service {
	t.Helper()

	svc, err := New(testConfig(), WithRemoteTier(failingRemote{}), WithLogger(logging.NopLogger{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Shutdown() })
	return svc
}

func TestService_RemoteTierDown(t *testing.T) {
	ctx := context.Background()

	t.Run("get without producer pretends the cache is empty", func(t *testing.T) {
		svc := newDegradedService(t)

		_, found, err := svc.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("get with producer always recomputes", func(t *testing.T) {
		svc := newDegradedService(t)

		value, found, err := svc.Get(ctx, "k", WithProducer(func(ctx context.Context) (interface{}, error) {
			return "fresh", nil
		}))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "fresh", value)
	})

	t.Run("writes and deletes stay silent", func(t *testing.T) {
		svc := newDegradedService(t)

		assert.NoError(t, svc.Set(ctx, "k", "v", time.Minute))
		assert.NoError(t, svc.Delete(ctx, "k"))
		assert.NoError(t, svc.SetWithTags(ctx, "k", "v", []string{"t"}, time.Minute))

		n, err := svc.InvalidateByTag(ctx, "t")
		assert.NoError(t, err)
		assert.Equal(t, 0, n)

		n, err = svc.InvalidatePattern(ctx, "user:*")
		assert.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("stats degrade to counters only", func(t *testing.T) {
		svc := newDegradedService(t)

		s := svc.GetStats(ctx)
		assert.Equal(t, int64(0), s.MemoryUsage)
		assert.Equal(t, int64(0), s.KeyCount)
	})

	t.Run("local tier keeps serving", func(t *testing.T) {
		svc := newDegradedService(t)

		require.NoError(t, svc.Set(ctx, "k", "v", time.Minute))

		value, found, err := svc.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "v", value)
	})
}

func TestService_SingleFlight(t *testing.T) {
	svc, _ := newTestService(t, func(cfg *config.Config) {
		cfg.SingleFlight = true
	})
	ctx := context.Background()

	value, found, err := svc.Get(ctx, "sf", WithProducer(func(ctx context.Context) (interface{}, error) {
		return "computed", nil
	}))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "computed", value)
}
