// Package locks provides distributed try-locks over Redis using the Redlock
// implementation from go-redsync/redsync/v4.
//
// The cache service uses these during warm-up: when several processes share
// one Redis, only the lock holder runs a given entry's producer and the rest
// skip it. Locks are advisory and short-lived; nothing in the read or write
// path depends on them.
package locks

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"

	"tiercache/errors"
)

// Manager hands out distributed try-locks.
type Manager struct {
	rs *redsync.Redsync
}

// NewManager creates a lock manager backed by the given Redis client.
func NewManager(rdb *redis.Client) (*Manager, error) {
	if rdb == nil {
		return nil, errors.ConfigError("redis client is required")
	}
	return &Manager{rs: redsync.New(goredis.NewPool(rdb))}, nil
}

// Lock is a held distributed lock.
type Lock struct {
	mutex *redsync.Mutex
}

// TryAcquire attempts to take the lock for key exactly once.
//
// Returns (lock, true, nil) when acquired, (nil, false, nil) when another
// holder already has it, and (nil, false, err) on transport problems. Callers
// coordinating best-effort work should treat the error case as "proceed
// without the lock" rather than failing.
func (m *Manager) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	mutex := m.rs.NewMutex("lock:"+key, redsync.WithExpiry(ttl), redsync.WithTries(1))

	if err := mutex.LockContext(ctx); err != nil {
		if stderrors.Is(err, redsync.ErrFailed) || strings.Contains(err.Error(), "taken") {
			return nil, false, nil
		}
		return nil, false, errors.TransportError("lock acquisition failed", err)
	}

	return &Lock{mutex: mutex}, true, nil
}

// Release gives the lock back. Releasing an already-expired lock is not an
// error worth acting on, so callers typically ignore the result.
func (l *Lock) Release(ctx context.Context) error {
	if _, err := l.mutex.UnlockContext(ctx); err != nil {
		return errors.TransportError("lock release failed", err)
	}
	return nil
}
