package tiercache

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"tiercache/keys"
	"tiercache/logging"
)

// warmLockTTL bounds how long a warm-up lock can outlive a crashed holder.
const warmLockTTL = 30 * time.Second

// WarmEntry names one value to pre-populate: the key, the producer that
// computes it, and an optional TTL (zero means the configured default).
type WarmEntry struct {
	Key      string
	Producer Producer
	TTL      time.Duration
}

// WarmCache pre-populates the cache by running every entry's producer and
// storing the results through the full Set path. Producers run concurrently,
// bounded by the configured warm concurrency; a failing entry is logged and
// does not abort its siblings. The call returns once every entry has settled.
//
// With a lock manager configured, each entry is guarded by a distributed
// try-lock so that concurrent warm-ups across processes sharing one Redis do
// not run the same producer twice. Lock transport failures fail open: the
// entry is warmed anyway.
func (s *Service) WarmCache(ctx context.Context, entries []WarmEntry) {
	var g errgroup.Group
	g.SetLimit(s.cfg.WarmConcurrency)

	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			s.warmEntry(ctx, entry)
			return nil
		})
	}

	// Errors are handled per entry; Wait only provides the barrier.
	_ = g.Wait()
}

func (s *Service) warmEntry(ctx context.Context, entry WarmEntry) {
	if entry.Producer == nil {
		return
	}
	norm := keys.Normalize(entry.Key)

	if s.locks != nil {
		lock, acquired, err := s.locks.TryAcquire(ctx, "warm:"+norm, warmLockTTL)
		if err == nil && !acquired {
			s.logger.Debug("warm entry skipped, lock held elsewhere", logging.String("key", norm))
			return
		}
		if lock != nil {
			defer func() { _ = lock.Release(ctx) }()
		}
	}

	value, err := entry.Producer(ctx)
	if err != nil {
		s.logger.Warn("warm producer failed", logging.String("key", norm), logging.Err(err))
		return
	}
	if value == nil {
		return
	}

	if err := s.Set(ctx, entry.Key, value, entry.TTL); err != nil {
		s.logger.Warn("warm store failed", logging.String("key", norm), logging.Err(err))
		return
	}
	s.logger.Debug("warmed cache entry", logging.String("key", norm))
}
