// Package local implements the in-process cache tier: a bounded map with
// per-entry expiry and access counters.
//
// Eviction is deliberately simple. A sweep first drops everything expired;
// if the store is still above 80% of capacity it evicts the least-accessed
// entries until it is not. Ties are broken in whatever order the map yields,
// which is stable enough in practice and much cheaper than strict LRU.
package local

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tiercache/logging"
)

// occupancyTarget is the fraction of capacity a sweep reduces the store to.
const occupancyTarget = 0.8

type entry struct {
	value       interface{}
	expiresAt   time.Time // zero means no expiry
	accessCount int64
}

// Store is the local cache tier. All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*entry
	capacity int
	logger   logging.Logger
	sweeper  *cron.Cron

	// now is swapped out in tests to control expiry.
	now func() time.Time
}

// NewStore creates a local store bounded to capacity entries.
func NewStore(capacity int, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Store{
		entries:  make(map[string]*entry),
		capacity: capacity,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns the value for key. A missing or expired entry reports absent;
// an expired entry is removed on the way out. Hits increment the entry's
// access counter.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}

	e.accessCount++
	return e.value, true
}

// Set inserts or overwrites the entry for key. A ttl of zero or less means
// the entry never expires locally. When the store is already at capacity the
// insert is preceded by a sweep.
func (s *Store) Set(key string, value interface{}, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= s.capacity {
		s.sweepLocked()
	}

	e := &entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
}

// Delete removes the entry for key. Deleting a missing key is a no-op.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// DeleteFunc removes every entry whose key satisfies match and returns how
// many were removed.
func (s *Store) DeleteFunc(match func(key string) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k := range s.entries {
		if match(k) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Sweep removes expired entries, then evicts the least-accessed entries until
// occupancy is at or below 80% of capacity.
func (s *Store) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
}

func (s *Store) sweepLocked() {
	now := s.now()
	expired := 0
	for k, e := range s.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.entries, k)
			expired++
		}
	}

	target := int(float64(s.capacity) * occupancyTarget)
	evicted := 0
	if len(s.entries) > target {
		type candidate struct {
			key   string
			count int64
		}
		candidates := make([]candidate, 0, len(s.entries))
		for k, e := range s.entries {
			candidates = append(candidates, candidate{key: k, count: e.accessCount})
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].count < candidates[j].count
		})

		for _, c := range candidates {
			if len(s.entries) <= target {
				break
			}
			delete(s.entries, c.key)
			evicted++
		}
	}

	if expired > 0 || evicted > 0 {
		s.logger.Debug("local tier sweep",
			logging.Int("expired", expired),
			logging.Int("evicted", evicted),
			logging.Int("remaining", len(s.entries)),
		)
	}
}

// Len returns the current number of entries, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
}

// StartSweeping runs Sweep on a fixed schedule until StopSweeping is called.
// Calling it twice replaces the previous schedule.
func (s *Store) StartSweeping(interval time.Duration) error {
	s.StopSweeping()

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), s.Sweep); err != nil {
		return err
	}
	c.Start()

	s.mu.Lock()
	s.sweeper = c
	s.mu.Unlock()
	return nil
}

// StopSweeping cancels the background sweep schedule, if any.
func (s *Store) StopSweeping() {
	s.mu.Lock()
	c := s.sweeper
	s.sweeper = nil
	s.mu.Unlock()

	if c != nil {
		c.Stop()
	}
}
