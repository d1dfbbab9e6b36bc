// Package stats tracks hit/miss counters for the cache service and exposes
// them as Prometheus metrics.
//
// Counters are process-lifetime and monotonically increasing; they reset only
// when the process restarts. The Prometheus collectors are shared package
// state so that multiple Service instances aggregate into one time series, and
// registration tolerates being called more than once.
package stats

import (
	"math"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Tier labels used on the hits counter.
const (
	TierLocal    = "l1"
	TierRemote   = "l2"
	TierFallback = "l3"
)

var (
	hitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Cache hits by tier (l1=local, l2=remote, l3=fallback producer)",
	}, []string{"tier"})

	missesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Cache lookups that no tier could satisfy",
	})
)

// Register registers the cache metrics on the given registry (or the default
// registerer if nil). Registering twice is not an error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{hitsTotal, missesTotal} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// Tracker counts hits and misses for one Service instance.
type Tracker struct {
	hits   int64
	misses int64
	l1Hits int64
	l2Hits int64
	l3Hits int64
}

// NewTracker creates a tracker with all counters at zero.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordHit records a hit on the given tier.
func (t *Tracker) RecordHit(tier string) {
	atomic.AddInt64(&t.hits, 1)
	switch tier {
	case TierLocal:
		atomic.AddInt64(&t.l1Hits, 1)
	case TierRemote:
		atomic.AddInt64(&t.l2Hits, 1)
	case TierFallback:
		atomic.AddInt64(&t.l3Hits, 1)
	}
	hitsTotal.WithLabelValues(tier).Inc()
}

// RecordFallback records a fallback-producer fill. The produced value counts
// as an l3 hit and as a miss of both cache tiers at the same time.
func (t *Tracker) RecordFallback() {
	atomic.AddInt64(&t.l3Hits, 1)
	atomic.AddInt64(&t.misses, 1)
	hitsTotal.WithLabelValues(TierFallback).Inc()
	missesTotal.Inc()
}

// RecordMiss records a lookup that nothing could satisfy.
func (t *Tracker) RecordMiss() {
	atomic.AddInt64(&t.misses, 1)
	missesTotal.Inc()
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	L1Hits  int64   `json:"l1_hits"`
	L2Hits  int64   `json:"l2_hits"`
	L3Hits  int64   `json:"l3_hits"`
	HitRate float64 `json:"hit_rate"`
}

// Snapshot returns the current counter values. HitRate is a percentage
// rounded to two decimals, 0 when no lookups have happened yet.
func (t *Tracker) Snapshot() Snapshot {
	s := Snapshot{
		Hits:   atomic.LoadInt64(&t.hits),
		Misses: atomic.LoadInt64(&t.misses),
		L1Hits: atomic.LoadInt64(&t.l1Hits),
		L2Hits: atomic.LoadInt64(&t.l2Hits),
		L3Hits: atomic.LoadInt64(&t.l3Hits),
	}
	s.HitRate = hitRate(s.Hits, s.Misses)
	return s
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return math.Round(float64(hits)/float64(total)*100*100) / 100
}
