// Package tiercache provides a two-tier read-through cache service for
// expensive reads: a bounded in-process tier in front of a shared Redis tier,
// with tag- and pattern-based invalidation, cache warming, and hit/miss
// statistics.
//
// Reads check the local tier first, then Redis, and finally a caller-supplied
// fallback producer; values found in Redis are promoted into the local tier
// on the way out. Cache-layer failures never propagate to callers: a broken
// Redis degrades reads to "always recompute" (when a producer is supplied) or
// to an empty cache (when not), and writes to the surviving tier stand.
//
// Usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
//	cache, err := tiercache.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer cache.Shutdown()
//
//	profile, found, err := cache.Get(ctx, "user:42",
//		tiercache.WithProducer(func(ctx context.Context) (interface{}, error) {
//			return loadProfileFromDatabase(ctx, 42)
//		}),
//		tiercache.WithTTL(10*time.Minute),
//	)
//
// The service is designed for one instance per process, constructed by the
// host application's startup code and shared from there.
package tiercache
