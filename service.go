package tiercache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tiercache/config"
	"tiercache/errors"
	"tiercache/keys"
	"tiercache/local"
	"tiercache/locks"
	"tiercache/logging"
	"tiercache/remote"
	"tiercache/serializer"
	"tiercache/stats"
)

// Producer computes a value when no cache tier can satisfy a read. Returning
// (nil, nil) signals "nothing to cache".
type Producer func(ctx context.Context) (interface{}, error)

// RemoteTier is what the service needs from the networked tier. remote.Client
// is the production implementation; tests substitute fakes.
type RemoteTier interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int64, error)
	DeleteStored(ctx context.Context, stored ...string) (int64, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	AddToSet(ctx context.Context, setKey, member string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	SetMembers(ctx context.Context, setKey string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Introspect(ctx context.Context) (memoryBytes int64, keyCount int64, err error)
	Key(key string) string
	TrimKey(stored string) string
	Close() error
}

// Service is the cache orchestrator. It owns the local tier, references the
// remote tier, and exposes the read/write/invalidate/warm operations.
type Service struct {
	cfg     *config.Config
	local   *local.Store
	remote  RemoteTier
	codec   serializer.Codec
	tracker *stats.Tracker
	logger  logging.Logger
	locks   *locks.Manager
	flight  *singleflight.Group

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option customizes a Service at construction time.
type Option func(*Service)

// WithRemoteTier injects a remote tier, replacing the Redis client the
// service would otherwise build from its configuration.
func WithRemoteTier(tier RemoteTier) Option {
	return func(s *Service) { s.remote = tier }
}

// WithLogger sets the service logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithCodec sets the wire codec for the remote tier. Default is JSON.
func WithCodec(codec serializer.Codec) Option {
	return func(s *Service) { s.codec = codec }
}

// WithLockManager enables distributed warm-up coordination.
func WithLockManager(manager *locks.Manager) Option {
	return func(s *Service) { s.locks = manager }
}

// New constructs a Service from the given configuration. Unless a remote tier
// is injected, it connects to Redis using the config's connection block. The
// local tier's background sweep starts immediately; call Shutdown to stop it.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.ConfigError("cache config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		codec:   serializer.NewJSON(),
		tracker: stats.NewTracker(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logging.GetGlobalLogger().WithFields(logging.String("component", "tiercache"))
	}

	if s.remote == nil {
		client, err := remote.NewClient(&remote.Config{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			PoolSize:  cfg.RedisPoolSize,
			KeyPrefix: cfg.KeyPrefix,
		}, s.logger)
		if err != nil {
			return nil, err
		}
		s.remote = client
	}

	if cfg.SingleFlight {
		s.flight = &singleflight.Group{}
	}

	s.local = local.NewStore(cfg.LocalCapacity, s.logger)
	if err := s.local.StartSweeping(cfg.SweepInterval); err != nil {
		return nil, err
	}

	if err := stats.Register(nil); err != nil {
		return nil, err
	}

	return s, nil
}

// getOptions collects the per-call Get knobs.
type getOptions struct {
	producer Producer
	ttl      time.Duration
}

// GetOption customizes a single Get call.
type GetOption func(*getOptions)

// WithProducer supplies the fallback producer invoked when both tiers miss.
func WithProducer(producer Producer) GetOption {
	return func(o *getOptions) { o.producer = producer }
}

// WithTTL overrides the default TTL for values stored by this call.
func WithTTL(ttl time.Duration) GetOption {
	return func(o *getOptions) { o.ttl = ttl }
}

// Get looks key up through the tiers: local first, then remote (with
// promotion into the local tier on a hit), then the fallback producer if one
// was supplied. Produced values are stored through the full Set path before
// being returned.
//
// Cache-tier failures are logged and recovered from; the only error Get
// returns is a producer failure that nothing else could paper over.
func (s *Service) Get(ctx context.Context, key string, opts ...GetOption) (interface{}, bool, error) {
	options := getOptions{ttl: s.cfg.DefaultTTL}
	for _, opt := range opts {
		opt(&options)
	}

	norm := keys.Normalize(key)

	if value, ok := s.local.Get(norm); ok {
		s.tracker.RecordHit(stats.TierLocal)
		return value, true, nil
	}

	data, found, err := s.remote.Get(ctx, norm)
	if err != nil {
		// Remote tier is down. The producer, if any, is the sole recovery
		// path; its result is returned directly without touching counters
		// or attempting a store.
		s.logger.Error("remote tier read failed", err, logging.String("key", norm))
		if options.producer == nil {
			return nil, false, nil
		}
		value, perr := s.produce(ctx, norm, options.producer)
		if perr != nil {
			return nil, false, errors.ProducerError(norm, perr)
		}
		if value == nil {
			return nil, false, nil
		}
		return value, true, nil
	}

	if found {
		var value interface{}
		if uerr := s.codec.Unmarshal(data, &value); uerr != nil {
			// Undecodable payload behaves like a miss; the entry will age out.
			s.logger.Warn("discarding undecodable remote payload",
				logging.String("key", norm), logging.Err(uerr))
		} else {
			s.tracker.RecordHit(stats.TierRemote)
			s.local.Set(norm, value, options.ttl)
			return value, true, nil
		}
	}

	if options.producer == nil {
		s.tracker.RecordMiss()
		return nil, false, nil
	}

	value, perr := s.produce(ctx, norm, options.producer)
	if perr != nil {
		return nil, false, errors.ProducerError(norm, perr)
	}
	if value == nil {
		s.tracker.RecordMiss()
		return nil, false, nil
	}

	if serr := s.Set(ctx, key, value, options.ttl); serr != nil {
		s.logger.Warn("storing produced value failed", logging.String("key", norm), logging.Err(serr))
	}
	s.tracker.RecordFallback()
	return value, true, nil
}

// produce runs the producer, collapsed per key when single-flight is enabled.
func (s *Service) produce(ctx context.Context, norm string, producer Producer) (interface{}, error) {
	if s.flight == nil {
		return producer(ctx)
	}
	value, err, _ := s.flight.Do(norm, func() (interface{}, error) {
		return producer(ctx)
	})
	return value, err
}

// Set writes value to both tiers independently. A failing tier is logged and
// never blocks the other tier's write; an error is returned only when no
// tier accepted the value.
func (s *Service) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	norm := keys.Normalize(key)

	s.local.Set(norm, value, ttl)

	data, err := s.codec.Marshal(value)
	if err != nil {
		s.logger.Warn("remote tier write skipped", logging.String("key", norm), logging.Err(err))
		return nil
	}
	if err := s.remote.Set(ctx, norm, data, ttl); err != nil {
		s.logger.Error("remote tier write failed", err, logging.String("key", norm))
	}
	return nil
}

// Delete removes key from both tiers, best-effort per tier.
func (s *Service) Delete(ctx context.Context, key string) error {
	norm := keys.Normalize(key)

	s.local.Delete(norm)

	if _, err := s.remote.Delete(ctx, norm); err != nil {
		s.logger.Error("remote tier delete failed", err, logging.String("key", norm))
	}
	return nil
}

// Has reports whether key is present in either tier. It does not touch the
// hit/miss counters.
func (s *Service) Has(ctx context.Context, key string) (bool, error) {
	norm := keys.Normalize(key)

	if _, ok := s.local.Get(norm); ok {
		return true, nil
	}

	found, err := s.remote.Exists(ctx, norm)
	if err != nil {
		s.logger.Error("remote tier exists failed", err, logging.String("key", norm))
		return false, nil
	}
	return found, nil
}

// Clear flushes the local tier and deletes every prefixed key from the
// remote tier.
func (s *Service) Clear(ctx context.Context) error {
	s.local.Clear()

	stored, err := s.remote.Keys(ctx, "*")
	if err != nil {
		s.logger.Error("remote tier clear failed", err)
		return nil
	}
	if len(stored) > 0 {
		if _, err := s.remote.DeleteStored(ctx, stored...); err != nil {
			s.logger.Error("remote tier clear failed", err)
		}
	}
	return nil
}

// Stats is the operational snapshot returned by GetStats.
type Stats struct {
	stats.Snapshot
	MemoryUsage int64 `json:"memory_usage"`
	KeyCount    int64 `json:"key_count"`
}

// GetStats returns the hit/miss counters together with the remote store's
// used-memory and key-count figures. Introspection is best-effort: on
// failure the counters are still returned with the remote figures zeroed.
func (s *Service) GetStats(ctx context.Context) Stats {
	result := Stats{Snapshot: s.tracker.Snapshot()}

	memory, keyCount, err := s.remote.Introspect(ctx)
	if err != nil {
		s.logger.Debug("remote tier introspection failed", logging.Err(err))
		return result
	}
	result.MemoryUsage = memory
	result.KeyCount = keyCount
	return result
}

// Shutdown stops the background sweep, clears the local tier, and closes the
// remote connection. Safe to call more than once.
func (s *Service) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.local.StopSweeping()
		s.local.Clear()
		s.shutdownErr = s.remote.Close()
		s.logger.Info("cache service shut down")
	})
	return s.shutdownErr
}
