package source

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"go.brokerconsole.dev/internal/common/metrics"
	"go.brokerconsole.dev/internal/feed"
)

// Cache is the subset of redis commands the cached source needs.
// *redis.Client satisfies it.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedSource shares snapshots between console replicas through redis, so
// only one replica per TTL hits the broker.
type CachedSource struct {
	inner feed.Source
	cache Cache
	key   string
	ttl   time.Duration
}

// CacheConfig configures a CachedSource
type CacheConfig struct {
	// Prefix is the key prefix (default: "console:")
	Prefix string

	// TTL of a cached snapshot; keep it below the poll interval
	TTL time.Duration
}

// NewCachedSource wraps inner with a redis cache.
func NewCachedSource(inner feed.Source, cache Cache, cfg CacheConfig) *CachedSource {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "console:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 4 * time.Second
	}
	return &CachedSource{
		inner: inner,
		cache: cache,
		key:   prefix + "throughput:" + inner.Name(),
		ttl:   ttl,
	}
}

// Name implements feed.Source.
func (s *CachedSource) Name() string { return s.inner.Name() + "+redis" }

// Fetch returns the cached snapshot when present, otherwise fetches from
// the wrapped source and caches the result. Cache failures fall back to
// the wrapped source.
func (s *CachedSource) Fetch(ctx context.Context) (feed.Snapshot, error) {
	data, err := s.cache.Get(ctx, s.key).Bytes()
	switch {
	case err == nil:
		snap, decodeErr := DecodeSnapshot(data)
		if decodeErr == nil {
			metrics.SourceCacheLookups.WithLabelValues("hit").Inc()
			return snap, nil
		}
		metrics.SourceCacheLookups.WithLabelValues("error").Inc()
		slog.Warn("Ignoring undecodable cached snapshot", "key", s.key, "error", decodeErr)
	case errors.Is(err, redis.Nil):
		metrics.SourceCacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.SourceCacheLookups.WithLabelValues("error").Inc()
		slog.Warn("Snapshot cache lookup failed", "key", s.key, "error", err)
	}

	snap, err := s.inner.Fetch(ctx)
	if err != nil {
		return feed.Snapshot{}, err
	}

	encoded, err := EncodeSnapshot(snap)
	if err != nil {
		return snap, nil
	}
	if err := s.cache.Set(ctx, s.key, encoded, s.ttl).Err(); err != nil {
		slog.Warn("Failed to cache snapshot", "key", s.key, "error", err)
	}
	return snap, nil
}
