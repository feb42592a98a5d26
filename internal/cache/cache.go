// Package cache is the read-through Redis cache for finished extraction
// results. It is a collaborator of the HTTP surface, never a correctness
// requirement: a nil cache or an unreachable Redis degrades to extracting
// every time.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/metrics"
	"github.com/marketsift/marketsift/internal/orchestrator"
	"github.com/marketsift/marketsift/internal/sources"
)

const (
	keyPrefix  = "marketsift:extract:"
	DefaultTTL = 5 * time.Minute

	cacheType = "extract"
)

// Cache stores successful single-source results keyed by marketplace and
// identifier hash.
type Cache struct {
	rdb     redis.Cmdable
	ttl     time.Duration
	metrics *metrics.Registry
}

// New builds a cache on an existing Redis client. metrics may be nil.
func New(rdb redis.Cmdable, ttl time.Duration, m *metrics.Registry) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{rdb: rdb, ttl: ttl, metrics: m}
}

// Key derives the cache key. Identifiers are hashed: they may be whole HTML
// documents or emails, and raw user content does not belong in key space.
func Key(marketplace listing.Marketplace, identifier string) string {
	return keyPrefix + string(marketplace) + ":" + sources.HashContent([]byte(identifier))[:32]
}

// Get returns the cached result for (marketplace, identifier), or nil on a
// miss. Hits are marked in the result's provenance metadata so callers can
// tell cached data from a fresh extraction. Redis errors are logged and
// reported as misses.
func (c *Cache) Get(ctx context.Context, marketplace listing.Marketplace, identifier string) *orchestrator.Result {
	if c == nil {
		return nil
	}
	key := Key(marketplace, identifier)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.RecordCacheMiss(cacheType)
		return nil
	}
	if err != nil {
		log.Warn().Str("key", key).Err(err).Msg("Cache read failed")
		c.metrics.RecordCacheMiss(cacheType)
		return nil
	}

	var res orchestrator.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		log.Warn().Str("key", key).Err(err).Msg("Discarding undecodable cache entry")
		c.metrics.RecordCacheMiss(cacheType)
		return nil
	}

	c.metrics.RecordCacheHit(cacheType)
	if res.Data != nil {
		if res.Data.Provenance.Metadata == nil {
			res.Data.Provenance.Metadata = map[string]any{}
		}
		res.Data.Provenance.Metadata["cache_hit"] = true
	}
	return &res
}

// Put stores a result. Only results that carry data are cached; misses stay
// uncached so a source coming back online is picked up immediately.
func (c *Cache) Put(ctx context.Context, marketplace listing.Marketplace, identifier string, res *orchestrator.Result) {
	if c == nil || res == nil || res.Data == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		log.Warn().Err(err).Msg("Cache encode failed")
		return
	}
	key := Key(marketplace, identifier)
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		log.Warn().Str("key", key).Err(err).Msg("Cache write failed")
	}
}
