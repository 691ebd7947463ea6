// Package cache provides a Redis-backed cache of VectorIndex query
// results, so a repeated ANN query with the same vector, topK and
// filters skips the underlying index entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/docsim-core/internal/pipeline"
)

// SearchCache caches ANN hit lists keyed by a hash of (query vector,
// topK, filters). CachedVectorIndex uses it to decorate a
// pipeline.VectorIndex: a hit skips the underlying query, a miss
// populates the cache after the query completes.
type SearchCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a SearchCache against the given Redis client.
func New(client *redis.Client, ttl time.Duration) *SearchCache {
	return &SearchCache{client: client, ttl: ttl}
}

// cachedHits is the JSON-serializable shape stored in Redis.
type cachedHits struct {
	Hits []pipeline.VectorHit `json:"hits"`
}

// Get returns cached ANN hits for the given query, or (nil, false) on
// a miss or a Redis error (a cache is an optimization, never a
// correctness dependency — any error degrades silently to "miss").
func (c *SearchCache) Get(ctx context.Context, vector []float32, topK int, filters []pipeline.Filter) ([]pipeline.VectorHit, bool) {
	key := cacheKey(vector, topK, filters)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("search cache get failed", "error", err)
		}
		return nil, false
	}

	var cached cachedHits
	if err := json.Unmarshal(raw, &cached); err != nil {
		slog.Warn("search cache unmarshal failed", "error", err)
		return nil, false
	}

	slog.Info("search cache hit", "key", key, "hits", len(cached.Hits))
	return cached.Hits, true
}

// Set stores ANN hits for the given query.
func (c *SearchCache) Set(ctx context.Context, vector []float32, topK int, filters []pipeline.Filter, hits []pipeline.VectorHit) {
	key := cacheKey(vector, topK, filters)

	raw, err := json.Marshal(cachedHits{Hits: hits})
	if err != nil {
		slog.Warn("search cache marshal failed", "error", err)
		return
	}

	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		slog.Warn("search cache set failed", "error", err)
		return
	}

	slog.Info("search cache set", "key", key, "hits", len(hits), "ttl_s", int(c.ttl.Seconds()))
}

// CachedVectorIndex wraps a pipeline.VectorIndex with a SearchCache.
type CachedVectorIndex struct {
	inner pipeline.VectorIndex
	cache *SearchCache
}

// NewCachedVectorIndex decorates inner with cache-aside lookups.
func NewCachedVectorIndex(inner pipeline.VectorIndex, cache *SearchCache) *CachedVectorIndex {
	return &CachedVectorIndex{inner: inner, cache: cache}
}

var _ pipeline.VectorIndex = (*CachedVectorIndex)(nil)

// Query serves from cache on a hit, otherwise queries inner and
// populates the cache for next time.
func (c *CachedVectorIndex) Query(ctx context.Context, vector []float32, topK int, filters []pipeline.Filter) ([]pipeline.VectorHit, error) {
	if hits, ok := c.cache.Get(ctx, vector, topK, filters); ok {
		return hits, nil
	}

	hits, err := c.inner.Query(ctx, vector, topK, filters)
	if err != nil {
		return nil, err
	}

	c.cache.Set(ctx, vector, topK, filters, hits)
	return hits, nil
}

// cacheKey hashes the query shape into a stable Redis key. Filters are
// sorted by the caller's construction order (the pipeline always
// appends the document_id exclusion last, so key collisions only occur
// for identical queries).
func cacheKey(vector []float32, topK int, filters []pipeline.Filter) string {
	h := sha256.New()
	for _, v := range vector {
		fmt.Fprintf(h, "%.6f,", v)
	}
	fmt.Fprintf(h, "|%d|", topK)
	for _, f := range filters {
		fmt.Fprintf(h, "%s:%s:%s:%v;", f.Key, f.Op, f.Value, f.Values)
	}
	return fmt.Sprintf("search:%x", h.Sum(nil))
}
