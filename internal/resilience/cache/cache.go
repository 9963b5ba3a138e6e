// Package cache provides time-boxed memoization of expensive read results,
// backed by the shared document store.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/pitstop/internal/adapters/store"
	"github.com/okian/pitstop/pkg/logger"
	"github.com/okian/pitstop/pkg/metrics"
)

// Default cache configuration constants.
const (
	defaultTTL        = 5 * time.Minute
	defaultCollection = "cache_entries"

	fieldValue    = "value"
	fieldCachedAt = "cached_at"
)

// Cache memoizes values in the backing store under a TTL. Read and delete
// failures degrade to a miss; only Set surfaces an error, so callers can
// decide whether serving a stale result is acceptable.
type Cache struct {
	store      store.DocumentStore
	ttl        time.Duration
	collection string

	// now is swappable so tests control the clock.
	now func() time.Time

	logger logger.Logger
}

// New creates a Cache over the given store with configuration options.
func New(st store.DocumentStore, opts ...Option) *Cache {
	c := &Cache{
		store:      st,
		ttl:        defaultTTL,
		collection: defaultCollection,
		now:        time.Now,
		logger:     logger.Get().Named("cache"),
	}

	// Apply all options
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get returns the cached value for key. ok is false on miss, expiry, or any
// store failure. Expired entries are actively deleted so storage stays bounded.
func (c *Cache) Get(ctx context.Context, key string) (any, bool) {
	doc, err := c.store.Get(ctx, c.collection, key)
	if err != nil {
		if !store.IsNotFound(err) {
			c.logger.Warn(ctx, "cache read failed, degrading to miss",
				logger.String("key", key),
				logger.Error(err),
			)
		}
		metrics.RecordCacheMiss()
		return nil, false
	}

	cachedAt, ok := doc.Fields[fieldCachedAt].(time.Time)
	if !ok || c.now().Sub(cachedAt) > c.ttl {
		// Expired (or unreadable timestamp): delete rather than ignore so
		// Invalidate and storage growth stay bounded.
		if derr := c.store.Delete(ctx, c.collection, key); derr != nil {
			c.logger.Warn(ctx, "failed to delete expired cache entry",
				logger.String("key", key),
				logger.Error(derr),
			)
		} else {
			metrics.RecordCacheEviction()
		}
		metrics.RecordCacheMiss()
		return nil, false
	}

	metrics.RecordCacheHit()
	return doc.Fields[fieldValue], true
}

// Set stores value under key, overwriting unconditionally.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	err := c.store.Set(ctx, c.collection, key, map[string]any{
		fieldValue:    value,
		fieldCachedAt: c.now(),
	})
	if err != nil {
		metrics.RecordCacheWriteError()
		return fmt.Errorf("%w %q: %w", ErrCacheWrite, key, err)
	}
	return nil
}

// Invalidate deletes every entry whose key starts with prefix in one batch.
func (c *Cache) Invalidate(ctx context.Context, prefix string) error {
	docs, err := c.store.Query(ctx, c.collection, nil)
	if err != nil {
		return fmt.Errorf("listing cache entries for invalidation: %w", err)
	}

	ops := make([]store.WriteOp, 0, len(docs))
	for _, doc := range docs {
		if strings.HasPrefix(doc.ID, prefix) {
			ops = append(ops, store.WriteOp{Kind: store.WriteDelete, Collection: c.collection, ID: doc.ID})
		}
	}
	if len(ops) == 0 {
		return nil
	}
	if err := c.store.BatchWrite(ctx, ops); err != nil {
		return fmt.Errorf("invalidating cache prefix %q: %w", prefix, err)
	}
	return nil
}
