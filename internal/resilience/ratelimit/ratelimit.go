// Package ratelimit provides fixed-window admission control whose counters
// live in the shared document store, so the cap holds across replicated
// engine instances.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/pitstop/internal/adapters/store"
	"github.com/okian/pitstop/pkg/logger"
	"github.com/okian/pitstop/pkg/metrics"
)

// Default limiter configuration constants.
const (
	defaultWindow     = 60 * time.Second
	defaultLimit      = 10
	defaultCollection = "rate_windows"

	fieldOperation = "operation"
	fieldCount     = "count"
	fieldExpiresAt = "expires_at"
)

// Limiter admits at most limit calls per operation per fixed window. The
// counter increment runs inside a single-key store transaction, so racing
// callers never over- or under-count. On transaction failure the limiter
// fails open: availability beats strict quota enforcement.
type Limiter struct {
	store      store.DocumentStore
	window     time.Duration
	limit      int
	collection string

	// now is swappable so tests control the clock.
	now func() time.Time

	logger logger.Logger
}

// New creates a Limiter over the given store with configuration options.
func New(st store.DocumentStore, opts ...Option) *Limiter {
	l := &Limiter{
		store:      st,
		window:     defaultWindow,
		limit:      defaultLimit,
		collection: defaultCollection,
		now:        time.Now,
		logger:     logger.Get().Named("ratelimit"),
	}

	// Apply all options
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// TryAcquire reports whether operation may proceed in the current window.
func (l *Limiter) TryAcquire(ctx context.Context, operation string) bool {
	bucket := l.now().Unix() / int64(l.window.Seconds())
	key := fmt.Sprintf("%s:%d", operation, bucket)

	allowed := false
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		count := 0
		doc, err := tx.Get(ctx, l.collection, key)
		switch {
		case err == nil:
			count = intField(doc.Fields, fieldCount)
		case store.IsNotFound(err):
			// First call in this window.
		default:
			return err
		}

		if count >= l.limit {
			// At the cap: deny without incrementing.
			return nil
		}

		allowed = true
		return tx.Set(ctx, l.collection, key, map[string]any{
			fieldOperation: operation,
			fieldCount:     count + 1,
			fieldExpiresAt: time.Unix((bucket+1)*int64(l.window.Seconds()), 0),
		})
	})
	if err != nil {
		// Fail open: the limiter protects the store, it must not become a
		// single point of failure itself.
		l.logger.Warn(ctx, "rate limiter transaction failed, failing open",
			logger.String("operation", operation),
			logger.Error(err),
		)
		metrics.RecordRateLimitFailOpen(operation)
		return true
	}

	if allowed {
		metrics.RecordRateLimitAllowed(operation)
	} else {
		metrics.RecordRateLimitDenied(operation)
	}
	return allowed
}

// Limit returns the configured per-window cap.
func (l *Limiter) Limit() int {
	return l.limit
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

func intField(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
