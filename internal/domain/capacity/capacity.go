// Package capacity computes the shop's real-time capacity snapshot. The
// computation fans out two store queries, so it sits behind the rate
// limiter with the cache as the pressure valve.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/pitstop/internal/adapters/store"
	"github.com/okian/pitstop/internal/domain/model"
	"github.com/okian/pitstop/internal/resilience/breaker"
	"github.com/okian/pitstop/internal/resilience/cache"
	"github.com/okian/pitstop/internal/resilience/ratelimit"
	"github.com/okian/pitstop/pkg/logger"
	"github.com/okian/pitstop/pkg/metrics"
)

// Limiter and breaker operation names owned by the calculator.
const (
	opCapacity = "capacity_calculation"

	// cacheKey is fixed: capacity is a shop-wide singleton value.
	cacheKey = "capacity:current"
)

// Default calculator configuration constants.
const (
	defaultMaxConcurrentPerTech = 5
	defaultStoreTimeout         = 5 * time.Second
)

// Calculator produces capacity snapshots from live technician and work
// order data, caching each fresh result for rate-limited callers.
type Calculator struct {
	store    store.DocumentStore
	retry    *store.Retry
	breakers *breaker.Registry
	cache    *cache.Cache
	limiter  *ratelimit.Limiter

	maxConcurrentPerTech int
	storeTimeout         time.Duration

	logger logger.Logger
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithMaxConcurrentPerTech sets how many jobs one technician can hold at
// once for capacity accounting.
func WithMaxConcurrentPerTech(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.maxConcurrentPerTech = n
		}
	}
}

// WithStoreTimeout bounds each store call issued by the calculator.
func WithStoreTimeout(d time.Duration) Option {
	return func(c *Calculator) {
		if d > 0 {
			c.storeTimeout = d
		}
	}
}

// WithRetry replaces the store retry policy.
func WithRetry(r *store.Retry) Option {
	return func(c *Calculator) {
		if r != nil {
			c.retry = r
		}
	}
}

// New creates a Calculator over the given collaborators.
func New(st store.DocumentStore, breakers *breaker.Registry, ca *cache.Cache, lim *ratelimit.Limiter, opts ...Option) *Calculator {
	c := &Calculator{
		store:                st,
		retry:                store.NewRetry(),
		breakers:             breakers,
		cache:                ca,
		limiter:              lim,
		maxConcurrentPerTech: defaultMaxConcurrentPerTech,
		storeTimeout:         defaultStoreTimeout,
		logger:               logger.Get().Named("capacity"),
	}

	// Apply all options
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Snapshot returns the current capacity view. When the limiter denies the
// computation, or the circuit is open, a previously cached snapshot is
// served instead; only when both paths come up empty does the caller get
// the underlying error.
func (c *Calculator) Snapshot(ctx context.Context) (model.CapacitySnapshot, error) {
	if !c.limiter.TryAcquire(ctx, opCapacity) {
		if cached, ok := c.cachedSnapshot(ctx); ok {
			return cached, nil
		}
		return model.CapacitySnapshot{}, ErrRateLimited
	}

	snap, err := c.compute(ctx)
	if err != nil {
		// A stale snapshot beats no snapshot while the store recovers.
		if errors.Is(err, breaker.ErrCircuitOpen) {
			if cached, ok := c.cachedSnapshot(ctx); ok {
				return cached, nil
			}
		}
		return model.CapacitySnapshot{}, err
	}

	// Cache write failure is survivable; the fresh value still goes out.
	if cerr := c.cache.Set(ctx, cacheKey, snapshotFields(snap)); cerr != nil {
		c.logger.Warn(ctx, "capacity cache write failed", logger.Error(cerr))
	}

	metrics.UpdateCapacitySnapshot(snap.TotalCapacity, snap.UsedCapacity, snap.AvailableCapacity, snap.UtilizationRate, snap.AvailableTechnicians)
	return snap, nil
}

// compute runs the two live queries and folds them into a snapshot.
func (c *Calculator) compute(ctx context.Context) (model.CapacitySnapshot, error) {
	var (
		techDocs  []store.Document
		orderDocs []store.Document
	)
	err := c.breakers.Execute(ctx, opCapacity, func(ctx context.Context) error {
		return c.retry.Do(ctx, "capacity_load", func(ctx context.Context) error {
			tctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
			defer cancel()

			var lerr error
			techDocs, lerr = c.store.Query(tctx, model.CollectionTechnicians, []store.Filter{
				store.Eq("available", true),
			})
			if lerr != nil {
				return lerr
			}
			orderDocs, lerr = c.store.Query(tctx, model.CollectionWorkOrders, []store.Filter{
				{Field: "status", Op: store.OpIn, Value: model.ActiveWorkOrderStatuses()},
			})
			return lerr
		})
	})
	if err != nil {
		return model.CapacitySnapshot{}, fmt.Errorf("loading capacity inputs: %w", err)
	}

	snap := model.CapacitySnapshot{
		AvailableTechnicians: len(techDocs),
		TotalCapacity:        len(techDocs) * c.maxConcurrentPerTech,
		UsedCapacity:         len(orderDocs),
	}
	snap.AvailableCapacity = snap.TotalCapacity - snap.UsedCapacity
	if snap.AvailableCapacity < 0 {
		// Over-commitment happens when technicians flip unavailable while
		// still holding work; the snapshot reports zero headroom, not a
		// negative one.
		snap.AvailableCapacity = 0
	}
	if snap.TotalCapacity > 0 {
		snap.UtilizationRate = float64(snap.UsedCapacity) / float64(snap.TotalCapacity) * 100
	}
	return snap, nil
}

// cachedSnapshot tries to serve the last computed snapshot from the cache.
func (c *Calculator) cachedSnapshot(ctx context.Context) (model.CapacitySnapshot, bool) {
	value, ok := c.cache.Get(ctx, cacheKey)
	if !ok {
		return model.CapacitySnapshot{}, false
	}
	fields, ok := value.(map[string]any)
	if !ok {
		return model.CapacitySnapshot{}, false
	}

	snap := snapshotFromFields(fields)
	c.logger.Debug(ctx, "serving cached capacity snapshot")
	return snap, true
}

// snapshotFields flattens a snapshot for cache storage.
func snapshotFields(s model.CapacitySnapshot) map[string]any {
	return map[string]any{
		"total_capacity":        s.TotalCapacity,
		"used_capacity":         s.UsedCapacity,
		"available_capacity":    s.AvailableCapacity,
		"utilization_rate":      s.UtilizationRate,
		"available_technicians": s.AvailableTechnicians,
	}
}

func snapshotFromFields(fields map[string]any) model.CapacitySnapshot {
	return model.CapacitySnapshot{
		TotalCapacity:        intField(fields, "total_capacity"),
		UsedCapacity:         intField(fields, "used_capacity"),
		AvailableCapacity:    intField(fields, "available_capacity"),
		UtilizationRate:      floatField(fields, "utilization_rate"),
		AvailableTechnicians: intField(fields, "available_technicians"),
	}
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

func floatField(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
