// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"sync"
	"time"

	taskqueue "github.com/okian/pitstop/internal/adapters/mq/queue"
	workerpool "github.com/okian/pitstop/internal/adapters/mq/worker"
	"github.com/okian/pitstop/internal/adapters/store"
	"github.com/okian/pitstop/internal/domain/assignment"
	"github.com/okian/pitstop/internal/domain/capacity"
	"github.com/okian/pitstop/internal/domain/model"
	"github.com/okian/pitstop/internal/domain/optimizer"
	"github.com/okian/pitstop/internal/notify"
	"github.com/okian/pitstop/internal/resilience/breaker"
	"github.com/okian/pitstop/internal/resilience/cache"
	"github.com/okian/pitstop/internal/resilience/ratelimit"
	"github.com/okian/pitstop/pkg/logger"
	"github.com/okian/pitstop/pkg/metrics"
)

// Service wires the allocation engine, optimizer, capacity calculator, and
// their resilience layers over one shared document store.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      store.DocumentStore
	breakers   *breaker.Registry
	cache      *cache.Cache
	limiter    *ratelimit.Limiter
	engine     *assignment.Engine
	optimizer  *optimizer.Optimizer
	capacity   *capacity.Calculator
	taskQueue  taskqueue.Queue
	workerPool *workerpool.Pool

	// Configuration
	cacheTTL             time.Duration
	rateWindow           time.Duration
	rateLimit            int
	breakerThreshold     int
	breakerRecovery      time.Duration
	optimizeInterval     time.Duration
	capacityRefresh      time.Duration
	maxConcurrentPerTech int
	storeTimeout         time.Duration
	queueCapacity        int
	workerCount          int
	requiredSkills       map[string][]string

	// State
	started bool
	stopCh  chan struct{}
	bg      sync.WaitGroup

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore injects the backing document store. Defaults to the in-memory
// store when unset.
func WithStore(st store.DocumentStore) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithCacheTTL sets the freshness window for memoized reads.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithRateWindow sets the fixed window length for the rate limiter.
func WithRateWindow(window time.Duration) Option {
	return func(s *Service) {
		if window > 0 {
			s.rateWindow = window
		}
	}
}

// WithRateLimit sets the per-window call cap for expensive operations.
func WithRateLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.rateLimit = limit
		}
	}
}

// WithBreakerThreshold sets the consecutive-failure count that opens circuits.
func WithBreakerThreshold(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.breakerThreshold = n
		}
	}
}

// WithBreakerRecovery sets the open-state cooldown before a trial call.
func WithBreakerRecovery(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.breakerRecovery = d
		}
	}
}

// WithOptimizeInterval sets the cadence of background rebalancing passes.
// Zero disables the background optimizer.
func WithOptimizeInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.optimizeInterval = d
		}
	}
}

// WithCapacityRefresh sets the cadence of background capacity snapshots.
// Zero disables the refresher.
func WithCapacityRefresh(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.capacityRefresh = d
		}
	}
}

// WithMaxConcurrentPerTech sets per-technician concurrency for capacity math.
func WithMaxConcurrentPerTech(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrentPerTech = n
		}
	}
}

// WithStoreTimeout bounds individual store calls.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithQueueCapacity bounds the in-memory side-effect queue.
func WithQueueCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueCapacity = n
		}
	}
}

// WithWorkerCount sets the number of side-effect dispatch workers.
func WithWorkerCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workerCount = n
		}
	}
}

// WithRequiredSkills maps service types to the skills they require.
func WithRequiredSkills(m map[string][]string) Option {
	return func(s *Service) {
		if m != nil {
			s.requiredSkills = m
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(lg logger.Logger) Option {
	return func(s *Service) {
		if lg != nil {
			s.logger = lg
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		cacheTTL:             5 * time.Minute,
		rateWindow:           60 * time.Second,
		rateLimit:            10,
		breakerThreshold:     3,
		breakerRecovery:      30 * time.Second,
		optimizeInterval:     5 * time.Minute,
		capacityRefresh:      time.Minute,
		maxConcurrentPerTech: 5,
		storeTimeout:         5 * time.Second,
		queueCapacity:        10000,
		workerCount:          4,
		stopCh:               make(chan struct{}),
		logger:               nil, // Will be replaced when service starts
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting allocation service...")

	// Initialize components
	if s.store == nil {
		s.store = store.NewMemStore()
		s.logger.Info(ctx, "using in-memory document store")
	}
	s.breakers = breaker.NewRegistry(
		breaker.WithFailureThreshold(s.breakerThreshold),
		breaker.WithRecoveryTimeout(s.breakerRecovery),
	)
	s.cache = cache.New(s.store, cache.WithTTL(s.cacheTTL))
	s.limiter = ratelimit.New(s.store,
		ratelimit.WithWindow(s.rateWindow),
		ratelimit.WithLimit(s.rateLimit),
	)

	s.taskQueue = taskqueue.NewInMemoryQueue(
		taskqueue.WithCapacity(s.queueCapacity),
	)
	audit := notify.NewAuditWriter(s.store)
	s.workerPool = workerpool.NewPool(s.workerCount, s.taskQueue, notify.NewDispatcher(audit))
	s.workerPool.Start(ctx)

	engineOpts := []assignment.Option{
		assignment.WithStoreTimeout(s.storeTimeout),
	}
	if s.requiredSkills != nil {
		engineOpts = append(engineOpts, assignment.WithRequiredSkills(s.requiredSkills))
	}
	s.engine = assignment.New(s.store, s.breakers, s.taskQueue, audit, engineOpts...)
	s.optimizer = optimizer.New(s.store, s.breakers,
		optimizer.WithStoreTimeout(s.storeTimeout),
	)
	s.capacity = capacity.New(s.store, s.breakers, s.cache, s.limiter,
		capacity.WithMaxConcurrentPerTech(s.maxConcurrentPerTech),
		capacity.WithStoreTimeout(s.storeTimeout),
	)

	s.startBackgroundLoops(ctx)

	s.started = true
	s.logger.Info(ctx, "allocation service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueCapacity", s.queueCapacity),
		logger.Int("rateLimit", s.rateLimit),
		logger.Duration("cacheTTL", s.cacheTTL),
	)

	return nil
}

// startBackgroundLoops launches the periodic capacity refresher and
// optimizer passes. Either loop is skipped when its interval is zero.
func (s *Service) startBackgroundLoops(ctx context.Context) {
	if s.capacityRefresh > 0 {
		s.bg.Add(1)
		go s.runPeriodic(ctx, "capacity refresh", s.capacityRefresh, func(ctx context.Context) {
			if _, err := s.capacity.Snapshot(ctx); err != nil {
				s.logger.Warn(ctx, "background capacity refresh failed", logger.Error(err))
			}
		})
	}
	if s.optimizeInterval > 0 {
		s.bg.Add(1)
		go s.runPeriodic(ctx, "optimizer", s.optimizeInterval, func(ctx context.Context) {
			if _, err := s.optimizer.Optimize(ctx); err != nil {
				s.logger.Warn(ctx, "background optimizer pass failed", logger.Error(err))
			}
		})
	}
}

func (s *Service) runPeriodic(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context)) {
	defer s.bg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.logger.Debug(ctx, "running periodic task", logger.String("task", name))
			fn(ctx)
		}
	}
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping allocation service...")

	// Signal background loops to stop
	select {
	case <-s.stopCh:
		// Channel already closed
	default:
		close(s.stopCh)
	}
	s.bg.Wait()

	// Stop worker pool
	if s.workerPool != nil {
		s.workerPool.Stop()
	}

	// Close queue
	if q, ok := s.taskQueue.(*taskqueue.InMemoryQueue); ok {
		_ = q.Close()
	}

	s.started = false
	s.logger.Info(context.Background(), "allocation service stopped")
}

// Assign runs the scoring workflow for a pending request and commits the
// winning assignment.
func (s *Service) Assign(ctx context.Context, requestID string) (assignment.Result, error) {
	return s.engine.Assign(ctx, requestID)
}

// Capacity returns the current shop capacity snapshot.
func (s *Service) Capacity(ctx context.Context) (model.CapacitySnapshot, error) {
	return s.capacity.Snapshot(ctx)
}

// Optimize runs one on-demand workload rebalancing pass.
func (s *Service) Optimize(ctx context.Context) (optimizer.Result, error) {
	return s.optimizer.Optimize(ctx)
}

// CreateTechnician registers a technician and returns its generated id.
func (s *Service) CreateTechnician(ctx context.Context, t model.Technician) (string, error) {
	return s.store.Add(ctx, model.CollectionTechnicians, t.Fields())
}

// CreateRequest registers a pending service request and returns its
// generated id.
func (s *Service) CreateRequest(ctx context.Context, r model.ServiceRequest) (string, error) {
	if r.Status == "" {
		r.Status = model.RequestPending
	}
	if r.JoinedAt.IsZero() {
		r.JoinedAt = time.Now()
	}
	return s.store.Add(ctx, model.CollectionRequests, r.Fields())
}

// BreakerStates reports each circuit's current state for monitoring.
func (s *Service) BreakerStates() map[string]string {
	if s.breakers == nil {
		return map[string]string{}
	}
	return s.breakers.States()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"rateLimit":   s.rateLimit,
	}

	if s.started {
		queueLen := s.taskQueue.Len(ctx)

		stats["queueLength"] = queueLen
		stats["inFlightAssignments"] = s.engine.InFlight()
		stats["breakers"] = s.breakers.States()

		// Update metrics
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
