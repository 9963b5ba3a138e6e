// Package metrics provides Prometheus metrics for the PITSTOP allocation engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the PITSTOP service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Assignment Metrics - What really matters for the allocation engine
	assignmentsTotal     prometheus.Counter
	assignmentFailures   prometheus.Counter
	noTechnicianOutcomes prometheus.Counter
	scoringLatency       prometheus.Histogram
	candidatesScored     prometheus.Histogram

	// Capacity Metrics
	capacityTotal        prometheus.Gauge
	capacityUsed         prometheus.Gauge
	capacityAvailable    prometheus.Gauge
	capacityUtilization  prometheus.Gauge
	availableTechnicians prometheus.Gauge

	// Optimizer Metrics
	optimizerReassigned   prometheus.Counter
	optimizerFilled       prometheus.Counter
	optimizerGaps         prometheus.Counter
	optimizerPassDuration prometheus.Histogram

	// Cache Metrics
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	cacheEvictions   prometheus.Counter
	cacheWriteErrors prometheus.Counter

	// Rate Limiter Metrics
	rateLimitAllowed  *prometheus.CounterVec
	rateLimitDenied   *prometheus.CounterVec
	rateLimitFailOpen *prometheus.CounterVec

	// Circuit Breaker Metrics
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
	breakerRejections  *prometheus.CounterVec

	// Store Metrics
	storeOpLatency *prometheus.HistogramVec
	storeOpErrors  *prometheus.CounterVec
	storeRetries   prometheus.Counter

	// Side-effect Queue/Worker Metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors prometheus.Counter
	workerCount        prometheus.Gauge
	sideEffectsTotal   *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pitstop",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Assignment Metrics
	m.assignmentsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "assignments_total",
		Help:      "Total number of service requests successfully assigned",
	})

	m.assignmentFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "assignment_failures_total",
		Help:      "Total number of assignments that failed after a technician was selected",
	})

	m.noTechnicianOutcomes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "no_technician_outcomes_total",
		Help:      "Total number of requests with no eligible technician",
	})

	m.scoringLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_latency_milliseconds",
		Help:      "Histogram of per-request candidate scoring latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.candidatesScored = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "candidates_scored",
		Help:      "Number of eligible technicians scored per assignment decision",
		Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
	})

	// Capacity Metrics
	m.capacityTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "capacity_total",
		Help:      "Total shop capacity in concurrent work orders",
	})

	m.capacityUsed = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "capacity_used",
		Help:      "Used shop capacity (active work orders)",
	})

	m.capacityAvailable = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "capacity_available",
		Help:      "Remaining shop capacity",
	})

	m.capacityUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "capacity_utilization_ratio",
		Help:      "Shop capacity utilization ratio (used / total)",
	})

	m.availableTechnicians = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "available_technicians",
		Help:      "Number of technicians currently flagged available",
	})

	// Optimizer Metrics
	m.optimizerReassigned = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "optimizer_reassigned_total",
		Help:      "Total number of work orders moved between technicians",
	})

	m.optimizerFilled = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "optimizer_filled_total",
		Help:      "Total number of unassigned requests filled by the optimizer",
	})

	m.optimizerGaps = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "optimizer_gaps_total",
		Help:      "Total number of requests left unassigned for lack of headroom",
	})

	m.optimizerPassDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "optimizer_pass_duration_milliseconds",
		Help:      "Optimizer pass duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Cache Metrics
	m.cacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_hits_total",
		Help:      "Total number of cache hits",
	})

	m.cacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_misses_total",
		Help:      "Total number of cache misses (including expirations)",
	})

	m.cacheEvictions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_evictions_total",
		Help:      "Total number of expired cache entries actively deleted",
	})

	m.cacheWriteErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_write_errors_total",
		Help:      "Total number of cache write failures surfaced to callers",
	})

	// Rate Limiter Metrics
	m.rateLimitAllowed = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "rate_limit_allowed_total",
			Help:      "Total number of operations admitted by the rate limiter",
		},
		[]string{"operation"},
	)

	m.rateLimitDenied = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "rate_limit_denied_total",
			Help:      "Total number of operations denied by the rate limiter",
		},
		[]string{"operation"},
	)

	m.rateLimitFailOpen = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "rate_limit_fail_open_total",
			Help:      "Total number of operations admitted because the limiter store failed",
		},
		[]string{"operation"},
	)

	// Circuit Breaker Metrics
	m.breakerState = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"operation"},
	)

	m.breakerTransitions = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "breaker_transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"operation", "to"},
	)

	m.breakerRejections = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "breaker_rejections_total",
			Help:      "Total number of calls rejected while the breaker was open",
		},
		[]string{"operation"},
	)

	// Store Metrics
	m.storeOpLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "store_op_latency_milliseconds",
			Help:      "Document store operation latency in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"op"},
	)

	m.storeOpErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "store_op_errors_total",
			Help:      "Total number of document store operation errors",
		},
		[]string{"op", "code"},
	)

	m.storeRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_retries_total",
		Help:      "Total number of retried store operations",
	})

	// Side-effect Queue/Worker Metrics
	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "side_effect_queue_size",
		Help:      "Current size of the side-effect queue (backlog indicator)",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "side_effect_queue_capacity",
		Help:      "Maximum side-effect queue capacity",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "side_effect_enqueue_errors_total",
		Help:      "Total number of side-effect tasks dropped at enqueue",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "side_effect_worker_count",
		Help:      "Number of side-effect dispatch workers",
	})

	m.sideEffectsTotal = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "side_effects_total",
			Help:      "Total number of side-effect tasks dispatched by kind",
		},
		[]string{"kind"},
	)

	m.sideEffectFailures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "side_effect_failures_total",
			Help:      "Total number of side-effect tasks that failed (logged, never fatal)",
		},
		[]string{"kind"},
	)

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// Assignment Metrics Functions.

// RecordAssignment increments the successful assignments counter.
func RecordAssignment() {
	globalManager.assignmentsTotal.Inc()
}

// RecordAssignmentFailure increments the failed assignments counter.
func RecordAssignmentFailure() {
	globalManager.assignmentFailures.Inc()
}

// RecordNoTechnicianOutcome increments the no-eligible-technician counter.
func RecordNoTechnicianOutcome() {
	globalManager.noTechnicianOutcomes.Inc()
}

// RecordScoringLatency records candidate scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordCandidatesScored records how many technicians were scored for one decision.
func RecordCandidatesScored(n int) {
	globalManager.candidatesScored.Observe(float64(n))
}

// Capacity Metrics Functions.

// UpdateCapacitySnapshot publishes the latest capacity snapshot gauges.
func UpdateCapacitySnapshot(total, used, available int, utilization float64, technicians int) {
	globalManager.capacityTotal.Set(float64(total))
	globalManager.capacityUsed.Set(float64(used))
	globalManager.capacityAvailable.Set(float64(available))
	globalManager.capacityUtilization.Set(utilization)
	globalManager.availableTechnicians.Set(float64(technicians))
}

// Optimizer Metrics Functions.

// RecordOptimizerReassigned adds to the moved work order counter.
func RecordOptimizerReassigned(n int) {
	globalManager.optimizerReassigned.Add(float64(n))
}

// RecordOptimizerFilled adds to the filled request counter.
func RecordOptimizerFilled(n int) {
	globalManager.optimizerFilled.Add(float64(n))
}

// RecordOptimizerGap increments the unfillable request counter.
func RecordOptimizerGap() {
	globalManager.optimizerGaps.Inc()
}

// RecordOptimizerPassDuration records an optimizer pass duration.
func RecordOptimizerPassDuration(latencyMs float64) {
	globalManager.optimizerPassDuration.Observe(latencyMs)
}

// Cache Metrics Functions.

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// RecordCacheEviction increments the expired-entry deletion counter.
func RecordCacheEviction() {
	globalManager.cacheEvictions.Inc()
}

// RecordCacheWriteError increments the cache write failure counter.
func RecordCacheWriteError() {
	globalManager.cacheWriteErrors.Inc()
}

// Rate Limiter Metrics Functions.

// RecordRateLimitAllowed increments the admitted operations counter.
func RecordRateLimitAllowed(operation string) {
	globalManager.rateLimitAllowed.WithLabelValues(operation).Inc()
}

// RecordRateLimitDenied increments the denied operations counter.
func RecordRateLimitDenied(operation string) {
	globalManager.rateLimitDenied.WithLabelValues(operation).Inc()
}

// RecordRateLimitFailOpen increments the fail-open counter.
func RecordRateLimitFailOpen(operation string) {
	globalManager.rateLimitFailOpen.WithLabelValues(operation).Inc()
}

// Circuit Breaker Metrics Functions.

// UpdateBreakerState sets the breaker state gauge (0=closed, 1=open, 2=half-open).
func UpdateBreakerState(operation string, state int) {
	globalManager.breakerState.WithLabelValues(operation).Set(float64(state))
}

// RecordBreakerTransition increments the transition counter.
func RecordBreakerTransition(operation, to string) {
	globalManager.breakerTransitions.WithLabelValues(operation, to).Inc()
}

// RecordBreakerRejection increments the open-circuit rejection counter.
func RecordBreakerRejection(operation string) {
	globalManager.breakerRejections.WithLabelValues(operation).Inc()
}

// Store Metrics Functions.

// RecordStoreOpLatency records a store operation latency.
func RecordStoreOpLatency(op string, latencyMs float64) {
	globalManager.storeOpLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordStoreOpError increments the store error counter.
func RecordStoreOpError(op, code string) {
	globalManager.storeOpErrors.WithLabelValues(op, code).Inc()
}

// RecordStoreRetry increments the retried operation counter.
func RecordStoreRetry() {
	globalManager.storeRetries.Inc()
}

// Queue/Worker Metrics Functions.

// UpdateQueueSize sets the current side-effect queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the side-effect queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueueError increments the dropped-task counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the side-effect worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordSideEffect increments the dispatched side-effect counter.
func RecordSideEffect(kind string) {
	globalManager.sideEffectsTotal.WithLabelValues(kind).Inc()
}

// RecordSideEffectFailure increments the failed side-effect counter.
func RecordSideEffectFailure(kind string) {
	globalManager.sideEffectFailures.WithLabelValues(kind).Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
