// Package assignment selects a technician for each new service request,
// persists the resulting work order, and triggers downstream side effects.
package assignment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/pitstop/internal/adapters/mq/queue"
	"github.com/okian/pitstop/internal/adapters/store"
	"github.com/okian/pitstop/internal/domain/model"
	"github.com/okian/pitstop/internal/domain/scoring"
	"github.com/okian/pitstop/internal/notify"
	"github.com/okian/pitstop/internal/resilience/breaker"
	"github.com/okian/pitstop/pkg/logger"
	"github.com/okian/pitstop/pkg/metrics"
)

// Breaker operation names owned by the engine.
const (
	opAssignmentRead  = "assignment_read"
	opAssignmentWrite = "assignment_write"
)

// Default engine configuration constants.
const (
	defaultStoreTimeout = 5 * time.Second

	// degradedActiveAssignments and degradedHoursSince are the safe
	// defaults when a per-technician stat read fails: assume idle but
	// recently assigned, so a blind spot neither starves nor floods anyone.
	degradedActiveAssignments = 0
	degradedHoursSince        = 24.0
)

// TaskQueue is how the engine hands off fire-and-forget side effects.
type TaskQueue interface {
	Enqueue(ctx context.Context, t queue.Task) bool
}

// AuditLog records assignment outcomes.
type AuditLog interface {
	Write(ctx context.Context, e notify.AuditEvent) error
}

// Result is a committed assignment outcome.
type Result struct {
	RequestID    string                  `json:"request_id"`
	TechnicianID string                  `json:"technician_id"`
	WorkOrderID  string                  `json:"work_order_id"`
	Scores       []model.TechnicianScore `json:"scores"`
}

// Engine implements the assignment workflow against the shared store.
type Engine struct {
	store    store.DocumentStore
	retry    *store.Retry
	breakers *breaker.Registry
	tasks    TaskQueue
	audit    AuditLog
	guard    *inflightGuard

	requiredSkills map[string][]string
	storeTimeout   time.Duration

	// now is swappable so tests control the clock.
	now func() time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithRequiredSkills maps service types to the skills they require.
// Unmapped service types require the service type itself as a skill.
func WithRequiredSkills(m map[string][]string) Option {
	return func(e *Engine) {
		if m != nil {
			e.requiredSkills = m
		}
	}
}

// WithStoreTimeout bounds each store call issued by the engine.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.storeTimeout = d
		}
	}
}

// WithRetry replaces the store retry policy.
func WithRetry(r *store.Retry) Option {
	return func(e *Engine) {
		if r != nil {
			e.retry = r
		}
	}
}

// WithNow replaces the clock (used by tests).
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Engine over the given collaborators.
func New(st store.DocumentStore, breakers *breaker.Registry, tasks TaskQueue, audit AuditLog, opts ...Option) *Engine {
	e := &Engine{
		store:          st,
		retry:          store.NewRetry(),
		breakers:       breakers,
		tasks:          tasks,
		audit:          audit,
		guard:          newInflightGuard(),
		requiredSkills: make(map[string][]string),
		storeTimeout:   defaultStoreTimeout,
		now:            time.Now,
		logger:         logger.Get().Named("assignment"),
	}

	// Apply all options
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Assign selects a technician for the request, creates the work order, and
// marks the request assigned. Returns ErrNoTechnicianAvailable when the
// eligible set is empty.
func (e *Engine) Assign(ctx context.Context, requestID string) (Result, error) {
	if !e.guard.begin(requestID) {
		return Result{}, fmt.Errorf("request %s: %w", requestID, ErrAssignmentInFlight)
	}
	defer e.guard.end(requestID)

	request, err := e.loadRequest(ctx, requestID)
	if err != nil {
		return Result{}, err
	}
	if request.WorkOrderID != "" || request.Status == model.RequestAssigned {
		return Result{}, fmt.Errorf("request %s: %w", requestID, ErrAlreadyAssigned)
	}

	eligible, err := e.eligibleTechnicians(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(eligible) == 0 {
		return Result{}, e.handleNoTechnicians(ctx, requestID)
	}

	scores := e.scoreCandidates(ctx, request, eligible)
	winner := scores[0]

	workOrderID, err := e.persist(ctx, request, winner.TechnicianID)
	if err != nil {
		metrics.RecordAssignmentFailure()
		return Result{}, err
	}

	result := Result{
		RequestID:    requestID,
		TechnicianID: winner.TechnicianID,
		WorkOrderID:  workOrderID,
		Scores:       scores,
	}
	e.fireSideEffects(ctx, request, result)

	metrics.RecordAssignment()
	e.logger.Info(ctx, "request assigned",
		logger.String("request_id", requestID),
		logger.String("technician_id", winner.TechnicianID),
		logger.String("work_order_id", workOrderID),
		logger.Float64("score", winner.Total),
	)
	return result, nil
}

// loadRequest fetches and decodes the service request.
func (e *Engine) loadRequest(ctx context.Context, requestID string) (model.ServiceRequest, error) {
	var doc store.Document
	err := e.breakers.Execute(ctx, opAssignmentRead, func(ctx context.Context) error {
		return e.retry.Do(ctx, "request_get", func(ctx context.Context) error {
			tctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
			defer cancel()
			var gerr error
			doc, gerr = e.store.Get(tctx, model.CollectionRequests, requestID)
			return gerr
		})
	})
	if err != nil {
		return model.ServiceRequest{}, fmt.Errorf("loading request %s: %w", requestID, err)
	}
	return model.ServiceRequestFromDoc(doc)
}

// eligibleTechnicians returns available technicians holding at least one skill.
func (e *Engine) eligibleTechnicians(ctx context.Context) ([]model.Technician, error) {
	var docs []store.Document
	err := e.breakers.Execute(ctx, opAssignmentRead, func(ctx context.Context) error {
		return e.retry.Do(ctx, "technician_query", func(ctx context.Context) error {
			tctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
			defer cancel()
			var qerr error
			docs, qerr = e.store.Query(tctx, model.CollectionTechnicians, []store.Filter{
				store.Eq("available", true),
			})
			return qerr
		})
	})
	if err != nil {
		return nil, fmt.Errorf("querying technicians: %w", err)
	}

	eligible := make([]model.Technician, 0, len(docs))
	for _, doc := range docs {
		tech, derr := model.TechnicianFromDoc(doc)
		if derr != nil {
			// One malformed profile must not block every assignment.
			e.logger.Warn(ctx, "skipping malformed technician document",
				logger.String("technician_id", doc.ID),
				logger.Error(derr),
			)
			continue
		}
		if tech.Eligible() {
			eligible = append(eligible, tech)
		}
	}
	return eligible, nil
}

// handleNoTechnicians records the defined no-technician outcome: exactly
// one audit event plus a manual-fallback notification.
func (e *Engine) handleNoTechnicians(ctx context.Context, requestID string) error {
	metrics.RecordNoTechnicianOutcome()

	if err := e.audit.Write(ctx, notify.AuditEvent{
		Kind:      notify.AuditNoTechnician,
		RequestID: requestID,
		Reason:    notify.AuditNoTechnician,
	}); err != nil {
		e.logger.Warn(ctx, "failed to record no-technician audit event",
			logger.String("request_id", requestID),
			logger.Error(err),
		)
	}
	if !e.tasks.Enqueue(ctx, notify.ManualFallbackTask(requestID)) {
		e.logger.Warn(ctx, "failed to enqueue manual fallback notification",
			logger.String("request_id", requestID),
		)
	}
	return fmt.Errorf("request %s: %w", requestID, ErrNoTechnicianAvailable)
}

// candidateStats are the per-technician inputs gathered before scoring.
type candidateStats struct {
	activeAssignments int
	hoursSinceLast    float64
}

// scoreCandidates gathers stats concurrently, scores every candidate, and
// returns the scores sorted best-first with a deterministic tie-break.
func (e *Engine) scoreCandidates(ctx context.Context, request model.ServiceRequest, eligible []model.Technician) []model.TechnicianScore {
	start := time.Now()
	defer func() {
		metrics.RecordScoringLatency(float64(time.Since(start).Milliseconds()))
		metrics.RecordCandidatesScored(len(eligible))
	}()

	// Stat reads for different technicians are independent; issue them
	// concurrently and let each one degrade on its own.
	stats := make([]candidateStats, len(eligible))
	var wg sync.WaitGroup
	for i := range eligible {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stats[i] = e.gatherStats(ctx, eligible[i].ID)
		}(i)
	}
	wg.Wait()

	required := e.skillsFor(request.ServiceType)
	scores := make([]model.TechnicianScore, len(eligible))
	for i, tech := range eligible {
		scores[i] = scoring.Score(scoring.Input{
			Technician:               tech,
			RequiredSkills:           required,
			Vehicle:                  request.Vehicle(),
			ActiveAssignments:        stats[i].activeAssignments,
			HoursSinceLastAssignment: stats[i].hoursSinceLast,
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Total != scores[j].Total {
			return scores[i].Total > scores[j].Total
		}
		// Tie: prefer the lower rotation score, then the lower id.
		if scores[i].Breakdown.Rotation != scores[j].Breakdown.Rotation {
			return scores[i].Breakdown.Rotation < scores[j].Breakdown.Rotation
		}
		return scores[i].TechnicianID < scores[j].TechnicianID
	})
	return scores
}

// gatherStats reads workload and recency for one technician. Each read
// degrades to a safe default on failure; a stat blind spot must never
// abort the whole assignment.
func (e *Engine) gatherStats(ctx context.Context, technicianID string) candidateStats {
	stats := candidateStats{
		activeAssignments: degradedActiveAssignments,
		hoursSinceLast:    degradedHoursSince,
	}

	tctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	active, err := e.store.Query(tctx, model.CollectionWorkOrders, []store.Filter{
		store.Eq("technician_id", technicianID),
		{Field: "status", Op: store.OpIn, Value: model.ActiveWorkOrderStatuses()},
	})
	if err != nil {
		e.logger.Warn(ctx, "active assignment count unavailable, degrading to default",
			logger.String("technician_id", technicianID),
			logger.Error(err),
		)
	} else {
		stats.activeAssignments = len(active)
	}

	latest, err := e.store.Query(tctx, model.CollectionWorkOrders, []store.Filter{
		store.Eq("technician_id", technicianID),
	}, store.WithOrderBy("created_at", true), store.WithLimit(1))
	switch {
	case err != nil:
		e.logger.Warn(ctx, "last assignment time unavailable, degrading to default",
			logger.String("technician_id", technicianID),
			logger.Error(err),
		)
	case len(latest) == 0:
		stats.hoursSinceLast = scoring.NoPriorAssignmentHours
	default:
		if wo, derr := model.WorkOrderFromDoc(latest[0]); derr == nil && !wo.CreatedAt.IsZero() {
			stats.hoursSinceLast = e.now().Sub(wo.CreatedAt).Hours()
		}
	}
	return stats
}

// skillsFor resolves the required skills for a service type.
func (e *Engine) skillsFor(serviceType string) []string {
	if skills, ok := e.requiredSkills[serviceType]; ok {
		return skills
	}
	if serviceType == "" {
		return nil
	}
	return []string{serviceType}
}

// persist creates the work order first, then marks the request assigned.
// The ordering is deliberate: a crash between the two writes leaves an
// unassigned-looking request with a dangling work order, never an
// assigned-looking request with no work order behind it.
func (e *Engine) persist(ctx context.Context, request model.ServiceRequest, technicianID string) (string, error) {
	order := model.WorkOrder{
		RequestID:    request.ID,
		TechnicianID: technicianID,
		Status:       model.WorkOrderOpen,
		CreatedAt:    e.now(),
	}

	var workOrderID string
	err := e.breakers.Execute(ctx, opAssignmentWrite, func(ctx context.Context) error {
		return e.retry.Do(ctx, "work_order_add", func(ctx context.Context) error {
			tctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
			defer cancel()
			var aerr error
			workOrderID, aerr = e.store.Add(tctx, model.CollectionWorkOrders, order.Fields())
			return aerr
		})
	})
	if err != nil {
		return "", fmt.Errorf("creating work order for request %s: %w", request.ID, err)
	}

	err = e.breakers.Execute(ctx, opAssignmentWrite, func(ctx context.Context) error {
		return e.retry.Do(ctx, "request_update", func(ctx context.Context) error {
			tctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
			defer cancel()
			return e.store.Update(tctx, model.CollectionRequests, request.ID, map[string]any{
				"status":        model.RequestAssigned,
				"assigned_to":   technicianID,
				"work_order_id": workOrderID,
			})
		})
	})
	if err != nil {
		// The work order exists but the request does not reference it.
		// Flag the request for manual retry so it is never silently orphaned.
		e.flagAssignmentFailed(ctx, request.ID, workOrderID)
		return "", fmt.Errorf("updating request %s after work order %s: %w", request.ID, workOrderID, err)
	}
	return workOrderID, nil
}

// flagAssignmentFailed best-effort marks the request for manual remediation.
func (e *Engine) flagAssignmentFailed(ctx context.Context, requestID, workOrderID string) {
	tctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	if err := e.store.Update(tctx, model.CollectionRequests, requestID, map[string]any{
		"status": model.RequestAssignmentFailed,
	}); err != nil {
		e.logger.Error(ctx, "failed to flag request for manual retry",
			logger.String("request_id", requestID),
			logger.String("work_order_id", workOrderID),
			logger.Error(err),
		)
	}
	if err := e.audit.Write(ctx, notify.AuditEvent{
		Kind:        notify.AuditAssignmentFail,
		RequestID:   requestID,
		WorkOrderID: workOrderID,
		Reason:      "request update failed after work order creation",
	}); err != nil {
		e.logger.Warn(ctx, "failed to record assignment failure audit event",
			logger.String("request_id", requestID),
			logger.Error(err),
		)
	}
}

// fireSideEffects enqueues the post-commit notifications and audit write.
// Enqueue failures are logged and dropped; the assignment stands.
func (e *Engine) fireSideEffects(ctx context.Context, request model.ServiceRequest, result Result) {
	for _, task := range notify.AssignmentTasks(result.RequestID, request.CustomerID, result.TechnicianID, result.WorkOrderID, result.Scores) {
		if !e.tasks.Enqueue(ctx, task) {
			e.logger.Warn(ctx, "failed to enqueue side effect",
				logger.String("kind", task.Kind),
				logger.String("request_id", result.RequestID),
			)
		}
	}
}

// InFlight returns the number of assignments currently in progress.
func (e *Engine) InFlight() int {
	return e.guard.size()
}
