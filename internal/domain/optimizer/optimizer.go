// Package optimizer runs the periodic workload rebalancing pass: it moves
// open work orders away from overloaded technicians and places unassigned
// requests onto the least-loaded ones.
package optimizer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/pitstop/internal/adapters/store"
	"github.com/okian/pitstop/internal/domain/model"
	"github.com/okian/pitstop/internal/resilience/breaker"
	"github.com/okian/pitstop/pkg/logger"
	"github.com/okian/pitstop/pkg/metrics"
)

// Breaker operation name owned by the optimizer.
const opOptimizer = "optimizer"

// Default optimizer configuration constants.
const (
	defaultStoreTimeout = 10 * time.Second

	// Imbalance thresholds relative to the mean workload: above avg+1 is
	// overloaded, below avg-1 is underloaded, and fills may not push a
	// technician past avg+2.
	overloadDelta  = 1.0
	underloadDelta = 1.0
	fillHeadroom   = 2.0
)

// Result summarizes one optimizer pass for reporting collaborators.
type Result struct {
	Reassigned int `json:"reassigned"`
	Filled     int `json:"filled"`
}

// Optimizer rebalances workload across technicians.
type Optimizer struct {
	store    store.DocumentStore
	retry    *store.Retry
	breakers *breaker.Registry

	storeTimeout time.Duration

	logger logger.Logger
}

// Option applies a configuration option to the Optimizer.
type Option func(*Optimizer)

// WithStoreTimeout bounds each store call issued by the optimizer.
func WithStoreTimeout(d time.Duration) Option {
	return func(o *Optimizer) {
		if d > 0 {
			o.storeTimeout = d
		}
	}
}

// WithRetry replaces the store retry policy.
func WithRetry(r *store.Retry) Option {
	return func(o *Optimizer) {
		if r != nil {
			o.retry = r
		}
	}
}

// New creates an Optimizer over the given collaborators.
func New(st store.DocumentStore, breakers *breaker.Registry, opts ...Option) *Optimizer {
	o := &Optimizer{
		store:        st,
		retry:        store.NewRetry(),
		breakers:     breakers,
		storeTimeout: defaultStoreTimeout,
		logger:       logger.Get().Named("optimizer"),
	}

	// Apply all options
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// workloads tracks in-memory per-technician load for one pass. Counters are
// adjusted after each move instead of re-querying, which prevents
// oscillation within a single pass.
type workloads map[string]float64

// Optimize runs one rebalancing pass. Re-running on balanced data is a no-op.
func (o *Optimizer) Optimize(ctx context.Context) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.RecordOptimizerPassDuration(float64(time.Since(start).Milliseconds()))
	}()

	state, err := o.loadState(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(state.technicians) == 0 {
		return Result{}, nil
	}

	result := Result{
		Reassigned: o.rebalance(ctx, state),
		Filled:     o.fill(ctx, state),
	}

	metrics.RecordOptimizerReassigned(result.Reassigned)
	metrics.RecordOptimizerFilled(result.Filled)
	o.logger.Info(ctx, "optimizer pass complete",
		logger.Int("reassigned", result.Reassigned),
		logger.Int("filled", result.Filled),
	)
	return result, nil
}

// passState is everything one pass reads up front.
type passState struct {
	technicians map[string]model.Technician
	orders      []model.WorkOrder
	unassigned  []model.ServiceRequest
	load        workloads
	avg         float64
}

// loadState reads work orders, requests, and technicians through the breaker.
func (o *Optimizer) loadState(ctx context.Context) (*passState, error) {
	var (
		orderDocs   []store.Document
		requestDocs []store.Document
		techDocs    []store.Document
	)
	err := o.breakers.Execute(ctx, opOptimizer, func(ctx context.Context) error {
		return o.retry.Do(ctx, "optimizer_load", func(ctx context.Context) error {
			tctx, cancel := context.WithTimeout(ctx, o.storeTimeout)
			defer cancel()

			var lerr error
			orderDocs, lerr = o.store.Query(tctx, model.CollectionWorkOrders, []store.Filter{
				{Field: "status", Op: store.OpIn, Value: model.ActiveWorkOrderStatuses()},
			})
			if lerr != nil {
				return lerr
			}
			requestDocs, lerr = o.store.Query(tctx, model.CollectionRequests, []store.Filter{
				store.Eq("status", model.RequestPending),
			})
			if lerr != nil {
				return lerr
			}
			techDocs, lerr = o.store.Query(tctx, model.CollectionTechnicians, nil)
			return lerr
		})
	})
	if err != nil {
		return nil, fmt.Errorf("loading optimizer state: %w", err)
	}

	state := &passState{
		technicians: make(map[string]model.Technician, len(techDocs)),
		load:        make(workloads, len(techDocs)),
	}
	for _, doc := range techDocs {
		tech, derr := model.TechnicianFromDoc(doc)
		if derr != nil {
			o.logger.Warn(ctx, "skipping malformed technician document",
				logger.String("technician_id", doc.ID),
				logger.Error(derr),
			)
			continue
		}
		state.technicians[tech.ID] = tech
		state.load[tech.ID] = 0
	}

	for _, doc := range orderDocs {
		wo, derr := model.WorkOrderFromDoc(doc)
		if derr != nil {
			continue
		}
		state.orders = append(state.orders, wo)
		if _, ok := state.load[wo.TechnicianID]; ok {
			state.load[wo.TechnicianID]++
		}
	}
	for _, doc := range requestDocs {
		req, derr := model.ServiceRequestFromDoc(doc)
		if derr != nil {
			continue
		}
		if req.AssignedTo == "" {
			state.unassigned = append(state.unassigned, req)
			continue
		}
		// A soft-placed request (assigned, no work order yet) still loads
		// its technician.
		if req.WorkOrderID == "" {
			if _, ok := state.load[req.AssignedTo]; ok {
				state.load[req.AssignedTo]++
			}
		}
	}

	total := 0.0
	for _, v := range state.load {
		total += v
	}
	state.avg = total / float64(len(state.load))

	// Deterministic processing order for moves and fills.
	sort.Slice(state.orders, func(i, j int) bool {
		if state.orders[i].CreatedAt.Equal(state.orders[j].CreatedAt) {
			return state.orders[i].ID < state.orders[j].ID
		}
		return state.orders[i].CreatedAt.Before(state.orders[j].CreatedAt)
	})
	sort.Slice(state.unassigned, func(i, j int) bool {
		if state.unassigned[i].JoinedAt.Equal(state.unassigned[j].JoinedAt) {
			return state.unassigned[i].ID < state.unassigned[j].ID
		}
		return state.unassigned[i].JoinedAt.Before(state.unassigned[j].JoinedAt)
	})
	return state, nil
}

// rebalance greedily moves one open work order at a time from overloaded to
// underloaded technicians until no pair qualifies.
func (o *Optimizer) rebalance(ctx context.Context, state *passState) int {
	moved := 0
	stuck := make(map[string]struct{})  // technicians with no movable order
	failed := make(map[string]struct{}) // orders whose move already failed
	for {
		from := o.pickOverloaded(state, stuck)
		if from == "" {
			break
		}
		to := o.pickUnderloaded(state)
		if to == "" {
			break
		}

		order := o.pickOpenOrder(state, from, failed)
		if order == nil {
			// Only in-progress work left; this technician cannot shed load.
			stuck[from] = struct{}{}
			continue
		}

		if err := o.moveOrder(ctx, order, to); err != nil {
			// Best-effort batch: one failed move must not abort the rest.
			o.logger.Warn(ctx, "work order move failed, continuing",
				logger.String("work_order_id", order.ID),
				logger.String("from", from),
				logger.String("to", to),
				logger.Error(err),
			)
			failed[order.ID] = struct{}{}
			continue
		}

		order.TechnicianID = to
		state.load[from]--
		state.load[to]++
		moved++
	}
	return moved
}

// pickOverloaded returns the technician most above avg+1, ties by id.
func (o *Optimizer) pickOverloaded(state *passState, stuck map[string]struct{}) string {
	best := ""
	for id, load := range state.load {
		if load <= state.avg+overloadDelta {
			continue
		}
		if _, skip := stuck[id]; skip {
			continue
		}
		if best == "" || load > state.load[best] || (load == state.load[best] && id < best) {
			best = id
		}
	}
	return best
}

// pickUnderloaded returns the least-loaded available technician below
// avg-1, ties by id.
func (o *Optimizer) pickUnderloaded(state *passState) string {
	best := ""
	for id, load := range state.load {
		if load >= state.avg-underloadDelta {
			continue
		}
		if !state.technicians[id].Available {
			continue
		}
		if best == "" || load < state.load[best] || (load == state.load[best] && id < best) {
			best = id
		}
	}
	return best
}

// pickOpenOrder returns the oldest open (not yet started) work order owned
// by the technician, or nil.
func (o *Optimizer) pickOpenOrder(state *passState, technicianID string, failed map[string]struct{}) *model.WorkOrder {
	for i := range state.orders {
		wo := &state.orders[i]
		if _, skip := failed[wo.ID]; skip {
			continue
		}
		if wo.TechnicianID == technicianID && wo.Status == model.WorkOrderOpen {
			return wo
		}
	}
	return nil
}

// moveOrder reassigns one work order and, when known, its request. The two
// updates are independent; request update failure downgrades to a warning.
func (o *Optimizer) moveOrder(ctx context.Context, order *model.WorkOrder, to string) error {
	tctx, cancel := context.WithTimeout(ctx, o.storeTimeout)
	defer cancel()

	if err := o.store.Update(tctx, model.CollectionWorkOrders, order.ID, map[string]any{
		"technician_id": to,
	}); err != nil {
		return err
	}
	if order.RequestID != "" {
		if err := o.store.Update(tctx, model.CollectionRequests, order.RequestID, map[string]any{
			"assigned_to": to,
		}); err != nil {
			o.logger.Warn(ctx, "request reassignment update failed",
				logger.String("request_id", order.RequestID),
				logger.Error(err),
			)
		}
	}
	return nil
}

// fill places unassigned requests on the least-loaded technician unless it
// would push them past avg+2; unfillable requests are an optimization gap,
// not an error.
func (o *Optimizer) fill(ctx context.Context, state *passState) int {
	filled := 0
	for _, req := range state.unassigned {
		target := o.pickLeastLoaded(state)
		if target == "" || state.load[target]+1 > state.avg+fillHeadroom {
			metrics.RecordOptimizerGap()
			o.logger.Info(ctx, "request left unassigned: no technician with headroom",
				logger.String("request_id", req.ID),
			)
			continue
		}

		tctx, cancel := context.WithTimeout(ctx, o.storeTimeout)
		err := o.store.Update(tctx, model.CollectionRequests, req.ID, map[string]any{
			"assigned_to": target,
		})
		cancel()
		if err != nil {
			o.logger.Warn(ctx, "request fill failed, continuing",
				logger.String("request_id", req.ID),
				logger.String("technician_id", target),
				logger.Error(err),
			)
			continue
		}

		state.load[target]++
		filled++
	}
	return filled
}

// pickLeastLoaded returns the available technician with minimum workload,
// ties by id.
func (o *Optimizer) pickLeastLoaded(state *passState) string {
	best := ""
	for id := range state.load {
		if !state.technicians[id].Available {
			continue
		}
		if best == "" || state.load[id] < state.load[best] || (state.load[id] == state.load[best] && id < best) {
			best = id
		}
	}
	return best
}
