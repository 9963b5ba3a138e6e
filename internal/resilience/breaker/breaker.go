// Package breaker provides per-operation circuit breakers isolating the
// engine from a failing backing store. Breaker state is process-local by
// design: replicated instances trip and recover independently, which is a
// known scaling limitation rather than something to paper over here.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/pitstop/pkg/logger"
	"github.com/okian/pitstop/pkg/metrics"
)

// State enumerates circuit breaker states.
type State int

// Breaker states.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Default breaker configuration constants.
const (
	defaultFailureThreshold = 3
	defaultRecoveryTimeout  = 30 * time.Second
)

// Breaker guards one named operation.
type Breaker struct {
	mu sync.Mutex

	name             string
	state            State
	failures         int
	failureThreshold int
	recoveryTimeout  time.Duration
	openedAt         time.Time
	lastFailureAt    time.Time

	// Single-trial gate for HalfOpen: concurrent callers must not pile
	// onto a dependency that is still being probed.
	trialInFlight bool

	// now is swappable so tests control the clock.
	now func() time.Time

	logger logger.Logger
}

// NewBreaker creates a breaker for the named operation.
func NewBreaker(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: defaultFailureThreshold,
		recoveryTimeout:  defaultRecoveryTimeout,
		now:              time.Now,
		logger:           logger.Get().Named("breaker"),
	}

	// Apply all options
	for _, opt := range opts {
		opt(b)
	}

	metrics.UpdateBreakerState(name, int(StateClosed))
	return b
}

// Execute runs fn under the breaker. While Open and unexpired it returns
// ErrCircuitOpen without invoking fn.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		metrics.RecordBreakerRejection(b.name)
		return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	}

	err := fn(ctx)
	b.record(ctx, err)
	return err
}

// allow decides whether a call may proceed, handling Open->HalfOpen expiry
// and the HalfOpen single-trial gate.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.recoveryTimeout {
			return false
		}
		b.transitionLocked(StateHalfOpen)
		b.trialInFlight = true
		return true
	case StateHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	}
	return false
}

// record applies the call outcome to the state machine.
func (b *Breaker) record(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.trialInFlight = false
		if err != nil {
			// Failed trial: reopen and reset the recovery clock.
			b.lastFailureAt = b.now()
			b.openedAt = b.now()
			b.transitionLocked(StateOpen)
			b.logger.Warn(ctx, "recovery trial failed, reopening circuit",
				logger.String("operation", b.name),
				logger.Error(err),
			)
			return
		}
		b.failures = 0
		b.transitionLocked(StateClosed)
		b.logger.Info(ctx, "circuit recovered",
			logger.String("operation", b.name),
		)
		return
	}

	if err == nil {
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailureAt = b.now()
	if b.state == StateClosed && b.failures >= b.failureThreshold {
		b.openedAt = b.now()
		b.transitionLocked(StateOpen)
		b.logger.Warn(ctx, "failure threshold reached, opening circuit",
			logger.String("operation", b.name),
			logger.Int("failures", b.failures),
			logger.Error(err),
		)
	}
}

// transitionLocked updates state and metrics. Caller holds b.mu.
func (b *Breaker) transitionLocked(to State) {
	b.state = to
	metrics.UpdateBreakerState(b.name, int(to))
	metrics.RecordBreakerTransition(b.name, to.String())
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Registry owns one breaker per operation name. It belongs to the
// composition root so tests and multi-tenant deployments never share state
// through package globals.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	defaults  []Option
	overrides map[string][]Option
}

// NewRegistry creates a Registry whose breakers default to opts.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		breakers:  make(map[string]*Breaker),
		defaults:  opts,
		overrides: make(map[string][]Option),
	}
}

// Configure sets per-operation options applied on top of the defaults.
func (r *Registry) Configure(name string, opts ...Option) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = opts
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	opts := make([]Option, 0, len(r.defaults)+len(r.overrides[name]))
	opts = append(opts, r.defaults...)
	opts = append(opts, r.overrides[name]...)
	b := NewBreaker(name, opts...)
	r.breakers[name] = b
	return b
}

// Execute runs fn under the breaker registered for name.
func (r *Registry) Execute(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return r.Get(name).Execute(ctx, fn)
}

// States returns a snapshot of all breaker states for monitoring.
func (r *Registry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State().String()
	}
	return out
}
