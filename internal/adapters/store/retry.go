package store

import (
	"context"
	"math/rand"
	"time"

	"github.com/okian/pitstop/pkg/logger"
	"github.com/okian/pitstop/pkg/metrics"
)

// Default retry configuration constants.
const (
	defaultMaxAttempts = 4
	defaultBaseDelay   = 50 * time.Millisecond
	defaultMaxDelay    = 2 * time.Second
)

// Retry runs transient-failing store operations with exponential backoff
// and jitter. Non-transient errors abort immediately.
type Retry struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	// sleep is swappable so tests run without wall-clock delays.
	sleep func(ctx context.Context, d time.Duration) error

	logger logger.Logger
}

// RetryOption applies a configuration option to Retry.
type RetryOption func(*Retry)

// WithMaxAttempts bounds the number of attempts (including the first).
func WithMaxAttempts(n int) RetryOption {
	return func(r *Retry) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithBackoff sets the base and maximum backoff delays.
func WithBackoff(base, maxDelay time.Duration) RetryOption {
	return func(r *Retry) {
		if base > 0 && maxDelay >= base {
			r.baseDelay = base
			r.maxDelay = maxDelay
		}
	}
}

// WithSleep replaces the sleep function (used by tests).
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(r *Retry) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// NewRetry creates a Retry with default configuration.
func NewRetry(opts ...RetryOption) *Retry {
	r := &Retry{
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		sleep:       sleepContext,
		logger:      logger.Get().Named("retry"),
	}

	// Apply all options
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Do invokes fn until it succeeds, fails non-transiently, or attempts run out.
func (r *Retry) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			metrics.RecordStoreRetry()
			delay := r.backoff(attempt)
			r.logger.Warn(ctx, "retrying store operation",
				logger.String("op", op),
				logger.Int("attempt", attempt),
				logger.Duration("backoff", delay),
				logger.Error(err),
			)
			if serr := r.sleep(ctx, delay); serr != nil {
				return serr
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
	}
	return err
}

// backoff computes the delay before the given attempt: exponential growth
// capped at maxDelay, with full jitter to spread concurrent retries.
func (r *Retry) backoff(attempt int) time.Duration {
	d := r.baseDelay << (attempt - 1)
	if d > r.maxDelay || d <= 0 {
		d = r.maxDelay
	}
	// Jitter in [d/2, d).
	half := int64(d) / 2
	return time.Duration(half + rand.Int63n(half+1)) //nolint:gosec // jitter does not need crypto randomness
}

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
