package ratelimit

import "time"

// Option applies a configuration option to the Limiter.
type Option func(*Limiter)

// WithWindow sets the fixed window length. Buckets are derived from Unix
// seconds, so windows shorter than one second are ignored.
func WithWindow(window time.Duration) Option {
	return func(l *Limiter) {
		if window >= time.Second {
			l.window = window
		}
	}
}

// WithLimit sets the per-window cap.
func WithLimit(limit int) Option {
	return func(l *Limiter) {
		if limit > 0 {
			l.limit = limit
		}
	}
}

// WithCollection overrides the backing collection name.
func WithCollection(name string) Option {
	return func(l *Limiter) {
		if name != "" {
			l.collection = name
		}
	}
}

// WithNow replaces the clock (used by tests).
func WithNow(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}
