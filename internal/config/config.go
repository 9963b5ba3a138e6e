// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults, Load(ctx) to layer in
//   file and environment overrides.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// CacheTTLSeconds bounds how long memoized read results stay fresh.
	CacheTTLSeconds int `koanf:"cache_ttl_seconds"`

	// RateWindowSeconds and RateLimit shape the fixed-window limiter.
	RateWindowSeconds int `koanf:"rate_window_seconds"`
	RateLimit         int `koanf:"rate_limit"`

	// BreakerThreshold is the consecutive-failure count that opens a
	// circuit; BreakerRecoverySeconds is the open-state cooldown.
	BreakerThreshold       int `koanf:"breaker_threshold"`
	BreakerRecoverySeconds int `koanf:"breaker_recovery_seconds"`

	// OptimizeIntervalSeconds spaces periodic rebalancing passes. Zero
	// disables the background optimizer.
	OptimizeIntervalSeconds int `koanf:"optimize_interval_seconds"`

	// CapacityRefreshSeconds spaces background capacity snapshots. Zero
	// disables the refresher.
	CapacityRefreshSeconds int `koanf:"capacity_refresh_seconds"`

	// MaxConcurrentPerTech is how many jobs one technician can hold at once.
	MaxConcurrentPerTech int `koanf:"max_concurrent_per_tech"`

	// StoreTimeoutSeconds bounds individual document store calls.
	StoreTimeoutSeconds int `koanf:"store_timeout_seconds"`

	// QueueCapacity bounds the in-memory side-effect queue.
	QueueCapacity int `koanf:"queue_capacity"`

	// WorkerCount sets the number of side-effect workers.
	WorkerCount int `koanf:"worker_count"`

	// RequiredSkills maps service type to the skills an eligible
	// technician must cover for it.
	RequiredSkills map[string][]string `koanf:"required_skills"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		Addr:                    ":9080",
		CacheTTLSeconds:         300,
		RateWindowSeconds:       60,
		RateLimit:               10,
		BreakerThreshold:        3,
		BreakerRecoverySeconds:  30,
		OptimizeIntervalSeconds: 300,
		CapacityRefreshSeconds:  60,
		MaxConcurrentPerTech:    5,
		StoreTimeoutSeconds:     5,
		QueueCapacity:           10_000,
		WorkerCount:             runtime.NumCPU() * 2,
		RequiredSkills: map[string][]string{
			"oil_change":         {"maintenance"},
			"brake_service":      {"brakes"},
			"engine_diagnostics": {"diagnostics", "engine"},
			"tire_rotation":      {"maintenance"},
			"transmission":       {"transmission", "diagnostics"},
		},
	}
}

// CacheTTL returns the cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// RateWindow returns the limiter window as a duration.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSeconds) * time.Second
}

// BreakerRecovery returns the breaker cooldown as a duration.
func (c *Config) BreakerRecovery() time.Duration {
	return time.Duration(c.BreakerRecoverySeconds) * time.Second
}

// OptimizeInterval returns the optimizer cadence as a duration.
func (c *Config) OptimizeInterval() time.Duration {
	return time.Duration(c.OptimizeIntervalSeconds) * time.Second
}

// CapacityRefresh returns the capacity refresher cadence as a duration.
func (c *Config) CapacityRefresh() time.Duration {
	return time.Duration(c.CapacityRefreshSeconds) * time.Second
}

// StoreTimeout returns the per-call store timeout as a duration.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}
