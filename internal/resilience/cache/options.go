package cache

import "time"

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithTTL sets the maximum age before an entry is considered stale.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCollection overrides the backing collection name.
func WithCollection(name string) Option {
	return func(c *Cache) {
		if name != "" {
			c.collection = name
		}
	}
}

// WithNow replaces the clock (used by tests).
func WithNow(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}
