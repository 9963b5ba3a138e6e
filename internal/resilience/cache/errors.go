package cache

import "errors"

// Sentinel kinds for cache errors.
var (
	// ErrCacheWrite signals a failed cache population. Reads never error;
	// they degrade to a miss.
	ErrCacheWrite = errors.New("cache write failed")
)
