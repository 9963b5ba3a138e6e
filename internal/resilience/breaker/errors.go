package breaker

import "errors"

// Sentinel kinds for breaker errors.
var (
	// ErrCircuitOpen signals the breaker rejected the call without
	// invoking the operation. Callers fall back to cache if they can.
	ErrCircuitOpen = errors.New("circuit open")
)
