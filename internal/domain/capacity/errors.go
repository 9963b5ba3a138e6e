package capacity

import "errors"

// ErrRateLimited signals the computation was denied by the limiter and no
// cached snapshot was available to serve instead.
var ErrRateLimited = errors.New("capacity calculation rate limited")
