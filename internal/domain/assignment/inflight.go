package assignment

import "sync"

// inflightGuard tracks request ids currently being assigned in this
// process, so a request can never gain two engine-produced work orders
// through concurrent calls. Cross-instance protection comes from the
// assigned-status check against the store.
type inflightGuard struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

func newInflightGuard() *inflightGuard {
	return &inflightGuard{
		pending: make(map[string]struct{}),
	}
}

// begin atomically claims id. Returns false if id is already claimed.
func (g *inflightGuard) begin(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.pending[id]; exists {
		return false
	}
	g.pending[id] = struct{}{}
	return true
}

// end releases id, allowing it to be retried.
func (g *inflightGuard) end(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, id)
}

// size returns the number of in-flight assignments.
func (g *inflightGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
