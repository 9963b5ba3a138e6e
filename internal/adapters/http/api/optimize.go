// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/pitstop/internal/domain/optimizer"
)

// OptimizeDependencies defines the interface for on-demand rebalancing.
type OptimizeDependencies interface {
	Optimize(ctx context.Context) (optimizer.Result, error)
}

// OptimizeHandler handles optimize requests.
type OptimizeHandler struct {
	deps OptimizeDependencies
}

// NewOptimizeHandler creates a new optimize handler.
func NewOptimizeHandler(deps OptimizeDependencies) *OptimizeHandler {
	return &OptimizeHandler{deps: deps}
}

// HandlePostOptimize handles POST /optimize requests.
func (h *OptimizeHandler) HandlePostOptimize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	result, err := h.deps.Optimize(r.Context())
	if err != nil {
		translateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
