// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/pitstop/internal/domain/model"
)

// CapacityDependencies defines the interface for capacity reads.
type CapacityDependencies interface {
	Capacity(ctx context.Context) (model.CapacitySnapshot, error)
}

// CapacityHandler handles capacity requests.
type CapacityHandler struct {
	deps CapacityDependencies
}

// NewCapacityHandler creates a new capacity handler.
func NewCapacityHandler(deps CapacityDependencies) *CapacityHandler {
	return &CapacityHandler{deps: deps}
}

// HandleGetCapacity handles GET /capacity requests.
func (h *CapacityHandler) HandleGetCapacity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	snap, err := h.deps.Capacity(r.Context())
	if err != nil {
		translateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
