// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/pitstop/internal/domain/assignment"
)

// AssignDependencies defines the interface for assignment operations.
type AssignDependencies interface {
	Assign(ctx context.Context, requestID string) (assignment.Result, error)
}

// AssignHandler handles assignment requests.
type AssignHandler struct {
	deps AssignDependencies
}

// NewAssignHandler creates a new assignment handler.
func NewAssignHandler(deps AssignDependencies) *AssignHandler {
	return &AssignHandler{deps: deps}
}

// HandlePostAssignment handles POST /assignments/{request_id} requests.
func (h *AssignHandler) HandlePostAssignment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	// Extract path parameter after /assignments/
	path := strings.TrimPrefix(r.URL.Path, "/assignments/")
	if path == "" || strings.Contains(path, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	result, err := h.deps.Assign(r.Context(), path)
	if err != nil {
		translateError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
