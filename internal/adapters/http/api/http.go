// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/pitstop/internal/adapters/store"
	"github.com/okian/pitstop/internal/domain/assignment"
	"github.com/okian/pitstop/internal/domain/capacity"
	"github.com/okian/pitstop/internal/domain/model"
	"github.com/okian/pitstop/internal/domain/optimizer"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Assign runs the scoring workflow for a pending request.
	Assign(ctx context.Context, requestID string) (assignment.Result, error)

	// Capacity returns the current shop capacity snapshot.
	Capacity(ctx context.Context) (model.CapacitySnapshot, error)

	// Optimize runs one on-demand rebalancing pass.
	Optimize(ctx context.Context) (optimizer.Result, error)

	// Intake operations used by the seeder and external collaborators.
	CreateTechnician(ctx context.Context, t model.Technician) (string, error)
	CreateRequest(ctx context.Context, r model.ServiceRequest) (string, error)

	// BreakerStates reports each circuit's current state.
	BreakerStates() map[string]string
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	assignHandler     *AssignHandler
	capacityHandler   *CapacityHandler
	optimizeHandler   *OptimizeHandler
	technicianHandler *TechnicianHandler
	requestHandler    *RequestHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		assignHandler:     NewAssignHandler(deps),
		capacityHandler:   NewCapacityHandler(deps),
		optimizeHandler:   NewOptimizeHandler(deps),
		technicianHandler: NewTechnicianHandler(deps),
		requestHandler:    NewRequestHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metricz", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/assignments/", MetricsMiddleware(s.assignHandler.HandlePostAssignment, "assignments"))
	mux.HandleFunc("/capacity", MetricsMiddleware(s.capacityHandler.HandleGetCapacity, "capacity"))
	mux.HandleFunc("/optimize", MetricsMiddleware(s.optimizeHandler.HandlePostOptimize, "optimize"))
	mux.HandleFunc("/technicians", MetricsMiddleware(s.technicianHandler.HandlePostTechnician, "technicians"))
	mux.HandleFunc("/requests", MetricsMiddleware(s.requestHandler.HandlePostRequest, "requests"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// translateError maps domain and store errors onto HTTP responses so every
// handler reports the same status for the same condition.
func translateError(w http.ResponseWriter, err error) {
	switch {
	case store.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, assignment.ErrNoTechnicianAvailable):
		writeError(w, http.StatusConflict, "no_technicians_available", err)
	case errors.Is(err, assignment.ErrAlreadyAssigned):
		writeError(w, http.StatusConflict, "already_assigned", err)
	case errors.Is(err, assignment.ErrAssignmentInFlight):
		writeError(w, http.StatusConflict, "assignment_in_flight", err)
	case errors.Is(err, capacity.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", err)
	case errors.Is(err, store.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, "invalid_document", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
