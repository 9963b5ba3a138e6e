// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/pitstop/internal/domain/model"
)

// TechnicianDependencies defines the interface for technician registration.
type TechnicianDependencies interface {
	CreateTechnician(ctx context.Context, t model.Technician) (string, error)
}

// TechnicianHandler handles technician registration requests.
type TechnicianHandler struct {
	deps TechnicianDependencies
}

// NewTechnicianHandler creates a new technician handler.
func NewTechnicianHandler(deps TechnicianDependencies) *TechnicianHandler {
	return &TechnicianHandler{deps: deps}
}

// technicianRequest mirrors the wire schema for POST /technicians.
type technicianRequest struct {
	Name       string   `json:"name"`
	Skills     []string `json:"skills"`
	Available  bool     `json:"available"`
	Rating     float64  `json:"rating"`
	HourlyRate float64  `json:"hourly_rate"`
}

func (t technicianRequest) validate() error {
	switch {
	case strings.TrimSpace(t.Name) == "":
		return errors.New("missing name")
	case t.Rating < 0 || t.Rating > 5:
		return errors.New("rating must be between 0 and 5")
	}
	return nil
}

type createdResponse struct {
	ID string `json:"id"`
}

// HandlePostTechnician handles POST /technicians requests.
func (h *TechnicianHandler) HandlePostTechnician(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req technicianRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	id, err := h.deps.CreateTechnician(r.Context(), model.Technician{
		Name:       req.Name,
		Skills:     req.Skills,
		Available:  req.Available,
		Rating:     req.Rating,
		HourlyRate: req.HourlyRate,
	})
	if err != nil {
		translateError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}
