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

// RequestDependencies defines the interface for service request intake.
type RequestDependencies interface {
	CreateRequest(ctx context.Context, r model.ServiceRequest) (string, error)
}

// RequestHandler handles service request intake.
type RequestHandler struct {
	deps RequestDependencies
}

// NewRequestHandler creates a new request handler.
func NewRequestHandler(deps RequestDependencies) *RequestHandler {
	return &RequestHandler{deps: deps}
}

// serviceRequestBody mirrors the wire schema for POST /requests.
type serviceRequestBody struct {
	CustomerID     string  `json:"customer_id"`
	ServiceType    string  `json:"service_type"`
	VehiclePlate   string  `json:"vehicle_plate"`
	VehicleBrand   string  `json:"vehicle_brand"`
	VehicleMileage float64 `json:"vehicle_mileage"`
}

func (b serviceRequestBody) validate() error {
	switch {
	case strings.TrimSpace(b.CustomerID) == "":
		return errors.New("missing customer_id")
	case strings.TrimSpace(b.ServiceType) == "":
		return errors.New("missing service_type")
	}
	return nil
}

// HandlePostRequest handles POST /requests requests.
func (h *RequestHandler) HandlePostRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var body serviceRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := body.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	id, err := h.deps.CreateRequest(r.Context(), model.ServiceRequest{
		CustomerID:     body.CustomerID,
		ServiceType:    body.ServiceType,
		VehiclePlate:   body.VehiclePlate,
		VehicleBrand:   body.VehicleBrand,
		VehicleMileage: body.VehicleMileage,
	})
	if err != nil {
		translateError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}
