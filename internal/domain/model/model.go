// Package model contains domain models passed between layers, plus the
// codecs that map raw store documents onto them. Decoding validates at the
// boundary: malformed documents fail fast instead of leaking zero values
// into scoring logic.
package model

import (
	"fmt"
	"time"

	"github.com/okian/pitstop/internal/adapters/store"
)

// Store collections used by the engine.
const (
	CollectionRequests    = "service_requests"
	CollectionTechnicians = "technicians"
	CollectionWorkOrders  = "work_orders"
	CollectionAuditEvents = "audit_events"
)

// Service request lifecycle statuses.
const (
	RequestPending          = "pending"
	RequestAssigned         = "assigned"
	RequestAssignmentFailed = "assignment_failed"
	RequestCompleted        = "completed"
)

// Work order lifecycle statuses.
const (
	WorkOrderOpen       = "open"
	WorkOrderInProgress = "in_progress"
	WorkOrderCompleted  = "completed"
	WorkOrderCancelled  = "cancelled"
)

// ActiveWorkOrderStatuses are the statuses that count toward workload.
func ActiveWorkOrderStatuses() []any {
	return []any{WorkOrderOpen, WorkOrderInProgress}
}

// ServiceRequest is an incoming customer request awaiting assignment.
type ServiceRequest struct {
	ID             string
	CustomerID     string
	ServiceType    string
	VehiclePlate   string
	VehicleBrand   string
	VehicleMileage float64
	JoinedAt       time.Time
	Status         string
	AssignedTo     string
	WorkOrderID    string
}

// Vehicle returns the request's vehicle context used for scoring.
func (r ServiceRequest) Vehicle() VehicleContext {
	return VehicleContext{
		Plate:   r.VehiclePlate,
		Brand:   r.VehicleBrand,
		Mileage: r.VehicleMileage,
	}
}

// Fields encodes the request for the store.
func (r ServiceRequest) Fields() map[string]any {
	return map[string]any{
		"customer_id":     r.CustomerID,
		"service_type":    r.ServiceType,
		"vehicle_plate":   r.VehiclePlate,
		"vehicle_brand":   r.VehicleBrand,
		"vehicle_mileage": r.VehicleMileage,
		"joined_at":       r.JoinedAt,
		"status":          r.Status,
		"assigned_to":     r.AssignedTo,
		"work_order_id":   r.WorkOrderID,
	}
}

// ServiceRequestFromDoc decodes and validates a request document.
func ServiceRequestFromDoc(doc store.Document) (ServiceRequest, error) {
	r := ServiceRequest{
		ID:             doc.ID,
		CustomerID:     stringField(doc.Fields, "customer_id"),
		ServiceType:    stringField(doc.Fields, "service_type"),
		VehiclePlate:   stringField(doc.Fields, "vehicle_plate"),
		VehicleBrand:   stringField(doc.Fields, "vehicle_brand"),
		VehicleMileage: floatField(doc.Fields, "vehicle_mileage"),
		JoinedAt:       timeField(doc.Fields, "joined_at"),
		Status:         stringField(doc.Fields, "status"),
		AssignedTo:     stringField(doc.Fields, "assigned_to"),
		WorkOrderID:    stringField(doc.Fields, "work_order_id"),
	}
	if r.CustomerID == "" {
		return ServiceRequest{}, fmt.Errorf("service request %s missing customer_id: %w", doc.ID, store.ErrValidation)
	}
	if r.ServiceType == "" {
		return ServiceRequest{}, fmt.Errorf("service request %s missing service_type: %w", doc.ID, store.ErrValidation)
	}
	if r.Status == "" {
		r.Status = RequestPending
	}
	return r, nil
}

// Technician is a staff member eligible for assignment.
type Technician struct {
	ID         string
	Name       string
	Skills     []string
	Available  bool
	Rating     float64
	HourlyRate float64
}

// Eligible reports whether the technician can be considered for assignment.
func (t Technician) Eligible() bool {
	return t.Available && len(t.Skills) > 0
}

// Fields encodes the technician for the store.
func (t Technician) Fields() map[string]any {
	return map[string]any{
		"name":        t.Name,
		"skills":      t.Skills,
		"available":   t.Available,
		"rating":      t.Rating,
		"hourly_rate": t.HourlyRate,
	}
}

// TechnicianFromDoc decodes and validates a technician document.
func TechnicianFromDoc(doc store.Document) (Technician, error) {
	t := Technician{
		ID:         doc.ID,
		Name:       stringField(doc.Fields, "name"),
		Skills:     stringSliceField(doc.Fields, "skills"),
		Available:  boolField(doc.Fields, "available"),
		Rating:     floatField(doc.Fields, "rating"),
		HourlyRate: floatField(doc.Fields, "hourly_rate"),
	}
	if t.Rating < 0 || t.Rating > 5 {
		return Technician{}, fmt.Errorf("technician %s rating %v out of range: %w", doc.ID, t.Rating, store.ErrValidation)
	}
	return t, nil
}

// WorkOrder is the unit of work created once a technician is selected.
type WorkOrder struct {
	ID           string
	RequestID    string
	TechnicianID string
	Status       string
	CreatedAt    time.Time
}

// Fields encodes the work order for the store.
func (w WorkOrder) Fields() map[string]any {
	return map[string]any{
		"request_id":    w.RequestID,
		"technician_id": w.TechnicianID,
		"status":        w.Status,
		"created_at":    w.CreatedAt,
	}
}

// WorkOrderFromDoc decodes and validates a work order document.
func WorkOrderFromDoc(doc store.Document) (WorkOrder, error) {
	w := WorkOrder{
		ID:           doc.ID,
		RequestID:    stringField(doc.Fields, "request_id"),
		TechnicianID: stringField(doc.Fields, "technician_id"),
		Status:       stringField(doc.Fields, "status"),
		CreatedAt:    timeField(doc.Fields, "created_at"),
	}
	if w.TechnicianID == "" {
		return WorkOrder{}, fmt.Errorf("work order %s missing technician_id: %w", doc.ID, store.ErrValidation)
	}
	if w.Status == "" {
		return WorkOrder{}, fmt.Errorf("work order %s missing status: %w", doc.ID, store.ErrValidation)
	}
	return w, nil
}

// VehicleContext carries the vehicle attributes relevant to scoring.
type VehicleContext struct {
	Plate   string
	Brand   string
	Mileage float64
}

// ScoreBreakdown itemizes the five scoring factors.
type ScoreBreakdown struct {
	Skills   float64 `json:"skills"`
	Workload float64 `json:"workload"`
	Rating   float64 `json:"rating"`
	Brand    float64 `json:"brand"`
	Rotation float64 `json:"rotation"`
}

// Sum returns the breakdown total.
func (b ScoreBreakdown) Sum() float64 {
	return b.Skills + b.Workload + b.Rating + b.Brand + b.Rotation
}

// TechnicianScore is the ephemeral result of scoring one technician for
// one request. Not persisted beyond audit logging.
type TechnicianScore struct {
	TechnicianID string         `json:"technician_id"`
	Total        float64        `json:"total"`
	Breakdown    ScoreBreakdown `json:"breakdown"`
}

// CapacitySnapshot is the real-time shop capacity view consumed by
// dashboards and forecasting collaborators.
type CapacitySnapshot struct {
	TotalCapacity        int     `json:"total_capacity"`
	UsedCapacity         int     `json:"used_capacity"`
	AvailableCapacity    int     `json:"available_capacity"`
	UtilizationRate      float64 `json:"utilization_rate"`
	AvailableTechnicians int     `json:"available_technicians"`
}

// Field access helpers tolerant of the loose typing documents carry.

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func boolField(fields map[string]any, key string) bool {
	b, _ := fields[key].(bool)
	return b
}

func floatField(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func timeField(fields map[string]any, key string) time.Time {
	t, _ := fields[key].(time.Time)
	return t
}

func stringSliceField(fields map[string]any, key string) []string {
	switch v := fields[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
