// Package notify implements the engine's side-effect sinks: outbound
// notifications (delivery is an external collaborator, logged here at the
// boundary) and the audit trail written to the store.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pitstop/internal/adapters/mq/queue"
	"github.com/okian/pitstop/internal/adapters/store"
	"github.com/okian/pitstop/internal/domain/model"
	"github.com/okian/pitstop/pkg/logger"
)

// Audit event kinds.
const (
	AuditAssignment     = "assignment"
	AuditNoTechnician   = "no_technicians_available"
	AuditAssignmentFail = "assignment_failed"
	AuditOptimizerPass  = "optimizer_pass"
)

// AuditEvent is one row in the audit trail.
type AuditEvent struct {
	ID           string
	Kind         string
	RequestID    string
	TechnicianID string
	WorkOrderID  string
	Reason       string
	Scores       []model.TechnicianScore
	At           time.Time
}

// AuditWriter persists audit events into the audit collection.
type AuditWriter struct {
	store store.DocumentStore

	// now is swappable so tests control the clock.
	now func() time.Time

	logger logger.Logger
}

// NewAuditWriter creates an AuditWriter over the given store.
func NewAuditWriter(st store.DocumentStore) *AuditWriter {
	return &AuditWriter{
		store:  st,
		now:    time.Now,
		logger: logger.Get().Named("audit"),
	}
}

// Write persists one audit event.
func (a *AuditWriter) Write(ctx context.Context, e AuditEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = a.now()
	}

	scores := make([]any, 0, len(e.Scores))
	for _, s := range e.Scores {
		scores = append(scores, map[string]any{
			"technician_id": s.TechnicianID,
			"total":         s.Total,
			"skills":        s.Breakdown.Skills,
			"workload":      s.Breakdown.Workload,
			"rating":        s.Breakdown.Rating,
			"brand":         s.Breakdown.Brand,
			"rotation":      s.Breakdown.Rotation,
		})
	}

	err := a.store.Set(ctx, model.CollectionAuditEvents, e.ID, map[string]any{
		"kind":          e.Kind,
		"request_id":    e.RequestID,
		"technician_id": e.TechnicianID,
		"work_order_id": e.WorkOrderID,
		"reason":        e.Reason,
		"scores":        scores,
		"at":            e.At,
	})
	if err != nil {
		return fmt.Errorf("writing audit event %s: %w", e.Kind, err)
	}
	return nil
}

// Dispatcher routes dequeued side-effect tasks to their sinks. Notification
// content formatting and delivery channels are external; the boundary here
// is a structured log line plus the audit trail.
type Dispatcher struct {
	audit  *AuditWriter
	logger logger.Logger
}

// NewDispatcher creates a Dispatcher writing audits through audit.
func NewDispatcher(audit *AuditWriter) *Dispatcher {
	return &Dispatcher{
		audit:  audit,
		logger: logger.Get().Named("notify"),
	}
}

// Dispatch delivers one task.
func (d *Dispatcher) Dispatch(ctx context.Context, t queue.Task) error {
	switch t.Kind {
	case queue.KindCustomerNotification, queue.KindTechnicianNotification, queue.KindManualFallback:
		d.logger.Info(ctx, "notification dispatched",
			logger.String("kind", t.Kind),
			logger.Any("payload", t.Payload),
		)
		return nil
	case queue.KindAudit:
		return d.audit.Write(ctx, auditEventFromPayload(t.Payload))
	default:
		return fmt.Errorf("unknown side-effect kind %q", t.Kind)
	}
}

// AssignmentTasks builds the fire-and-forget tasks for a committed assignment.
func AssignmentTasks(requestID, customerID, technicianID, workOrderID string, scores []model.TechnicianScore) []queue.Task {
	now := time.Now()
	return []queue.Task{
		{
			ID:   uuid.NewString(),
			Kind: queue.KindCustomerNotification,
			Payload: map[string]any{
				"request_id":  requestID,
				"customer_id": customerID,
				"work_order":  workOrderID,
			},
			EnqueuedAt: now,
		},
		{
			ID:   uuid.NewString(),
			Kind: queue.KindTechnicianNotification,
			Payload: map[string]any{
				"request_id":    requestID,
				"technician_id": technicianID,
				"work_order":    workOrderID,
			},
			EnqueuedAt: now,
		},
		{
			ID:   uuid.NewString(),
			Kind: queue.KindAudit,
			Payload: map[string]any{
				"kind":          AuditAssignment,
				"request_id":    requestID,
				"technician_id": technicianID,
				"work_order_id": workOrderID,
				"scores":        scores,
			},
			EnqueuedAt: now,
		},
	}
}

// ManualFallbackTask builds the manager-notification task for a request
// that found no eligible technician.
func ManualFallbackTask(requestID string) queue.Task {
	return queue.Task{
		ID:   uuid.NewString(),
		Kind: queue.KindManualFallback,
		Payload: map[string]any{
			"request_id": requestID,
			"reason":     AuditNoTechnician,
		},
		EnqueuedAt: time.Now(),
	}
}

func auditEventFromPayload(payload map[string]any) AuditEvent {
	e := AuditEvent{
		Kind:         stringValue(payload, "kind"),
		RequestID:    stringValue(payload, "request_id"),
		TechnicianID: stringValue(payload, "technician_id"),
		WorkOrderID:  stringValue(payload, "work_order_id"),
		Reason:       stringValue(payload, "reason"),
	}
	if scores, ok := payload["scores"].([]model.TechnicianScore); ok {
		e.Scores = scores
	}
	return e
}

func stringValue(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
