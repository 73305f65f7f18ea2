// Package audit records sync outcomes. Recording is fire-and-forget: a
// Recorder logs its own failures and never returns them to the caller.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Event actions
const (
	ActionOperation     = "operation"
	ActionBatchRejected = "batch_rejected"
	ActionBatchApplied  = "batch_applied"
)

// Event is one audit entry
type Event struct {
	At          time.Time `json:"at"`
	Action      string    `json:"action"`
	SyncID      string    `json:"sync_id"`
	TenantID    string    `json:"tenant_id"`
	UserID      string    `json:"user_id,omitempty"`
	OperationID string    `json:"operation_id,omitempty"`
	EntityType  string    `json:"entity_type,omitempty"`
	RecordID    string    `json:"record_id,omitempty"`
	Status      string    `json:"status,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

// Recorder accepts audit events. Implementations must not block the
// caller for long and must not propagate failures.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// LogRecorder writes events to a structured logger
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder creates a recorder backed by logger
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

// Record implements Recorder
func (r *LogRecorder) Record(ctx context.Context, e Event) {
	r.logger.InfoContext(ctx, "audit event",
		"action", e.Action,
		"sync_id", e.SyncID,
		"tenant_id", e.TenantID,
		"user_id", e.UserID,
		"operation_id", e.OperationID,
		"entity_type", e.EntityType,
		"record_id", e.RecordID,
		"status", e.Status,
		"detail", e.Detail,
	)
}

// Nop discards every event
type Nop struct{}

// Record implements Recorder
func (Nop) Record(context.Context, Event) {}
