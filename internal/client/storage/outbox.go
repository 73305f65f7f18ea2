package storage

import (
	"context"
	"time"

	"github.com/iudanet/campussync/pkg/api"
)

// OutboxStorage хранит операции, ожидающие отправки на сервер
type OutboxStorage interface {
	// Enqueue adds operations; it fails with ErrDuplicateOperation without
	// storing anything if one of the ids is already pending
	Enqueue(ctx context.Context, ops []PendingOperation) error

	// Pending returns queued operations in enqueue order
	Pending(ctx context.Context) ([]PendingOperation, error)

	// PendingCount returns the number of queued operations
	PendingCount(ctx context.Context) (int, error)

	// Resolve removes the given operations from the outbox and files the
	// rejected ones for later inspection, in one transaction
	Resolve(ctx context.Context, done []string, rejected []RejectedOperation) error

	// Rejected returns operations the server refused, newest first
	Rejected(ctx context.Context) ([]RejectedOperation, error)

	// ClearRejected drops all rejected operations and returns how many were removed
	ClearRejected(ctx context.Context) (int, error)
}

// PendingOperation is one change captured offline
type PendingOperation struct {
	QueuedAt  time.Time           `json:"queued_at"`
	Operation api.ChangeOperation `json:"operation"`
	Seq       uint64              `json:"seq"` // порядок постановки в очередь
}

// RejectedOperation is an operation the server answered with a conflict or
// a validation failure
type RejectedOperation struct {
	ServerData map[string]any      `json:"server_data,omitempty"`
	ResolvedAt time.Time           `json:"resolved_at"`
	SyncID     string              `json:"sync_id"`
	Status     string              `json:"status"`
	Reason     string              `json:"reason"`
	Operation  api.ChangeOperation `json:"operation"`
}
