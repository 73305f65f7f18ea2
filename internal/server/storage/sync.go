package storage

import (
	"context"
	"time"

	"github.com/iudanet/campussync/internal/entity"
	"github.com/iudanet/campussync/internal/models"
)

// RecordRepository is the capability every entity table offers inside a
// partition transaction. All calls are scoped to one tenant.
type RecordRepository interface {
	// Find returns the record, soft-deleted ones included
	// Returns ErrRecordNotFound if the tenant has no such record
	Find(ctx context.Context, tenantID, recordID string) (*models.Record, error)

	// Insert creates the record with version 1 and status active
	Insert(ctx context.Context, record *models.Record) error

	// Update overwrites the writable columns, bumps version and updated_at
	// Returns ErrRecordNotFound if nothing was updated
	Update(ctx context.Context, record *models.Record) error

	// SoftDelete marks the record deleted, bumps version and updated_at
	// Returns ErrRecordNotFound if nothing was updated
	SoftDelete(ctx context.Context, tenantID, recordID string, at time.Time) error
}

// OutcomeReader reads the idempotency ledger.
type OutcomeReader interface {
	// LookupOutcome returns the stored outcome and the tenant it belongs to
	// Returns ErrOperationNotFound if the id was never recorded
	LookupOutcome(ctx context.Context, operationID string) (*models.OperationOutcome, string, error)
}

// OutcomeLedger remembers terminal outcomes by operation id so that a
// replayed operation gets the same answer and is never applied twice.
type OutcomeLedger interface {
	OutcomeReader

	// SaveOutcome stores a terminal outcome for the operation
	SaveOutcome(ctx context.Context, tenantID string, op *models.ChangeOperation, outcome *models.OperationOutcome) error
}

// PartitionTx is the view of one partition transaction.
type PartitionTx interface {
	OutcomeLedger

	// Records returns the repository of the partition's entity
	Records() RecordRepository

	// Savepoint runs fn inside a nested savepoint. When fn fails only its
	// writes are undone and the transaction stays usable.
	Savepoint(ctx context.Context, fn func() error) error
}

// PartitionRunner opens one transaction per partition.
type PartitionRunner interface {
	// LookupOutcome reads the ledger outside any partition, for operations
	// that never reach one
	OutcomeReader

	// RunPartition commits when fn returns nil and rolls back otherwise
	RunPartition(ctx context.Context, kind entity.Kind, fn func(tx PartitionTx) error) error
}
