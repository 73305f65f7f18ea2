package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/campussync/internal/entity"
	"github.com/iudanet/campussync/internal/models"
	"github.com/iudanet/campussync/internal/server/storage"
)

// RunPartition opens one transaction for the entity's table and hands it to
// fn. The transaction commits only when fn returns nil. A context deadline
// aborts the transaction and surfaces as an error from RunPartition.
func (s *Storage) RunPartition(ctx context.Context, kind entity.Kind, fn func(tx storage.PartitionTx) error) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %s", entity.ErrUnknownEntity, kind)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	ptx := &partitionTx{
		tx:      tx,
		records: &recordRepository{tx: tx, kind: kind},
	}

	if err := fn(ptx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("failed to rollback transaction: %w", rbErr))
		}
		return err
	}

	if err := ctx.Err(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("partition %s aborted: %w", kind, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type partitionTx struct {
	tx      *sql.Tx
	records *recordRepository
}

func (p *partitionTx) Records() storage.RecordRepository {
	return p.records
}

// Savepoint runs fn between SAVEPOINT and RELEASE. On failure the writes of
// fn are rolled back and the outer transaction remains usable.
func (p *partitionTx) Savepoint(ctx context.Context, fn func() error) error {
	if _, err := p.tx.ExecContext(ctx, `SAVEPOINT sync_op`); err != nil {
		return fmt.Errorf("failed to open savepoint: %w", err)
	}

	if err := fn(); err != nil {
		if _, rbErr := p.tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT sync_op`); rbErr != nil {
			return errors.Join(err, fmt.Errorf("failed to rollback savepoint: %w", rbErr))
		}
		if _, relErr := p.tx.ExecContext(ctx, `RELEASE SAVEPOINT sync_op`); relErr != nil {
			return errors.Join(err, fmt.Errorf("failed to release savepoint: %w", relErr))
		}
		return err
	}

	if _, err := p.tx.ExecContext(ctx, `RELEASE SAVEPOINT sync_op`); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

// LookupOutcome returns the stored outcome of an operation id
func (p *partitionTx) LookupOutcome(ctx context.Context, operationID string) (*models.OperationOutcome, string, error) {
	return lookupOutcome(ctx, p.tx, operationID)
}

// LookupOutcome reads the ledger outside a partition transaction
func (s *Storage) LookupOutcome(ctx context.Context, operationID string) (*models.OperationOutcome, string, error) {
	return lookupOutcome(ctx, s.db, operationID)
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lookupOutcome(ctx context.Context, q rowQuerier, operationID string) (*models.OperationOutcome, string, error) {
	query := `
		SELECT tenant_id, status, server_record_id, server_data, conflict_reason, error_message
		FROM sync_operations
		WHERE operation_id = ?
	`

	var (
		tenantID                                    string
		status                                      string
		recordID, data, conflictReason, errorMessage sql.NullString
	)

	err := q.QueryRowContext(ctx, query, operationID).Scan(
		&tenantID, &status, &recordID, &data, &conflictReason, &errorMessage,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", storage.ErrOperationNotFound
		}
		return nil, "", fmt.Errorf("failed to lookup operation: %w", err)
	}

	outcome := &models.OperationOutcome{
		OperationID:    operationID,
		Status:         models.OutcomeStatus(status),
		ServerRecordID: recordID.String,
		ConflictReason: conflictReason.String,
		ErrorMessage:   errorMessage.String,
	}

	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &outcome.ServerData); err != nil {
			return nil, "", fmt.Errorf("failed to decode stored server data: %w", err)
		}
	}

	return outcome, tenantID, nil
}

// SaveOutcome stores a terminal outcome for the operation
func (p *partitionTx) SaveOutcome(ctx context.Context, tenantID string, op *models.ChangeOperation, outcome *models.OperationOutcome) error {
	var data sql.NullString
	if outcome.ServerData != nil {
		raw, err := json.Marshal(outcome.ServerData)
		if err != nil {
			return fmt.Errorf("failed to encode server data: %w", err)
		}
		data = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO sync_operations (
			operation_id, tenant_id, entity_type, record_id, operation_type,
			status, server_record_id, server_data, conflict_reason, error_message,
			processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := p.tx.ExecContext(ctx, query,
		op.ID,
		tenantID,
		op.Entity.Table(),
		op.RecordID,
		string(op.Type),
		string(outcome.Status),
		nullString(outcome.ServerRecordID),
		data,
		nullString(outcome.ConflictReason),
		nullString(outcome.ErrorMessage),
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save operation outcome: %w", err)
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
