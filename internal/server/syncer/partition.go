package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/campussync/internal/conflict"
	"github.com/iudanet/campussync/internal/entity"
	"github.com/iudanet/campussync/internal/models"
	"github.com/iudanet/campussync/internal/server/storage"
)

// reasonExistsWithDifferentData is reported for an insert whose record id
// already holds other data that no detector rule objects to.
const reasonExistsWithDifferentData = "record already exists with different data"

// applyPartition applies one entity's operations inside one transaction
// bounded by the partition timeout once the transaction is open. Any
// transaction failure turns every operation of the partition into an Error
// outcome.
func (s *Service) applyPartition(ctx context.Context, logger *slog.Logger, tenantID string, kind entity.Kind, ops []*models.ChangeOperation) []indexed {
	logger = logger.With("entity_type", kind.String())
	started := time.Now()

	var outcomes []indexed
	err := s.store.RunPartition(ctx, kind, func(tx storage.PartitionTx) error {
		// отсчет идет с открытия транзакции: ожидание соединения за соседней
		// партицией в бюджет не входит
		pctx, cancel := context.WithTimeout(ctx, s.opts.PartitionTimeout)
		defer cancel()

		outcomes = outcomes[:0]
		// записи, уже изменённые этим пакетом: база реплики для них это её же операция
		touched := make(map[string]bool)

		for _, op := range ops {
			if err := pctx.Err(); err != nil {
				return err
			}

			outcome, err := s.applyOperation(pctx, tx, tenantID, op, touched)
			if err != nil {
				return err
			}
			outcomes = append(outcomes, indexed{index: op.Index, entity: kind.String(), outcome: outcome})
		}
		return pctx.Err()
	})

	if err != nil {
		logger.Error("Partition failed, rolled back", "error", err, "operations", len(ops))

		failed := make([]indexed, 0, len(ops))
		for _, op := range ops {
			failed = append(failed, indexed{index: op.Index, entity: kind.String(), outcome: models.OperationOutcome{
				OperationID:  op.ID,
				Status:       models.StatusError,
				ErrorMessage: fmt.Sprintf("partition %s failed: %v", kind, err),
			}})
		}
		return failed
	}

	logger.Debug("Partition committed", "operations", len(ops), "duration", time.Since(started))
	return outcomes
}

// applyOperation returns the outcome of one operation. A returned error is
// fatal to the partition; everything else is reported as an outcome.
func (s *Service) applyOperation(ctx context.Context, tx storage.PartitionTx, tenantID string, op *models.ChangeOperation, touched map[string]bool) (models.OperationOutcome, error) {
	stored, owner, err := tx.LookupOutcome(ctx, op.ID)
	switch {
	case err == nil:
		if owner != tenantID {
			return validationFailed(op, "operation id %s was already used by another tenant", op.ID), nil
		}
		stored.OperationID = op.ID
		return *stored, nil
	case !errors.Is(err, storage.ErrOperationNotFound):
		return models.OperationOutcome{}, err
	}

	if outcome, ok := checkOperation(op, tenantID); !ok {
		return outcome, nil
	}

	var outcome models.OperationOutcome
	err = tx.Savepoint(ctx, func() error {
		var applyErr error
		outcome, applyErr = s.apply(ctx, tx.Records(), tenantID, op, touched[op.RecordID])
		if applyErr != nil {
			return applyErr
		}
		if outcome.Terminal() {
			return tx.SaveOutcome(ctx, tenantID, op, &outcome)
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.OperationOutcome{}, errors.Join(ctxErr, err)
		}
		return models.OperationOutcome{
			OperationID:  op.ID,
			Status:       models.StatusError,
			ErrorMessage: err.Error(),
		}, nil
	}

	if outcome.Status == models.StatusSuccess {
		touched[op.RecordID] = true
	}
	return outcome, nil
}

// checkOperation rejects operations that must not reach the store
func checkOperation(op *models.ChangeOperation, tenantID string) (models.OperationOutcome, bool) {
	if op.RecordID == "" {
		return validationFailed(op, "record_id is required"), false
	}

	switch op.Type {
	case models.OperationInsert, models.OperationUpdate:
		if op.Payload == nil {
			return validationFailed(op, "payload is required for %s", op.Type), false
		}
	case models.OperationDelete:
	default:
		return models.OperationOutcome{
			OperationID:  op.ID,
			Status:       models.StatusError,
			ErrorMessage: fmt.Sprintf("invalid operation type %q", op.Type),
		}, false
	}

	if op.Payload == nil {
		return models.OperationOutcome{}, true
	}
	if op.Payload.Kind() != op.Entity {
		return validationFailed(op, "payload of %s sent for %s", op.Payload.Kind(), op.Entity), false
	}
	if t := op.Payload.Tenant(); t != "" && t != tenantID {
		return validationFailed(op, "payload tenant %s does not match batch tenant %s", t, tenantID), false
	}

	return models.OperationOutcome{}, true
}

func (s *Service) apply(ctx context.Context, repo storage.RecordRepository, tenantID string, op *models.ChangeOperation, ownWrite bool) (models.OperationOutcome, error) {
	existing, err := repo.Find(ctx, tenantID, op.RecordID)
	if err != nil {
		if !errors.Is(err, storage.ErrRecordNotFound) {
			return models.OperationOutcome{}, err
		}
		existing = nil
	}

	now := s.opts.Now().UTC()

	switch op.Type {
	case models.OperationInsert:
		return s.applyInsert(ctx, repo, tenantID, op, existing, ownWrite, now)
	case models.OperationUpdate:
		return s.applyUpdate(ctx, repo, op, existing, ownWrite, now)
	default:
		return s.applyDelete(ctx, repo, tenantID, op, existing, now)
	}
}

func (s *Service) applyInsert(ctx context.Context, repo storage.RecordRepository, tenantID string, op *models.ChangeOperation, existing *models.Record, ownWrite bool, now time.Time) (models.OperationOutcome, error) {
	columns := op.Payload.Columns()

	if existing == nil {
		rec := &models.Record{
			ID:        op.RecordID,
			TenantID:  tenantID,
			CreatedAt: now,
			UpdatedAt: now,
			Fields:    columns,
		}
		if err := repo.Insert(ctx, rec); err != nil {
			return models.OperationOutcome{}, err
		}
		return success(op, rec.ID), nil
	}

	// повтор той же вставки
	if conflict.Identical(existing, columns) {
		return success(op, existing.ID), nil
	}

	if res := s.detector.Detect(existing, s.incoming(op, columns, ownWrite)); res.HasConflict {
		return conflicted(op, existing, res.Reason), nil
	}
	return conflicted(op, existing, reasonExistsWithDifferentData), nil
}

func (s *Service) applyUpdate(ctx context.Context, repo storage.RecordRepository, op *models.ChangeOperation, existing *models.Record, ownWrite bool, now time.Time) (models.OperationOutcome, error) {
	if res := s.detector.DetectDeletion(existing); res.HasConflict {
		return models.OperationOutcome{
			OperationID:    op.ID,
			Status:         models.StatusConflict,
			ConflictReason: res.Reason,
		}, nil
	}

	columns := op.Payload.Columns()
	if res := s.detector.Detect(existing, s.incoming(op, columns, ownWrite)); res.HasConflict {
		return conflicted(op, existing, res.Reason), nil
	}

	rec := existing.Clone()
	for k, v := range columns {
		rec.Fields[k] = v
	}
	rec.UpdatedAt = now

	if err := repo.Update(ctx, rec); err != nil {
		return models.OperationOutcome{}, err
	}
	return success(op, rec.ID), nil
}

func (s *Service) applyDelete(ctx context.Context, repo storage.RecordRepository, tenantID string, op *models.ChangeOperation, existing *models.Record, now time.Time) (models.OperationOutcome, error) {
	// удаление идемпотентно
	if existing == nil {
		return success(op, ""), nil
	}
	if existing.Deleted() {
		return success(op, existing.ID), nil
	}

	in := conflict.Incoming{Kind: op.Entity, Operation: op.Type}
	if res := s.detector.DetectRules(existing, in); res.HasConflict {
		return conflicted(op, existing, res.Reason), nil
	}

	if err := repo.SoftDelete(ctx, tenantID, existing.ID, now); err != nil {
		return models.OperationOutcome{}, err
	}
	return success(op, existing.ID), nil
}

// incoming builds the detector input. For a record this batch already
// wrote, the replica's base is its own earlier operation, so the timestamp
// and version rules do not apply.
func (s *Service) incoming(op *models.ChangeOperation, columns map[string]any, ownWrite bool) conflict.Incoming {
	in := conflict.Incoming{
		Kind:      op.Entity,
		Operation: op.Type,
		Columns:   columns,
	}
	if ownWrite {
		return in
	}

	in.BaseTimestamp = op.LocalTimestamp
	if op.Payload != nil {
		if v, ok := op.Payload.BaseVersion(); ok {
			in.BaseVersion = &v
		}
	}
	return in
}

func success(op *models.ChangeOperation, recordID string) models.OperationOutcome {
	return models.OperationOutcome{
		OperationID:    op.ID,
		Status:         models.StatusSuccess,
		ServerRecordID: recordID,
	}
}

func conflicted(op *models.ChangeOperation, existing *models.Record, reason string) models.OperationOutcome {
	return models.OperationOutcome{
		OperationID:    op.ID,
		Status:         models.StatusConflict,
		ServerRecordID: existing.ID,
		ServerData:     existing.Snapshot(),
		ConflictReason: reason,
	}
}

func validationFailed(op *models.ChangeOperation, format string, args ...any) models.OperationOutcome {
	return models.OperationOutcome{
		OperationID:  op.ID,
		Status:       models.StatusValidationFailed,
		ErrorMessage: fmt.Sprintf(format, args...),
	}
}
