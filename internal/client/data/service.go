package data

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/campussync/internal/client/storage"
	"github.com/iudanet/campussync/internal/entity"
	"github.com/iudanet/campussync/internal/models"
	"github.com/iudanet/campussync/pkg/api"
)

// Service определяет интерфейс для локальной очереди изменений
type Service interface {
	// Enqueue reads change operations from r, checks them and stores them in
	// the outbox. Nothing is stored if any operation is invalid.
	Enqueue(ctx context.Context, r io.Reader) ([]storage.PendingOperation, error)

	// Rejected returns operations the server refused, newest first
	Rejected(ctx context.Context) ([]storage.RejectedOperation, error)

	// ClearRejected drops the rejected list
	ClearRejected(ctx context.Context) (int, error)
}

type service struct {
	outbox   storage.OutboxStorage
	now      func() time.Time
	deviceID string
}

// NewService creates a new data service; deviceID fills operations that
// carry none
func NewService(outbox storage.OutboxStorage, deviceID string) Service {
	return &service{
		outbox:   outbox,
		now:      time.Now,
		deviceID: deviceID,
	}
}

// changeFile принимает либо массив операций, либо {"operations": [...]}
type changeFile struct {
	Operations []api.ChangeOperation `json:"operations"`
}

// Enqueue parses, validates and queues operations
func (s *service) Enqueue(ctx context.Context, r io.Reader) ([]storage.PendingOperation, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read operations: %w", err)
	}

	ops, err := parse(raw)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, errors.New("no operations to enqueue")
	}

	queuedAt := s.now().UTC()
	seen := make(map[string]bool, len(ops))
	pending := make([]storage.PendingOperation, 0, len(ops))

	var errs []error
	for i := range ops {
		op := &ops[i]
		if op.ID == "" {
			op.ID = uuid.NewString()
		}
		if op.DeviceID == "" {
			op.DeviceID = s.deviceID
		}
		if seen[op.ID] {
			errs = append(errs, fmt.Errorf("operation %d: duplicate id %s", i, op.ID))
			continue
		}
		seen[op.ID] = true

		if err := check(op); err != nil {
			errs = append(errs, fmt.Errorf("operation %d (%s): %w", i, op.ID, err))
			continue
		}
		pending = append(pending, storage.PendingOperation{QueuedAt: queuedAt, Operation: *op})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := s.outbox.Enqueue(ctx, pending); err != nil {
		return nil, fmt.Errorf("failed to enqueue operations: %w", err)
	}

	return pending, nil
}

// Rejected returns refused operations
func (s *service) Rejected(ctx context.Context) ([]storage.RejectedOperation, error) {
	return s.outbox.Rejected(ctx)
}

// ClearRejected drops refused operations
func (s *service) ClearRejected(ctx context.Context) (int, error) {
	return s.outbox.ClearRejected(ctx)
}

func parse(raw []byte) ([]api.ChangeOperation, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("no operations to enqueue")
	}

	if raw[0] == '[' {
		var ops []api.ChangeOperation
		if err := json.Unmarshal(raw, &ops); err != nil {
			return nil, fmt.Errorf("failed to parse operations: %w", err)
		}
		return ops, nil
	}

	var f changeFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse operations: %w", err)
	}
	return f.Operations, nil
}

// check runs the same entity checks the server applies so that obviously
// broken operations never reach the outbox
func check(op *api.ChangeOperation) error {
	kind, err := entity.ParseKind(op.TableName)
	if err != nil {
		return err
	}

	opType, err := models.ParseOperationType(op.OperationType)
	if err != nil {
		return err
	}
	op.OperationType = string(opType)

	if strings.TrimSpace(op.RecordID) == "" {
		return errors.New("record_id is required")
	}

	if opType == models.OperationDelete {
		return nil
	}
	if len(bytes.TrimSpace(op.Payload)) == 0 || string(bytes.TrimSpace(op.Payload)) == "null" {
		return fmt.Errorf("payload is required for %s", opType)
	}
	if _, err := entity.Decode(kind, op.Payload); err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	return nil
}
