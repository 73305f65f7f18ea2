package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/campussync/internal/client/api"
	"github.com/iudanet/campussync/internal/client/auth"
	"github.com/iudanet/campussync/internal/client/storage"
	"github.com/iudanet/campussync/internal/models"
	pkgapi "github.com/iudanet/campussync/pkg/api"
)

// DefaultBatchSize ограничивает число операций в одном запросе
const DefaultBatchSize = 500

//go:generate moq -out service_mock.go . Service

// Service определяет интерфейс для sync.Service
type Service interface {
	// Push отправляет очередь на сервер и разбирает итоги операций
	Push(ctx context.Context) (*PushResult, error)

	// ServerSchema fetches the server's canonical schema without pinning it
	ServerSchema(ctx context.Context) (*storage.SchemaPin, error)

	// Pin records the server's canonical schema as the replica's schema
	Pin(ctx context.Context) (*storage.SchemaPin, error)

	// SchemaPin returns the pinned schema, storage.ErrSchemaNotPinned if none
	SchemaPin(ctx context.Context) (*storage.SchemaPin, error)

	// CheckSchema validates the pinned schema against the server
	CheckSchema(ctx context.Context) (*pkgapi.ValidateSchemaResponse, error)

	// PendingCount возвращает количество операций, ожидающих отправки
	PendingCount(ctx context.Context) (int, error)
}

// Store is the local state the push needs
type Store interface {
	storage.OutboxStorage
	storage.MetadataStorage
}

type service struct {
	apiClient api.ClientAPI
	auth      auth.Service
	store     Store
	logger    *slog.Logger
	now       func() time.Time
	batchSize int
}

// NewService creates a new sync service
func NewService(apiClient api.ClientAPI, authService auth.Service, store Store, logger *slog.Logger, batchSize int) Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &service{
		apiClient: apiClient,
		auth:      authService,
		store:     store,
		logger:    logger,
		now:       time.Now,
		batchSize: batchSize,
	}
}

// PushResult contains push results
type PushResult struct {
	SchemaStatus string
	SyncIDs      []string
	Rejected     []storage.RejectedOperation // конфликты и отказы валидации
	Pushed       int                         // отправлено операций
	Succeeded    int                         // применено сервером
	Retrying     int                         // остались в очереди после ошибки
}

// Push sends the outbox in batches. Success leaves the outbox, Conflict and
// ValidationFailed move to the rejected list, Error stays for the next push.
// A schema rejection stops the push and leaves the outbox as it was.
func (s *service) Push(ctx context.Context) (*PushResult, error) {
	session, err := s.auth.Session(ctx)
	if err != nil {
		return nil, err
	}

	pin, err := s.pinned(ctx)
	if err != nil {
		return nil, err
	}

	ops, err := s.store.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}

	result := &PushResult{}
	if len(ops) == 0 {
		s.logger.Info("Outbox is empty, nothing to push")
		return result, nil
	}

	s.logger.Info("Starting push", "tenant_id", session.TenantID, "pending", len(ops))

	for start := 0; start < len(ops); start += s.batchSize {
		end := min(start+s.batchSize, len(ops))
		if err := s.pushChunk(ctx, session, pin, ops[start:end], result); err != nil {
			return result, err
		}
	}

	s.logger.Info("Push completed",
		"pushed", result.Pushed,
		"succeeded", result.Succeeded,
		"rejected", len(result.Rejected),
		"retrying", result.Retrying)

	return result, nil
}

func (s *service) pushChunk(ctx context.Context, session *storage.Session, pin *storage.SchemaPin, ops []storage.PendingOperation, result *PushResult) error {
	lastSync, err := s.store.GetLastSync(ctx)
	if err != nil {
		s.logger.Warn("Failed to get last sync time", "error", err)
		lastSync = time.Time{}
	}

	req := pkgapi.SyncBatchRequest{
		TenantID:          session.TenantID,
		SchemaFingerprint: pin.Fingerprint,
		SchemaVersion:     pin.Version,
		Operations:        make([]pkgapi.ChangeOperation, 0, len(ops)),
	}
	if !lastSync.IsZero() {
		req.LastSyncTimestamp = &lastSync
	}

	byID := make(map[string]pkgapi.ChangeOperation, len(ops))
	for _, op := range ops {
		req.Operations = append(req.Operations, op.Operation)
		byID[op.Operation.ID] = op.Operation
	}

	resp, err := s.apiClient.PushBatch(ctx, session.AccessToken, req)
	if err != nil {
		if errors.Is(err, api.ErrSchemaIncompatible) && resp != nil {
			result.SchemaStatus = resp.SchemaValidationStatus
			return fmt.Errorf("server rejected the batch: %w: %s", err, firstMessage(resp))
		}
		return fmt.Errorf("push failed: %w", err)
	}

	result.Pushed += len(ops)
	result.SchemaStatus = resp.SchemaValidationStatus
	result.SyncIDs = append(result.SyncIDs, resp.SyncID)

	var done []string
	for _, r := range resp.Results {
		op, ok := byID[r.OperationID]
		if !ok {
			s.logger.Warn("Result for unknown operation", "operation_id", r.OperationID, "sync_id", resp.SyncID)
			continue
		}
		delete(byID, r.OperationID)

		switch models.OutcomeStatus(r.Status) {
		case models.StatusSuccess:
			done = append(done, r.OperationID)
			result.Succeeded++
		case models.StatusConflict, models.StatusValidationFailed:
			reason := r.ConflictReason
			if reason == "" {
				reason = r.ErrorMessage
			}
			result.Rejected = append(result.Rejected, storage.RejectedOperation{
				ServerData: r.ServerData,
				ResolvedAt: s.now().UTC(),
				SyncID:     resp.SyncID,
				Status:     r.Status,
				Reason:     reason,
				Operation:  op,
			})
		default:
			s.logger.Warn("Operation failed, keeping it for retry",
				"operation_id", r.OperationID, "error", r.ErrorMessage)
			result.Retrying++
		}
	}
	// операции без итога тоже остаются в очереди
	result.Retrying += len(byID)

	if err := s.store.Resolve(ctx, done, rejectedFor(result.Rejected, resp.SyncID)); err != nil {
		return fmt.Errorf("failed to update outbox: %w", err)
	}

	if err := s.store.SaveLastSync(ctx, resp.CompletedAt); err != nil {
		// Не прерываем синхронизацию из-за ошибки сохранения времени
		s.logger.Warn("Failed to save last sync time", "error", err)
	}

	return nil
}

// ServerSchema fetches the canonical fingerprint
func (s *service) ServerSchema(ctx context.Context) (*storage.SchemaPin, error) {
	fp, err := s.apiClient.Fingerprint(ctx)
	if err != nil {
		return nil, err
	}
	return &storage.SchemaPin{Fingerprint: fp.Hash, Version: fp.Version}, nil
}

// Pin records the server's canonical fingerprint for this replica
func (s *service) Pin(ctx context.Context) (*storage.SchemaPin, error) {
	pin, err := s.ServerSchema(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.store.PinSchema(ctx, *pin); err != nil {
		return nil, fmt.Errorf("failed to pin schema: %w", err)
	}

	s.logger.Info("Schema pinned", "fingerprint", pin.Fingerprint, "version", pin.Version)
	return pin, nil
}

// SchemaPin returns the pinned schema
func (s *service) SchemaPin(ctx context.Context) (*storage.SchemaPin, error) {
	return s.store.GetSchemaPin(ctx)
}

// CheckSchema runs the server's side-effect-free schema check
func (s *service) CheckSchema(ctx context.Context) (*pkgapi.ValidateSchemaResponse, error) {
	session, err := s.auth.Session(ctx)
	if err != nil {
		return nil, err
	}

	pin, err := s.store.GetSchemaPin(ctx)
	if err != nil {
		return nil, err
	}

	return s.apiClient.ValidateSchema(ctx, session.AccessToken, pkgapi.ValidateSchemaRequest{
		Fingerprint: pin.Fingerprint,
		Version:     pin.Version,
	})
}

// PendingCount возвращает количество операций в очереди
func (s *service) PendingCount(ctx context.Context) (int, error) {
	return s.store.PendingCount(ctx)
}

// pinned returns the replica's schema, pinning the server's on first use
func (s *service) pinned(ctx context.Context) (*storage.SchemaPin, error) {
	pin, err := s.store.GetSchemaPin(ctx)
	if err == nil {
		return pin, nil
	}
	if !errors.Is(err, storage.ErrSchemaNotPinned) {
		return nil, fmt.Errorf("failed to read schema pin: %w", err)
	}
	return s.Pin(ctx)
}

// rejectedFor возвращает отказы, относящиеся к одному пакету
func rejectedFor(all []storage.RejectedOperation, syncID string) []storage.RejectedOperation {
	var out []storage.RejectedOperation
	for _, r := range all {
		if r.SyncID == syncID {
			out = append(out, r)
		}
	}
	return out
}

func firstMessage(resp *pkgapi.SyncBatchResponse) string {
	for _, r := range resp.Results {
		if r.ErrorMessage != "" {
			return r.ErrorMessage
		}
	}
	return resp.SchemaValidationStatus
}
