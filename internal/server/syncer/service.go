// Package syncer applies batches of replica change operations to the
// authoritative store.
package syncer

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iudanet/campussync/internal/conflict"
	"github.com/iudanet/campussync/internal/entity"
	"github.com/iudanet/campussync/internal/models"
	"github.com/iudanet/campussync/internal/schema"
	"github.com/iudanet/campussync/internal/server/audit"
	"github.com/iudanet/campussync/internal/server/storage"
)

// Defaults for Options
const (
	DefaultPartitionTimeout = 30 * time.Second
	DefaultMaxParallel      = 4
)

// SchemaValidator checks replica schemas against the canonical one
type SchemaValidator interface {
	Validate(ctx context.Context, fingerprint string, version int64) (*models.SchemaValidationResult, error)
	Provider() *schema.Provider
}

// TenantDirectory resolves tenant status
type TenantDirectory interface {
	GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error)
}

// Options tune batch application
type Options struct {
	Now              func() time.Time
	PartitionTimeout time.Duration
	MaxParallel      int
}

// Service is the sync orchestrator
type Service struct {
	validator SchemaValidator
	tenants   TenantDirectory
	store     storage.PartitionRunner
	recorder  audit.Recorder
	detector  *conflict.Detector
	logger    *slog.Logger
	opts      Options
}

// NewService creates a sync service
func NewService(
	validator SchemaValidator,
	tenants TenantDirectory,
	store storage.PartitionRunner,
	recorder audit.Recorder,
	logger *slog.Logger,
	opts Options,
) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PartitionTimeout <= 0 {
		opts.PartitionTimeout = DefaultPartitionTimeout
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}

	return &Service{
		validator: validator,
		tenants:   tenants,
		store:     store,
		recorder:  recorder,
		detector:  conflict.NewDetector(),
		logger:    logger,
		opts:      opts,
	}
}

// ValidateSchema is the side-effect-free pre-flight check
func (s *Service) ValidateSchema(ctx context.Context, fingerprint string, version int64) (*models.SchemaValidationResult, error) {
	return s.validator.Validate(ctx, fingerprint, version)
}

// CanonicalFingerprint returns the loaded canonical definition
func (s *Service) CanonicalFingerprint() schema.Canonical {
	return s.validator.Provider().Canonical()
}

// indexed is an outcome with its position in the submitted batch
type indexed struct {
	entity  string
	outcome models.OperationOutcome
	index   int
}

// ApplyBatch gates, authorizes and applies one batch. Fatal gate failures
// return an error wrapping ErrSchemaIncompatible or ErrUnauthorized; for a
// schema rejection the response carrying every rejected outcome is returned
// alongside the error.
func (s *Service) ApplyBatch(ctx context.Context, req *models.SyncBatchRequest, caller models.Identity) (*models.SyncBatchResponse, error) {
	syncID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate sync id: %w", err)
	}

	resp := &models.SyncBatchResponse{
		SyncID:   syncID.String(),
		TenantID: req.TenantID,
	}
	logger := s.logger.With("sync_id", resp.SyncID, "tenant_id", req.TenantID, "user_id", caller.UserID)

	// 1. Схема
	result, err := s.validator.Validate(ctx, req.SchemaFingerprint, req.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to validate schema: %w", err)
	}
	resp.SchemaStatus = result.Status()

	if gateErr := schema.Gate(result); gateErr != nil {
		resp.Results = rejectAll(req, models.StatusValidationFailed, gateErr.Error())
		s.complete(resp)

		logger.Warn("Batch rejected by schema gate", "errors", result.Errors, "operations", req.Size())
		s.recordBatch(ctx, audit.ActionBatchRejected, resp, caller, gateErr.Error())
		return resp, fmt.Errorf("%w: %w", ErrSchemaIncompatible, gateErr)
	}
	for _, w := range result.Warnings {
		logger.Warn("Schema warning", "warning", w)
	}

	// 2. Авторизация
	if err := s.authorize(ctx, req.TenantID, caller); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			logger.Warn("Batch rejected", "error", err)
			s.recordBatch(ctx, audit.ActionBatchRejected, resp, caller, err.Error())
		}
		return nil, err
	}

	// 3. Порядок и партиции
	partitions, invalid := partition(sortByLocalTime(req.Operations))

	outcomes := make([][]indexed, len(partitions))
	var g errgroup.Group
	g.SetLimit(s.opts.MaxParallel)

	for i, p := range partitions {
		g.Go(func() error {
			outcomes[i] = s.applyPartition(ctx, logger, req.TenantID, p.kind, p.ops)
			return nil
		})
	}
	_ = g.Wait()

	// 4. Сборка ответа в порядке отправки
	var all []indexed
	for _, r := range req.Rejected {
		all = append(all, indexed{index: r.Index, outcome: s.rejectedOutcome(ctx, logger, req.TenantID, r)})
	}
	all = append(all, invalid...)
	for _, o := range outcomes {
		all = append(all, o...)
	}
	slices.SortStableFunc(all, func(a, b indexed) int { return cmp.Compare(a.index, b.index) })

	resp.Results = make([]models.OperationOutcome, 0, len(all))
	for _, o := range all {
		resp.Results = append(resp.Results, o.outcome)
		s.recorder.Record(ctx, audit.Event{
			At:          s.opts.Now().UTC(),
			Action:      audit.ActionOperation,
			SyncID:      resp.SyncID,
			TenantID:    req.TenantID,
			UserID:      caller.UserID,
			OperationID: o.outcome.OperationID,
			EntityType:  o.entity,
			Status:      string(o.outcome.Status),
			RecordID:    o.outcome.ServerRecordID,
			Detail:      o.outcome.ConflictReason + o.outcome.ErrorMessage,
		})
	}
	s.complete(resp)

	logger.Info("Batch applied",
		"total", resp.Total,
		"successful", resp.Successful,
		"conflicted", resp.Conflicted,
		"failed", resp.Failed,
	)
	s.recordBatch(ctx, audit.ActionBatchApplied, resp, caller, "")

	return resp, nil
}

// rejectedOutcome answers an operation refused before it reached a
// partition. An id the tenant already has in the ledger gets its stored
// outcome, as any other replay does.
func (s *Service) rejectedOutcome(ctx context.Context, logger *slog.Logger, tenantID string, r models.RejectedOperation) models.OperationOutcome {
	rejected := models.OperationOutcome{
		OperationID:  r.OperationID,
		Status:       r.Status,
		ErrorMessage: r.Reason,
	}
	if r.OperationID == "" {
		return rejected
	}

	stored, owner, err := s.store.LookupOutcome(ctx, r.OperationID)
	switch {
	case err == nil && owner == tenantID:
		stored.OperationID = r.OperationID
		return *stored
	case err != nil && !errors.Is(err, storage.ErrOperationNotFound):
		logger.Warn("Failed to lookup rejected operation", "error", err, "operation_id", r.OperationID)
	}
	return rejected
}

func (s *Service) authorize(ctx context.Context, tenantID string, caller models.Identity) error {
	if tenantID == "" {
		return fmt.Errorf("%w: batch has no tenant", ErrUnauthorized)
	}
	if caller.TenantID != tenantID {
		return fmt.Errorf("%w: caller does not belong to tenant %s", ErrUnauthorized, tenantID)
	}
	if !caller.Active() {
		return fmt.Errorf("%w: account is %s", ErrUnauthorized, caller.AccountStatus)
	}

	tenant, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrTenantNotFound) {
			return fmt.Errorf("%w: tenant %s not found", ErrUnauthorized, tenantID)
		}
		return fmt.Errorf("failed to resolve tenant: %w", err)
	}
	if !tenant.Active() {
		return fmt.Errorf("%w: tenant %s is %s", ErrUnauthorized, tenantID, tenant.Status)
	}

	return nil
}

func (s *Service) complete(resp *models.SyncBatchResponse) {
	resp.CompletedAt = s.opts.Now().UTC()
	resp.Tally()
}

func (s *Service) recordBatch(ctx context.Context, action string, resp *models.SyncBatchResponse, caller models.Identity, detail string) {
	if detail == "" {
		detail = fmt.Sprintf("total=%d successful=%d conflicted=%d failed=%d",
			resp.Total, resp.Successful, resp.Conflicted, resp.Failed)
	}
	s.recorder.Record(ctx, audit.Event{
		At:       s.opts.Now().UTC(),
		Action:   action,
		SyncID:   resp.SyncID,
		TenantID: resp.TenantID,
		UserID:   caller.UserID,
		Status:   string(resp.SchemaStatus),
		Detail:   detail,
	})
}

// rejectAll gives every submitted operation the same outcome
func rejectAll(req *models.SyncBatchRequest, status models.OutcomeStatus, reason string) []models.OperationOutcome {
	all := make([]indexed, 0, req.Size())
	for _, op := range req.Operations {
		all = append(all, indexed{index: op.Index, outcome: models.OperationOutcome{
			OperationID: op.ID, Status: status, ErrorMessage: reason,
		}})
	}
	for _, r := range req.Rejected {
		all = append(all, indexed{index: r.Index, outcome: models.OperationOutcome{
			OperationID: r.OperationID, Status: status, ErrorMessage: reason,
		}})
	}
	slices.SortStableFunc(all, func(a, b indexed) int { return cmp.Compare(a.index, b.index) })

	out := make([]models.OperationOutcome, 0, len(all))
	for _, o := range all {
		out = append(out, o.outcome)
	}
	return out
}

// sortByLocalTime orders operations by their local timestamp, stable for
// equal timestamps. Operations without one keep their relative order first.
func sortByLocalTime(ops []models.ChangeOperation) []*models.ChangeOperation {
	out := make([]*models.ChangeOperation, len(ops))
	for i := range ops {
		out[i] = &ops[i]
	}
	slices.SortStableFunc(out, func(a, b *models.ChangeOperation) int {
		switch {
		case a.LocalTimestamp == nil && b.LocalTimestamp == nil:
			return 0
		case a.LocalTimestamp == nil:
			return -1
		case b.LocalTimestamp == nil:
			return 1
		default:
			return a.LocalTimestamp.Compare(*b.LocalTimestamp)
		}
	})
	return out
}

type partitionOps struct {
	ops  []*models.ChangeOperation
	kind entity.Kind
}

// partition groups sorted operations by entity in registry order. Operations
// of an unknown entity cannot be routed and are failed right away.
func partition(sorted []*models.ChangeOperation) ([]partitionOps, []indexed) {
	byKind := make(map[entity.Kind][]*models.ChangeOperation)
	var invalid []indexed

	for _, op := range sorted {
		if !op.Entity.Valid() {
			invalid = append(invalid, indexed{index: op.Index, outcome: models.OperationOutcome{
				OperationID:  op.ID,
				Status:       models.StatusValidationFailed,
				ErrorMessage: fmt.Sprintf("%v: %s", entity.ErrUnknownEntity, op.Entity),
			}})
			continue
		}
		byKind[op.Entity] = append(byKind[op.Entity], op)
	}

	var out []partitionOps
	for _, kind := range entity.All() {
		if ops := byKind[kind]; len(ops) > 0 {
			out = append(out, partitionOps{kind: kind, ops: ops})
		}
	}
	return out, invalid
}
