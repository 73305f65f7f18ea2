package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/campussync/internal/models"
	"github.com/iudanet/campussync/internal/server/syncer"
	"github.com/iudanet/campussync/pkg/api"
)

// BatchApplier applies one decoded batch for a caller
type BatchApplier interface {
	ApplyBatch(ctx context.Context, req *models.SyncBatchRequest, caller models.Identity) (*models.SyncBatchResponse, error)
}

// SyncHandler handles batch sync-up requests
type SyncHandler struct {
	responder
	service BatchApplier
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(logger *slog.Logger, service BatchApplier) *SyncHandler {
	return &SyncHandler{
		responder: responder{logger: logger},
		service:   service,
	}
}

// Batch обрабатывает POST /api/v1/sync/batch
func (h *SyncHandler) Batch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := GetIdentity(ctx)
	if !ok {
		h.logger.Warn("Sync request without identity")
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.SyncBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Error("Failed to decode sync batch", "error", err, "user_id", caller.UserID)
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	batch := toBatch(&req)
	if len(batch.Rejected) > 0 {
		h.logger.Warn("Operations rejected at decode",
			"tenant_id", req.TenantID,
			"rejected", len(batch.Rejected),
			"operations", len(req.Operations))
	}

	resp, err := h.service.ApplyBatch(ctx, batch, caller)
	switch {
	case err == nil:
		h.sendJSON(w, toAPIResponse(resp), http.StatusOK)
	case errors.Is(err, syncer.ErrSchemaIncompatible) && resp != nil:
		// клиенту нужен полный ответ, чтобы показать причину отказа
		h.sendJSON(w, toAPIResponse(resp), http.StatusPreconditionFailed)
	case errors.Is(err, syncer.ErrUnauthorized):
		h.sendError(w, err.Error(), http.StatusForbidden)
	default:
		h.logger.Error("Failed to apply sync batch", "error", err, "tenant_id", req.TenantID)
		h.sendError(w, "internal server error", http.StatusInternalServerError)
	}
}
