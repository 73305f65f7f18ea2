package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/campussync/internal/server/audit"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditReader reads recorded audit events
type AuditReader interface {
	Events(tenantID string, limit int) ([]audit.Event, error)
}

// AuditHandler serves the caller's tenant audit trail
type AuditHandler struct {
	responder
	reader AuditReader
}

// NewAuditHandler creates an audit handler
func NewAuditHandler(logger *slog.Logger, reader AuditReader) *AuditHandler {
	return &AuditHandler{
		responder: responder{logger: logger},
		reader:    reader,
	}
}

// Events обрабатывает GET /api/v1/audit/events?limit=N
// Возвращает только события школы вызывающего
func (h *AuditHandler) Events(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetIdentity(r.Context())
	if !ok {
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.sendError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxAuditLimit)
	}

	events, err := h.reader.Events(caller.TenantID, limit)
	if err != nil {
		h.logger.Error("Failed to read audit events", "error", err, "tenant_id", caller.TenantID)
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	h.sendJSON(w, events, http.StatusOK)
}
