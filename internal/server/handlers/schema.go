package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/iudanet/campussync/internal/models"
	"github.com/iudanet/campussync/internal/schema"
	"github.com/iudanet/campussync/pkg/api"
)

// SchemaService exposes the canonical schema and replica checks
type SchemaService interface {
	Validate(ctx context.Context, fingerprint string, version int64) (*models.SchemaValidationResult, error)
	Compare(ctx context.Context, replica []schema.TableColumns) ([]schema.TableComparison, error)
	Provider() *schema.Provider
}

// SchemaHandler serves schema pre-flight and diagnostic endpoints
type SchemaHandler struct {
	responder
	service SchemaService
}

// NewSchemaHandler creates a schema handler
func NewSchemaHandler(logger *slog.Logger, service SchemaService) *SchemaHandler {
	return &SchemaHandler{
		responder: responder{logger: logger},
		service:   service,
	}
}

// Fingerprint обрабатывает GET /api/v1/schema/fingerprint
func (h *SchemaHandler) Fingerprint(w http.ResponseWriter, r *http.Request) {
	c := h.service.Provider().Canonical()
	h.sendJSON(w, api.FingerprintResponse{Hash: c.Fingerprint, Version: c.Version}, http.StatusOK)
}

// Validate обрабатывает POST /api/v1/schema/validate
// Проверка без побочных эффектов
func (h *SchemaHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req api.ValidateSchemaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Validate(r.Context(), req.Fingerprint, req.Version)
	if err != nil {
		h.logger.Error("Failed to validate schema", "error", err)
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, toAPIValidation(result), http.StatusOK)
}

// Compare обрабатывает POST /api/v1/schema/compare
func (h *SchemaHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var req api.CompareSchemaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	replica := make([]schema.TableColumns, 0, len(req.Tables))
	for _, t := range req.Tables {
		replica = append(replica, schema.TableColumns{Table: t.Table, Columns: t.Columns})
	}

	diff, err := h.service.Compare(r.Context(), replica)
	if err != nil {
		h.logger.Error("Failed to compare schema", "error", err)
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.CompareSchemaResponse{Tables: make([]api.TableComparison, 0, len(diff))}
	for _, d := range diff {
		resp.Tables = append(resp.Tables, api.TableComparison{
			Table:                 d.Table,
			MissingColumns:        nonNil(d.MissingColumns),
			ExtraColumns:          nonNil(d.ExtraColumns),
			ExistsInReplica:       d.ExistsInReplica,
			ExistsInAuthoritative: d.ExistsInAuthoritative,
		})
	}

	h.sendJSON(w, resp, http.StatusOK)
}

// Reload обрабатывает POST /api/v1/schema/reload
// Перечитывает каноническое определение схемы
func (h *SchemaHandler) Reload(w http.ResponseWriter, r *http.Request) {
	previous := h.service.Provider().Canonical()

	c, err := h.service.Provider().Reload()
	if err != nil {
		h.logger.Error("Failed to reload canonical schema", "error", err)
		h.sendError(w, "failed to reload schema", http.StatusInternalServerError)
		return
	}

	if c.Fingerprint != previous.Fingerprint {
		h.logger.Info("Canonical schema changed",
			"previous", previous.Fingerprint,
			"current", c.Fingerprint,
			"version", c.Version)
	}

	h.sendJSON(w, api.FingerprintResponse{Hash: c.Fingerprint, Version: c.Version}, http.StatusOK)
}
