package handlers

import (
	"bytes"
	"fmt"

	"github.com/iudanet/campussync/internal/entity"
	"github.com/iudanet/campussync/internal/models"
	"github.com/iudanet/campussync/pkg/api"
)

// toBatch decodes the wire batch. Operations that cannot be routed or whose
// payload does not decode are kept as rejected ones so they still get an
// outcome in submission order.
func toBatch(req *api.SyncBatchRequest) *models.SyncBatchRequest {
	batch := &models.SyncBatchRequest{
		LastSyncTimestamp: req.LastSyncTimestamp,
		TenantID:          req.TenantID,
		SchemaFingerprint: req.SchemaFingerprint,
		SchemaVersion:     req.SchemaVersion,
		Operations:        make([]models.ChangeOperation, 0, len(req.Operations)),
	}

	for i := range req.Operations {
		op, rejected := toOperation(i, &req.Operations[i])
		if rejected != nil {
			batch.Rejected = append(batch.Rejected, *rejected)
			continue
		}
		batch.Operations = append(batch.Operations, *op)
	}

	return batch
}

func toOperation(index int, in *api.ChangeOperation) (*models.ChangeOperation, *models.RejectedOperation) {
	reject := func(status models.OutcomeStatus, reason string) *models.RejectedOperation {
		return &models.RejectedOperation{
			LocalTimestamp: in.LocalUpdatedAt,
			OperationID:    in.ID,
			Reason:         reason,
			Status:         status,
			Index:          index,
		}
	}

	if in.ID == "" {
		return nil, reject(models.StatusValidationFailed, "operation id is required")
	}

	kind, err := entity.ParseKind(in.TableName)
	if err != nil {
		return nil, reject(models.StatusValidationFailed, err.Error())
	}

	typ, err := models.ParseOperationType(in.OperationType)
	if err != nil {
		return nil, reject(models.StatusError, err.Error())
	}

	op := &models.ChangeOperation{
		LocalTimestamp: in.LocalUpdatedAt,
		ID:             in.ID,
		RecordID:       in.RecordID,
		OriginDeviceID: in.DeviceID,
		Type:           typ,
		Entity:         kind,
		Index:          index,
	}

	// тело удаления не используется
	if typ == models.OperationDelete {
		return op, nil
	}
	if isEmptyPayload(in.Payload) {
		return nil, reject(models.StatusValidationFailed, fmt.Sprintf("payload is required for %s", typ))
	}

	payload, err := entity.Decode(kind, in.Payload)
	if err != nil {
		return nil, reject(models.StatusValidationFailed, fmt.Sprintf("%s: %v", kind, err))
	}
	op.Payload = payload

	return op, nil
}

func isEmptyPayload(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func toAPIResponse(resp *models.SyncBatchResponse) api.SyncBatchResponse {
	out := api.SyncBatchResponse{
		CompletedAt:            resp.CompletedAt,
		SyncID:                 resp.SyncID,
		TenantID:               resp.TenantID,
		SchemaValidationStatus: string(resp.SchemaStatus),
		Results:                make([]api.OperationResult, 0, len(resp.Results)),
		TotalOperations:        resp.Total,
		SuccessfulOperations:   resp.Successful,
		ConflictedOperations:   resp.Conflicted,
		FailedOperations:       resp.Failed,
		Success:                resp.Success,
	}

	for _, o := range resp.Results {
		out.Results = append(out.Results, api.OperationResult{
			ServerData:     o.ServerData,
			OperationID:    o.OperationID,
			Status:         string(o.Status),
			ServerRecordID: o.ServerRecordID,
			ErrorMessage:   o.ErrorMessage,
			ConflictReason: o.ConflictReason,
		})
	}

	return out
}

func toAPIValidation(result *models.SchemaValidationResult) api.ValidateSchemaResponse {
	return api.ValidateSchemaResponse{
		CanonicalFingerprint: result.CanonicalFingerprint,
		ReplicaFingerprint:   result.ReplicaFingerprint,
		Status:               string(result.Status()),
		Errors:               nonNil(result.Errors),
		Warnings:             nonNil(result.Warnings),
		ReplicaVersion:       result.ReplicaVersion,
		CanonicalVersion:     result.CanonicalVersion,
		IsValid:              result.IsValid,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
