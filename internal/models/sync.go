package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/campussync/internal/entity"
)

// OperationType is the kind of change captured by a replica.
type OperationType string

const (
	OperationInsert OperationType = "INSERT"
	OperationUpdate OperationType = "UPDATE"
	OperationDelete OperationType = "DELETE"
)

// ParseOperationType accepts the wire form case-insensitively.
func ParseOperationType(s string) (OperationType, error) {
	switch OperationType(strings.ToUpper(strings.TrimSpace(s))) {
	case OperationInsert:
		return OperationInsert, nil
	case OperationUpdate:
		return OperationUpdate, nil
	case OperationDelete:
		return OperationDelete, nil
	default:
		return "", fmt.Errorf("invalid operation type %q", s)
	}
}

// OutcomeStatus is the terminal state of one change operation.
type OutcomeStatus string

const (
	StatusSuccess          OutcomeStatus = "SUCCESS"
	StatusConflict         OutcomeStatus = "CONFLICT"
	StatusError            OutcomeStatus = "ERROR"
	StatusValidationFailed OutcomeStatus = "VALIDATION_FAILED"
)

// SchemaStatus summarises a schema validation for the batch response.
type SchemaStatus string

const (
	SchemaOK           SchemaStatus = "OK"
	SchemaWarning      SchemaStatus = "WARNING"
	SchemaIncompatible SchemaStatus = "INCOMPATIBLE"
)

// ChangeOperation is one replica-side change, already decoded into a typed
// payload. ID is the idempotency key.
type ChangeOperation struct {
	LocalTimestamp *time.Time     // base timestamp the replica edited from
	Payload        entity.Payload // nil for deletes without a body
	ID             string
	RecordID       string
	OriginDeviceID string
	Type           OperationType
	Entity         entity.Kind
	Index          int // position in the submitted batch
}

// RejectedOperation is an operation that could not be decoded at the
// boundary. It still gets an outcome in the response.
type RejectedOperation struct {
	LocalTimestamp *time.Time
	OperationID    string
	Reason         string
	Status         OutcomeStatus
	Index          int
}

// SyncBatchRequest is one sync-up call from a replica.
type SyncBatchRequest struct {
	LastSyncTimestamp *time.Time
	TenantID          string
	SchemaFingerprint string
	Operations        []ChangeOperation
	Rejected          []RejectedOperation
	SchemaVersion     int64
}

// Size returns the number of operations submitted, decoded or not.
func (r *SyncBatchRequest) Size() int {
	return len(r.Operations) + len(r.Rejected)
}

// OperationOutcome is the terminal result of one operation.
type OperationOutcome struct {
	ServerData     map[string]any `json:"server_data,omitempty"`
	OperationID    string         `json:"operation_id"`
	Status         OutcomeStatus  `json:"status"`
	ServerRecordID string         `json:"server_record_id,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	ConflictReason string         `json:"conflict_reason,omitempty"`
}

// Terminal reports whether the outcome is final for the operation id.
// Errors are retryable and therefore not terminal.
func (o *OperationOutcome) Terminal() bool {
	return o.Status == StatusSuccess || o.Status == StatusConflict
}

// SyncBatchResponse aggregates the outcomes of one batch.
type SyncBatchResponse struct {
	CompletedAt  time.Time
	SyncID       string
	TenantID     string
	SchemaStatus SchemaStatus
	Results      []OperationOutcome
	Total        int
	Successful   int
	Conflicted   int
	Failed       int
	Success      bool
}

// Tally recomputes counters and the success flag from Results.
func (r *SyncBatchResponse) Tally() {
	r.Total = len(r.Results)
	r.Successful, r.Conflicted, r.Failed = 0, 0, 0
	for _, o := range r.Results {
		switch o.Status {
		case StatusSuccess:
			r.Successful++
		case StatusConflict:
			r.Conflicted++
		default:
			r.Failed++
		}
	}
	r.Success = r.Conflicted == 0 && r.Failed == 0
}

// SchemaValidationResult is the outcome of comparing a replica schema with
// the canonical one.
type SchemaValidationResult struct {
	CanonicalFingerprint string   `json:"canonical_fingerprint"`
	ReplicaFingerprint   string   `json:"replica_fingerprint"`
	Errors               []string `json:"errors"`
	Warnings             []string `json:"warnings"`
	ReplicaVersion       int64    `json:"replica_version"`
	CanonicalVersion     int64    `json:"canonical_version"`
	IsValid              bool     `json:"is_valid"`
}

// Status maps the result onto the batch response status.
func (r *SchemaValidationResult) Status() SchemaStatus {
	switch {
	case !r.IsValid:
		return SchemaIncompatible
	case len(r.Warnings) > 0:
		return SchemaWarning
	default:
		return SchemaOK
	}
}
