package api

import (
	"encoding/json"
	"time"
)

// ChangeOperation представляет одно изменение, накопленное репликой офлайн
type ChangeOperation struct {
	LocalUpdatedAt *time.Time      `json:"local_updated_at,omitempty"` // момент, от которого реплика редактировала запись
	ID             string          `json:"id"`                         // ключ идемпотентности
	TableName      string          `json:"table_name"`
	RecordID       string          `json:"record_id"`
	OperationType  string          `json:"operation_type"` // INSERT | UPDATE | DELETE
	DeviceID       string          `json:"device_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// SyncBatchRequest представляет пакет изменений от реплики
type SyncBatchRequest struct {
	LastSyncTimestamp *time.Time        `json:"lastSyncTimestamp,omitempty"`
	TenantID          string            `json:"tenantId"`
	SchemaFingerprint string            `json:"schemaFingerprint"`
	Operations        []ChangeOperation `json:"operations"`
	SchemaVersion     int64             `json:"schemaVersion"`
}

// OperationResult представляет итог одной операции
type OperationResult struct {
	ServerData     map[string]any `json:"server_data,omitempty"` // авторитетная запись при конфликте
	OperationID    string         `json:"operation_id"`
	Status         string         `json:"status"` // SUCCESS | CONFLICT | ERROR | VALIDATION_FAILED
	ServerRecordID string         `json:"server_record_id,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	ConflictReason string         `json:"conflict_reason,omitempty"`
}

// SyncBatchResponse представляет ответ сервера на пакет
type SyncBatchResponse struct {
	CompletedAt            time.Time         `json:"completed_at"`
	SyncID                 string            `json:"sync_id"`
	TenantID               string            `json:"tenantId"`
	SchemaValidationStatus string            `json:"schema_validation_status"` // OK | WARNING | INCOMPATIBLE
	Results                []OperationResult `json:"results"`
	TotalOperations        int               `json:"total_operations"`
	SuccessfulOperations   int               `json:"successful_operations"`
	ConflictedOperations   int               `json:"conflicted_operations"`
	FailedOperations       int               `json:"failed_operations"`
	Success                bool              `json:"success"`
}
