package storage

import (
	"context"
	"time"
)

// MetadataStorage defines interface for storing client metadata
type MetadataStorage interface {
	// SaveLastSync saves the completion time of the last accepted batch
	SaveLastSync(ctx context.Context, at time.Time) error

	// GetLastSync returns the zero time if no batch has been accepted yet
	GetLastSync(ctx context.Context) (time.Time, error)

	// PinSchema records the canonical schema the replica was built against
	PinSchema(ctx context.Context, pin SchemaPin) error

	// GetSchemaPin returns ErrSchemaNotPinned if nothing was pinned
	GetSchemaPin(ctx context.Context) (*SchemaPin, error)
}

// SchemaPin is the schema fingerprint and version the replica declares
type SchemaPin struct {
	Fingerprint string `json:"fingerprint"`
	Version     int64  `json:"version"`
}
