package storage

import "errors"

// Common client storage errors
var (
	// ErrSessionNotFound indicates that no login session is stored
	ErrSessionNotFound = errors.New("session not found")

	// ErrOperationNotFound indicates that an outbox entry was not found
	ErrOperationNotFound = errors.New("operation not found")

	// ErrDuplicateOperation indicates that the outbox already holds the operation id
	ErrDuplicateOperation = errors.New("operation already queued")

	// ErrSchemaNotPinned indicates that the replica has no recorded schema fingerprint
	ErrSchemaNotPinned = errors.New("schema fingerprint not pinned")
)
