package syncer

import "errors"

// Fatal batch errors. Per-operation failures are reported as outcomes.
var (
	// ErrSchemaIncompatible rejects a batch before any write
	ErrSchemaIncompatible = errors.New("schema incompatible")

	// ErrUnauthorized rejects a batch whose caller may not write to its tenant
	ErrUnauthorized = errors.New("unauthorized")
)
