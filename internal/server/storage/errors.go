package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that user with this username already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrTenantNotFound indicates that tenant was not found in storage
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantAlreadyExists indicates that tenant with this id already exists
	ErrTenantAlreadyExists = errors.New("tenant already exists")

	// ErrRecordNotFound indicates that no authoritative record matches
	// the tenant and record id
	ErrRecordNotFound = errors.New("record not found")

	// ErrOperationNotFound indicates that an operation id was never
	// recorded in the idempotency ledger
	ErrOperationNotFound = errors.New("operation not found")
)
