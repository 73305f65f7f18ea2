package storage

import (
	"context"
	"time"

	"github.com/iudanet/campussync/internal/models"
)

// UserStorage defines interface for user data persistence
type UserStorage interface {
	// CreateUser creates a new user in the storage
	// Returns ErrUserAlreadyExists if username already exists
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByUsername retrieves user by username
	// Returns ErrUserNotFound if user doesn't exist
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	// GetUserByID retrieves user by ID
	// Returns ErrUserNotFound if user doesn't exist
	GetUserByID(ctx context.Context, userID string) (*models.User, error)

	// UpdateLastLogin updates the last login timestamp
	UpdateLastLogin(ctx context.Context, userID string, lastLogin time.Time) error
}

// TenantStorage defines interface for tenant persistence
type TenantStorage interface {
	// CreateTenant creates a new tenant
	// Returns ErrTenantAlreadyExists if the id is taken
	CreateTenant(ctx context.Context, tenant *models.Tenant) error

	// GetTenant retrieves tenant by ID
	// Returns ErrTenantNotFound if tenant doesn't exist
	GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error)
}
