package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/campussync/internal/models"
	"github.com/iudanet/campussync/internal/server/storage"
)

// CreateTenant creates a new tenant
func (s *Storage) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	status := tenant.Status
	if status == "" {
		status = models.StatusActive
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, status, created_at) VALUES (?, ?, ?, ?)`,
		tenant.ID, tenant.Name, status, tenant.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrTenantAlreadyExists
		}
		return fmt.Errorf("failed to insert tenant: %w", err)
	}

	tenant.Status = status
	return nil
}

// GetTenant retrieves tenant by ID
func (s *Storage) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	tenant := &models.Tenant{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, created_at FROM tenants WHERE id = ?`, tenantID,
	).Scan(&tenant.ID, &tenant.Name, &tenant.Status, &tenant.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// UpdateTenantStatus activates or suspends a tenant
func (s *Storage) UpdateTenantStatus(ctx context.Context, tenantID, status string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE tenants SET status = ? WHERE id = ?`, status, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update tenant status: %w", err)
	}
	return expectAffected(result, storage.ErrTenantNotFound)
}
