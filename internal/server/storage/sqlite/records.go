package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/campussync/internal/entity"
	"github.com/iudanet/campussync/internal/models"
	"github.com/iudanet/campussync/internal/server/storage"
)

// recordRepository implements storage.RecordRepository for one entity
// table inside a partition transaction. Table and column names come from
// the entity registry, never from replica input.
type recordRepository struct {
	tx   *sql.Tx
	kind entity.Kind
}

// Find retrieves a record by tenant and id, soft-deleted ones included
func (r *recordRepository) Find(ctx context.Context, tenantID, recordID string) (*models.Record, error) {
	cols := entity.Columns(r.kind)
	query := fmt.Sprintf(`
		SELECT id, tenant_id, status, version, created_at, updated_at, %s
		FROM %s
		WHERE tenant_id = ? AND id = ?
	`, strings.Join(cols, ", "), r.kind.Table())

	rec := &models.Record{Fields: make(map[string]any, len(cols))}
	var createdAt, updatedAt int64

	values := make([]any, len(cols))
	dest := []any{&rec.ID, &rec.TenantID, &rec.Status, &rec.Version, &createdAt, &updatedAt}
	for i := range values {
		dest = append(dest, &values[i])
	}

	if err := r.tx.QueryRowContext(ctx, query, tenantID, recordID).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get %s record: %w", r.kind, err)
	}

	for i, c := range cols {
		v := values[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		rec.Fields[c] = v
	}
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)

	return rec, nil
}

// Insert creates a record with version 1
func (r *recordRepository) Insert(ctx context.Context, rec *models.Record) error {
	cols := entity.Columns(r.kind)

	names := append([]string{"id", "tenant_id", "status", "version", "created_at", "updated_at"}, cols...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		r.kind.Table(), strings.Join(names, ", "), placeholders)

	rec.Status = models.RecordActive
	rec.Version = 1

	args := []any{rec.ID, rec.TenantID, rec.Status, rec.Version, toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt)}
	for _, c := range cols {
		args = append(args, rec.Fields[c])
	}

	if _, err := r.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert %s record: %w", r.kind, err)
	}

	return nil
}

// Update overwrites writable columns present in rec.Fields. id, tenant_id
// and created_at are never touched.
func (r *recordRepository) Update(ctx context.Context, rec *models.Record) error {
	var (
		sets []string
		args []any
	)
	for _, c := range entity.Columns(r.kind) {
		v, ok := rec.Fields[c]
		if !ok {
			continue
		}
		sets = append(sets, c+" = ?")
		args = append(args, v)
	}

	sets = append(sets, "version = version + 1", "updated_at = ?")
	args = append(args, toMillis(rec.UpdatedAt), rec.TenantID, rec.ID)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE tenant_id = ? AND id = ? RETURNING version`,
		r.kind.Table(), strings.Join(sets, ", "))

	if err := r.tx.QueryRowContext(ctx, query, args...).Scan(&rec.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrRecordNotFound
		}
		return fmt.Errorf("failed to update %s record: %w", r.kind, err)
	}

	return nil
}

// SoftDelete marks the record deleted (soft delete) with a new timestamp
func (r *recordRepository) SoftDelete(ctx context.Context, tenantID, recordID string, at time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = ?, version = version + 1, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`, r.kind.Table())

	result, err := r.tx.ExecContext(ctx, query, models.RecordDeleted, toMillis(at), tenantID, recordID)
	if err != nil {
		return fmt.Errorf("failed to delete %s record: %w", r.kind, err)
	}

	return expectAffected(result, storage.ErrRecordNotFound)
}
