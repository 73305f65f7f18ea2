package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/campussync/internal/models"
	"github.com/iudanet/campussync/internal/server/storage"
)

// contextKey тип для ключей контекста
type contextKey string

// IdentityKey ключ для хранения models.Identity в контексте
const IdentityKey contextKey = "identity"

// ErrIdentityMismatch is returned when a token no longer describes its account
var ErrIdentityMismatch = errors.New("token does not match account")

// WithIdentity кладет вызывающего в контекст запроса
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// GetIdentity извлекает вызывающего из контекста запроса
func GetIdentity(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(models.Identity)
	return id, ok
}

// UserLookup reads accounts by id
type UserLookup interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// IdentityResolver turns verified token claims into the caller's current
// identity. Tenant and account status come from the account row, not from
// the token.
type IdentityResolver struct {
	users UserLookup
}

// NewIdentityResolver создает resolver
func NewIdentityResolver(users UserLookup) *IdentityResolver {
	return &IdentityResolver{users: users}
}

// Resolve returns the caller identity for claims
func (r *IdentityResolver) Resolve(ctx context.Context, claims *CustomClaims) (models.Identity, error) {
	user, err := r.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.Identity{}, fmt.Errorf("%w: user %s not found", ErrIdentityMismatch, claims.UserID)
		}
		return models.Identity{}, fmt.Errorf("failed to load user: %w", err)
	}

	if user.TenantID != claims.TenantID {
		return models.Identity{}, fmt.Errorf("%w: token tenant %s, account tenant %s",
			ErrIdentityMismatch, claims.TenantID, user.TenantID)
	}

	return models.Identity{
		UserID:        user.ID,
		TenantID:      user.TenantID,
		AccountStatus: user.Status,
	}, nil
}
