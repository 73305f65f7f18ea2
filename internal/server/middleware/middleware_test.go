package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/campussync/internal/models"
	"github.com/iudanet/campussync/internal/server/handlers"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testJWT = handlers.JWTConfig{
	Secret:         []byte("test-secret-key"),
	AccessTokenTTL: 15 * time.Minute,
}

// resolverFunc adapts a function to IdentityResolver
type resolverFunc func(ctx context.Context, claims *handlers.CustomClaims) (models.Identity, error)

func (f resolverFunc) Resolve(ctx context.Context, claims *handlers.CustomClaims) (models.Identity, error) {
	return f(ctx, claims)
}

func activeResolver(_ context.Context, c *handlers.CustomClaims) (models.Identity, error) {
	return models.Identity{UserID: c.UserID, TenantID: c.TenantID, AccountStatus: models.StatusActive}, nil
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func issueToken(t *testing.T, tenantID string) string {
	t.Helper()
	token, _, err := handlers.GenerateAccessToken(testJWT,
		&models.User{ID: "u1", TenantID: tenantID, Username: "bursar"}, time.Now())
	require.NoError(t, err)
	return token
}
