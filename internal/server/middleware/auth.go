package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/campussync/internal/models"
	"github.com/iudanet/campussync/internal/server/handlers"
)

// IdentityResolver maps verified claims onto the caller's current identity
type IdentityResolver interface {
	Resolve(ctx context.Context, claims *handlers.CustomClaims) (models.Identity, error)
}

// AuthMiddleware создает middleware для проверки JWT токена.
// Вызывающий кладется в контекст как models.Identity; статус аккаунта
// проверяет уже сервис синхронизации.
func AuthMiddleware(logger *slog.Logger, jwtConfig handlers.JWTConfig, resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Missing Authorization header", "path", r.URL.Path)
				writeError(w, "missing token", http.StatusUnauthorized)
				return
			}

			// Ожидаем формат: "Bearer <token>"
			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenString) == "" {
				logger.Warn("Invalid Authorization header format", "path", r.URL.Path)
				writeError(w, "invalid token format", http.StatusUnauthorized)
				return
			}

			claims, err := handlers.ValidateAccessToken(jwtConfig, strings.TrimSpace(tokenString))
			if err != nil {
				logger.Warn("Invalid access token", "error", err)
				writeError(w, "invalid token", http.StatusUnauthorized)
				return
			}

			identity, err := resolver.Resolve(r.Context(), claims)
			if err != nil {
				if errors.Is(err, handlers.ErrIdentityMismatch) {
					logger.Warn("Token no longer matches account", "error", err, "user_id", claims.UserID)
					writeError(w, "invalid token", http.StatusUnauthorized)
					return
				}
				logger.Error("Failed to resolve identity", "error", err, "user_id", claims.UserID)
				writeError(w, "internal server error", http.StatusInternalServerError)
				return
			}

			annotate(r.Context(), identity)
			logger.Debug("User authenticated", "user_id", identity.UserID, "tenant_id", identity.TenantID)

			next.ServeHTTP(w, r.WithContext(handlers.WithIdentity(r.Context(), identity)))
		})
	}
}
