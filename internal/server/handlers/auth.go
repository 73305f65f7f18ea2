package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/campussync/internal/crypto"
	"github.com/iudanet/campussync/internal/models"
	"github.com/iudanet/campussync/internal/server/storage"
	"github.com/iudanet/campussync/internal/validation"
	"github.com/iudanet/campussync/pkg/api"
)

// AuthHandler обрабатывает запросы авторизации
type AuthHandler struct {
	responder
	userStorage   storage.UserStorage
	tenantStorage storage.TenantStorage
	now           func() time.Time
	jwtConfig     JWTConfig
	bcryptCost    int
}

// NewAuthHandler создает новый handler для авторизации.
// bcryptCost <= 0 означает стоимость по умолчанию.
func NewAuthHandler(
	logger *slog.Logger,
	userStorage storage.UserStorage,
	tenantStorage storage.TenantStorage,
	jwtConfig JWTConfig,
	bcryptCost int,
) *AuthHandler {
	return &AuthHandler{
		responder:     responder{logger: logger},
		userStorage:   userStorage,
		tenantStorage: tenantStorage,
		jwtConfig:     jwtConfig,
		bcryptCost:    bcryptCost,
		now:           time.Now,
	}
}

// Register обрабатывает POST /api/v1/auth/register
// Регистрация нового пользователя в активной школе
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode register request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	for _, err := range []error{
		validation.ValidateUsername(req.Username),
		validation.ValidatePassword(req.Password),
		validation.ValidateTenantID(req.TenantID),
	} {
		if err != nil {
			h.logger.WarnContext(ctx, "invalid registration", slog.String("username", req.Username), slog.Any("error", err))
			h.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	// Школа должна существовать и быть активной
	tenant, err := h.tenantStorage.GetTenant(ctx, req.TenantID)
	if err != nil {
		if errors.Is(err, storage.ErrTenantNotFound) {
			h.logger.WarnContext(ctx, "registration for unknown tenant", slog.String("tenant_id", req.TenantID))
			h.sendError(w, "unknown tenant", http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get tenant", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !tenant.Active() {
		h.logger.WarnContext(ctx, "registration for inactive tenant", slog.String("tenant_id", req.TenantID))
		h.sendError(w, "tenant is not active", http.StatusForbidden)
		return
	}

	passwordHash, err := crypto.HashPassword(req.Password, h.bcryptCost)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to hash password", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	user := &models.User{
		ID:           uuid.New().String(),
		TenantID:     tenant.ID,
		Username:     req.Username,
		PasswordHash: passwordHash,
		Status:       models.StatusActive,
		CreatedAt:    h.now().UTC(),
	}

	if err := h.userStorage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			h.logger.WarnContext(ctx, "user already exists", slog.String("username", req.Username))
			h.sendError(w, "username already taken", http.StatusConflict)
			return
		}
		h.logger.ErrorContext(ctx, "failed to create user", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "user registered successfully",
		slog.String("username", user.Username),
		slog.String("user_id", user.ID),
		slog.String("tenant_id", user.TenantID))

	h.sendJSON(w, api.RegisterResponse{
		UserID:   user.ID,
		TenantID: user.TenantID,
		Message:  "User registered successfully",
	}, http.StatusCreated)
}

// Login обрабатывает POST /api/v1/auth/login
// Аутентификация пользователя и выдача access token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode login request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidateUsername(req.Username); err != nil {
		h.logger.WarnContext(ctx, "invalid username", slog.String("username", req.Username), slog.Any("error", err))
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Password == "" {
		h.sendError(w, "password is required", http.StatusBadRequest)
		return
	}

	user, err := h.userStorage.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			h.logger.WarnContext(ctx, "login failed: user not found", slog.String("username", req.Username))
			h.sendError(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := crypto.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		if errors.Is(err, crypto.ErrInvalidPassword) {
			h.logger.WarnContext(ctx, "login failed: invalid password", slog.String("username", req.Username))
			h.sendError(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to verify password", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if user.Status != models.StatusActive {
		h.logger.WarnContext(ctx, "login failed: account not active",
			slog.String("username", req.Username), slog.String("status", user.Status))
		h.sendError(w, "account is not active", http.StatusForbidden)
		return
	}

	now := h.now()
	accessToken, expiresIn, err := GenerateAccessToken(h.jwtConfig, user, now)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate access token", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.userStorage.UpdateLastLogin(ctx, user.ID, now.UTC()); err != nil {
		// Не критичная ошибка, логируем но не прерываем
		h.logger.WarnContext(ctx, "failed to update last login", slog.Any("error", err))
	}

	h.logger.InfoContext(ctx, "user logged in successfully",
		slog.String("username", user.Username),
		slog.String("user_id", user.ID),
		slog.String("tenant_id", user.TenantID))

	h.sendJSON(w, api.TokenResponse{
		AccessToken: accessToken,
		TenantID:    user.TenantID,
		ExpiresIn:   expiresIn,
	}, http.StatusOK)
}
