package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/campussync/internal/client/api"
	"github.com/iudanet/campussync/internal/client/storage"
	"github.com/iudanet/campussync/internal/validation"
	pkgapi "github.com/iudanet/campussync/pkg/api"
)

// RegisterResult содержит результат регистрации
type RegisterResult struct {
	UserID   string
	Username string
	TenantID string
}

type service struct {
	apiClient api.ClientAPI
	sessions  storage.SessionStorage
	now       func() time.Time
	serverURL string
}

// NewService создает новый сервис авторизации
func NewService(apiClient api.ClientAPI, sessions storage.SessionStorage, serverURL string) Service {
	return &service{
		apiClient: apiClient,
		sessions:  sessions,
		now:       time.Now,
		serverURL: serverURL,
	}
}

// Register регистрирует нового пользователя
func (s *service) Register(ctx context.Context, username, password, tenantID string) (*RegisterResult, error) {
	// Валидация входных данных до обращения к серверу
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}
	if err := validation.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}

	resp, err := s.apiClient.Register(ctx, pkgapi.RegisterRequest{
		Username: username,
		Password: password,
		TenantID: tenantID,
	})
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}

	return &RegisterResult{
		UserID:   resp.UserID,
		Username: username,
		TenantID: resp.TenantID,
	}, nil
}

// Login выполняет аутентификацию и сохраняет сессию
func (s *service) Login(ctx context.Context, username, password string) (*storage.Session, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if password == "" {
		return nil, fmt.Errorf("invalid password: password cannot be empty")
	}

	resp, err := s.apiClient.Login(ctx, pkgapi.LoginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	session := &storage.Session{
		ExpiresAt:   s.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC(),
		Username:    username,
		TenantID:    resp.TenantID,
		AccessToken: resp.AccessToken,
		ServerURL:   s.serverURL,
	}
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// Logout удаляет локальную сессию; отсутствие сессии не ошибка
func (s *service) Logout(ctx context.Context) error {
	if err := s.sessions.DeleteSession(ctx); err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Session возвращает действующую сессию
func (s *service) Session(ctx context.Context) (*storage.Session, error) {
	session, err := s.sessions.GetSession(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.Expired(s.now()) {
		return session, ErrSessionExpired
	}
	return session, nil
}
