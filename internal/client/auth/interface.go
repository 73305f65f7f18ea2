package auth

import (
	"context"
	"errors"

	"github.com/iudanet/campussync/internal/client/storage"
)

var (
	// ErrNotAuthenticated означает, что сессия не сохранена
	ErrNotAuthenticated = errors.New("not authenticated, run 'campussync login' first")

	// ErrSessionExpired означает, что токен истек
	ErrSessionExpired = errors.New("session has expired, run 'campussync login' again")
)

//go:generate moq -out service_mock.go . Service

// Service defines the main interface for authentication operations
type Service interface {
	// Register создает учетную запись в арендаторе
	Register(ctx context.Context, username, password, tenantID string) (*RegisterResult, error)

	// Login выполняет вход и сохраняет сессию
	Login(ctx context.Context, username, password string) (*storage.Session, error)

	// Logout удаляет локальную сессию
	Logout(ctx context.Context) error

	// Session returns the stored session; ErrNotAuthenticated or
	// ErrSessionExpired when it cannot be used
	Session(ctx context.Context) (*storage.Session, error)
}
