package storage

import (
	"context"
	"time"
)

// SessionStorage хранит сессию входа на клиенте
type SessionStorage interface {
	// SaveSession stores the session, replacing any previous one
	SaveSession(ctx context.Context, session *Session) error

	// GetSession returns ErrSessionNotFound if nobody is logged in
	GetSession(ctx context.Context) (*Session, error)

	// DeleteSession removes the stored session (logout)
	DeleteSession(ctx context.Context) error
}

// Session represents a stored login
type Session struct {
	ExpiresAt   time.Time `json:"expires_at"`
	Username    string    `json:"username"`
	TenantID    string    `json:"tenant_id"`
	AccessToken string    `json:"access_token"`
	ServerURL   string    `json:"server_url"`
}

// Expired reports whether the token is past its expiry at now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
