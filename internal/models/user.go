package models

import "time"

// Account and tenant statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Tenant is an isolated school (or group of schools) sharing the store.
type Tenant struct {
	CreatedAt time.Time `json:"created_at"` // время создания
	ID        string    `json:"id"`         // идентификатор арендатора
	Name      string    `json:"name"`       // отображаемое имя
	Status    string    `json:"status"`     // active | suspended
}

// Active reports whether the tenant may synchronise.
func (t *Tenant) Active() bool { return t.Status == StatusActive }

// User представляет пользователя в системе
type User struct {
	CreatedAt    time.Time  `json:"created_at"`    // время создания
	LastLogin    *time.Time `json:"last_login"`    // время последнего входа
	ID           string     `json:"id"`            // UUID пользователя
	TenantID     string     `json:"tenant_id"`     // арендатор пользователя
	Username     string     `json:"username"`      // уникальный username
	PasswordHash string     `json:"password_hash"` // bcrypt хеш пароля
	Status       string     `json:"status"`        // active | suspended
}

// Identity is the resolved caller of a sync request.
type Identity struct {
	UserID        string
	TenantID      string
	AccountStatus string
}

// Active reports whether the caller's account may synchronise.
func (i Identity) Active() bool { return i.AccountStatus == StatusActive }
