// Package validation checks account and tenant identifiers at the HTTP boundary.
package validation

import (
	"fmt"
	"regexp"
)

const (
	// MinUsernameLen минимальная длина username
	MinUsernameLen = 3
	// MaxUsernameLen максимальная длина username
	MaxUsernameLen = 32
	// MinPasswordLen минимальная длина пароля
	MinPasswordLen = 10
	// MaxPasswordLen предел bcrypt в байтах
	MaxPasswordLen = 72
	// MaxTenantIDLen максимальная длина идентификатора школы
	MaxTenantIDLen = 64
)

var (
	// usernamePattern: латиница, цифры, точка и подчеркивание, первый символ не точка
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9._]*$`)
	// tenantIDPattern: строчные латинские буквы, цифры и дефис
	tenantIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
)

// ValidateUsername проверяет формат username
func ValidateUsername(username string) error {
	switch {
	case username == "":
		return fmt.Errorf("username cannot be empty")
	case len(username) < MinUsernameLen:
		return fmt.Errorf("username must be at least %d characters long", MinUsernameLen)
	case len(username) > MaxUsernameLen:
		return fmt.Errorf("username must not exceed %d characters", MaxUsernameLen)
	case !usernamePattern.MatchString(username):
		return fmt.Errorf("username can only contain letters, numbers, dots and underscores")
	}
	return nil
}

// ValidatePassword проверяет длину пароля в пределах, которые принимает bcrypt
func ValidatePassword(password string) error {
	switch {
	case password == "":
		return fmt.Errorf("password cannot be empty")
	case len(password) < MinPasswordLen:
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	case len(password) > MaxPasswordLen:
		return fmt.Errorf("password must not exceed %d bytes", MaxPasswordLen)
	}
	return nil
}

// ValidateTenantID проверяет идентификатор арендатора
func ValidateTenantID(tenantID string) error {
	switch {
	case tenantID == "":
		return fmt.Errorf("tenant id cannot be empty")
	case len(tenantID) > MaxTenantIDLen:
		return fmt.Errorf("tenant id must not exceed %d characters", MaxTenantIDLen)
	case !tenantIDPattern.MatchString(tenantID):
		return fmt.Errorf("tenant id can only contain lowercase letters, numbers and dashes")
	}
	return nil
}
