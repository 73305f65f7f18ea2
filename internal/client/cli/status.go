package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/campussync/internal/client/auth"
	"github.com/iudanet/campussync/internal/client/storage"
)

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Status ===")
	c.io.Println()

	session, err := c.authService.Session(ctx)
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		c.io.Println("Session: Not authenticated")
		c.io.Println("Run 'campussync login' to authenticate.")
	case errors.Is(err, auth.ErrSessionExpired):
		c.io.Printf("Session: %s@%s\n", session.Username, session.TenantID)
		c.io.Println("⚠️  Token has expired. Please login again.")
	case err != nil:
		return fmt.Errorf("failed to check session: %w", err)
	default:
		c.io.Printf("Session: %s@%s\n", session.Username, session.TenantID)
		c.io.Printf("Server: %s\n", session.ServerURL)
		c.io.Printf("Token expires: %s\n", session.ExpiresAt.Format(time.RFC3339))
	}

	c.io.Println()
	pin, err := c.syncService.SchemaPin(ctx)
	switch {
	case errors.Is(err, storage.ErrSchemaNotPinned):
		c.io.Println("Schema: not pinned (pinned on first push)")
	case err != nil:
		c.io.Printf("Warning: Failed to read schema pin: %v\n", err)
	default:
		c.io.Printf("Schema: %s (version %d)\n", pin.Fingerprint, pin.Version)
	}

	// Получаем количество операций, ожидающих отправки
	pendingCount, err := c.syncService.PendingCount(ctx)
	if err != nil {
		// Не прерываем выполнение
		c.io.Printf("Warning: Failed to get pending count: %v\n", err)
	} else if pendingCount > 0 {
		c.io.Printf("⚠️  Pending: %d operation(s) waiting to be pushed\n", pendingCount)
		c.io.Println("Run 'campussync push' to synchronize with server.")
	} else {
		c.io.Println("✓ Outbox is empty")
	}

	rejected, err := c.dataService.Rejected(ctx)
	if err != nil {
		c.io.Printf("Warning: Failed to read rejected operations: %v\n", err)
	} else if len(rejected) > 0 {
		c.io.Printf("⚠️  Rejected: %d operation(s), see 'campussync rejected'\n", len(rejected))
	}

	return nil
}
