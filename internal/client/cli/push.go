package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/campussync/internal/client/api"
)

func (c *Cli) runPush(ctx context.Context) error {
	c.io.Println("=== Push ===")
	c.io.Println()

	result, err := c.syncService.Push(ctx)
	if err != nil {
		if errors.Is(err, api.ErrSchemaIncompatible) {
			c.io.Println("✗ The server refused the batch: the replica schema does not match.")
			c.io.Println("  Upgrade the replica, then run 'campussync fingerprint --pin'.")
		}
		return fmt.Errorf("push failed: %w", err)
	}

	if result.Pushed == 0 {
		c.io.Println("Outbox is empty, nothing to push.")
		return nil
	}

	if result.SchemaStatus == "WARNING" {
		c.io.Println("⚠️  Schema accepted with warnings, run 'campussync check' for details.")
	}

	c.io.Printf("Pushed:    %d operation(s)\n", result.Pushed)
	c.io.Printf("Applied:   %d\n", result.Succeeded)
	if len(result.Rejected) > 0 {
		c.io.Printf("Rejected:  %d\n", len(result.Rejected))
		for _, r := range result.Rejected {
			c.io.Printf("  %s  %s  %s\n", r.Operation.ID, r.Status, r.Reason)
		}
	}
	if result.Retrying > 0 {
		c.io.Printf("Retrying:  %d (kept in outbox)\n", result.Retrying)
	}

	return nil
}
