package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/campussync/internal/client/storage"
)

func (c *Cli) runFingerprint(ctx context.Context, args []string) error {
	pinRequested := len(args) == 1 && args[0] == "--pin"
	if len(args) > 0 && !pinRequested {
		return fmt.Errorf("usage: campussync fingerprint [--pin]")
	}

	if pinRequested {
		pin, err := c.syncService.Pin(ctx)
		if err != nil {
			return fmt.Errorf("failed to pin schema: %w", err)
		}
		c.io.Printf("✓ Pinned %s (version %d)\n", pin.Fingerprint, pin.Version)
		return nil
	}

	server, err := c.syncService.ServerSchema(ctx)
	if err != nil {
		return fmt.Errorf("failed to get fingerprint: %w", err)
	}
	c.io.Printf("Server:    %s (version %d)\n", server.Fingerprint, server.Version)

	pin, err := c.syncService.SchemaPin(ctx)
	switch {
	case errors.Is(err, storage.ErrSchemaNotPinned):
		c.io.Println("Pinned:    none")
	case err != nil:
		return fmt.Errorf("failed to read schema pin: %w", err)
	default:
		c.io.Printf("Pinned:    %s (version %d)\n", pin.Fingerprint, pin.Version)
		if pin.Fingerprint != server.Fingerprint {
			c.io.Println("⚠️  Replica schema differs from the server, pushes will be refused.")
		}
	}

	return nil
}

func (c *Cli) runCheck(ctx context.Context) error {
	resp, err := c.syncService.CheckSchema(ctx)
	if err != nil {
		return fmt.Errorf("schema check failed: %w", err)
	}

	c.io.Printf("Status:    %s\n", resp.Status)
	c.io.Printf("Replica:   %s (version %d)\n", resp.ReplicaFingerprint, resp.ReplicaVersion)
	c.io.Printf("Canonical: %s (version %d)\n", resp.CanonicalFingerprint, resp.CanonicalVersion)
	for _, e := range resp.Errors {
		c.io.Printf("  error:   %s\n", e)
	}
	for _, w := range resp.Warnings {
		c.io.Printf("  warning: %s\n", w)
	}

	if !resp.IsValid {
		return fmt.Errorf("replica schema is incompatible")
	}
	return nil
}
