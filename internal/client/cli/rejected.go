package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"
)

func (c *Cli) runRejected(ctx context.Context, args []string) error {
	if len(args) == 1 && args[0] == "--clear" {
		n, err := c.dataService.ClearRejected(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear rejected operations: %w", err)
		}
		c.io.Printf("✓ Cleared %d rejected operation(s)\n", n)
		return nil
	}
	if len(args) > 0 {
		return fmt.Errorf("usage: campussync rejected [--clear]")
	}

	rejected, err := c.dataService.Rejected(ctx)
	if err != nil {
		return fmt.Errorf("failed to read rejected operations: %w", err)
	}

	if len(rejected) == 0 {
		c.io.Println("No rejected operations.")
		return nil
	}

	for _, r := range rejected {
		c.io.Printf("%s  %s  %s/%s  %s\n",
			r.ResolvedAt.Format(time.RFC3339), r.Status, r.Operation.TableName, r.Operation.RecordID, r.Operation.ID)
		c.io.Printf("    %s\n", r.Reason)
		for _, k := range slices.Sorted(maps.Keys(r.ServerData)) {
			c.io.Printf("    server %s = %v\n", k, r.ServerData[k])
		}
	}

	return nil
}
