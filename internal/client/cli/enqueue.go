package cli

import (
	"context"
	"fmt"
	"io"
	"os"
)

// stdin можно подменить в тестах
var stdin io.Reader = os.Stdin

func (c *Cli) runEnqueue(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: campussync enqueue <file.json|->")
	}

	var r io.Reader
	if args[0] == "-" {
		r = stdin
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		r = f
	}

	ops, err := c.dataService.Enqueue(ctx, r)
	if err != nil {
		return err
	}

	c.io.Printf("✓ Queued %d operation(s)\n", len(ops))
	for _, op := range ops {
		c.io.Printf("  %s  %-6s %s/%s\n", op.Operation.ID, op.Operation.OperationType, op.Operation.TableName, op.Operation.RecordID)
	}

	return nil
}
