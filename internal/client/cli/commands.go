package cli

import (
	"context"
	"fmt"
)

// Run executes one command
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "register":
		return c.runRegister(ctx)
	case "login":
		return c.runLogin(ctx)
	case "logout":
		return c.runLogout(ctx)
	case "status":
		return c.runStatus(ctx)
	case "enqueue":
		return c.runEnqueue(ctx, args)
	case "push":
		return c.runPush(ctx)
	case "fingerprint":
		return c.runFingerprint(ctx, args)
	case "check":
		return c.runCheck(ctx)
	case "rejected":
		return c.runRejected(ctx, args)
	case "help":
		PrintUsage(c.io)
		return nil
	default:
		PrintUsage(c.io)
		return fmt.Errorf("unknown command: %s", command)
	}
}
