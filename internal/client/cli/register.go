package cli

import (
	"context"
	"fmt"
)

func (c *Cli) runRegister(ctx context.Context) error {
	c.io.Println("=== Registration ===")
	c.io.Println()

	username, err := c.io.ReadInput("Username: ")
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}

	tenantID, err := c.io.ReadInput("School (tenant id): ")
	if err != nil {
		return fmt.Errorf("failed to read tenant id: %w", err)
	}

	password, interactive, err := c.getPassword("Password (min 10 chars): ")
	if err != nil {
		return err
	}

	// Подтверждение нужно только при ручном вводе
	if interactive {
		confirm, err := c.io.ReadPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}

	c.io.Println()
	c.io.Println("Registering user...")

	result, err := c.authService.Register(ctx, username, password, tenantID)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Registration successful!")
	c.io.Printf("User ID: %s\n", result.UserID)
	c.io.Printf("Username: %s\n", result.Username)
	c.io.Printf("School: %s\n", result.TenantID)
	c.io.Println()
	c.io.Println("Please run 'campussync login' to start synchronizing.")

	return nil
}
