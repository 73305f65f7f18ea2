package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/iudanet/campussync/internal/client/auth"
	"github.com/iudanet/campussync/internal/client/data"
	"github.com/iudanet/campussync/internal/client/iocli"
	"github.com/iudanet/campussync/internal/client/sync"
)

// PasswordEnv задает пароль для неинтерактивного запуска
const PasswordEnv = "CAMPUSSYNC_PASSWORD"

// Passwords describes non-interactive password sources
type Passwords struct {
	FromFile string
	FromArgs string
}

// Cli dispatches client commands
type Cli struct {
	io          iocli.IO
	authService auth.Service
	syncService sync.Service
	dataService data.Service
	passwords   Passwords
}

// New creates the command dispatcher
func New(io iocli.IO, authService auth.Service, syncService sync.Service, dataService data.Service, passwords Passwords) *Cli {
	return &Cli{
		io:          io,
		authService: authService,
		syncService: syncService,
		dataService: dataService,
		passwords:   passwords,
	}
}

// getPassword retrieves the account password from various sources with priority:
// 1. Environment variable CAMPUSSYNC_PASSWORD
// 2. File given by --password-file
// 3. Command-line parameter --password
// 4. Interactive prompt (fallback)
// interactive reports whether the prompt was used.
func (c *Cli) getPassword(prompt string) (password string, interactive bool, err error) {
	// Priority 1: Environment variable
	if envPassword := os.Getenv(PasswordEnv); envPassword != "" {
		return envPassword, false, nil
	}

	// Priority 2: File
	if c.passwords.FromFile != "" {
		content, err := os.ReadFile(c.passwords.FromFile)
		if err != nil {
			return "", false, fmt.Errorf("failed to read password file: %w", err)
		}
		// Убираем trailing newline/whitespace
		password := strings.TrimSpace(string(content))
		if password == "" {
			return "", false, fmt.Errorf("password file is empty")
		}
		return password, false, nil
	}

	// Priority 3: CLI parameter
	if c.passwords.FromArgs != "" {
		return c.passwords.FromArgs, false, nil
	}

	// Priority 4: Interactive prompt (fallback)
	password, err = c.io.ReadPassword(prompt)
	if err != nil {
		return "", true, fmt.Errorf("failed to read password from stdin: %w", err)
	}
	if password == "" {
		return "", true, fmt.Errorf("password cannot be empty")
	}

	return password, true, nil
}

// PrintUsage prints command help
func PrintUsage(io iocli.IO) {
	io.Println("CampusSync Client")
	io.Println()
	io.Println("Usage:")
	io.Println("  campussync [OPTIONS] COMMAND")
	io.Println()
	io.Println("Options:")
	io.Println("  --version              Show version information")
	io.Println("  --server URL           Server URL (default: http://localhost:8080)")
	io.Println("  --db PATH              Path to local outbox database (default: campussync-client.db)")
	io.Println("  --device ID            Device id stamped on queued operations (default: hostname)")
	io.Println("  --password PASSWORD    Account password (not recommended, use env var or file)")
	io.Println("  --password-file PATH   Path to file containing the account password")
	io.Println("  --verbose              Log sync details to stderr")
	io.Println()
	io.Println("Password Priority (highest to lowest):")
	io.Println("  1. CAMPUSSYNC_PASSWORD environment variable")
	io.Println("  2. --password-file (file path)")
	io.Println("  3. --password (command line)")
	io.Println("  4. Interactive prompt (fallback)")
	io.Println()
	io.Println("Commands:")
	io.Println("  register               Register a new account in a school")
	io.Println("  login                  Login to server")
	io.Println("  logout                 Remove the local session")
	io.Println("  status                 Show session, schema and outbox status")
	io.Println("  enqueue <file|->       Queue change operations from a JSON file")
	io.Println("  push                   Send queued operations to the server")
	io.Println("  fingerprint [--pin]    Show the server schema fingerprint, optionally pin it")
	io.Println("  check                  Validate the pinned schema against the server")
	io.Println("  rejected [--clear]     List operations the server refused")
	io.Println()
	io.Println("Examples:")
	io.Println("  campussync login")
	io.Println("  campussync enqueue changes.json")
	io.Println("  campussync push")
	io.Println("  campussync --server https://sync.example.org fingerprint --pin")
}
