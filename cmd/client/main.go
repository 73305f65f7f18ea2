package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/campussync/internal/client/api"
	"github.com/iudanet/campussync/internal/client/auth"
	"github.com/iudanet/campussync/internal/client/cli"
	"github.com/iudanet/campussync/internal/client/data"
	"github.com/iudanet/campussync/internal/client/iocli"
	"github.com/iudanet/campussync/internal/client/storage/boltdb"
	"github.com/iudanet/campussync/internal/client/sync"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	hostname, _ := os.Hostname()

	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "http://localhost:8080", "Server URL")
	dbPath := flag.String("db", "campussync-client.db", "Path to local outbox database")
	deviceID := flag.String("device", hostname, "Device id stamped on queued operations")
	password := flag.String("password", "", "Account password (not recommended, use env var or file)")
	passwordFile := flag.String("password-file", "", "Path to file containing the account password")
	verbose := flag.Bool("verbose", false, "Log sync details to stderr")

	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		return 0
	}

	stdio := iocli.NewStdio()

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage(stdio)
		return 1
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Открываем BoltDB storage
	store, err := boltdb.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	apiClient := api.NewClient(*serverURL)
	authService := auth.NewService(apiClient, store, *serverURL)
	syncService := sync.NewService(apiClient, authService, store, logger, sync.DefaultBatchSize)
	dataService := data.NewService(store, *deviceID)

	c := cli.New(stdio, authService, syncService, dataService, cli.Passwords{
		FromFile: *passwordFile,
		FromArgs: *password,
	})

	if err := c.Run(ctx, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printVersion() {
	fmt.Printf("CampusSync Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
