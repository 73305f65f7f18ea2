package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/campussync/internal/models"
	"github.com/iudanet/campussync/internal/schema"
	"github.com/iudanet/campussync/internal/server/audit"
	"github.com/iudanet/campussync/internal/server/config"
	"github.com/iudanet/campussync/internal/server/handlers"
	"github.com/iudanet/campussync/internal/server/middleware"
	"github.com/iudanet/campussync/internal/server/storage"
	"github.com/iudanet/campussync/internal/server/storage/sqlite"
	"github.com/iudanet/campussync/internal/server/syncer"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if cfg.ShowVersion {
		printVersion()
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := sqlite.New(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	if err := seedTenant(ctx, cfg, store, logger); err != nil {
		return err
	}

	src, dir := schemaSource(cfg)
	provider, err := schema.NewProvider(src, dir)
	if err != nil {
		return fmt.Errorf("failed to load canonical schema: %w", err)
	}
	canonical := provider.Canonical()
	logger.Info("Canonical schema loaded", "fingerprint", canonical.Fingerprint, "version", canonical.Version, "schema_dir", cfg.SchemaDir)

	validator := schema.NewValidator(provider, store)

	var (
		recorder    audit.Recorder
		auditReader handlers.AuditReader
	)
	if cfg.AuditPath == "" {
		recorder = audit.NewLogRecorder(logger)
	} else {
		bolt, err := audit.NewBoltRecorder(cfg.AuditPath, audit.DefaultBuffer, logger)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		defer func() {
			if err := bolt.Close(); err != nil {
				logger.Error("Failed to close audit log", "error", err)
			}
		}()
		recorder, auditReader = bolt, bolt
	}

	service := syncer.NewService(validator, store, store, recorder, logger, syncer.Options{
		PartitionTimeout: cfg.PartitionTimeout,
		MaxParallel:      cfg.MaxParallel,
	})

	ipLimit := middleware.NewRateLimiter(cfg.RateLimit, time.Minute, logger)
	defer ipLimit.Stop()
	tenantLimit := middleware.NewRateLimiter(cfg.TenantRateLimit, time.Minute, logger)
	defer tenantLimit.Stop()

	srv := newHTTPServer(cfg.Address, newRouter(deps{
		logger:      logger,
		store:       store,
		validator:   validator,
		service:     service,
		auditReader: auditReader,
		jwt: handlers.JWTConfig{
			Secret:         []byte(cfg.JWTSecret),
			AccessTokenTTL: cfg.AccessTokenTTL,
		},
		version:     Version,
		bcryptCost:  cfg.BcryptCost,
		ipLimit:     ipLimit,
		tenantLimit: tenantLimit,
	}))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", cfg.Address, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

// seedTenant creates the configured tenant if it does not exist yet
func seedTenant(ctx context.Context, cfg *config.Config, tenants storage.TenantStorage, logger *slog.Logger) error {
	if cfg.SeedTenant == "" {
		return nil
	}

	id, name, err := cfg.Seed()
	if err != nil {
		return err
	}

	err = tenants.CreateTenant(ctx, &models.Tenant{
		ID:        id,
		Name:      name,
		Status:    models.StatusActive,
		CreatedAt: time.Now().UTC(),
	})
	switch {
	case err == nil:
		logger.Info("Tenant seeded", "tenant_id", id, "name", name)
	case errors.Is(err, storage.ErrTenantAlreadyExists):
		logger.Debug("Seed tenant already exists", "tenant_id", id)
	default:
		return fmt.Errorf("failed to seed tenant: %w", err)
	}

	return nil
}

// schemaSource picks the canonical definition. Embedded migrations never
// change at runtime, so schema reload only has an effect with -schema-dir.
func schemaSource(cfg *config.Config) (fs.FS, string) {
	if cfg.SchemaDir != "" {
		return os.DirFS(cfg.SchemaDir), "."
	}
	return sqlite.Migrations(), sqlite.MigrationsDir
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.Level()
	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func printVersion() {
	fmt.Printf("CampusSync Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
