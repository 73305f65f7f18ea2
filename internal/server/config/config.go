// Package config loads server settings from flags, environment and .env.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the server configuration
type Config struct {
	Address          string
	DatabasePath     string
	AuditPath        string // пусто - аудит только в лог
	JWTSecret        string
	LogLevel         string
	LogFormat        string
	SeedTenant       string // id:name
	SchemaDir        string // пусто - миграции, встроенные в бинарник
	AccessTokenTTL   time.Duration
	PartitionTimeout time.Duration
	ShutdownTimeout  time.Duration
	MaxParallel      int
	RateLimit        int // запросов в минуту с одного IP
	TenantRateLimit  int // пакетов синхронизации в минуту на школу
	BcryptCost       int
	ShowVersion      bool
}

// Load reads .env (if present), then environment variables as defaults,
// then command line flags.
func Load(args []string) (*Config, error) {
	// отсутствие .env не ошибка
	_ = godotenv.Load()

	env := envReader{}
	cfg := &Config{}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&cfg.Address, "a", env.str("ADDRESS", ":8080"), "HTTP listen address")
	fs.StringVar(&cfg.DatabasePath, "d", env.str("DATABASE_PATH", "campussync.db"), "SQLite database path")
	fs.StringVar(&cfg.AuditPath, "audit", env.str("AUDIT_PATH", "campussync-audit.db"), "bbolt audit log path, empty to log only")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", env.str("JWT_SECRET", ""), "HMAC secret for access tokens")
	fs.StringVar(&cfg.LogLevel, "log-level", env.str("LOG_LEVEL", "info"), "debug|info|warn|error")
	fs.StringVar(&cfg.LogFormat, "log-format", env.str("LOG_FORMAT", "text"), "text|json")
	fs.StringVar(&cfg.SchemaDir, "schema-dir", env.str("SCHEMA_DIR", ""), "directory with canonical *.sql migrations, read on startup and on schema reload")
	fs.StringVar(&cfg.SeedTenant, "seed-tenant", env.str("SEED_TENANT", ""), "create an active tenant at startup, id:name")
	fs.DurationVar(&cfg.AccessTokenTTL, "token-ttl", env.duration("ACCESS_TOKEN_TTL", 15*time.Minute), "access token lifetime")
	fs.DurationVar(&cfg.PartitionTimeout, "partition-timeout", env.duration("PARTITION_TIMEOUT", 30*time.Second), "per-partition transaction timeout")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", env.duration("SHUTDOWN_TIMEOUT", 10*time.Second), "graceful shutdown timeout")
	fs.IntVar(&cfg.MaxParallel, "max-parallel", env.integer("MAX_PARALLEL_PARTITIONS", 4), "partitions applied concurrently")
	fs.IntVar(&cfg.RateLimit, "rate-limit", env.integer("RATE_LIMIT", 120), "requests per minute per client IP")
	fs.IntVar(&cfg.TenantRateLimit, "tenant-rate-limit", env.integer("TENANT_RATE_LIMIT", 60), "authenticated requests per minute per tenant")
	fs.IntVar(&cfg.BcryptCost, "bcrypt-cost", env.integer("BCRYPT_COST", 0), "bcrypt cost, 0 for default")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "show version information")

	if err := env.err(); err != nil {
		return nil, err
	}
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	return cfg, nil
}

// Validate checks settings the server cannot start without
func (c *Config) Validate() error {
	var errs []error

	if c.Address == "" {
		errs = append(errs, errors.New("address is required"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("access token ttl must be positive"))
	}
	if c.PartitionTimeout <= 0 {
		errs = append(errs, errors.New("partition timeout must be positive"))
	}
	if c.MaxParallel <= 0 {
		errs = append(errs, errors.New("max parallel partitions must be positive"))
	}
	if c.RateLimit <= 0 || c.TenantRateLimit <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.SchemaDir != "" {
		if info, err := os.Stat(c.SchemaDir); err != nil || !info.IsDir() {
			errs = append(errs, fmt.Errorf("schema dir %q is not a directory", c.SchemaDir))
		}
	}
	if c.SeedTenant != "" {
		if _, _, err := c.Seed(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Level returns the slog level of LogLevel
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return level, nil
}

// Seed splits SeedTenant into id and name. A missing name repeats the id.
func (c *Config) Seed() (id, name string, err error) {
	id, name, _ = strings.Cut(c.SeedTenant, ":")
	id, name = strings.TrimSpace(id), strings.TrimSpace(name)
	if id == "" {
		return "", "", fmt.Errorf("seed tenant %q has no id", c.SeedTenant)
	}
	if name == "" {
		name = id
	}
	return id, name, nil
}

// envReader collects parse errors of typed environment variables
type envReader struct {
	errs []error
}

func (e *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return d
}

func (e *envReader) integer(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}
