package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/iudanet/campussync/internal/schema"
	"github.com/iudanet/campussync/internal/server/handlers"
	"github.com/iudanet/campussync/internal/server/middleware"
	"github.com/iudanet/campussync/internal/server/storage/sqlite"
	"github.com/iudanet/campussync/internal/server/syncer"
)

// deps are the collaborators the HTTP surface is built from
type deps struct {
	logger      *slog.Logger
	store       *sqlite.Storage
	validator   *schema.Validator
	service     *syncer.Service
	auditReader handlers.AuditReader // nil when audit is log-only
	jwt         handlers.JWTConfig
	version     string
	bcryptCost  int
	ipLimit     *middleware.RateLimiter
	tenantLimit *middleware.RateLimiter
}

func newRouter(d deps) http.Handler {
	authHandler := handlers.NewAuthHandler(d.logger, d.store, d.store, d.jwt, d.bcryptCost)
	syncHandler := handlers.NewSyncHandler(d.logger, d.service)
	schemaHandler := handlers.NewSchemaHandler(d.logger, d.validator)
	healthHandler := handlers.NewHealthHandler(d.logger, d.store, d.version)

	r := mux.NewRouter()
	r.Use(
		middleware.RecoveryMiddleware(d.logger),
		middleware.LoggingMiddleware(d.logger, "/api/v1/health"),
		d.ipLimit.Middleware(middleware.ClientIP),
	)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	api.HandleFunc("/auth/register", authHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", authHandler.Login).Methods(http.MethodPost)
	api.HandleFunc("/schema/fingerprint", schemaHandler.Fingerprint).Methods(http.MethodGet)

	protected := api.PathPrefix("").Subrouter()
	protected.Use(
		middleware.AuthMiddleware(d.logger, d.jwt, handlers.NewIdentityResolver(d.store)),
		d.tenantLimit.Middleware(middleware.TenantKey),
	)
	protected.HandleFunc("/sync/batch", syncHandler.Batch).Methods(http.MethodPost)
	protected.HandleFunc("/schema/validate", schemaHandler.Validate).Methods(http.MethodPost)
	protected.HandleFunc("/schema/compare", schemaHandler.Compare).Methods(http.MethodPost)
	protected.HandleFunc("/schema/reload", schemaHandler.Reload).Methods(http.MethodPost)

	if d.auditReader != nil {
		auditHandler := handlers.NewAuditHandler(d.logger, d.auditReader)
		protected.HandleFunc("/audit/events", auditHandler.Events).Methods(http.MethodGet)
	}

	return r
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute, // пакет может ждать таймаута партиций
		IdleTimeout:       60 * time.Second,
	}
}
