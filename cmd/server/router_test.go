package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iudanet/campussync/internal/entity"
	"github.com/iudanet/campussync/internal/models"
	"github.com/iudanet/campussync/internal/schema"
	"github.com/iudanet/campussync/internal/server/audit"
	"github.com/iudanet/campussync/internal/server/config"
	"github.com/iudanet/campussync/internal/server/handlers"
	"github.com/iudanet/campussync/internal/server/middleware"
	"github.com/iudanet/campussync/internal/server/storage"
	"github.com/iudanet/campussync/internal/server/storage/sqlite"
	"github.com/iudanet/campussync/internal/server/syncer"
	"github.com/iudanet/campussync/pkg/api"
)

type testServer struct {
	*httptest.Server
	store     *sqlite.Storage
	validator *schema.Validator
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{SeedTenant: "school-1:North High"}
	require.NoError(t, seedTenant(ctx, cfg, store, logger))
	// повторный запуск не должен падать
	require.NoError(t, seedTenant(ctx, cfg, store, logger))

	provider, err := schema.NewProvider(sqlite.Migrations(), sqlite.MigrationsDir)
	require.NoError(t, err)
	validator := schema.NewValidator(provider, store)

	bolt, err := audit.NewBoltRecorder(filepath.Join(t.TempDir(), "audit.db"), 16, logger)
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	service := syncer.NewService(validator, store, store, bolt, logger, syncer.Options{})

	ipLimit := middleware.NewRateLimiter(1000, time.Minute, logger)
	t.Cleanup(ipLimit.Stop)
	tenantLimit := middleware.NewRateLimiter(1000, time.Minute, logger)
	t.Cleanup(tenantLimit.Stop)

	srv := httptest.NewServer(newRouter(deps{
		logger:      logger,
		store:       store,
		validator:   validator,
		service:     service,
		auditReader: bolt,
		jwt:         handlers.JWTConfig{Secret: []byte("router-test-secret"), AccessTokenTTL: time.Minute},
		version:     "test",
		bcryptCost:  bcrypt.MinCost,
		ipLimit:     ipLimit,
		tenantLimit: tenantLimit,
	}))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, store: store, validator: validator}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()

	resp := s.do(t, http.MethodPost, "/api/v1/auth/register", "", api.RegisterRequest{
		Username: "registrar",
		Password: "correct horse battery",
		TenantID: "school-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/v1/auth/login", "", api.LoginRequest{
		Username: "registrar",
		Password: "correct horse battery",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	token := decode[api.TokenResponse](t, resp)
	assert.Equal(t, "school-1", token.TenantID)
	require.NotEmpty(t, token.AccessToken)
	return token.AccessToken
}

func studentOp(id, recordID, firstName string) api.ChangeOperation {
	return api.ChangeOperation{
		ID:            id,
		TableName:     "students",
		RecordID:      recordID,
		OperationType: "INSERT",
		DeviceID:      "tablet-7",
		Payload: json.RawMessage(`{"academic_year_id": "2024", "registration_number": "R-` + recordID +
			`", "first_name": "` + firstName + `", "last_name": "Lovelace"}`),
	}
}

func TestRouter_Health(t *testing.T) {
	s := setupServer(t)

	resp := s.do(t, http.MethodGet, "/api/v1/health", "", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
	health := decode[api.HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
}

func TestRouter_SyncRoundTrip(t *testing.T) {
	s := setupServer(t)
	token := s.login(t)

	resp := s.do(t, http.MethodGet, "/api/v1/schema/fingerprint", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fp := decode[api.FingerprintResponse](t, resp)

	batch := api.SyncBatchRequest{
		TenantID:          "school-1",
		SchemaFingerprint: fp.Hash,
		SchemaVersion:     fp.Version,
		Operations: []api.ChangeOperation{
			studentOp("op-1", "s1", "Ada"),
			studentOp("op-2", "s2", "Grace"),
		},
	}

	resp = s.do(t, http.MethodPost, "/api/v1/sync/batch", token, batch)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[api.SyncBatchResponse](t, resp)

	assert.True(t, result.Success)
	assert.Equal(t, "OK", result.SchemaValidationStatus)
	assert.Equal(t, 2, result.TotalOperations)
	assert.Equal(t, 2, result.SuccessfulOperations)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "s1", result.Results[0].ServerRecordID)

	// повтор того же пакета отвечает из журнала идемпотентности
	resp = s.do(t, http.MethodPost, "/api/v1/sync/batch", token, batch)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	replay := decode[api.SyncBatchResponse](t, resp)
	assert.Equal(t, 2, replay.SuccessfulOperations)

	var record *models.Record
	err := s.store.RunPartition(context.Background(), entity.KindStudents, func(tx storage.PartitionTx) error {
		var err error
		record, err = tx.Records().Find(context.Background(), "school-1", "s1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.Version)

	require.Eventually(t, func() bool {
		resp := s.do(t, http.MethodGet, "/api/v1/audit/events?limit=10", token, nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		return len(decode[[]audit.Event](t, resp)) > 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRouter_SyncSchemaMismatch(t *testing.T) {
	s := setupServer(t)
	token := s.login(t)

	resp := s.do(t, http.MethodPost, "/api/v1/sync/batch", token, api.SyncBatchRequest{
		TenantID:          "school-1",
		SchemaFingerprint: "deadbeef",
		Operations:        []api.ChangeOperation{studentOp("op-1", "s1", "Ada")},
	})

	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	result := decode[api.SyncBatchResponse](t, resp)
	assert.False(t, result.Success)
	assert.Equal(t, "INCOMPATIBLE", result.SchemaValidationStatus)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "VALIDATION_FAILED", result.Results[0].Status)
	assert.Equal(t, 1, result.FailedOperations)
}

func TestRouter_SyncSuspendedTenant(t *testing.T) {
	s := setupServer(t)
	token := s.login(t)

	require.NoError(t, s.store.UpdateTenantStatus(context.Background(), "school-1", models.StatusSuspended))

	canonical := s.validator.Provider().Canonical()
	resp := s.do(t, http.MethodPost, "/api/v1/sync/batch", token, api.SyncBatchRequest{
		TenantID:          "school-1",
		SchemaFingerprint: canonical.Fingerprint,
		SchemaVersion:     canonical.Version,
		Operations:        []api.ChangeOperation{studentOp("op-1", "s1", "Ada")},
	})

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	s := setupServer(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/sync/batch"},
		{http.MethodPost, "/api/v1/schema/validate"},
		{http.MethodPost, "/api/v1/schema/compare"},
		{http.MethodPost, "/api/v1/schema/reload"},
		{http.MethodGet, "/api/v1/audit/events"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := s.do(t, tt.method, tt.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	s := setupServer(t)

	resp := s.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
