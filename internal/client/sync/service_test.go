package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/campussync/internal/client/api"
	"github.com/iudanet/campussync/internal/client/auth"
	"github.com/iudanet/campussync/internal/client/storage"
	"github.com/iudanet/campussync/internal/client/storage/boltdb"
	pkgapi "github.com/iudanet/campussync/pkg/api"
)

// fakeAPI implements api.ClientAPI for testing
type fakeAPI struct {
	push         func(req pkgapi.SyncBatchRequest) (*pkgapi.SyncBatchResponse, error)
	fingerprint  *pkgapi.FingerprintResponse
	requests     []pkgapi.SyncBatchRequest
	validateReq  pkgapi.ValidateSchemaRequest
	fingerprints int
}

func (f *fakeAPI) Register(ctx context.Context, req pkgapi.RegisterRequest) (*pkgapi.RegisterResponse, error) {
	return nil, errors.New("not used")
}

func (f *fakeAPI) Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error) {
	return nil, errors.New("not used")
}

func (f *fakeAPI) Fingerprint(ctx context.Context) (*pkgapi.FingerprintResponse, error) {
	f.fingerprints++
	if f.fingerprint == nil {
		return nil, errors.New("server unreachable")
	}
	return f.fingerprint, nil
}

func (f *fakeAPI) ValidateSchema(ctx context.Context, token string, req pkgapi.ValidateSchemaRequest) (*pkgapi.ValidateSchemaResponse, error) {
	f.validateReq = req
	return &pkgapi.ValidateSchemaResponse{ReplicaFingerprint: req.Fingerprint, Status: "OK", IsValid: true}, nil
}

func (f *fakeAPI) PushBatch(ctx context.Context, token string, req pkgapi.SyncBatchRequest) (*pkgapi.SyncBatchResponse, error) {
	f.requests = append(f.requests, req)
	return f.push(req)
}

// fakeAuth implements auth.Service for testing
type fakeAuth struct {
	session *storage.Session
	err     error
}

func (f *fakeAuth) Register(ctx context.Context, username, password, tenantID string) (*auth.RegisterResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeAuth) Login(ctx context.Context, username, password string) (*storage.Session, error) {
	return nil, errors.New("not used")
}

func (f *fakeAuth) Logout(ctx context.Context) error { return nil }

func (f *fakeAuth) Session(ctx context.Context) (*storage.Session, error) {
	return f.session, f.err
}

var completedAt = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

// respondAll answers every operation with the status chosen by statusOf
func respondAll(statusOf func(id string) string) func(req pkgapi.SyncBatchRequest) (*pkgapi.SyncBatchResponse, error) {
	return func(req pkgapi.SyncBatchRequest) (*pkgapi.SyncBatchResponse, error) {
		resp := &pkgapi.SyncBatchResponse{
			CompletedAt:            completedAt,
			SyncID:                 fmt.Sprintf("sync-%d", len(req.Operations)),
			SchemaValidationStatus: "OK",
		}
		for _, op := range req.Operations {
			r := pkgapi.OperationResult{OperationID: op.ID, Status: statusOf(op.ID)}
			switch r.Status {
			case "CONFLICT":
				r.ConflictReason = "authoritative record is newer"
				r.ServerData = map[string]any{"first_name": "Grace"}
			case "VALIDATION_FAILED", "ERROR":
				r.ErrorMessage = "bad " + op.ID
			}
			resp.Results = append(resp.Results, r)
		}
		return resp, nil
	}
}

func setupService(t *testing.T, batchSize int) (*service, *fakeAPI, *fakeAuth, *boltdb.Storage) {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fapi := &fakeAPI{fingerprint: &pkgapi.FingerprintResponse{Hash: "abc123", Version: 3}}
	fauth := &fakeAuth{session: &storage.Session{
		ExpiresAt:   completedAt.Add(time.Hour),
		TenantID:    "school-1",
		AccessToken: "token-1",
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewService(fapi, fauth, store, logger, batchSize).(*service)
	svc.now = func() time.Time { return completedAt }
	return svc, fapi, fauth, store
}

func enqueue(t *testing.T, store *boltdb.Storage, ids ...string) {
	t.Helper()

	ops := make([]storage.PendingOperation, 0, len(ids))
	for _, id := range ids {
		ops = append(ops, storage.PendingOperation{Operation: pkgapi.ChangeOperation{
			ID:            id,
			TableName:     "students",
			RecordID:      "rec-" + id,
			OperationType: "UPDATE",
			Payload:       json.RawMessage(`{"academic_year_id":"2024"}`),
		}})
	}
	require.NoError(t, store.Enqueue(context.Background(), ops))
}

func pendingIDs(t *testing.T, store *boltdb.Storage) []string {
	t.Helper()

	ops, err := store.Pending(context.Background())
	require.NoError(t, err)
	ids := []string{}
	for _, op := range ops {
		ids = append(ids, op.Operation.ID)
	}
	return ids
}

func TestService_Push_Outcomes(t *testing.T) {
	ctx := context.Background()
	svc, fapi, _, store := setupService(t, 0)
	enqueue(t, store, "op-ok", "op-conflict", "op-invalid", "op-error")

	fapi.push = respondAll(func(id string) string {
		return map[string]string{
			"op-ok":       "SUCCESS",
			"op-conflict": "CONFLICT",
			"op-invalid":  "VALIDATION_FAILED",
			"op-error":    "ERROR",
		}[id]
	})

	result, err := svc.Push(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Pushed)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Retrying)
	assert.Equal(t, "OK", result.SchemaStatus)
	require.Len(t, result.Rejected, 2)
	assert.Equal(t, "authoritative record is newer", result.Rejected[0].Reason)
	assert.Equal(t, "bad op-invalid", result.Rejected[1].Reason)

	// ошибка остается в очереди для повтора
	assert.Equal(t, []string{"op-error"}, pendingIDs(t, store))

	rejected, err := store.Rejected(ctx)
	require.NoError(t, err)
	require.Len(t, rejected, 2)
	assert.Equal(t, "Grace", rejected[1].ServerData["first_name"])

	// запрос несет закрепленную схему и арендатора сессии
	require.Len(t, fapi.requests, 1)
	req := fapi.requests[0]
	assert.Equal(t, "school-1", req.TenantID)
	assert.Equal(t, "abc123", req.SchemaFingerprint)
	assert.Equal(t, int64(3), req.SchemaVersion)
	assert.Nil(t, req.LastSyncTimestamp)

	lastSync, err := store.GetLastSync(ctx)
	require.NoError(t, err)
	assert.True(t, completedAt.Equal(lastSync))
}

func TestService_Push_RetryCarriesLastSync(t *testing.T) {
	ctx := context.Background()
	svc, fapi, _, store := setupService(t, 0)
	enqueue(t, store, "op-1")

	fapi.push = respondAll(func(string) string { return "ERROR" })
	_, err := svc.Push(ctx)
	require.NoError(t, err)

	fapi.push = respondAll(func(string) string { return "SUCCESS" })
	result, err := svc.Push(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Succeeded)
	assert.Empty(t, pendingIDs(t, store))
	require.Len(t, fapi.requests, 2)
	require.NotNil(t, fapi.requests[1].LastSyncTimestamp)
	assert.True(t, completedAt.Equal(*fapi.requests[1].LastSyncTimestamp))
	// схема закрепляется один раз
	assert.Equal(t, 1, fapi.fingerprints)
}

func TestService_Push_Batches(t *testing.T) {
	svc, fapi, _, store := setupService(t, 2)
	enqueue(t, store, "op-1", "op-2", "op-3", "op-4", "op-5")
	fapi.push = respondAll(func(string) string { return "SUCCESS" })

	result, err := svc.Push(context.Background())
	require.NoError(t, err)

	require.Len(t, fapi.requests, 3)
	assert.Len(t, fapi.requests[0].Operations, 2)
	assert.Len(t, fapi.requests[2].Operations, 1)
	assert.Equal(t, 5, result.Succeeded)
	assert.Len(t, result.SyncIDs, 3)
	assert.Empty(t, pendingIDs(t, store))
}

func TestService_Push_MissingResultsStay(t *testing.T) {
	svc, fapi, _, store := setupService(t, 0)
	enqueue(t, store, "op-1", "op-2")

	fapi.push = func(req pkgapi.SyncBatchRequest) (*pkgapi.SyncBatchResponse, error) {
		return &pkgapi.SyncBatchResponse{
			CompletedAt: completedAt,
			SyncID:      "sync-1",
			Results: []pkgapi.OperationResult{
				{OperationID: "op-1", Status: "SUCCESS"},
				{OperationID: "op-unknown", Status: "SUCCESS"},
			},
		}, nil
	}

	result, err := svc.Push(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Retrying)
	assert.Equal(t, []string{"op-2"}, pendingIDs(t, store))
}

func TestService_Push_SchemaRejected(t *testing.T) {
	svc, fapi, _, store := setupService(t, 0)
	enqueue(t, store, "op-1")

	fapi.push = func(req pkgapi.SyncBatchRequest) (*pkgapi.SyncBatchResponse, error) {
		return &pkgapi.SyncBatchResponse{
			SchemaValidationStatus: "INCOMPATIBLE",
			Results: []pkgapi.OperationResult{
				{OperationID: "op-1", Status: "VALIDATION_FAILED", ErrorMessage: "schema fingerprint abc123 does not match"},
			},
		}, api.ErrSchemaIncompatible
	}

	result, err := svc.Push(context.Background())

	require.ErrorIs(t, err, api.ErrSchemaIncompatible)
	assert.Contains(t, err.Error(), "does not match")
	assert.Equal(t, "INCOMPATIBLE", result.SchemaStatus)
	// очередь не тронута
	assert.Equal(t, []string{"op-1"}, pendingIDs(t, store))
}

func TestService_Push_Errors(t *testing.T) {
	t.Run("not authenticated", func(t *testing.T) {
		svc, fapi, fauth, store := setupService(t, 0)
		enqueue(t, store, "op-1")
		fauth.session, fauth.err = nil, auth.ErrNotAuthenticated

		_, err := svc.Push(context.Background())

		assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
		assert.Empty(t, fapi.requests)
	})

	t.Run("cannot pin", func(t *testing.T) {
		svc, fapi, _, store := setupService(t, 0)
		enqueue(t, store, "op-1")
		fapi.fingerprint = nil

		_, err := svc.Push(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "server unreachable")
	})

	t.Run("transport failure", func(t *testing.T) {
		svc, fapi, _, store := setupService(t, 0)
		enqueue(t, store, "op-1")
		fapi.push = func(pkgapi.SyncBatchRequest) (*pkgapi.SyncBatchResponse, error) {
			return nil, &api.StatusError{StatusCode: 403, Message: "unauthorized: tenant is not active"}
		}

		_, err := svc.Push(context.Background())

		require.Error(t, err)
		assert.True(t, api.IsStatus(err, 403))
		assert.Equal(t, []string{"op-1"}, pendingIDs(t, store))
	})
}

func TestService_Push_Empty(t *testing.T) {
	svc, fapi, _, _ := setupService(t, 0)

	result, err := svc.Push(context.Background())

	require.NoError(t, err)
	assert.Zero(t, result.Pushed)
	assert.Empty(t, fapi.requests)
}

func TestService_PinAndCheck(t *testing.T) {
	ctx := context.Background()
	svc, fapi, _, store := setupService(t, 0)

	_, err := svc.CheckSchema(ctx)
	assert.ErrorIs(t, err, storage.ErrSchemaNotPinned)

	pin, err := svc.Pin(ctx)
	require.NoError(t, err)
	assert.Equal(t, &storage.SchemaPin{Fingerprint: "abc123", Version: 3}, pin)

	stored, err := store.GetSchemaPin(ctx)
	require.NoError(t, err)
	assert.Equal(t, pin, stored)

	resp, err := svc.CheckSchema(ctx)
	require.NoError(t, err)
	assert.True(t, resp.IsValid)
	assert.Equal(t, "abc123", fapi.validateReq.Fingerprint)
	assert.Equal(t, int64(3), fapi.validateReq.Version)
}

func TestService_PendingCount(t *testing.T) {
	svc, _, _, store := setupService(t, 0)
	enqueue(t, store, "op-1", "op-2")

	n, err := svc.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
