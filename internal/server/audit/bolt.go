package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var bucketEvents = []byte("events")

// DefaultBuffer is the queue size used when none is given
const DefaultBuffer = 1024

// BoltRecorder persists events to a bbolt file from a single writer
// goroutine. A full queue drops the event with a warning.
type BoltRecorder struct {
	db       *bbolt.DB
	logger   *slog.Logger
	events   chan Event
	done     chan struct{}
	closeErr error
	mu       sync.RWMutex
	once     sync.Once
	closed   bool
}

// NewBoltRecorder opens (or creates) the audit file and starts the writer
func NewBoltRecorder(path string, buffer int, logger *slog.Logger) (*BoltRecorder, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events bucket: %w", err)
	}

	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	r := &BoltRecorder{
		db:     db,
		logger: logger,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go r.run()

	return r, nil
}

// Record implements Recorder
func (r *BoltRecorder) Record(ctx context.Context, e Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.WarnContext(ctx, "audit recorder closed, event dropped",
			"action", e.Action, "operation_id", e.OperationID)
		return
	}

	select {
	case r.events <- e:
	default:
		r.logger.WarnContext(ctx, "audit buffer full, event dropped",
			"action", e.Action, "operation_id", e.OperationID)
	}
}

// Close stops accepting events, drains the queue and closes the file
func (r *BoltRecorder) Close() error {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.events)
		r.mu.Unlock()

		<-r.done
		r.closeErr = r.db.Close()
	})
	return r.closeErr
}

// Events returns up to limit most recent events of a tenant, newest first.
// An empty tenantID matches every tenant, limit <= 0 means no limit.
func (r *BoltRecorder) Events(tenantID string, limit int) ([]Event, error) {
	var out []Event

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEvents)
		if bucket == nil {
			return fmt.Errorf("events bucket not found")
		}

		c := bucket.Cursor()
		for k, v := c.Last(); k != nil && (limit <= 0 || len(out) < limit); k, v = c.Prev() {
			var e Event
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to decode event %x: %w", k, err)
			}
			if tenantID != "" && e.TenantID != tenantID {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	return out, nil
}

func (r *BoltRecorder) run() {
	defer close(r.done)

	for e := range r.events {
		if err := r.write(e); err != nil {
			r.logger.Error("failed to write audit event",
				"action", e.Action, "operation_id", e.OperationID, "error", err)
		}
	}
}

func (r *BoltRecorder) write(e Event) error {
	// UUIDv7 keys sort by creation time
	key, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate event key: %w", err)
	}

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEvents).Put(key[:], value)
	})
}
