package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/campussync/internal/client/storage"
)

var (
	keyLastSync  = []byte("last_sync")
	keySchemaPin = []byte("schema_pin")
)

// SaveLastSync saves the completion time of the last accepted batch
func (s *Storage) SaveLastSync(ctx context.Context, at time.Time) error {
	data, err := at.UTC().MarshalText()
	if err != nil {
		return fmt.Errorf("failed to encode last sync time: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketMetadata).Put(keyLastSync, data); err != nil {
			return fmt.Errorf("failed to save last sync time: %w", err)
		}
		return nil
	})
}

// GetLastSync retrieves the completion time of the last accepted batch
// Returns the zero time if no batch has been accepted yet
func (s *Storage) GetLastSync(ctx context.Context) (time.Time, error) {
	var at time.Time

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMetadata).Get(keyLastSync)
		if data == nil {
			// первая синхронизация
			return nil
		}
		return at.UnmarshalText(data)
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last sync time: %w", err)
	}

	return at, nil
}

// PinSchema records the schema the replica was built against
func (s *Storage) PinSchema(ctx context.Context, pin storage.SchemaPin) error {
	data, err := json.Marshal(pin)
	if err != nil {
		return fmt.Errorf("failed to marshal schema pin: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketMetadata).Put(keySchemaPin, data); err != nil {
			return fmt.Errorf("failed to save schema pin: %w", err)
		}
		return nil
	})
}

// GetSchemaPin retrieves the pinned schema
func (s *Storage) GetSchemaPin(ctx context.Context) (*storage.SchemaPin, error) {
	var pin *storage.SchemaPin

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMetadata).Get(keySchemaPin)
		if data == nil {
			return storage.ErrSchemaNotPinned
		}

		pin = &storage.SchemaPin{}
		if err := json.Unmarshal(data, pin); err != nil {
			return fmt.Errorf("failed to unmarshal schema pin: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return pin, nil
}
