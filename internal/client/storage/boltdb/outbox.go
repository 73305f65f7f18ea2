package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/campussync/internal/client/storage"
)

// Enqueue adds operations to the outbox in one transaction
func (s *Storage) Enqueue(ctx context.Context, ops []storage.PendingOperation) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		outbox := tx.Bucket(bucketOutbox)
		ids := tx.Bucket(bucketOutboxIDs)

		for i := range ops {
			op := &ops[i]
			id := []byte(op.Operation.ID)
			if ids.Get(id) != nil {
				return fmt.Errorf("%w: %s", storage.ErrDuplicateOperation, op.Operation.ID)
			}

			seq, err := outbox.NextSequence()
			if err != nil {
				return fmt.Errorf("failed to allocate sequence: %w", err)
			}
			op.Seq = seq

			data, err := json.Marshal(op)
			if err != nil {
				return fmt.Errorf("failed to marshal operation %s: %w", op.Operation.ID, err)
			}

			key := seqKey(seq)
			if err := outbox.Put(key, data); err != nil {
				return fmt.Errorf("failed to save operation %s: %w", op.Operation.ID, err)
			}
			if err := ids.Put(id, key); err != nil {
				return fmt.Errorf("failed to index operation %s: %w", op.Operation.ID, err)
			}
		}
		return nil
	})
}

// Pending returns queued operations in enqueue order
func (s *Storage) Pending(ctx context.Context) ([]storage.PendingOperation, error) {
	var ops []storage.PendingOperation

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOutbox).ForEach(func(_, v []byte) error {
			var op storage.PendingOperation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("failed to unmarshal operation: %w", err)
			}
			ops = append(ops, op)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return ops, nil
}

// PendingCount returns the number of queued operations
func (s *Storage) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = count(tx.Bucket(bucketOutbox))
		return nil
	})
	return n, err
}

// Resolve removes finished operations and files rejected ones
func (s *Storage) Resolve(ctx context.Context, done []string, rejected []storage.RejectedOperation) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		outbox := tx.Bucket(bucketOutbox)
		ids := tx.Bucket(bucketOutboxIDs)
		rej := tx.Bucket(bucketRejected)

		remove := func(id string) error {
			key := ids.Get([]byte(id))
			if key == nil {
				return fmt.Errorf("%w: %s", storage.ErrOperationNotFound, id)
			}
			// ключ живет только внутри транзакции
			if err := outbox.Delete(append([]byte(nil), key...)); err != nil {
				return fmt.Errorf("failed to delete operation %s: %w", id, err)
			}
			return ids.Delete([]byte(id))
		}

		for _, id := range done {
			if err := remove(id); err != nil {
				return err
			}
		}

		for _, r := range rejected {
			if err := remove(r.Operation.ID); err != nil {
				return err
			}

			seq, err := rej.NextSequence()
			if err != nil {
				return fmt.Errorf("failed to allocate sequence: %w", err)
			}
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to marshal rejected operation %s: %w", r.Operation.ID, err)
			}
			if err := rej.Put(seqKey(seq), data); err != nil {
				return fmt.Errorf("failed to save rejected operation %s: %w", r.Operation.ID, err)
			}
		}
		return nil
	})
}

// Rejected returns operations the server refused, newest first
func (s *Storage) Rejected(ctx context.Context) ([]storage.RejectedOperation, error) {
	var out []storage.RejectedOperation

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRejected).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var r storage.RejectedOperation
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("failed to unmarshal rejected operation: %w", err)
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// ClearRejected drops all rejected operations
func (s *Storage) ClearRejected(ctx context.Context) (int, error) {
	var n int

	err := s.db.Update(func(tx *bbolt.Tx) error {
		n = count(tx.Bucket(bucketRejected))
		if err := tx.DeleteBucket(bucketRejected); err != nil {
			return fmt.Errorf("failed to drop rejected bucket: %w", err)
		}
		_, err := tx.CreateBucket(bucketRejected)
		return err
	})
	if err != nil {
		return 0, err
	}

	return n, nil
}

func count(b *bbolt.Bucket) int {
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}
