package expense

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "expenses"

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) a BoltDB file at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Create saves a record and reads it back before returning its ID
func (b *BoltStore) Create(_ context.Context, r *Record) (string, error) {
	if r.ID == "" {
		return "", errors.New("expense id is required")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshaling expense: %w", err)
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket.Get([]byte(r.ID)) != nil {
			return fmt.Errorf("expense %s already exists", r.ID)
		}
		return bucket.Put([]byte(r.ID), data)
	})
	if err != nil {
		return "", fmt.Errorf("saving expense: %w", err)
	}

	if _, err := b.Get(context.Background(), r.ID); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCreateNotVerified, r.ID, err)
	}
	return r.ID, nil
}

// Get retrieves a record by ID
func (b *BoltStore) Get(_ context.Context, id string) (*Record, error) {
	var r *Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// List returns records ordered by date, newest first
func (b *BoltStore) List(_ context.Context, userID string) ([]*Record, error) {
	records := make([]*Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshaling expense: %w", err)
			}
			if userID == "" || r.UserID == userID {
				records = append(records, &r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortRecords(records)
	return records, nil
}

// Delete removes a record. Deleting a missing key is a no-op in BoltDB, so
// presence is checked first and absence is confirmed afterwards.
func (b *BoltStore) Delete(_ context.Context, id string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
	if err != nil {
		return err
	}

	if _, err := b.Get(context.Background(), id); !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrDeleteNotVerified, id)
	}
	return nil
}

// Close closes the database
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func sortRecords(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.After(records[j].Date)
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
