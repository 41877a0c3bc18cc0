// Package expense persists confirmed expense records.
package expense

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record has the requested ID.
	ErrNotFound = errors.New("expense not found")
	// ErrCreateNotVerified is returned when a created record cannot be read back.
	ErrCreateNotVerified = errors.New("expense create not verified")
	// ErrDeleteNotVerified is returned when a deleted record is still present.
	ErrDeleteNotVerified = errors.New("expense delete not verified")
)

// Record is a durable expense. Records are never modified after creation.
type Record struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"` // whole đồng
	Category    string    `json:"category"`
	Type        string    `json:"type"`
	Date        time.Time `json:"date"`
	UserID      string    `json:"user_id"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store defines the persistence operations for expense records.
type Store interface {
	// Create stores a record and confirms it can be read back.
	Create(ctx context.Context, r *Record) (string, error)

	// Get retrieves a record by ID
	Get(ctx context.Context, id string) (*Record, error)

	// List returns the records of a user, or all records for an empty userID
	List(ctx context.Context, userID string) ([]*Record, error)

	// Delete removes a record and confirms it is gone.
	Delete(ctx context.Context, id string) error

	// Close closes the underlying database
	Close() error
}
