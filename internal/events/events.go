// Package events announces committed expenses to other services.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/zombor/receipt-ledger/internal/expense"
)

// Publisher announces expense lifecycle events.
type Publisher interface {
	PublishExpenseCreated(ctx context.Context, r *expense.Record) error
	Close() error
}

// ExpenseCreatedMessage is the body of an expense.created event.
type ExpenseCreatedMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	Category  string    `json:"category"`
	Date      time.Time `json:"date"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExpenseCreatedMessage builds the event for a stored record.
func NewExpenseCreatedMessage(r *expense.Record, now time.Time) *ExpenseCreatedMessage {
	return &ExpenseCreatedMessage{
		ID:        r.ID,
		UserID:    r.UserID,
		Amount:    r.Amount,
		Category:  r.Category,
		Date:      r.Date,
		Timestamp: now,
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Noop discards every event.
type Noop struct{}

func (Noop) PublishExpenseCreated(context.Context, *expense.Record) error { return nil }

func (Noop) Close() error { return nil }
