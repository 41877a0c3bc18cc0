// Package receipt runs the receipt ingestion pipeline: it takes an uploaded
// receipt through extraction, parsing and categorization, and commits the
// items the user accepts as expense records.
package receipt

import (
	"errors"
	"fmt"

	"github.com/zombor/receipt-ledger/internal/category"
)

var (
	// ErrAcquisitionFailed means no usable image was received.
	ErrAcquisitionFailed = errors.New("acquisition failed")
	// ErrInvalidCommit means the commit request as a whole is unusable.
	ErrInvalidCommit = errors.New("invalid commit request")
	// ErrInvalidItem means a single committed item failed validation.
	ErrInvalidItem = errors.New("invalid item")
)

// Expense types of the ledger.
const (
	TypeIncidental = "Phát sinh"
	TypeRequired   = "Phải chi"
	TypeWasteful   = "Lãng phí"
)

// ExpenseTypes is the closed set of expense types.
var ExpenseTypes = []string{TypeIncidental, TypeRequired, TypeWasteful}

// RawImage is an uploaded receipt before extraction.
type RawImage struct {
	Filename    string
	Data        []byte
	ContentType string
}

// ScanStatus tells whether a scan recognized any items.
type ScanStatus string

const (
	StatusItems ScanStatus = "items"
	// StatusEmpty is not an error: the review starts with no items.
	StatusEmpty ScanStatus = "empty"
)

// ScanResult holds the categorized candidates presented for review.
type ScanResult struct {
	ID       string          `json:"id"`
	Strategy string          `json:"strategy"`
	Status   ScanStatus      `json:"status"`
	Items    []category.Item `json:"items"`
}

// CommitItem is a reviewed candidate as corrected by the user.
type CommitItem struct {
	Description string   `json:"description"`
	Amount      int64    `json:"amount"`
	Category    string   `json:"category"`
	Quantity    *float64 `json:"quantity,omitempty"`
	Accepted    bool     `json:"accepted"`
}

// CommitRequest confirms the reviewed items of one receipt.
type CommitRequest struct {
	UserID string       `json:"user_id"`
	Date   string       `json:"date,omitempty"` // YYYY-MM-DD, defaults to today
	Type   string       `json:"type,omitempty"`
	Note   string       `json:"note,omitempty"`
	Items  []CommitItem `json:"items"`
}

// ItemStatus is the outcome of committing one accepted item.
type ItemStatus string

const (
	ItemStored  ItemStatus = "stored"
	ItemInvalid ItemStatus = "invalid"
	ItemFailed  ItemStatus = "failed"
)

// ItemResult reports one accepted item. Index refers to the position in
// CommitRequest.Items.
type ItemResult struct {
	Index       int        `json:"index"`
	Description string     `json:"description"`
	Status      ItemStatus `json:"status"`
	ID          string     `json:"id,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// CommitResult lists the outcome of every accepted item in request order.
// Discarded items do not appear.
type CommitResult struct {
	Results []ItemResult `json:"results"`
	Stored  int          `json:"stored"`
	Failed  int          `json:"failed"`
}

// PersistError is the failure of one accepted item. The rest of the batch
// is unaffected.
type PersistError struct {
	Index       int
	Description string
	Err         error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("item %d (%s): %v", e.Index, e.Description, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
