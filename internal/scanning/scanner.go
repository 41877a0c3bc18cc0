package scanning

import (
	"context"

	"github.com/zombor/receipt-ledger/internal/lineitem"
)

// LanguageHint names the main language printed on the receipt.
type LanguageHint string

const (
	LanguageVietnamese LanguageHint = "vi"
	LanguageEnglish    LanguageHint = "en"
)

// Image is a receipt image or PDF as uploaded.
type Image struct {
	Data        []byte
	ContentType string
}

// ResultKind tells which variant of Result is populated.
type ResultKind string

const (
	// KindLines carries recognized text lines, top to bottom.
	KindLines ResultKind = "lines"
	// KindItems carries line items already structured by the service.
	KindItems ResultKind = "items"
)

// Result is the content a Scanner produced from one receipt.
type Result struct {
	Kind  ResultKind
	Lines []string
	Items []lineitem.Item
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt extracts receipt content from an image. It honors ctx
	// cancellation and fails with an *ExtractionError.
	ScanReceipt(ctx context.Context, img Image, lang LanguageHint) (*Result, error)
	// Strategy names the extraction strategy, e.g. "tesseract" or "gemini"
	Strategy() string
	// Close closes the scanner and releases resources
	Close() error
}
