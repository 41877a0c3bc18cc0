package scanning

import (
	"errors"
	"fmt"
)

var (
	// ErrExtractionFailed covers timeouts, cancellation and service errors.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrExtractionMalformed means the service answered with an unusable
	// structure.
	ErrExtractionMalformed = errors.New("extraction response malformed")
)

// ExtractionError describes why a scan produced no content. It matches
// its Kind and its cause with errors.Is.
type ExtractionError struct {
	Kind   error
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
}

func (e *ExtractionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func failed(reason string, err error) error {
	return &ExtractionError{Kind: ErrExtractionFailed, Reason: reason, Err: err}
}

func malformed(reason string, err error) error {
	return &ExtractionError{Kind: ErrExtractionMalformed, Reason: reason, Err: err}
}
