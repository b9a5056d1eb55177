package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrBilling matches every error returned by Engine.
	ErrBilling = errors.New("billing error")

	// ErrInvoiceSaved is returned when a saved invoice is mutated or saved again.
	ErrInvoiceSaved = errors.New("invoice already saved")

	// ErrUnknownService is returned when a catalog code has no entry.
	ErrUnknownService = errors.New("unknown service")

	// ErrMalformedItems is returned when a stored invoice's items cannot be decoded.
	ErrMalformedItems = errors.New("malformed invoice items")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// Error wraps a failure from one engine operation. Store faults stay
// reachable through errors.Is(err, record.ErrStoreFault).
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("billing: failed to %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrBilling, e.Err}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
