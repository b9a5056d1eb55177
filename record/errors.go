/*
errors.go - Fault taxonomy for the record store

ERROR CATEGORIES:
  1. Store faults  - I/O failure, malformed backing data, constraint violation
  2. Schema faults - unknown table, unknown field, invalid enum value
                     (relational backend only, raised before any SQL runs)

  Not-found on Update/Delete is NOT an error; it is a false result.

USAGE:
  Every backend failure is a *StoreError. It matches ErrStoreFault and also
  the specific cause:

    if errors.Is(err, record.ErrUnknownField) { ... }
    if errors.Is(err, record.ErrStoreFault) { ... }

  Calling services wrap these into their own domain errors.
*/
package record

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreFault matches every error returned by a Store implementation.
	ErrStoreFault = errors.New("store fault")

	// ErrUnknownTable is returned for a table the backend has no schema or
	// identifier field for.
	ErrUnknownTable = errors.New("unknown table")

	// ErrUnknownField is returned when a record, filter, or update names a
	// field outside the table schema.
	ErrUnknownField = errors.New("unknown field")

	// ErrInvalidEnum is returned when an enum-typed field holds a value
	// outside its closed set.
	ErrInvalidEnum = errors.New("invalid enum value")

	// ErrCorruptTable is returned when a table's backing data cannot be decoded.
	ErrCorruptTable = errors.New("corrupt table data")

	// ErrInvalidTableName is returned for table names that cannot map to a
	// physical unit.
	ErrInvalidTableName = errors.New("invalid table name")

	// ErrTypeMismatch is returned when a value cannot be stored in its column.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrConstraint is returned when the backend rejects a write on a
	// uniqueness, NOT NULL, or CHECK constraint.
	ErrConstraint = errors.New("constraint violation")
)

// StoreError carries the failing operation and table.
type StoreError struct {
	Op    string // create, read, update, delete, next_id, open
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

// Unwrap exposes both the generic store fault and the cause.
func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreFault, e.Err}
}

// Fault wraps err as a *StoreError. A nil err yields nil.
func Fault(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Table: table, Err: err}
}

// IsSchemaError reports whether err was raised by schema checks rather than I/O.
func IsSchemaError(err error) bool {
	return errors.Is(err, ErrUnknownTable) ||
		errors.Is(err, ErrUnknownField) ||
		errors.Is(err, ErrInvalidEnum) ||
		errors.Is(err, ErrTypeMismatch)
}
