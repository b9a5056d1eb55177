/*
Package record defines the table-oriented persistence contract shared by every
storage backend in the clinic core.

PURPOSE:
  Callers (billing, patients, auth, reports, migration) depend only on the
  Store interface below. Three interchangeable implementations exist:
  - store/file:   one JSON document per table, whole-table rewrite per mutation
  - store/sqlite: fixed schema per table, enum-aware marshaling
  - store/memory: process-local tables, for tests and tooling

CONTRACT:
  Create:  insert as given, no validation, no duplicate-id rejection
  Read:    AND-of-equality filters; nil filters returns the whole table
  Update:  shallow merge into the first record with idField == id
  Delete:  hard delete of the first record with idField == id
  NextID:  prefix + zero-padded (max numeric suffix + 1)

  Null values are never stored: a nil field on Create or Update leaves the
  field absent, and a nil filter matches an absent field.

  Update and Delete report "not found" as (false, nil). It is not an error.
  Every other fault is returned as a *StoreError (see errors.go).

KNOWN LIMITATION:
  NextID is derived from the live rows. Hard deleting the record holding the
  highest suffix frees that id for reuse. Callers that need ids to stay unique
  forever soft delete (is_active = false) instead.

ORDERING:
  Read makes no ordering promise. Callers that need an order must sort.

SEE ALSO:
  - errors.go: fault taxonomy
  - tables.go: table registry and ID generation
  - value.go:  value normalisation and filter matching
*/
package record

import (
	"context"
	"sort"
)

// Record is one self-describing row. Field sets are not validated by the
// contract; the relational backend rejects fields outside its schema.
type Record map[string]any

// Filters is a conjunction of field equality tests.
type Filters map[string]any

// Store is the uniform CRUD contract implemented by every backend.
type Store interface {
	// Create persists rec in table. The caller's map is not retained.
	Create(ctx context.Context, table string, rec Record) error

	// Read returns the records of table matching all filters.
	Read(ctx context.Context, table string, filters Filters) ([]Record, error)

	// Update merges updates into the first record whose idField equals id.
	// Returns false when no record matched.
	Update(ctx context.Context, table, id, idField string, updates Record) (bool, error)

	// Delete removes the first record whose idField equals id.
	// Returns false when no record matched.
	Delete(ctx context.Context, table, id, idField string) (bool, error)

	// NextID returns the next free business identifier for prefix in table.
	// See KNOWN LIMITATION above for hard deletes.
	NextID(ctx context.Context, table, prefix string) (string, error)
}

// Clone returns a shallow copy of r with values normalised.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = Normalize(v)
	}
	return out
}

// Compact returns a normalised copy of r without its null fields.
func (r Record) Compact() Record {
	out := make(Record, len(r))
	Merge(out, r)
	return out
}

// String returns the field as a string, or "" if absent or not a string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Float returns the field as a float64, or 0 if absent or not numeric.
func (r Record) Float(field string) float64 {
	f, _ := Normalize(r[field]).(float64)
	return f
}

// Bool returns the field as a bool. Absent fields yield def.
func (r Record) Bool(field string, def bool) bool {
	b, ok := r[field].(bool)
	if !ok {
		return def
	}
	return b
}

// SortBy orders recs in place by the string value of field.
func SortBy(recs []Record, field string) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].String(field) < recs[j].String(field)
	})
}
