// Package memory provides an in-process record.Store.
//
// Nothing is persisted. Use it for tests and dry runs where a data directory
// or database file is unwanted.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/clinic-core/record"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu     sync.RWMutex
	tables map[string][]record.Record
}

var _ record.Store = (*Store)(nil)

// New returns an empty store. seed is inserted into the users table.
func New(seed ...record.Record) *Store {
	s := &Store{tables: make(map[string][]record.Record)}
	for _, u := range seed {
		s.tables[record.TableUsers] = append(s.tables[record.TableUsers], u.Compact())
	}
	return s
}

func (s *Store) Close() error { return nil }

// Create appends a copy of rec. Later changes to rec are not seen.
func (s *Store) Create(_ context.Context, table string, rec record.Record) error {
	if table == "" {
		return record.Fault("create", table, fmt.Errorf("%w: %q", record.ErrInvalidTableName, table))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], rec.Compact())
	return nil
}

// Read returns copies of the matching records in insertion order.
func (s *Store) Read(_ context.Context, table string, filters record.Filters) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]record.Record, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		if record.Match(r, filters) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *Store) Update(_ context.Context, table, id, idField string, updates record.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.tables[table]
	i := indexOf(rows, idField, id)
	if i < 0 {
		return false, nil
	}
	record.Merge(rows[i], updates)
	return true, nil
}

func (s *Store) Delete(_ context.Context, table, id, idField string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.tables[table]
	i := indexOf(rows, idField, id)
	if i < 0 {
		return false, nil
	}
	s.tables[table] = append(rows[:i], rows[i+1:]...)
	return true, nil
}

func (s *Store) NextID(_ context.Context, table, prefix string) (string, error) {
	idField, err := record.IDField(table)
	if err != nil {
		return "", record.Fault("next_id", table, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		ids = append(ids, r.String(idField))
	}
	return record.NextID(prefix, ids), nil
}

func indexOf(rows []record.Record, idField, id string) int {
	for i, r := range rows {
		if v, ok := r[idField]; ok && record.Equal(v, id) {
			return i
		}
	}
	return -1
}
