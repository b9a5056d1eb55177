// Package file provides a record.Store backed by one JSON document per table.
//
// Layout: <dir>/<table>.json holds a single-line JSON array of records.
// Every mutation loads the whole table, changes it in memory, and replaces
// the file through a temp-file rename. A failed mutation leaves the previous
// file in place. There is no cross-process locking: two processes writing the
// same table lose updates (last writer wins).
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/warp/clinic-core/record"
)

// =============================================================================
// FILE STORE
// =============================================================================

// Store implements record.Store over a data directory.
type Store struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

// Options configures a Store.
type Options struct {
	// SeedUsers is inserted into the users table on first use, only if it is empty.
	SeedUsers []record.Record
	Logger    *slog.Logger
}

var _ record.Store = (*Store)(nil)

var tableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// New opens (creating if needed) a file store rooted at dir.
func New(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, record.Fault("open", "", fmt.Errorf("failed to create data directory: %w", err))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{dir: dir, logger: logger}
	if err := s.seed(opts.SeedUsers); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Close is a no-op; it exists so both backends satisfy io.Closer.
func (s *Store) Close() error { return nil }

func (s *Store) seed(users []record.Record) error {
	if len(users) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := false
	err := s.withTable("seed", record.TableUsers, func(rows []record.Record) ([]record.Record, error) {
		if len(rows) > 0 {
			return rows, nil
		}
		inserted = true
		for _, u := range users {
			rows = append(rows, u.Compact())
		}
		return rows, nil
	})
	if err != nil {
		return err
	}
	if inserted {
		s.logger.Info("seeded default users", "table", record.TableUsers, "count", len(users))
	}
	return nil
}

// Create appends rec to table.
func (s *Store) Create(_ context.Context, table string, rec record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withTable("create", table, func(rows []record.Record) ([]record.Record, error) {
		return append(rows, rec.Compact()), nil
	})
	if err == nil {
		s.logger.Debug("record created", "table", table)
	}
	return err
}

// Read returns every record of table matching filters.
func (s *Store) Read(_ context.Context, table string, filters record.Filters) ([]record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.load("read", table)
	if err != nil {
		return nil, err
	}
	out := make([]record.Record, 0, len(rows))
	for _, r := range rows {
		if record.Match(r, filters) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Update merges updates into the first record whose idField equals id.
func (s *Store) Update(_ context.Context, table, id, idField string, updates record.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	err := s.withTable("update", table, func(rows []record.Record) ([]record.Record, error) {
		i := indexOf(rows, idField, id)
		if i < 0 {
			return nil, errUnchanged
		}
		found = true
		record.Merge(rows[i], updates)
		return rows, nil
	})
	if err != nil {
		return false, err
	}
	if found {
		s.logger.Debug("record updated", "table", table, "id_field", idField, "id", id)
	}
	return found, nil
}

// Delete removes the first record whose idField equals id.
func (s *Store) Delete(_ context.Context, table, id, idField string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	err := s.withTable("delete", table, func(rows []record.Record) ([]record.Record, error) {
		i := indexOf(rows, idField, id)
		if i < 0 {
			return nil, errUnchanged
		}
		found = true
		return append(rows[:i], rows[i+1:]...), nil
	})
	if err != nil {
		return false, err
	}
	if found {
		s.logger.Debug("record deleted", "table", table, "id_field", idField, "id", id)
	}
	return found, nil
}

// NextID scans the table's identifier field for the highest suffix under prefix.
func (s *Store) NextID(_ context.Context, table, prefix string) (string, error) {
	idField, err := record.IDField(table)
	if err != nil {
		return "", record.Fault("next_id", table, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.load("next_id", table)
	if err != nil {
		return "", err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if v, ok := r[idField].(string); ok {
			ids = append(ids, v)
		}
	}
	return record.NextID(prefix, ids), nil
}

// =============================================================================
// READ-MODIFY-WRITE
// =============================================================================

// errUnchanged lets a mutation abort without writing and without failing.
var errUnchanged = errors.New("unchanged")

// withTable loads table, applies fn, and replaces the file with the result.
// If fn or the write fails, the file on disk is left as it was.
func (s *Store) withTable(op, table string, fn func([]record.Record) ([]record.Record, error)) error {
	rows, err := s.load(op, table)
	if err != nil {
		return err
	}
	next, err := fn(rows)
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return record.Fault(op, table, err)
	}
	return s.save(op, table, next)
}

func (s *Store) path(table string) string {
	return filepath.Join(s.dir, table+".json")
}

func (s *Store) load(op, table string) ([]record.Record, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, record.Fault(op, table, fmt.Errorf("%w: %q", record.ErrInvalidTableName, table))
	}
	data, err := os.ReadFile(s.path(table))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, record.Fault(op, table, fmt.Errorf("failed to read table file: %w", err))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var rows []record.Record
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, record.Fault(op, table, fmt.Errorf("%w: %v", record.ErrCorruptTable, err))
	}
	return rows, nil
}

func (s *Store) save(op, table string, rows []record.Record) error {
	if rows == nil {
		rows = []record.Record{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return record.Fault(op, table, fmt.Errorf("failed to encode table: %w", err))
	}

	tmp, err := os.CreateTemp(s.dir, table+".*.tmp")
	if err != nil {
		return record.Fault(op, table, fmt.Errorf("failed to create temp file: %w", err))
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return record.Fault(op, table, fmt.Errorf("failed to write table: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return record.Fault(op, table, fmt.Errorf("failed to sync table: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return record.Fault(op, table, fmt.Errorf("failed to close table: %w", err))
	}
	if err := os.Rename(tmpName, s.path(table)); err != nil {
		return record.Fault(op, table, fmt.Errorf("failed to replace table file: %w", err))
	}
	committed = true
	return nil
}

func indexOf(rows []record.Record, idField, id string) int {
	for i, r := range rows {
		v, ok := r[idField]
		if ok && record.Equal(v, id) {
			return i
		}
	}
	return -1
}
