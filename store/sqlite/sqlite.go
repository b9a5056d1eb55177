/*
Package sqlite provides a SQLite-backed implementation of record.Store.

PURPOSE:
  The relational backend for the clinic core. Each logical table maps to a
  fixed-column schema (schema.go). Records are marshaled through one
  boundary per table: tableSchema.encode on the way in (create values,
  filter values, update values) and tableSchema.decode on the way out.

ENUMS:
  users.role and appointments.status are closed sets. They are parsed into
  record.Role / record.AppointmentStatus on every write and filter, stored
  through driver.Valuer, scanned back through sql.Scanner, and returned to
  callers as canonical lower-case strings.

SCHEMA CHECKS:
  Unknown tables and fields (in records, filters, updates, or the id field)
  are rejected before any SQL is built.

TRANSACTIONS:
  Create, Update and Delete each run in their own transaction. Nothing spans
  two calls. The internal integer key never leaves this package.

USAGE:
  store, err := sqlite.New("./data/hospital.db", sqlite.Options{SeedUsers: seed})
  if err != nil {
      return err
  }
  defer store.Close()

SEE ALSO:
  - record/store.go: the contract
  - store/file: the JSON file backend
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/clinic-core/record"
)

// Store implements record.Store using SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *slog.Logger
}

// Options configures a Store.
type Options struct {
	// SeedUsers is inserted when the users table is empty at open time.
	SeedUsers []record.Record
	Logger    *slog.Logger
}

var _ record.Store = (*Store)(nil)

// New opens the database at dbPath, applies the schema, and seeds users.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, record.Fault("open", "", fmt.Errorf("failed to open database: %w", err))
	}
	// One connection: keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := newStore(db, opts.Logger)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, record.Fault("open", "", fmt.Errorf("failed to migrate database: %w", err))
	}
	if err := store.seed(context.Background(), opts.SeedUsers); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func newStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return err
	}
	s.logger.Debug("schema applied")
	return nil
}

func (s *Store) seed(ctx context.Context, users []record.Record) error {
	if len(users) == 0 {
		return nil
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return record.Fault("seed", record.TableUsers, err)
	}
	if count > 0 {
		return nil
	}
	for _, u := range users {
		if err := s.Create(ctx, record.TableUsers, u); err != nil {
			return err
		}
	}
	s.logger.Info("seeded default users", "table", record.TableUsers, "count", len(users))
	return nil
}

// =============================================================================
// RECORD STORE (record.Store interface)
// =============================================================================

// Create inserts rec as a new row.
func (s *Store) Create(ctx context.Context, table string, rec record.Record) error {
	schema, err := lookupSchema(table)
	if err != nil {
		return record.Fault("create", table, err)
	}

	fields := sortedKeys(rec)
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		v, err := schema.encode(f, rec[f])
		if err != nil {
			return record.Fault("create", table, err)
		}
		args = append(args, v)
	}

	var query string
	if len(fields) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", schema.name)
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			schema.name, strings.Join(fields, ", "), placeholders(len(fields)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return record.Fault("create", table, classify(err))
	}
	s.logger.Debug("record created", "table", table)
	return nil
}

// Read returns rows matching every filter, in insertion order.
func (s *Store) Read(ctx context.Context, table string, filters record.Filters) ([]record.Record, error) {
	schema, err := lookupSchema(table)
	if err != nil {
		return nil, record.Fault("read", table, err)
	}

	where, args, err := schema.where(filters)
	if err != nil {
		return nil, record.Fault("read", table, err)
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id", schema.selectList(), schema.name, where)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, record.Fault("read", table, fmt.Errorf("failed to query: %w", err))
	}
	defer rows.Close()

	out := make([]record.Record, 0)
	for rows.Next() {
		dest := schema.scanTargets()
		if err := rows.Scan(dest...); err != nil {
			return nil, record.Fault("read", table, fmt.Errorf("failed to scan row: %w", err))
		}
		out = append(out, schema.decode(dest))
	}
	if err := rows.Err(); err != nil {
		return nil, record.Fault("read", table, err)
	}
	return out, nil
}

// Update merges updates into the first row whose idField equals id.
func (s *Store) Update(ctx context.Context, table, id, idField string, updates record.Record) (bool, error) {
	schema, err := lookupSchema(table)
	if err != nil {
		return false, record.Fault("update", table, err)
	}
	idArg, err := schema.encode(idField, id)
	if err != nil {
		return false, record.Fault("update", table, err)
	}

	fields := sortedKeys(updates)
	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		v, err := schema.encode(f, updates[f])
		if err != nil {
			return false, record.Fault("update", table, err)
		}
		sets = append(sets, f+" = ?")
		args = append(args, v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		rowID, ok, err := firstRowID(ctx, tx, schema, idField, idArg)
		if err != nil || !ok {
			return err
		}
		found = true
		if len(sets) == 0 {
			return nil
		}
		query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", schema.name, strings.Join(sets, ", "))
		_, err = tx.ExecContext(ctx, query, append(args, rowID)...)
		return err
	})
	if err != nil {
		return false, record.Fault("update", table, classify(err))
	}
	if found {
		s.logger.Debug("record updated", "table", table, "id_field", idField, "id", id)
	}
	return found, nil
}

// Delete removes the first row whose idField equals id.
func (s *Store) Delete(ctx context.Context, table, id, idField string) (bool, error) {
	schema, err := lookupSchema(table)
	if err != nil {
		return false, record.Fault("delete", table, err)
	}
	idArg, err := schema.encode(idField, id)
	if err != nil {
		return false, record.Fault("delete", table, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		rowID, ok, err := firstRowID(ctx, tx, schema, idField, idArg)
		if err != nil || !ok {
			return err
		}
		found = true
		_, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", schema.name), rowID)
		return err
	})
	if err != nil {
		return false, record.Fault("delete", table, classify(err))
	}
	if found {
		s.logger.Debug("record deleted", "table", table, "id_field", idField, "id", id)
	}
	return found, nil
}

// NextID returns prefix + the next suffix over the table's business ids.
func (s *Store) NextID(ctx context.Context, table, prefix string) (string, error) {
	schema, err := lookupSchema(table)
	if err != nil {
		return "", record.Fault("next_id", table, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE substr(%s, 1, ?) = ?",
		schema.idField, schema.name, schema.idField)
	rows, err := s.db.QueryContext(ctx, query, len(prefix), prefix)
	if err != nil {
		return "", record.Fault("next_id", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", record.Fault("next_id", table, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", record.Fault("next_id", table, err)
	}
	return record.NextID(prefix, ids), nil
}

// =============================================================================
// HELPERS
// =============================================================================

// inTx runs fn in a transaction, committing on nil and rolling back otherwise.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func firstRowID(ctx context.Context, tx *sql.Tx, schema *tableSchema, idField string, idArg any) (int64, bool, error) {
	query := fmt.Sprintf("SELECT id FROM %s WHERE %s = ? ORDER BY id LIMIT 1", schema.name, idField)
	var rowID int64
	err := tx.QueryRowContext(ctx, query, idArg).Scan(&rowID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rowID, true, nil
}

// where builds a WHERE clause from filters in field order. A nil filter value
// matches NULL.
func (s *tableSchema) where(filters record.Filters) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	fields := make([]string, 0, len(filters))
	for f := range filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	conds := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		v, err := s.encode(f, filters[f])
		if err != nil {
			return "", nil, err
		}
		if v == nil {
			conds = append(conds, f+" IS NULL")
			continue
		}
		conds = append(conds, f+" = ?")
		args = append(args, v)
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// classify tags SQLite constraint failures with record.ErrConstraint.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", record.ErrConstraint, err)
	}
	return err
}

func sortedKeys(rec record.Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
