/*
Package migrate copies clinic tables from one record.Store into another.

PURPOSE:
  Moves a file-backed data directory into the relational backend (or any
  other pairing of stores). The source is never modified.

RULES:
  - Tables are visited in registry order: users, patients, appointments, billing.
  - users is skipped entirely when the destination already holds any user,
    so seeded staff accounts are never duplicated.
  - A record whose business id already exists in the destination is skipped.
  - A record the destination rejects is counted as failed and the run goes on.
  - A source table that cannot be read is reported and treated as empty.

Run is safe to repeat: a second run over the same pair migrates nothing.
*/
package migrate

import (
	"context"
	"log/slog"

	"github.com/warp/clinic-core/record"
)

// TableResult counts what happened to one table.
type TableResult struct {
	Table    string `json:"table"`
	Migrated int    `json:"migrated"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`

	// SkippedTable is set when the whole table was passed over.
	SkippedTable bool   `json:"skipped_table,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Result is the outcome of a Run, one entry per table in registry order.
type Result struct {
	Tables []TableResult `json:"tables"`
}

// Migrated returns the number of records written across all tables.
func (r Result) Migrated() int {
	n := 0
	for _, t := range r.Tables {
		n += t.Migrated
	}
	return n
}

// Failed returns the number of records the destination rejected.
func (r Result) Failed() int {
	n := 0
	for _, t := range r.Tables {
		n += t.Failed
	}
	return n
}

type Option func(*migrator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *migrator) { m.logger = l }
}

type migrator struct {
	src, dst record.Store
	logger   *slog.Logger
}

// Run copies every registered table from src to dst.
// The returned error is non-nil only when ctx is done.
func Run(ctx context.Context, src, dst record.Store, opts ...Option) (Result, error) {
	m := &migrator{src: src, dst: dst, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}

	var res Result
	for _, table := range record.Tables {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		tr := m.table(ctx, table)
		m.logger.Info("table migrated",
			"table", tr.Table,
			"migrated", tr.Migrated,
			"skipped", tr.Skipped,
			"failed", tr.Failed,
		)
		res.Tables = append(res.Tables, tr)
	}
	return res, nil
}

func (m *migrator) table(ctx context.Context, table record.Table) TableResult {
	tr := TableResult{Table: table.Name}

	rows, err := m.src.Read(ctx, table.Name, nil)
	if err != nil {
		m.logger.Warn("source table unreadable", "table", table.Name, "error", err)
		tr.SkippedTable, tr.Reason = true, "source unreadable"
		return tr
	}
	if len(rows) == 0 {
		return tr
	}
	record.SortBy(rows, table.IDField)

	if table.Name == record.TableUsers {
		existing, err := m.dst.Read(ctx, table.Name, nil)
		if err != nil {
			m.logger.Warn("destination users unreadable", "error", err)
			tr.SkippedTable, tr.Reason = true, "destination unreadable"
			return tr
		}
		if len(existing) > 0 {
			m.logger.Info("skipping users, destination already has accounts", "count", len(existing))
			tr.SkippedTable, tr.Reason = true, "destination has users"
			tr.Skipped = len(rows)
			return tr
		}
	}

	for _, rec := range rows {
		id := rec.String(table.IDField)
		if id != "" {
			dup, err := m.dst.Read(ctx, table.Name, record.Filters{table.IDField: id})
			if err != nil {
				m.logger.Warn("failed to check destination", "table", table.Name, "id", id, "error", err)
				tr.Failed++
				continue
			}
			if len(dup) > 0 {
				m.logger.Warn("skipping duplicate record", "table", table.Name, "id", id)
				tr.Skipped++
				continue
			}
		}
		if err := m.dst.Create(ctx, table.Name, rec); err != nil {
			m.logger.Warn("failed to migrate record", "table", table.Name, "id", id, "error", err)
			tr.Failed++
			continue
		}
		tr.Migrated++
	}
	return tr
}
