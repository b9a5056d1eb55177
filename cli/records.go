package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/clinic-core/record"
	"gopkg.in/yaml.v3"
)

// RecordsOptions holds flags for the records commands.
type RecordsOptions struct {
	*RootOptions
	Where []string
}

func NewRecordsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "records",
		Short: "Read raw table records",
	}

	list := &cobra.Command{
		Use:   "list <table>",
		Short: "List the records of a table",
		Long: `List the records of a table, ordered by business id.

Filters are equality tests joined with AND. Values are typed the way YAML
types scalars: 189 is a number, true is a boolean, and quoting forces a
string. Dates stay text. An empty value matches a missing or null field.

Examples:
  clinic records list patients --where gender=Female
  clinic records list billing --where status=paid --where date=2025-03-01
  clinic records list patients --where 'phone="5550001111"'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordsList(opts, cmd, args[0])
		},
	}
	list.Flags().StringArrayVar(&opts.Where, "where", nil, "field=value filter (repeatable)")

	nextID := &cobra.Command{
		Use:   "next-id <table> <prefix>",
		Short: "Show the next free business id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNextID(opts.RootOptions, cmd, args[0], args[1])
		},
	}

	cmd.AddCommand(list, nextID)
	return cmd
}

func runRecordsList(opts *RecordsOptions, cmd *cobra.Command, table string) error {
	filters, err := parseWhere(opts.Where)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --where", err)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.Read(cmd.Context(), table, filters)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read "+table, err)
	}
	if idField, err := record.IDField(table); err == nil {
		record.SortBy(recs, idField)
	}
	if recs == nil {
		recs = []record.Record{}
	}
	return writeJSON(cmd, recs)
}

type nextIDOutput struct {
	Table  string `json:"table"`
	NextID string `json:"next_id"`
}

func runNextID(opts *RootOptions, cmd *cobra.Command, table, prefix string) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := st.NextID(cmd.Context(), table, prefix)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to compute next id", err)
	}
	return writeJSON(cmd, nextIDOutput{Table: table, NextID: id})
}

// parseWhere turns field=value pairs into filters.
func parseWhere(pairs []string) (record.Filters, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filters := make(record.Filters, len(pairs))
	for _, p := range pairs {
		field, raw, ok := strings.Cut(p, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("expected field=value, got %q", p)
		}
		filters[field] = scalar(raw)
	}
	return filters, nil
}

// scalar types raw as a YAML scalar. Timestamps and anything that is not a
// scalar stay plain strings, since dates are stored as text.
func scalar(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch v.(type) {
	case map[string]any, []any, time.Time:
		return raw
	}
	return v
}
