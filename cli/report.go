package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/warp/clinic-core/reports"
	"github.com/warp/clinic-core/validate"
)

// ReportOptions holds flags for the report commands.
type ReportOptions struct {
	*RootOptions
	From string
	To   string
}

func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate statistical reports",
		Long: `Generate statistical reports as JSON.

--from and --to bound the report inclusively (YYYY-MM-DD). Either may be
left out. The departments report covers all dates.`,
	}
	cmd.PersistentFlags().StringVar(&opts.From, "from", "", "first date, YYYY-MM-DD")
	cmd.PersistentFlags().StringVar(&opts.To, "to", "", "last date, YYYY-MM-DD")

	add := func(use, short string, run func(*reports.Generator, context.Context, reports.Range) (any, error)) {
		cmd.AddCommand(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runReport(opts, cmd, run)
			},
		})
	}
	add("patients", "Patient demographics", func(g *reports.Generator, ctx context.Context, r reports.Range) (any, error) {
		return g.PatientSummary(ctx, r)
	})
	add("appointments", "Appointment volume by status, department and day", func(g *reports.Generator, ctx context.Context, r reports.Range) (any, error) {
		return g.Appointments(ctx, r)
	})
	add("financial", "Revenue by status, payment method, day and service", func(g *reports.Generator, ctx context.Context, r reports.Range) (any, error) {
		return g.Financial(ctx, r)
	})
	add("departments", "Appointment status counts per department", func(g *reports.Generator, ctx context.Context, _ reports.Range) (any, error) {
		return g.Departments(ctx)
	})

	return cmd
}

func (o *ReportOptions) dateRange() (reports.Range, error) {
	for _, d := range []struct{ flag, value string }{{"from", o.From}, {"to", o.To}} {
		if d.value == "" {
			continue
		}
		if err := validate.Date(d.flag, d.value); err != nil {
			return reports.Range{}, err
		}
	}
	return reports.Range{From: o.From, To: o.To}, nil
}

func runReport(opts *ReportOptions, cmd *cobra.Command, run func(*reports.Generator, context.Context, reports.Range) (any, error)) error {
	r, err := opts.dateRange()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid date range", err)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	g := reports.NewGenerator(st, reports.Config{Now: opts.now, Logger: opts.logger})
	rep, err := run(g, cmd.Context(), r)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to generate report", err)
	}
	return writeJSON(cmd, rep)
}
