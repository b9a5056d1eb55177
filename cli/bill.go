package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/warp/clinic-core/billing"
	"github.com/warp/clinic-core/record"
)

func (o *RootOptions) engine(st record.Store) *billing.Engine {
	return billing.NewEngine(st, billing.Config{
		Catalog:    o.settings.Catalog,
		TaxPercent: o.cfg.TaxPercent,
		Now:        o.now,
		Logger:     o.logger,
	})
}

// =============================================================================
// BILL - pricing without persistence
// =============================================================================

// BillOptions holds flags for the bill commands.
type BillOptions struct {
	*RootOptions
	NoConsultation bool
	Tests          []string
}

func NewBillCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BillOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bill",
		Short: "Price services from the catalog",
	}

	catalog := &cobra.Command{
		Use:   "catalog",
		Short: "List the service catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBillCatalog(opts, cmd)
		},
	}

	quote := &cobra.Command{
		Use:   "quote",
		Short: "Quote an appointment bill",
		Long: `Quote an appointment bill: the consultation fee plus one catalog
price per test. Unknown test codes are ignored.

Example:
  clinic bill quote --test blood_test --test xray`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBillQuote(opts, cmd)
		},
	}
	quote.Flags().BoolVar(&opts.NoConsultation, "no-consultation", false, "leave out the consultation fee")
	quote.Flags().StringArrayVar(&opts.Tests, "test", nil, "test service code (repeatable)")

	cmd.AddCommand(catalog, quote)
	return cmd
}

type serviceOutput struct {
	Code  string  `json:"code"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func runBillCatalog(opts *BillOptions, cmd *cobra.Command) error {
	services := opts.settings.Catalog.Services()
	out := make([]serviceOutput, 0, len(services))
	for _, s := range services {
		out = append(out, serviceOutput{Code: s.Code, Name: s.Name, Price: s.Price.InexactFloat64()})
	}
	return writeJSON(cmd, out)
}

type quoteOutput struct {
	IncludeConsultation bool     `json:"include_consultation"`
	Tests               []string `json:"tests"`
	Unknown             []string `json:"unknown_tests,omitempty"`
	Total               float64  `json:"total"`
}

func runBillQuote(opts *BillOptions, cmd *cobra.Command) error {
	// Quoting never touches storage.
	e := opts.engine(nil)

	tests := opts.Tests
	if tests == nil {
		tests = []string{}
	}
	out := quoteOutput{IncludeConsultation: !opts.NoConsultation, Tests: tests}
	for _, code := range tests {
		if _, ok := e.ServicePrice(code); !ok {
			opts.logger.Warn("unknown test code ignored", "code", code)
			out.Unknown = append(out.Unknown, code)
		}
	}
	out.Total = e.CalculateAppointmentBill(out.IncludeConsultation, tests).InexactFloat64()
	return writeJSON(cmd, out)
}

// =============================================================================
// INVOICE - persisted billing records
// =============================================================================

// InvoiceOptions holds flags for the invoice commands.
type InvoiceOptions struct {
	*RootOptions
	PatientID     string
	PatientName   string
	AppointmentID string
	Items         []string
	Services      []string
	Discount      string
	Tax           string
	Method        string
}

func NewInvoiceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvoiceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Create, inspect and settle invoices",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create and save an invoice",
		Long: `Create and save an invoice in one step.

Items are "description:quantity:unit_price"; the description may itself
contain colons. Services are "code" or "code:quantity" priced from the
catalog. Discount and tax are percentages.

Example:
  clinic invoice create --patient PAT001 --name "Ada Lovelace" \
    --service consultation --service blood_test:2 \
    --item "Bandage:3:12.50" --discount 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoiceCreate(opts, cmd)
		},
	}
	f := create.Flags()
	f.StringVar(&opts.PatientID, "patient", "", "patient id (required)")
	f.StringVar(&opts.PatientName, "name", "", "patient name (required)")
	f.StringVar(&opts.AppointmentID, "appointment", "", "appointment id")
	f.StringArrayVar(&opts.Items, "item", nil, "description:quantity:unit_price (repeatable)")
	f.StringArrayVar(&opts.Services, "service", nil, "code[:quantity] from the catalog (repeatable)")
	f.StringVar(&opts.Discount, "discount", "", "discount percent")
	f.StringVar(&opts.Tax, "tax", "", "tax percent (default from CLINIC_TAX_PERCENT)")
	_ = create.MarkFlagRequired("patient")
	_ = create.MarkFlagRequired("name")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoiceShow(opts, cmd, args[0])
		},
	}

	pay := &cobra.Command{
		Use:   "pay <id>",
		Short: "Mark an invoice paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoicePay(opts, cmd, args[0])
		},
	}
	pay.Flags().StringVar(&opts.Method, "method", "", "payment method, e.g. cash or card")

	list := &cobra.Command{
		Use:   "list",
		Short: "List a patient's invoices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoiceList(opts, cmd)
		},
	}
	list.Flags().StringVar(&opts.PatientID, "patient", "", "patient id (required)")
	_ = list.MarkFlagRequired("patient")

	cmd.AddCommand(create, show, pay, list)
	return cmd
}

func runInvoiceCreate(opts *InvoiceOptions, cmd *cobra.Command) error {
	items := make([]parsedItem, 0, len(opts.Items))
	for _, raw := range opts.Items {
		it, err := parseItem(raw)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --item", err)
		}
		items = append(items, it)
	}
	services := make([]parsedService, 0, len(opts.Services))
	for _, raw := range opts.Services {
		svc, err := parseService(raw)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --service", err)
		}
		services = append(services, svc)
	}
	discount, err := percent("--discount", opts.Discount)
	if err != nil {
		return err
	}
	tax, err := percent("--tax", opts.Tax)
	if err != nil {
		return err
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := cmd.Context()
	e := opts.engine(st)

	inv, err := e.CreateInvoice(ctx, opts.PatientID, opts.PatientName)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create invoice", err)
	}
	if opts.AppointmentID != "" {
		if err := inv.SetAppointmentID(opts.AppointmentID); err != nil {
			return WrapExitError(ExitFailure, "failed to link appointment", err)
		}
	}
	for _, svc := range services {
		if err := e.AddCatalogItem(inv, svc.code, svc.quantity); err != nil {
			return WrapExitError(ExitCommandError, "failed to add service", err)
		}
	}
	for _, it := range items {
		if err := inv.AddItem(it.description, it.quantity, it.unitPrice); err != nil {
			return WrapExitError(ExitFailure, "failed to add item", err)
		}
	}
	if discount != nil {
		if err := inv.SetDiscountPercent(*discount); err != nil {
			return WrapExitError(ExitFailure, "failed to set discount", err)
		}
	}
	if tax != nil {
		if err := inv.SetTaxPercent(*tax); err != nil {
			return WrapExitError(ExitFailure, "failed to set tax", err)
		}
	}

	if err := e.SaveInvoice(ctx, inv); err != nil {
		return WrapExitError(ExitFailure, "failed to save invoice", err)
	}
	saved, err := e.GetInvoice(ctx, inv.ID())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read back invoice", err)
	}
	return writeJSON(cmd, saved)
}

func runInvoiceShow(opts *InvoiceOptions, cmd *cobra.Command, id string) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := opts.engine(st).GetInvoice(cmd.Context(), id)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load invoice", err)
	}
	if rec == nil {
		return NewExitError(ExitFailure, "invoice "+id+" not found")
	}
	return writeJSON(cmd, rec)
}

func runInvoicePay(opts *InvoiceOptions, cmd *cobra.Command, id string) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	e := opts.engine(st)

	var payOpts []billing.PayOption
	if opts.Method != "" {
		payOpts = append(payOpts, billing.WithPaymentMethod(opts.Method))
	}
	ok, err := e.MarkInvoicePaid(cmd.Context(), id, payOpts...)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to mark invoice paid", err)
	}
	if !ok {
		return NewExitError(ExitFailure, "invoice "+id+" not found")
	}
	rec, err := e.GetInvoice(cmd.Context(), id)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load invoice", err)
	}
	return writeJSON(cmd, rec)
}

func runInvoiceList(opts *InvoiceOptions, cmd *cobra.Command) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := opts.engine(st).GetPatientInvoices(cmd.Context(), opts.PatientID)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list invoices", err)
	}
	if recs == nil {
		recs = []record.Record{}
	}
	return writeJSON(cmd, recs)
}

// =============================================================================
// FLAG PARSING
// =============================================================================

type parsedItem struct {
	description string
	quantity    int
	unitPrice   decimal.Decimal
}

// parseItem splits "description:quantity:unit_price" from the right.
func parseItem(raw string) (parsedItem, error) {
	rest, priceText, ok := cutLast(raw, ":")
	if !ok {
		return parsedItem{}, fmt.Errorf("expected description:quantity:unit_price, got %q", raw)
	}
	desc, qtyText, ok := cutLast(rest, ":")
	if !ok || strings.TrimSpace(desc) == "" {
		return parsedItem{}, fmt.Errorf("expected description:quantity:unit_price, got %q", raw)
	}
	qty, err := quantity(qtyText)
	if err != nil {
		return parsedItem{}, err
	}
	price, err := decimal.NewFromString(strings.TrimSpace(priceText))
	if err != nil {
		return parsedItem{}, fmt.Errorf("invalid unit price %q", priceText)
	}
	return parsedItem{description: strings.TrimSpace(desc), quantity: qty, unitPrice: price}, nil
}

type parsedService struct {
	code     string
	quantity int
}

func parseService(raw string) (parsedService, error) {
	code, qtyText, hasQty := strings.Cut(raw, ":")
	code = strings.TrimSpace(code)
	if code == "" {
		return parsedService{}, fmt.Errorf("expected code[:quantity], got %q", raw)
	}
	if !hasQty {
		return parsedService{code: code, quantity: 1}, nil
	}
	qty, err := quantity(qtyText)
	if err != nil {
		return parsedService{}, err
	}
	return parsedService{code: code, quantity: qty}, nil
}

func quantity(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("quantity must be a positive integer, got %q", s)
	}
	return n, nil
}

// percent parses an optional percentage flag. Empty means unset.
func percent(flag, s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("%s must be a percentage between 0 and 100, got %q", flag, s))
	}
	return &d, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
