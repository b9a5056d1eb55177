/*
Package billing builds, prices and persists invoices.

PURPOSE:
  The Engine stages invoices in memory, prices line items against an
  injected Catalog, and persists a saved invoice as one flattened billing
  record through record.Store. It owns no storage of its own.

FLOW:
  inv, _ := engine.CreateInvoice(ctx, "PAT001", "Ada Lovelace") // allocates INVnnn, no write
  inv.AddItem("X-Ray", 1, decimal.NewFromInt(800))
  engine.AddCatalogItem(inv, "blood_test", 2)
  inv.SetDiscountPercent(decimal.NewFromInt(10))
  engine.SaveInvoice(ctx, inv)                                   // one Create
  engine.MarkInvoicePaid(ctx, inv.ID(), billing.WithPaymentMethod("card"))

  A failure between CreateInvoice and SaveInvoice leaves a gap in the
  invoice numbering. Identifiers are unique, not dense.

SEE ALSO:
  - invoice.go: aggregates and the flattened record
  - catalog.go: service prices
*/
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/clinic-core/record"
)

const (
	invoicePrefix = "INV"
	dateLayout    = "2006-01-02"
	stampLayout   = "2006-01-02T15:04:05"
)

// Config configures an Engine.
type Config struct {
	Catalog *Catalog

	// TaxPercent is applied to every new invoice. Callers may override it
	// per invoice before saving.
	TaxPercent decimal.Decimal

	Now    func() time.Time
	Logger *slog.Logger
}

// Engine is the billing service.
type Engine struct {
	store   record.Store
	catalog *Catalog
	tax     decimal.Decimal
	now     func() time.Time
	logger  *slog.Logger
}

// NewEngine creates an engine over store.
func NewEngine(store record.Store, cfg Config) *Engine {
	e := &Engine{
		store:   store,
		catalog: cfg.Catalog,
		tax:     cfg.TaxPercent,
		now:     cfg.Now,
		logger:  cfg.Logger,
	}
	if e.catalog == nil {
		e.catalog = NewCatalog()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Catalog returns the engine's service catalog.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// =============================================================================
// INVOICES
// =============================================================================

// CreateInvoice allocates an invoice id and returns an empty draft. Nothing
// is written.
func (e *Engine) CreateInvoice(ctx context.Context, patientID, patientName string) (*Invoice, error) {
	id, err := e.store.NextID(ctx, record.TableBilling, invoicePrefix)
	if err != nil {
		return nil, wrap("create invoice", err)
	}
	return &Invoice{
		id:          id,
		patientID:   patientID,
		patientName: patientName,
		date:        e.now().Format(dateLayout),
		taxPercent:  e.tax,
	}, nil
}

// AddCatalogItem appends a line priced from the catalog, described by the
// service name.
func (e *Engine) AddCatalogItem(inv *Invoice, code string, quantity int) error {
	svc, ok := e.catalog.Lookup(code)
	if !ok {
		return wrap("add catalog item", fmt.Errorf("%w: %q", ErrUnknownService, code))
	}
	if err := inv.AddItem(svc.Name, quantity, svc.Price); err != nil {
		return wrap("add catalog item", err)
	}
	return nil
}

// SaveInvoice persists inv as a pending billing record and freezes it.
func (e *Engine) SaveInvoice(ctx context.Context, inv *Invoice) error {
	if inv.saved {
		return wrap("save invoice", ErrInvoiceSaved)
	}
	rec, err := inv.Record()
	if err != nil {
		return wrap("save invoice", err)
	}
	rec["created_at"] = e.now().Format(stampLayout)

	if err := e.store.Create(ctx, record.TableBilling, rec); err != nil {
		return wrap("save invoice", err)
	}
	inv.saved = true
	e.logger.Info("invoice saved",
		"id", inv.id,
		"patient_id", inv.patientID,
		"items", len(inv.items),
		"total", inv.Total().StringFixed(2),
	)
	return nil
}

// GetInvoice returns the stored invoice, or nil when there is none.
func (e *Engine) GetInvoice(ctx context.Context, id string) (record.Record, error) {
	recs, err := e.store.Read(ctx, record.TableBilling, record.Filters{"invoice_id": id})
	if err != nil {
		return nil, wrap("retrieve invoice", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// GetPatientInvoices returns every stored invoice for a patient, by id.
func (e *Engine) GetPatientInvoices(ctx context.Context, patientID string) ([]record.Record, error) {
	recs, err := e.store.Read(ctx, record.TableBilling, record.Filters{"patient_id": patientID})
	if err != nil {
		return nil, wrap("retrieve invoices", err)
	}
	record.SortBy(recs, "invoice_id")
	return recs, nil
}

// =============================================================================
// PAYMENT
// =============================================================================

type payOptions struct {
	method string
}

// PayOption customises MarkInvoicePaid.
type PayOption func(*payOptions)

// WithPaymentMethod records how the invoice was settled.
func WithPaymentMethod(method string) PayOption {
	return func(o *payOptions) { o.method = method }
}

// MarkInvoicePaid sets the stored invoice's status to paid. It returns false
// when no such invoice exists. Marking an already paid invoice succeeds.
func (e *Engine) MarkInvoicePaid(ctx context.Context, id string, opts ...PayOption) (bool, error) {
	var o payOptions
	for _, opt := range opts {
		opt(&o)
	}
	updates := record.Record{"status": string(StatusPaid)}
	if o.method != "" {
		updates["payment_method"] = o.method
	}

	ok, err := e.store.Update(ctx, record.TableBilling, id, "invoice_id", updates)
	if err != nil {
		return false, wrap("update invoice status", err)
	}
	if ok {
		e.logger.Info("invoice paid", "id", id, "payment_method", o.method)
	}
	return ok, nil
}

// =============================================================================
// PRICING
// =============================================================================

// ServicePrice looks up a catalog entry.
func (e *Engine) ServicePrice(code string) (Service, bool) {
	return e.catalog.Lookup(code)
}

// CalculateAppointmentBill sums the consultation fee (if requested) and the
// price of each test code. Unknown codes contribute nothing.
func (e *Engine) CalculateAppointmentBill(includeConsultation bool, testCodes []string) decimal.Decimal {
	total := decimal.Zero
	if includeConsultation {
		if svc, ok := e.catalog.Lookup(CodeConsultation); ok {
			total = total.Add(svc.Price)
		}
	}
	for _, code := range testCodes {
		if svc, ok := e.catalog.Lookup(code); ok {
			total = total.Add(svc.Price)
		}
	}
	return total
}
