package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clinic-core/billing"
	"github.com/warp/clinic-core/record"
	"github.com/warp/clinic-core/store/file"
	"github.com/warp/clinic-core/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var fixedNow = time.Date(2025, time.March, 1, 14, 30, 0, 0, time.UTC)

func testCatalog() *billing.Catalog {
	return billing.NewCatalog(
		billing.Service{Code: "consultation", Name: "Doctor Consultation", Price: decimal.NewFromInt(500)},
		billing.Service{Code: "blood_test", Name: "Blood Test", Price: decimal.NewFromInt(400)},
		billing.Service{Code: "xray", Name: "X-Ray", Price: decimal.NewFromInt(800)},
		billing.Service{Code: "ecg", Name: "ECG", Price: decimal.NewFromInt(250)},
		billing.Service{Code: "medicine", Name: "Medicines", Price: decimal.Zero},
	)
}

func newTestEngine(t *testing.T) (*billing.Engine, record.Store) {
	t.Helper()
	store, err := file.New(t.TempDir(), file.Options{})
	require.NoError(t, err)
	engine := billing.NewEngine(store, billing.Config{
		Catalog: testCatalog(),
		Now:     func() time.Time { return fixedNow },
	})
	return engine, store
}

// failingStore fails every call with err.
type failingStore struct{ err error }

func (f failingStore) Create(context.Context, string, record.Record) error { return f.err }
func (f failingStore) Read(context.Context, string, record.Filters) ([]record.Record, error) {
	return nil, f.err
}
func (f failingStore) Update(context.Context, string, string, string, record.Record) (bool, error) {
	return false, f.err
}
func (f failingStore) Delete(context.Context, string, string, string) (bool, error) {
	return false, f.err
}
func (f failingStore) NextID(context.Context, string, string) (string, error) { return "", f.err }

func saveSample(t *testing.T, engine *billing.Engine, patientID string) *billing.Invoice {
	t.Helper()
	ctx := context.Background()
	inv, err := engine.CreateInvoice(ctx, patientID, "Ada Lovelace")
	require.NoError(t, err)
	require.NoError(t, inv.AddItem("X", 2, decimal.NewFromInt(100)))
	require.NoError(t, inv.SetDiscountPercent(decimal.NewFromInt(10)))
	require.NoError(t, inv.SetTaxPercent(decimal.NewFromInt(5)))
	require.NoError(t, engine.SaveInvoice(ctx, inv))
	return inv
}

// =============================================================================
// CREATE AND SAVE
// =============================================================================

func TestEngine_CreateInvoiceAllocatesWithoutWriting(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)

	inv, err := engine.CreateInvoice(ctx, "PAT001", "Ada Lovelace")
	require.NoError(t, err)
	assert.Equal(t, "INV001", inv.ID())
	assert.Equal(t, "2025-03-01", inv.Date())
	assert.Empty(t, inv.Items())
	assert.False(t, inv.Saved())

	recs, err := store.Read(ctx, record.TableBilling, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)

	// An unsaved draft does not consume its number.
	again, err := engine.CreateInvoice(ctx, "PAT002", "Bob")
	require.NoError(t, err)
	assert.Equal(t, "INV001", again.ID())
}

func TestEngine_SaveInvoicePersistsSnapshot(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	inv := saveSample(t, engine, "PAT001")
	assert.True(t, inv.Saved())

	got, err := engine.GetInvoice(ctx, inv.ID())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "PAT001", got["patient_id"])
	assert.Equal(t, "pending", got["status"])
	assert.Equal(t, 200.0, got["subtotal"])
	assert.Equal(t, 20.0, got["discount_amount"])
	assert.Equal(t, 9.0, got["tax_amount"])
	assert.Equal(t, 189.0, got["total"])
	assert.Equal(t, "2025-03-01T14:30:00", got["created_at"])

	items, err := billing.DecodeItems(got["items"])
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "X", items[0].Description)

	next, err := engine.CreateInvoice(ctx, "PAT001", "Ada Lovelace")
	require.NoError(t, err)
	assert.Equal(t, "INV002", next.ID())
}

func TestEngine_SavedInvoiceIsFrozen(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	inv := saveSample(t, engine, "PAT001")

	err := engine.SaveInvoice(ctx, inv)
	assert.ErrorIs(t, err, billing.ErrInvoiceSaved)
	assert.ErrorIs(t, err, billing.ErrBilling)
	assert.ErrorIs(t, inv.AddItem("late", 1, decimal.NewFromInt(1)), billing.ErrInvoiceSaved)

	recs, err := store.Read(ctx, record.TableBilling, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestEngine_DefaultTaxAppliesToNewInvoices(t *testing.T) {
	store, err := file.New(t.TempDir(), file.Options{})
	require.NoError(t, err)
	engine := billing.NewEngine(store, billing.Config{TaxPercent: decimal.NewFromInt(18)})

	inv, err := engine.CreateInvoice(context.Background(), "PAT001", "Ada")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(18).Equal(inv.TaxPercent()))
}

func TestEngine_AppointmentLink(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	inv, err := engine.CreateInvoice(ctx, "PAT001", "Ada")
	require.NoError(t, err)
	require.NoError(t, inv.SetAppointmentID("APT003"))
	require.NoError(t, engine.SaveInvoice(ctx, inv))

	got, err := engine.GetInvoice(ctx, inv.ID())
	require.NoError(t, err)
	assert.Equal(t, "APT003", got["appointment_id"])
	assert.Equal(t, 0.0, got["total"])
}

// =============================================================================
// CATALOG PRICING
// =============================================================================

func TestEngine_AddCatalogItem(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	inv, err := engine.CreateInvoice(ctx, "PAT001", "Ada")
	require.NoError(t, err)

	require.NoError(t, engine.AddCatalogItem(inv, "xray", 1))
	require.NoError(t, engine.AddCatalogItem(inv, "blood_test", 2))
	assert.True(t, decimal.NewFromInt(1600).Equal(inv.Total()))
	assert.Equal(t, "X-Ray", inv.Items()[0].Description)

	err = engine.AddCatalogItem(inv, "teleport", 1)
	assert.ErrorIs(t, err, billing.ErrUnknownService)
	assert.ErrorIs(t, err, billing.ErrBilling)
	assert.Len(t, inv.Items(), 2)
}

func TestEngine_CalculateAppointmentBill(t *testing.T) {
	engine, _ := newTestEngine(t)

	tests := []struct {
		name         string
		consultation bool
		codes        []string
		want         int64
	}{
		{"consultation only", true, nil, 500},
		{"consultation and tests", true, []string{"blood_test", "ecg"}, 1150},
		{"tests only", false, []string{"xray"}, 800},
		{"unknown codes ignored", true, []string{"teleport", "xray"}, 1300},
		{"nothing", false, nil, 0},
		{"variable price entry", false, []string{"medicine"}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.CalculateAppointmentBill(tc.consultation, tc.codes)
			assert.Truef(t, decimal.NewFromInt(tc.want).Equal(got), "want %d, got %s", tc.want, got)
		})
	}
}

func TestEngine_ServicePrice(t *testing.T) {
	engine, _ := newTestEngine(t)

	svc, ok := engine.ServicePrice("ecg")
	require.True(t, ok)
	assert.Equal(t, "ECG", svc.Name)

	_, ok = engine.ServicePrice("teleport")
	assert.False(t, ok)
}

// =============================================================================
// PAYMENT
// =============================================================================

func TestEngine_MarkInvoicePaidIsIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	inv := saveSample(t, engine, "PAT001")

	ok, err := engine.MarkInvoicePaid(ctx, inv.ID(), billing.WithPaymentMethod("card"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = engine.MarkInvoicePaid(ctx, inv.ID())
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := engine.GetInvoice(ctx, inv.ID())
	require.NoError(t, err)
	assert.Equal(t, "paid", got["status"])
	assert.Equal(t, "card", got["payment_method"])
	assert.Equal(t, 189.0, got["total"])
}

func TestEngine_MarkMissingInvoicePaid(t *testing.T) {
	engine, _ := newTestEngine(t)

	ok, err := engine.MarkInvoicePaid(context.Background(), "INV404")
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// READS
// =============================================================================

func TestEngine_GetInvoiceMissing(t *testing.T) {
	engine, _ := newTestEngine(t)

	got, err := engine.GetInvoice(context.Background(), "INV404")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEngine_GetPatientInvoices(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	saveSample(t, engine, "PAT001")
	saveSample(t, engine, "PAT002")
	saveSample(t, engine, "PAT001")

	invoices, err := engine.GetPatientInvoices(ctx, "PAT001")
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, "INV001", invoices[0]["invoice_id"])
	assert.Equal(t, "INV003", invoices[1]["invoice_id"])

	none, err := engine.GetPatientInvoices(ctx, "PAT404")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// =============================================================================
// FAULTS
// =============================================================================

func TestEngine_WrapsStoreFaults(t *testing.T) {
	ctx := context.Background()
	cause := record.Fault("read", record.TableBilling, errors.New("disk gone"))
	engine := billing.NewEngine(failingStore{err: cause}, billing.Config{Catalog: testCatalog()})

	_, err := engine.CreateInvoice(ctx, "PAT001", "Ada")
	assert.ErrorIs(t, err, billing.ErrBilling)
	assert.ErrorIs(t, err, record.ErrStoreFault)

	var be *billing.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "create invoice", be.Op)

	_, err = engine.GetInvoice(ctx, "INV001")
	assert.ErrorIs(t, err, record.ErrStoreFault)
	_, err = engine.GetPatientInvoices(ctx, "PAT001")
	assert.ErrorIs(t, err, billing.ErrBilling)
	_, err = engine.MarkInvoicePaid(ctx, "INV001")
	assert.ErrorIs(t, err, billing.ErrBilling)
}

func TestEngine_FailedSaveLeavesDraftMutable(t *testing.T) {
	ctx := context.Background()
	good, _ := newTestEngine(t)
	inv, err := good.CreateInvoice(ctx, "PAT001", "Ada")
	require.NoError(t, err)

	bad := billing.NewEngine(failingStore{err: record.Fault("create", record.TableBilling, errors.New("full"))}, billing.Config{})
	err = bad.SaveInvoice(ctx, inv)
	assert.ErrorIs(t, err, record.ErrStoreFault)
	assert.False(t, inv.Saved())
	assert.NoError(t, inv.AddItem("retry", 1, decimal.NewFromInt(1)))
}

// readOnly serves reads from memory and rejects every write.
type readOnly struct{ *memory.Store }

func (readOnly) Create(context.Context, string, record.Record) error {
	return record.Fault("create", record.TableBilling, errors.New("read-only"))
}

func TestEngine_FailedSaveCanBeRetried(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	cfg := billing.Config{Catalog: testCatalog(), Now: func() time.Time { return fixedNow }}

	inv, err := billing.NewEngine(readOnly{mem}, cfg).CreateInvoice(ctx, "PAT001", "Ada")
	require.NoError(t, err)
	require.NoError(t, inv.AddItem("X-Ray", 1, decimal.NewFromInt(800)))
	err = billing.NewEngine(readOnly{mem}, cfg).SaveInvoice(ctx, inv)
	require.ErrorIs(t, err, record.ErrStoreFault)

	// GIVEN the same draft
	// WHEN saved through a writable store
	engine := billing.NewEngine(mem, cfg)
	require.NoError(t, engine.SaveInvoice(ctx, inv))

	// THEN it is stored under the id allocated before the failure
	rec, err := engine.GetInvoice(ctx, "INV001")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 800.0, rec["total"])
	assert.True(t, inv.Saved())
}
