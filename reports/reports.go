/*
Package reports aggregates statistics over the clinic tables.

PURPOSE:
  Generator reads whole tables through record.Store and folds them into
  report structs ready for JSON rendering. It never writes.

DATE RANGES:
  A Range bounds YYYY-MM-DD strings inclusively. Either end may be empty,
  meaning open. Each report filters on its own date field:

    patients     - date part of created_at (registration_date if absent)
    appointments - appointment_date
    billing      - date

MONEY:
  Financial sums are accumulated as decimal.Decimal and converted to float64
  only for output.

SEE ALSO:
  - billing: writes the invoice fields the financial report reads
*/
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/clinic-core/billing"
	"github.com/warp/clinic-core/patients"
	"github.com/warp/clinic-core/record"
)

// ErrReport matches every error returned by Generator.
var ErrReport = errors.New("report error")

const (
	unknown      = "Unknown"
	stampLayout  = "2006-01-02 15:04:05"
	allDatesText = "All"
)

// Range is an inclusive date window. Empty ends are open.
type Range struct {
	From string
	To   string
}

func (r Range) contains(date string) bool {
	if r.From == "" && r.To == "" {
		return true
	}
	if date == "" {
		return false
	}
	if r.From != "" && date < r.From {
		return false
	}
	if r.To != "" && date > r.To {
		return false
	}
	return true
}

func (r Range) String() string {
	from, to := r.From, r.To
	if from == "" {
		from = allDatesText
	}
	if to == "" {
		to = allDatesText
	}
	return from + " to " + to
}

// Config configures a Generator.
type Config struct {
	Now    func() time.Time
	Logger *slog.Logger
}

// Generator builds reports.
type Generator struct {
	store  record.Store
	now    func() time.Time
	logger *slog.Logger
}

func NewGenerator(store record.Store, cfg Config) *Generator {
	g := &Generator{store: store, now: cfg.Now, logger: cfg.Logger}
	if g.now == nil {
		g.now = time.Now
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Render writes v as indented JSON followed by a newline.
func Render(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// =============================================================================
// PATIENT SUMMARY
// =============================================================================

// Age buckets, in output order.
var ageBuckets = []struct {
	label string
	max   int
}{
	{"0-18", 18},
	{"19-35", 35},
	{"36-50", 50},
	{"51-65", 65},
	{"65+", 1 << 30},
}

type PatientSummary struct {
	ReportType             string          `json:"report_type"`
	GeneratedAt            string          `json:"generated_at"`
	Period                 string          `json:"period"`
	TotalPatients          int             `json:"total_patients"`
	GenderDistribution     map[string]int  `json:"gender_distribution"`
	BloodGroupDistribution map[string]int  `json:"blood_group_distribution"`
	AgeDistribution        map[string]int  `json:"age_distribution"`
	Patients               []record.Record `json:"patients"`
}

func (g *Generator) PatientSummary(ctx context.Context, r Range) (*PatientSummary, error) {
	recs, err := g.read(ctx, record.TablePatients, "patient_id")
	if err != nil {
		return nil, err
	}
	now := g.now()
	rep := &PatientSummary{
		ReportType:             "Patient Summary",
		GeneratedAt:            now.Format(stampLayout),
		Period:                 r.String(),
		GenderDistribution:     map[string]int{},
		BloodGroupDistribution: map[string]int{},
		AgeDistribution:        map[string]int{},
		Patients:               []record.Record{},
	}
	for _, b := range ageBuckets {
		rep.AgeDistribution[b.label] = 0
	}

	for _, rec := range recs {
		if !r.contains(registeredOn(rec)) {
			continue
		}
		rep.Patients = append(rep.Patients, rec)
		rep.GenderDistribution[orUnknown(rec.String("gender"))]++
		rep.BloodGroupDistribution[orUnknown(rec.String("blood_group"))]++

		p := patients.FromRecord(rec)
		if p.DateOfBirth == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", p.DateOfBirth); err != nil {
			continue
		}
		age := p.Age(now)
		for _, b := range ageBuckets {
			if age <= b.max {
				rep.AgeDistribution[b.label]++
				break
			}
		}
	}
	rep.TotalPatients = len(rep.Patients)
	return rep, nil
}

func registeredOn(rec record.Record) string {
	if created := rec.String("created_at"); created != "" {
		date, _, _ := strings.Cut(created, "T")
		return date
	}
	return rec.String("registration_date")
}

// =============================================================================
// APPOINTMENTS
// =============================================================================

type Appointments struct {
	ReportType             string          `json:"report_type"`
	GeneratedAt            string          `json:"generated_at"`
	Period                 string          `json:"period"`
	TotalAppointments      int             `json:"total_appointments"`
	StatusDistribution     map[string]int  `json:"status_distribution"`
	DepartmentDistribution map[string]int  `json:"department_distribution"`
	DailyAppointments      map[string]int  `json:"daily_appointments"`
	Appointments           []record.Record `json:"appointments"`
}

func (g *Generator) Appointments(ctx context.Context, r Range) (*Appointments, error) {
	recs, err := g.read(ctx, record.TableAppointments, "appointment_id")
	if err != nil {
		return nil, err
	}
	rep := &Appointments{
		ReportType:             "Appointment Report",
		GeneratedAt:            g.now().Format(stampLayout),
		Period:                 r.String(),
		StatusDistribution:     map[string]int{},
		DepartmentDistribution: map[string]int{},
		DailyAppointments:      map[string]int{},
		Appointments:           []record.Record{},
	}
	for _, rec := range recs {
		date := rec.String("appointment_date")
		if !r.contains(date) {
			continue
		}
		rep.Appointments = append(rep.Appointments, rec)
		rep.StatusDistribution[orUnknown(rec.String("status"))]++
		rep.DepartmentDistribution[orUnknown(rec.String("department"))]++
		rep.DailyAppointments[orUnknown(date)]++
	}
	rep.TotalAppointments = len(rep.Appointments)
	return rep, nil
}

// =============================================================================
// FINANCIAL
// =============================================================================

type Financial struct {
	ReportType                string             `json:"report_type"`
	GeneratedAt               string             `json:"generated_at"`
	Period                    string             `json:"period"`
	TotalRevenue              float64            `json:"total_revenue"`
	TotalPaid                 float64            `json:"total_paid"`
	TotalPending              float64            `json:"total_pending"`
	TotalInvoices             int                `json:"total_invoices"`
	PaymentMethodDistribution map[string]float64 `json:"payment_method_distribution"`
	DailyRevenue              map[string]float64 `json:"daily_revenue"`
	ServiceRevenue            map[string]float64 `json:"service_revenue"`
	Invoices                  []record.Record    `json:"invoices"`
}

func (g *Generator) Financial(ctx context.Context, r Range) (*Financial, error) {
	recs, err := g.read(ctx, record.TableBilling, "invoice_id")
	if err != nil {
		return nil, err
	}

	var revenue, paid, pending decimal.Decimal
	byMethod := map[string]decimal.Decimal{}
	byDay := map[string]decimal.Decimal{}
	byService := map[string]decimal.Decimal{}
	invoices := []record.Record{}

	for _, rec := range recs {
		date := rec.String("date")
		if !r.contains(date) {
			continue
		}
		invoices = append(invoices, rec)
		amount := decimal.NewFromFloat(rec.Float("total"))
		revenue = revenue.Add(amount)

		if strings.EqualFold(rec.String("status"), string(billing.StatusPaid)) {
			paid = paid.Add(amount)
			method := orUnknown(rec.String("payment_method"))
			byMethod[method] = byMethod[method].Add(amount)
		} else {
			pending = pending.Add(amount)
		}
		day := orUnknown(date)
		byDay[day] = byDay[day].Add(amount)

		items, err := billing.DecodeItems(rec["items"])
		if err != nil {
			g.logger.Warn("skipping unreadable invoice items", "id", rec.String("invoice_id"), "error", err)
			continue
		}
		for _, li := range items {
			name := orUnknown(li.Description)
			byService[name] = byService[name].Add(li.Total())
		}
	}

	return &Financial{
		ReportType:                "Financial Report",
		GeneratedAt:               g.now().Format(stampLayout),
		Period:                    r.String(),
		TotalRevenue:              revenue.InexactFloat64(),
		TotalPaid:                 paid.InexactFloat64(),
		TotalPending:              pending.InexactFloat64(),
		TotalInvoices:             len(invoices),
		PaymentMethodDistribution: floats(byMethod),
		DailyRevenue:              floats(byDay),
		ServiceRevenue:            floats(byService),
		Invoices:                  invoices,
	}, nil
}

// =============================================================================
// DEPARTMENTS
// =============================================================================

// DepartmentStats counts one department's appointments by status.
type DepartmentStats struct {
	TotalAppointments int `json:"total_appointments"`
	Scheduled         int `json:"scheduled"`
	Confirmed         int `json:"confirmed"`
	Completed         int `json:"completed"`
	Cancelled         int `json:"cancelled"`
}

type Departments struct {
	ReportType  string                      `json:"report_type"`
	GeneratedAt string                      `json:"generated_at"`
	Departments map[string]*DepartmentStats `json:"departments"`
}

func (g *Generator) Departments(ctx context.Context) (*Departments, error) {
	recs, err := g.read(ctx, record.TableAppointments, "appointment_id")
	if err != nil {
		return nil, err
	}
	rep := &Departments{
		ReportType:  "Department Report",
		GeneratedAt: g.now().Format(stampLayout),
		Departments: map[string]*DepartmentStats{},
	}
	for _, rec := range recs {
		dept := orUnknown(rec.String("department"))
		stats, ok := rep.Departments[dept]
		if !ok {
			stats = &DepartmentStats{}
			rep.Departments[dept] = stats
		}
		stats.TotalAppointments++

		status, err := record.ParseAppointmentStatus(rec.String("status"))
		if err != nil {
			status = record.StatusScheduled
		}
		switch status {
		case record.StatusScheduled:
			stats.Scheduled++
		case record.StatusConfirmed:
			stats.Confirmed++
		case record.StatusCompleted:
			stats.Completed++
		case record.StatusCancelled:
			stats.Cancelled++
		}
	}
	return rep, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (g *Generator) read(ctx context.Context, table, idField string) ([]record.Record, error) {
	recs, err := g.store.Read(ctx, table, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", ErrReport, table, err)
	}
	record.SortBy(recs, idField)
	return recs, nil
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

func floats(m map[string]decimal.Decimal) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v.InexactFloat64()
	}
	return out
}
