/*
Package patients registers and maintains patient records.

PURPOSE:
  Manager is a thin service over record.Store. It validates input, allocates
  PAT identifiers, and applies the soft-delete convention: a removed patient
  keeps its record with is_active=false and drops out of every listing.

SEARCH:
  Search matches a term against full name, identifier and phone. Names are
  compared after case folding and accent stripping, so "zoe" finds "Zoë".

SEE ALSO:
  - validate: field checks
  - record/store.go: the storage contract
*/
package patients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/warp/clinic-core/record"
	"github.com/warp/clinic-core/validate"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const idPrefix = "PAT"

var (
	// ErrPatient matches every error returned by Manager.
	ErrPatient = errors.New("patient error")

	// ErrNotFound is returned when an update targets a missing patient.
	ErrNotFound = errors.New("patient not found")
)

// Registration is the input to Register.
type Registration struct {
	FirstName        string
	LastName         string
	DateOfBirth      string
	Gender           string
	Phone            string
	Email            string
	Address          string
	BloodGroup       string
	EmergencyContact string
}

// Config configures a Manager.
type Config struct {
	Now    func() time.Time
	Logger *slog.Logger
}

// Manager is the patient service.
type Manager struct {
	store  record.Store
	now    func() time.Time
	logger *slog.Logger
}

func NewManager(store record.Store, cfg Config) *Manager {
	m := &Manager{store: store, now: cfg.Now, logger: cfg.Logger}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

func fault(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", ErrPatient, op, err)
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Register validates reg and stores a new active patient.
func (m *Manager) Register(ctx context.Context, reg Registration) (Patient, error) {
	err := validate.All(
		validate.Required("first_name", reg.FirstName),
		validate.Required("last_name", reg.LastName),
		validate.Date("date_of_birth", reg.DateOfBirth),
		validate.Gender(reg.Gender),
		validate.Phone(reg.Phone),
		optional(reg.Email, validate.Email),
		validate.BloodGroup(reg.BloodGroup),
	)
	if err != nil {
		return Patient{}, fault("register patient", err)
	}

	id, err := m.store.NextID(ctx, record.TablePatients, idPrefix)
	if err != nil {
		return Patient{}, fault("register patient", err)
	}
	now := m.now()
	p := Patient{
		ID:               id,
		FirstName:        validate.Sanitize(reg.FirstName),
		LastName:         validate.Sanitize(reg.LastName),
		DateOfBirth:      reg.DateOfBirth,
		Gender:           reg.Gender,
		Phone:            reg.Phone,
		Email:            reg.Email,
		Address:          validate.Sanitize(reg.Address),
		BloodGroup:       reg.BloodGroup,
		EmergencyContact: reg.EmergencyContact,
		RegistrationDate: now.Format("2006-01-02"),
		Active:           true,
		CreatedAt:        now.Format("2006-01-02T15:04:05"),
	}
	if err := m.store.Create(ctx, record.TablePatients, p.Record()); err != nil {
		return Patient{}, fault("register patient", err)
	}
	m.logger.Info("patient registered", "id", id)
	return p, nil
}

// Get returns the patient with id, active or not. ok is false when absent.
func (m *Manager) Get(ctx context.Context, id string) (p Patient, ok bool, err error) {
	recs, err := m.store.Read(ctx, record.TablePatients, record.Filters{"patient_id": id})
	if err != nil {
		return Patient{}, false, fault("retrieve patient", err)
	}
	if len(recs) == 0 {
		return Patient{}, false, nil
	}
	return FromRecord(recs[0]), true, nil
}

// Search returns active patients matching term (if any) and every filter.
func (m *Manager) Search(ctx context.Context, term string, filters record.Filters) ([]Patient, error) {
	recs, err := m.active(ctx)
	if err != nil {
		return nil, fault("search patients", err)
	}
	needle := fold(strings.TrimSpace(term))

	out := make([]Patient, 0, len(recs))
	for _, rec := range recs {
		if !record.Match(rec, filters) {
			continue
		}
		p := FromRecord(rec)
		if needle != "" &&
			!strings.Contains(fold(p.FullName()), needle) &&
			!strings.Contains(fold(p.ID), needle) &&
			!strings.Contains(p.Phone, needle) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Update validates and merges updates into the patient's record.
func (m *Manager) Update(ctx context.Context, id string, updates record.Record) error {
	if err := checkUpdates(updates); err != nil {
		return fault("update patient", err)
	}
	ok, err := m.store.Update(ctx, record.TablePatients, id, "patient_id", updates)
	if err != nil {
		return fault("update patient", err)
	}
	if !ok {
		return fault("update patient", fmt.Errorf("%w: %s", ErrNotFound, id))
	}
	m.logger.Debug("patient updated", "id", id, "fields", len(updates))
	return nil
}

// SoftDelete marks the patient inactive. It reports false when absent.
func (m *Manager) SoftDelete(ctx context.Context, id string) (bool, error) {
	ok, err := m.store.Update(ctx, record.TablePatients, id, "patient_id", record.Record{"is_active": false})
	if err != nil {
		return false, fault("delete patient", err)
	}
	if ok {
		m.logger.Info("patient deactivated", "id", id)
	}
	return ok, nil
}

// List returns every active patient ordered by identifier.
func (m *Manager) List(ctx context.Context) ([]Patient, error) {
	recs, err := m.active(ctx)
	if err != nil {
		return nil, fault("list patients", err)
	}
	out := make([]Patient, len(recs))
	for i, rec := range recs {
		out[i] = FromRecord(rec)
	}
	return out, nil
}

func (m *Manager) Count(ctx context.Context) (int, error) {
	recs, err := m.active(ctx)
	if err != nil {
		return 0, fault("count patients", err)
	}
	return len(recs), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *Manager) active(ctx context.Context) ([]record.Record, error) {
	recs, err := m.store.Read(ctx, record.TablePatients, record.Filters{"is_active": true})
	if err != nil {
		return nil, err
	}
	record.SortBy(recs, "patient_id")
	return recs, nil
}

// fold lowers case and strips combining marks for comparison.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC, cases.Fold())
	folded, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return folded
}

func optional(v string, check func(string) error) error {
	if v == "" {
		return nil
	}
	return check(v)
}

func checkUpdates(updates record.Record) error {
	if _, ok := updates["patient_id"]; ok {
		return &validate.Error{Field: "patient_id", Message: "cannot be changed"}
	}
	str := func(k string) (string, bool) {
		v, ok := updates[k]
		if !ok {
			return "", false
		}
		s, _ := v.(string)
		return s, true
	}
	var checks []error
	if v, ok := str("first_name"); ok {
		checks = append(checks, validate.Required("first_name", v))
	}
	if v, ok := str("last_name"); ok {
		checks = append(checks, validate.Required("last_name", v))
	}
	if v, ok := str("phone"); ok {
		checks = append(checks, validate.Phone(v))
	}
	if v, ok := str("email"); ok {
		checks = append(checks, optional(v, validate.Email))
	}
	if v, ok := str("date_of_birth"); ok {
		checks = append(checks, validate.Date("date_of_birth", v))
	}
	if v, ok := str("gender"); ok {
		checks = append(checks, validate.Gender(v))
	}
	if v, ok := str("blood_group"); ok {
		checks = append(checks, validate.BloodGroup(v))
	}
	return validate.All(checks...)
}
