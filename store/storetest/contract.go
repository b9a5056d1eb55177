// Package storetest holds the behavioural suite every record.Store backend
// must pass, plus a scripted workload used to compare backends.
package storetest

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clinic-core/record"
)

// Factory opens a fresh, empty (unseeded) store for one test.
type Factory func(t *testing.T) record.Store

// Run executes the contract suite against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Run("NextIDOnEmptyTable", func(t *testing.T) { testNextIDEmpty(t, open(t)) })
	t.Run("NextIDMaxPlusOne", func(t *testing.T) { testNextIDMaxPlusOne(t, open(t)) })
	t.Run("NextIDNoCompaction", func(t *testing.T) { testNextIDNoCompaction(t, open(t)) })
	t.Run("NextIDAfterDeletingMax", func(t *testing.T) { testNextIDAfterDeletingMax(t, open(t)) })
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, open(t)) })
	t.Run("InvoiceRoundTrip", func(t *testing.T) { testInvoiceRoundTrip(t, open(t)) })
	t.Run("ReadIdempotent", func(t *testing.T) { testReadIdempotent(t, open(t)) })
	t.Run("FiltersAreConjunctive", func(t *testing.T) { testFilters(t, open(t)) })
	t.Run("UpdateMerges", func(t *testing.T) { testUpdateMerges(t, open(t)) })
	t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, open(t)) })
	t.Run("DeleteRemoves", func(t *testing.T) { testDeleteRemoves(t, open(t)) })
	t.Run("DeleteMissing", func(t *testing.T) { testDeleteMissing(t, open(t)) })
	t.Run("CreateDoesNotAliasInput", func(t *testing.T) { testCreateDoesNotAlias(t, open(t)) })
	t.Run("NullFieldsAreAbsent", func(t *testing.T) { testNullFields(t, open(t)) })
}

// Patient builds a complete patient record.
func Patient(id, first, last, gender string) record.Record {
	return record.Record{
		"patient_id":        id,
		"first_name":        first,
		"last_name":         last,
		"date_of_birth":     "1990-01-01",
		"gender":            gender,
		"phone":             "5550001111",
		"email":             first + "@example.com",
		"registration_date": "2025-01-15",
		"is_active":         true,
		"created_at":        "2025-01-15T09:00:00",
	}
}

// SortedRead reads table and orders the result by its identifier field.
func SortedRead(t *testing.T, s record.Store, table string, filters record.Filters) []record.Record {
	t.Helper()
	recs, err := s.Read(context.Background(), table, filters)
	require.NoError(t, err)
	field, err := record.IDField(table)
	require.NoError(t, err)
	record.SortBy(recs, field)
	return recs
}

func testNextIDEmpty(t *testing.T, s record.Store) {
	ctx := context.Background()
	for _, tbl := range record.Tables {
		id, err := s.NextID(ctx, tbl.Name, tbl.Prefix)
		require.NoError(t, err)
		assert.Equal(t, tbl.Prefix+"001", id, tbl.Name)
	}
}

func testNextIDMaxPlusOne(t *testing.T, s record.Store) {
	ctx := context.Background()
	for _, id := range []string{"PAT007", "PAT001", "PAT003"} {
		require.NoError(t, s.Create(ctx, record.TablePatients, Patient(id, "P"+id, "Test", "Other")))
	}
	next, err := s.NextID(ctx, record.TablePatients, "PAT")
	require.NoError(t, err)
	assert.Equal(t, "PAT008", next)

	// A different prefix in the same table starts from scratch.
	other, err := s.NextID(ctx, record.TablePatients, "TMP")
	require.NoError(t, err)
	assert.Equal(t, "TMP001", other)
}

func testNextIDNoCompaction(t *testing.T, s record.Store) {
	ctx := context.Background()
	for _, id := range []string{"PAT001", "PAT002", "PAT003"} {
		require.NoError(t, s.Create(ctx, record.TablePatients, Patient(id, "P"+id, "Test", "Male")))
	}
	ok, err := s.Delete(ctx, record.TablePatients, "PAT002", "patient_id")
	require.NoError(t, err)
	require.True(t, ok)

	next, err := s.NextID(ctx, record.TablePatients, "PAT")
	require.NoError(t, err)
	assert.Equal(t, "PAT004", next)
}

// Ids are derived from the live rows, so removing the highest one frees its
// id. Callers soft delete to keep ids unique.
func testNextIDAfterDeletingMax(t *testing.T, s record.Store) {
	ctx := context.Background()
	for _, id := range []string{"PAT001", "PAT002", "PAT003"} {
		require.NoError(t, s.Create(ctx, record.TablePatients, Patient(id, "P"+id, "Test", "Male")))
	}
	ok, err := s.Delete(ctx, record.TablePatients, "PAT003", "patient_id")
	require.NoError(t, err)
	require.True(t, ok)

	next, err := s.NextID(ctx, record.TablePatients, "PAT")
	require.NoError(t, err)
	assert.Equal(t, "PAT003", next)
}

func testRoundTrip(t *testing.T, s record.Store) {
	ctx := context.Background()
	r := Patient("PAT001", "Ada", "Lovelace", "Female")
	require.NoError(t, s.Create(ctx, record.TablePatients, r))

	got, err := s.Read(ctx, record.TablePatients, record.Filters{"patient_id": "PAT001"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	for field, want := range r {
		assert.Equal(t, want, got[0][field], field)
	}
}

func testInvoiceRoundTrip(t *testing.T, s record.Store) {
	ctx := context.Background()
	inv := record.Record{
		"invoice_id":       "INV001",
		"patient_id":       "PAT001",
		"patient_name":     "Ada Lovelace",
		"date":             "2025-03-01",
		"items":            `[{"description":"X","quantity":2,"unit_price":100,"total":200}]`,
		"subtotal":         200.0,
		"discount_percent": 10.0,
		"discount_amount":  20.0,
		"tax_percent":      5.0,
		"tax_amount":       9.0,
		"total":            189.0,
		"status":           "pending",
	}
	require.NoError(t, s.Create(ctx, record.TableBilling, inv))

	got, err := s.Read(ctx, record.TableBilling, record.Filters{"invoice_id": "INV001"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	for field, want := range inv {
		assert.Equal(t, want, got[0][field], field)
	}

	byTotal, err := s.Read(ctx, record.TableBilling, record.Filters{"total": 189})
	require.NoError(t, err)
	assert.Len(t, byTotal, 1)
}

func testReadIdempotent(t *testing.T, s record.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, record.TablePatients, Patient("PAT002", "Bob", "B", "Male")))
	require.NoError(t, s.Create(ctx, record.TablePatients, Patient("PAT001", "Ann", "A", "Female")))

	first := SortedRead(t, s, record.TablePatients, nil)
	second := SortedRead(t, s, record.TablePatients, nil)
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
}

func testFilters(t *testing.T, s record.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, record.TablePatients, Patient("PAT001", "Ann", "A", "Female")))
	require.NoError(t, s.Create(ctx, record.TablePatients, Patient("PAT002", "Bea", "B", "Female")))
	require.NoError(t, s.Create(ctx, record.TablePatients, Patient("PAT003", "Cal", "C", "Male")))
	_, err := s.Update(ctx, record.TablePatients, "PAT002", "patient_id", record.Record{"is_active": false})
	require.NoError(t, err)

	females := SortedRead(t, s, record.TablePatients, record.Filters{"gender": "Female"})
	assert.Len(t, females, 2)

	activeFemales := SortedRead(t, s, record.TablePatients, record.Filters{"gender": "Female", "is_active": true})
	require.Len(t, activeFemales, 1)
	assert.Equal(t, "PAT001", activeFemales[0]["patient_id"])

	none := SortedRead(t, s, record.TablePatients, record.Filters{"gender": "Male", "is_active": false})
	assert.Empty(t, none)
}

func testUpdateMerges(t *testing.T, s record.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, record.TablePatients, Patient("PAT001", "Ann", "A", "Female")))

	ok, err := s.Update(ctx, record.TablePatients, "PAT001", "patient_id",
		record.Record{"phone": "5559998888", "address": "1 Main St"})
	require.NoError(t, err)
	assert.True(t, ok)

	got := SortedRead(t, s, record.TablePatients, record.Filters{"patient_id": "PAT001"})
	require.Len(t, got, 1)
	assert.Equal(t, "5559998888", got[0]["phone"])
	assert.Equal(t, "1 Main St", got[0]["address"])
	assert.Equal(t, "Ann", got[0]["first_name"])

	ok, err = s.Update(ctx, record.TablePatients, "PAT001", "patient_id", record.Record{})
	require.NoError(t, err)
	assert.True(t, ok, "empty update on existing record still reports found")
}

func testUpdateMissing(t *testing.T, s record.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, record.TablePatients, Patient("PAT001", "Ann", "A", "Female")))
	before := SortedRead(t, s, record.TablePatients, nil)

	ok, err := s.Update(ctx, record.TablePatients, "PAT999", "patient_id", record.Record{"phone": "0000000000"})
	require.NoError(t, err)
	assert.False(t, ok)

	after := SortedRead(t, s, record.TablePatients, nil)
	assert.Equal(t, before, after)
}

func testDeleteRemoves(t *testing.T, s record.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, record.TablePatients, Patient("PAT001", "Ann", "A", "Female")))
	require.NoError(t, s.Create(ctx, record.TablePatients, Patient("PAT002", "Bea", "B", "Female")))

	ok, err := s.Delete(ctx, record.TablePatients, "PAT001", "patient_id")
	require.NoError(t, err)
	assert.True(t, ok)

	rest := SortedRead(t, s, record.TablePatients, nil)
	require.Len(t, rest, 1)
	assert.Equal(t, "PAT002", rest[0]["patient_id"])
}

func testDeleteMissing(t *testing.T, s record.Store) {
	ctx := context.Background()
	ok, err := s.Delete(ctx, record.TablePatients, "PAT001", "patient_id")
	require.NoError(t, err)
	assert.False(t, ok, "delete on empty table")

	require.NoError(t, s.Create(ctx, record.TablePatients, Patient("PAT001", "Ann", "A", "Female")))
	ok, err = s.Delete(ctx, record.TablePatients, "PAT404", "patient_id")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, SortedRead(t, s, record.TablePatients, nil), 1)
}

func testCreateDoesNotAlias(t *testing.T, s record.Store) {
	ctx := context.Background()
	r := Patient("PAT001", "Ann", "A", "Female")
	require.NoError(t, s.Create(ctx, record.TablePatients, r))
	r["first_name"] = "Mutated"

	got := SortedRead(t, s, record.TablePatients, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "Ann", got[0]["first_name"])
}

func testNullFields(t *testing.T, s record.Store) {
	ctx := context.Background()
	ann := Patient("PAT001", "Ann", "A", "Female")
	ann["address"] = nil
	require.NoError(t, s.Create(ctx, record.TablePatients, ann))
	require.NoError(t, s.Create(ctx, record.TablePatients, Patient("PAT002", "Bea", "B", "Female")))
	_, err := s.Update(ctx, record.TablePatients, "PAT002", "patient_id", record.Record{"address": "2 High St"})
	require.NoError(t, err)

	// GIVEN a null written on create
	// THEN it reads back as an absent field and a nil filter finds it
	noAddress := SortedRead(t, s, record.TablePatients, record.Filters{"address": nil})
	require.Len(t, noAddress, 1)
	assert.Equal(t, "PAT001", noAddress[0]["patient_id"])
	assert.NotContains(t, noAddress[0], "address")

	// WHEN an update sets a field to nil
	ok, err := s.Update(ctx, record.TablePatients, "PAT002", "patient_id", record.Record{"email": nil})
	require.NoError(t, err)
	require.True(t, ok)

	// THEN the field is gone and only matches a nil filter
	bea := SortedRead(t, s, record.TablePatients, record.Filters{"patient_id": "PAT002"})
	require.Len(t, bea, 1)
	assert.NotContains(t, bea[0], "email")
	assert.Len(t, SortedRead(t, s, record.TablePatients, record.Filters{"email": nil}), 1)
	assert.Empty(t, SortedRead(t, s, record.TablePatients, record.Filters{"email": "Bea@example.com"}))
}

// =============================================================================
// SCRIPTED WORKLOAD - used to compare backends
// =============================================================================

// Script applies a fixed sequence of create/read/update/delete calls across
// all four tables. Two backends given the same starting state must end with
// equal contents.
func Script(t *testing.T, s record.Store) {
	t.Helper()
	ctx := context.Background()

	mustCreate := func(table string, r record.Record) {
		require.NoError(t, s.Create(ctx, table, r))
	}
	nextID := func(table, prefix string) string {
		id, err := s.NextID(ctx, table, prefix)
		require.NoError(t, err)
		return id
	}

	mustCreate(record.TableUsers, record.Record{
		"user_id": nextID(record.TableUsers, "USR"), "username": "nurse1", "password": "secret1",
		"role": "nurse", "full_name": "Nina Nurse", "email": "nina@example.com", "is_active": true,
	})
	for _, name := range []string{"Ann", "Bea", "Cal"} {
		mustCreate(record.TablePatients, Patient(nextID(record.TablePatients, "PAT"), name, "Doe", "Other"))
	}
	mustCreate(record.TableAppointments, record.Record{
		"appointment_id": nextID(record.TableAppointments, "APT"), "patient_id": "PAT001",
		"patient_name": "Ann Doe", "doctor_id": "USR002", "doctor_name": "Dr. Smith",
		"appointment_date": "2025-02-01", "appointment_time": "10:30", "department": "Cardiology",
		"reason": "Checkup", "status": "scheduled",
	})
	mustCreate(record.TableBilling, record.Record{
		"invoice_id": nextID(record.TableBilling, "INV"), "patient_id": "PAT001", "patient_name": "Ann Doe",
		"date": "2025-02-01", "items": `[]`, "subtotal": 500.0, "discount_percent": 0.0,
		"discount_amount": 0.0, "tax_percent": 0.0, "tax_amount": 0.0, "total": 500.0, "status": "pending",
	})

	_, err := s.Update(ctx, record.TablePatients, "PAT002", "patient_id", record.Record{"is_active": false})
	require.NoError(t, err)
	_, err = s.Update(ctx, record.TableAppointments, "APT001", "appointment_id", record.Record{"status": "completed"})
	require.NoError(t, err)
	_, err = s.Update(ctx, record.TableBilling, "INV001", "invoice_id", record.Record{"status": "paid", "payment_method": "cash"})
	require.NoError(t, err)
	_, err = s.Update(ctx, record.TableUsers, "USR001", "user_id", record.Record{"email": nil})
	require.NoError(t, err)
	_, err = s.Delete(ctx, record.TablePatients, "PAT003", "patient_id")
	require.NoError(t, err)
	_, err = s.Delete(ctx, record.TablePatients, "PAT404", "patient_id")
	require.NoError(t, err)

	_, err = s.Read(ctx, record.TablePatients, record.Filters{"is_active": true})
	require.NoError(t, err)
	_, err = s.Read(ctx, record.TableUsers, record.Filters{"email": nil})
	require.NoError(t, err)
}

// Snapshot returns every table's contents ordered by identifier.
func Snapshot(t *testing.T, s record.Store) map[string][]record.Record {
	t.Helper()
	out := make(map[string][]record.Record, len(record.Tables))
	for _, tbl := range record.Tables {
		out[tbl.Name] = SortedRead(t, s, tbl.Name, nil)
	}
	return out
}

// Keys lists the fields of recs, for readable assertion failures.
func Keys(recs []record.Record) []string {
	seen := map[string]bool{}
	for _, r := range recs {
		for k := range r {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
