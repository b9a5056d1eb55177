package file_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clinic-core/record"
	"github.com/warp/clinic-core/store/file"
	"github.com/warp/clinic-core/store/storetest"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *file.Store {
	t.Helper()
	store, err := file.New(t.TempDir(), file.Options{})
	require.NoError(t, err)
	return store
}

func seedUsers() []record.Record {
	return []record.Record{
		{"user_id": "USR001", "username": "admin", "password": "admin123", "role": "admin", "full_name": "System Administrator", "is_active": true},
		{"user_id": "USR002", "username": "doctor", "password": "doctor123", "role": "doctor", "full_name": "Dr. John Smith", "is_active": true},
	}
}

// =============================================================================
// CONTRACT
// =============================================================================

func TestFileStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) record.Store { return newTestStore(t) })
}

// =============================================================================
// LAYOUT AND DURABILITY
// =============================================================================

func TestFileStore_WritesOneJSONArrayPerTable(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Create(ctx, record.TablePatients, storetest.Patient("PAT001", "Ann", "A", "Female")))

	data, err := os.ReadFile(filepath.Join(store.Dir(), "patients.json"))
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "PAT001", rows[0]["patient_id"])

	leftovers, err := filepath.Glob(filepath.Join(store.Dir(), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp files must not survive a successful write")
}

func TestFileStore_MissingAndEmptyFilesAreEmptyTables(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	recs, err := store.Read(ctx, record.TableAppointments, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)

	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "billing.json"), []byte("  \n"), 0o644))
	recs, err = store.Read(ctx, record.TableBilling, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFileStore_ReopenSeesPersistedData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := file.New(dir, file.Options{})
	require.NoError(t, err)
	require.NoError(t, first.Create(ctx, record.TablePatients, storetest.Patient("PAT001", "Ann", "A", "Female")))

	second, err := file.New(dir, file.Options{})
	require.NoError(t, err)
	recs, err := second.Read(ctx, record.TablePatients, record.Filters{"patient_id": "PAT001"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, true, recs[0]["is_active"])
}

func TestFileStore_NumbersReadBackAsFloat(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Create(ctx, record.TableBilling, record.Record{"invoice_id": "INV001", "total": 150}))
	recs, err := store.Read(ctx, record.TableBilling, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 150.0, recs[0]["total"])
}

// =============================================================================
// FAULTS
// =============================================================================

func TestFileStore_CorruptTableIsStoreFault(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	path := filepath.Join(store.Dir(), "patients.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"patient_id": "PAT001"`), 0o644))

	_, err := store.Read(ctx, record.TablePatients, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, record.ErrStoreFault)
	assert.ErrorIs(t, err, record.ErrCorruptTable)

	err = store.Create(ctx, record.TablePatients, storetest.Patient("PAT002", "Bea", "B", "Female"))
	assert.ErrorIs(t, err, record.ErrCorruptTable)

	// The corrupt file is not replaced by a failed mutation.
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, `[{"patient_id": "PAT001"`, string(data))
}

func TestFileStore_InvalidTableName(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, name := range []string{"../etc", "Patients", "", "a/b", "1table"} {
		_, err := store.Read(ctx, name, nil)
		assert.ErrorIs(t, err, record.ErrInvalidTableName, name)
		assert.ErrorIs(t, err, record.ErrStoreFault, name)
	}
}

func TestFileStore_NextIDUnknownTable(t *testing.T) {
	_, err := newTestStore(t).NextID(context.Background(), "wards", "WRD")
	assert.ErrorIs(t, err, record.ErrUnknownTable)
}

func TestFileStore_NotFoundDoesNotRewrite(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Create(ctx, record.TablePatients, storetest.Patient("PAT001", "Ann", "A", "Female")))

	path := filepath.Join(store.Dir(), "patients.json")
	before, err := os.Stat(path)
	require.NoError(t, err)
	beforeData, err := os.ReadFile(path)
	require.NoError(t, err)

	ok, err := store.Update(ctx, record.TablePatients, "PAT404", "patient_id", record.Record{"phone": "1"})
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = store.Delete(ctx, record.TablePatients, "PAT404", "patient_id")
	require.NoError(t, err)
	assert.False(t, ok)

	after, err := os.Stat(path)
	require.NoError(t, err)
	afterData, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, beforeData, afterData)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestFileStore_WriteFailureKeepsPreviousFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Create(ctx, record.TablePatients, storetest.Patient("PAT001", "Ann", "A", "Female")))

	require.NoError(t, os.Chmod(store.Dir(), 0o555))
	t.Cleanup(func() { os.Chmod(store.Dir(), 0o755) })

	err := store.Create(ctx, record.TablePatients, storetest.Patient("PAT002", "Bea", "B", "Female"))
	require.Error(t, err)
	assert.ErrorIs(t, err, record.ErrStoreFault)

	recs, err := store.Read(ctx, record.TablePatients, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

// =============================================================================
// SEEDING
// =============================================================================

func TestFileStore_SeedsUsersOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := file.New(dir, file.Options{SeedUsers: seedUsers()})
	require.NoError(t, err)
	users, err := store.Read(ctx, record.TableUsers, nil)
	require.NoError(t, err)
	require.Len(t, users, 2)

	_, err = store.Delete(ctx, record.TableUsers, "USR002", "user_id")
	require.NoError(t, err)

	// Reopening with seeds does not restore the deleted user.
	reopened, err := file.New(dir, file.Options{SeedUsers: seedUsers()})
	require.NoError(t, err)
	users, err = reopened.Read(ctx, record.TableUsers, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "admin", users[0]["username"])
}
