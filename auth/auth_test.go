package auth_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clinic-core/auth"
	"github.com/warp/clinic-core/record"
	"github.com/warp/clinic-core/store/file"
	"github.com/warp/clinic-core/store/sqlite"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func staff() []record.Record {
	return []record.Record{
		{"user_id": "USR001", "username": "admin", "password": "admin123", "role": "admin", "full_name": "System Administrator", "is_active": true},
		{"user_id": "USR002", "username": "doctor", "password": "doctor123", "role": "doctor", "full_name": "Dr. John Smith", "is_active": true},
		{"user_id": "USR003", "username": "nurse", "password": "nurse123", "role": "nurse", "full_name": "Nina", "is_active": true},
		{"user_id": "USR004", "username": "gone", "password": "gone1234", "role": "receptionist", "full_name": "Former", "is_active": false},
	}
}

func newTestService(t *testing.T) (*auth.Service, record.Store) {
	t.Helper()
	store, err := file.New(t.TempDir(), file.Options{SeedUsers: staff()})
	require.NoError(t, err)
	return auth.NewService(store, auth.Config{BcryptCost: bcrypt.MinCost}), store
}

func login(t *testing.T, svc *auth.Service, username, password string) *auth.Session {
	t.Helper()
	sess, err := svc.Login(context.Background(), username, password)
	require.NoError(t, err)
	return sess
}

// =============================================================================
// LOGIN
// =============================================================================

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t)

	sess := login(t, svc, "doctor", "doctor123")
	_, err := uuid.Parse(sess.ID)
	assert.NoError(t, err)
	assert.Equal(t, "USR002", sess.User.ID)
	assert.Equal(t, record.RoleDoctor, sess.User.Role)
	assert.Equal(t, "Dr. John Smith", sess.User.FullName)
	assert.True(t, svc.IsAuthenticated(sess.ID))

	other := login(t, svc, "doctor", "doctor123")
	assert.NotEqual(t, sess.ID, other.ID)
}

func TestLogin_Rejections(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, "admin", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.ErrorIs(t, err, auth.ErrAuthentication)

	_, err = svc.Login(ctx, "nobody", "admin123")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "gone", "gone1234")
	assert.ErrorIs(t, err, auth.ErrInactiveAccount)

	_, err = svc.Login(ctx, "", "")
	assert.ErrorIs(t, err, auth.ErrAuthentication)
}

func TestLogout(t *testing.T) {
	svc, _ := newTestService(t)
	sess := login(t, svc, "admin", "admin123")

	svc.Logout(sess.ID)
	assert.False(t, svc.IsAuthenticated(sess.ID))
	_, ok := svc.CurrentUser(sess.ID)
	assert.False(t, ok)

	svc.Logout("never-issued")
}

// =============================================================================
// ROLES
// =============================================================================

func TestRequireRoleIsExact(t *testing.T) {
	svc, _ := newTestService(t)
	admin := login(t, svc, "admin", "admin123")

	assert.NoError(t, svc.RequireRole(admin.ID, record.RoleAdmin))
	err := svc.RequireRole(admin.ID, record.RoleDoctor)
	assert.ErrorIs(t, err, auth.ErrAccessDenied)

	err = svc.RequireRole("no-session", record.RoleAdmin)
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestHasPermissionFollowsHierarchy(t *testing.T) {
	svc, _ := newTestService(t)
	nurse := login(t, svc, "nurse", "nurse123")

	assert.True(t, svc.HasPermission(nurse.ID, record.RoleReceptionist))
	assert.True(t, svc.HasPermission(nurse.ID, record.RoleNurse))
	assert.False(t, svc.HasPermission(nurse.ID, record.RoleDoctor))
	assert.False(t, svc.HasPermission(nurse.ID, record.RoleAdmin))
	assert.False(t, svc.HasPermission("no-session", record.RoleReceptionist))
}

// =============================================================================
// PASSWORDS
// =============================================================================

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	sess := login(t, svc, "admin", "admin123")

	require.NoError(t, svc.ChangePassword(ctx, sess.ID, "admin123", "n3w-secret"))

	recs, err := store.Read(ctx, record.TableUsers, record.Filters{"user_id": "USR001"})
	require.NoError(t, err)
	stored := recs[0].String("password")
	assert.True(t, strings.HasPrefix(stored, "$2"), "password is stored hashed")

	_, err = svc.Login(ctx, "admin", "admin123")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	login(t, svc, "admin", "n3w-secret")
}

func TestChangePassword_Rejections(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	sess := login(t, svc, "doctor", "doctor123")

	err := svc.ChangePassword(ctx, sess.ID, "wrong", "whatever1")
	assert.ErrorIs(t, err, auth.ErrAuthentication)

	err = svc.ChangePassword(ctx, sess.ID, "doctor123", "short")
	assert.ErrorIs(t, err, auth.ErrAuthentication)
	assert.Contains(t, err.Error(), "at least 6")

	err = svc.ChangePassword(ctx, "no-session", "doctor123", "whatever1")
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)

	login(t, svc, "doctor", "doctor123")
}

func TestService_OverRelationalStore(t *testing.T) {
	store, err := sqlite.New(":memory:", sqlite.Options{SeedUsers: staff()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	svc := auth.NewService(store, auth.Config{BcryptCost: bcrypt.MinCost})

	sess := login(t, svc, "nurse", "nurse123")
	assert.Equal(t, record.RoleNurse, sess.User.Role)

	_, err = svc.Login(context.Background(), "gone", "gone1234")
	assert.ErrorIs(t, err, auth.ErrInactiveAccount)
}
