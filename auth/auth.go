/*
Package auth authenticates staff accounts from the users table and tracks
their sessions.

PURPOSE:
  Login checks a username and password against the users table and opens a
  session keyed by a random UUID. Role checks come in two forms:

    RequireRole   - exact role match
    HasPermission - rank at or above the required role
                    (admin 4 > doctor 3 > nurse 2 > receptionist 1)

PASSWORDS:
  Stored passwords are either bcrypt hashes or, for seeded and imported
  accounts, plain text. Both verify; plain text is compared in constant
  time. ChangePassword always writes a bcrypt hash.

SESSIONS:
  Held in memory only. They do not survive a restart.
*/
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/clinic-core/record"
	"github.com/warp/clinic-core/validate"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

var (
	// ErrAuthentication matches every error returned by Service.
	ErrAuthentication = errors.New("authentication failed")

	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInactiveAccount    = errors.New("user account is inactive")
	ErrNotAuthenticated   = errors.New("authentication required")
	ErrAccessDenied       = errors.New("access denied")
)

func authError(err error) error {
	return fmt.Errorf("%w: %w", ErrAuthentication, err)
}

// =============================================================================
// TYPES
// =============================================================================

// User is a staff account without its password.
type User struct {
	ID             string
	Username       string
	Role           record.Role
	FullName       string
	Email          string
	Phone          string
	Specialization string
	Active         bool
}

func userFromRecord(rec record.Record) (User, error) {
	role, err := record.ParseRole(rec.String("role"))
	if err != nil {
		return User{}, err
	}
	return User{
		ID:             rec.String("user_id"),
		Username:       rec.String("username"),
		Role:           role,
		FullName:       rec.String("full_name"),
		Email:          rec.String("email"),
		Phone:          rec.String("phone"),
		Specialization: rec.String("specialization"),
		Active:         rec.Bool("is_active", true),
	}, nil
}

// Session is an authenticated login.
type Session struct {
	ID        string
	User      User
	StartedAt time.Time
}

// Config configures a Service.
type Config struct {
	// BcryptCost applies to hashes written by ChangePassword.
	BcryptCost int
	Now        func() time.Time
	Logger     *slog.Logger
}

// Service authenticates users and holds their sessions.
type Service struct {
	store    record.Store
	cost     int
	now      func() time.Time
	logger   *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewService(store record.Store, cfg Config) *Service {
	s := &Service{
		store:    store,
		cost:     cfg.BcryptCost,
		now:      cfg.Now,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// =============================================================================
// LOGIN / LOGOUT
// =============================================================================

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	if username == "" || password == "" {
		return nil, authError(&validate.Error{Message: "username and password are required"})
	}
	rec, err := s.lookup(ctx, record.Filters{"username": username})
	if err != nil {
		return nil, authError(err)
	}
	if rec == nil {
		return nil, authError(ErrInvalidCredentials)
	}
	if !rec.Bool("is_active", true) {
		return nil, authError(ErrInactiveAccount)
	}
	if !verifyPassword(rec.String("password"), password) {
		s.logger.Warn("login rejected", "username", username)
		return nil, authError(ErrInvalidCredentials)
	}
	user, err := userFromRecord(rec)
	if err != nil {
		return nil, authError(fmt.Errorf("failed to load user data: %w", err))
	}

	sess := &Session{ID: uuid.NewString(), User: user, StartedAt: s.now()}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	s.logger.Info("user logged in", "user_id", user.ID, "role", user.Role.String())
	return sess, nil
}

// Logout closes a session. Unknown ids are ignored.
func (s *Service) Logout(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

func (s *Service) IsAuthenticated(sessionID string) bool {
	_, ok := s.CurrentUser(sessionID)
	return ok
}

// CurrentUser returns the session's user.
func (s *Service) CurrentUser(sessionID string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return User{}, false
	}
	return sess.User, true
}

// =============================================================================
// AUTHORISATION
// =============================================================================

// RequireRole fails unless the session's user has exactly role.
func (s *Service) RequireRole(sessionID string, role record.Role) error {
	user, ok := s.CurrentUser(sessionID)
	if !ok {
		return authError(ErrNotAuthenticated)
	}
	if user.Role != role {
		return authError(fmt.Errorf("%w: %s role required", ErrAccessDenied, role))
	}
	return nil
}

// HasPermission reports whether the session's user ranks at or above role.
func (s *Service) HasPermission(sessionID string, role record.Role) bool {
	user, ok := s.CurrentUser(sessionID)
	if !ok {
		return false
	}
	return user.Role.Rank() >= role.Rank()
}

// =============================================================================
// PASSWORDS
// =============================================================================

// ChangePassword replaces the session user's password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, sessionID, oldPassword, newPassword string) error {
	user, ok := s.CurrentUser(sessionID)
	if !ok {
		return authError(ErrNotAuthenticated)
	}
	rec, err := s.lookup(ctx, record.Filters{"user_id": user.ID})
	if err != nil {
		return authError(err)
	}
	if rec == nil || !verifyPassword(rec.String("password"), oldPassword) {
		return authError(errors.New("current password is incorrect"))
	}
	if err := validate.Length("new_password", newPassword, minPasswordLength, 0); err != nil {
		return authError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return authError(fmt.Errorf("failed to hash password: %w", err))
	}
	updated, err := s.store.Update(ctx, record.TableUsers, user.ID, "user_id", record.Record{"password": string(hash)})
	if err != nil {
		return authError(err)
	}
	if !updated {
		return authError(errors.New("failed to update password"))
	}
	s.logger.Info("password changed", "user_id", user.ID)
	return nil
}

func (s *Service) lookup(ctx context.Context, filters record.Filters) (record.Record, error) {
	recs, err := s.store.Read(ctx, record.TableUsers, filters)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func isBcryptHash(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") ||
		strings.HasPrefix(stored, "$2b$") ||
		strings.HasPrefix(stored, "$2y$")
}

func verifyPassword(stored, given string) bool {
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}
