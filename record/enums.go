package record

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// =============================================================================
// ROLE - staff role, closed set, ranked
// =============================================================================

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleDoctor       Role = "doctor"
	RoleNurse        Role = "nurse"
	RoleReceptionist Role = "receptionist"
)

// Roles lists every role from highest to lowest rank.
var Roles = []Role{RoleAdmin, RoleDoctor, RoleNurse, RoleReceptionist}

// ParseRole accepts any casing and returns the canonical role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Roles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: role %q", ErrInvalidEnum, s)
}

func (r Role) String() string { return string(r) }

// Rank orders roles: admin 4, doctor 3, nurse 2, receptionist 1, unknown 0.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 4
	case RoleDoctor:
		return 3
	case RoleNurse:
		return 2
	case RoleReceptionist:
		return 1
	}
	return 0
}

// Value implements driver.Valuer.
func (r Role) Value() (driver.Value, error) {
	if _, err := ParseRole(string(r)); err != nil {
		return nil, err
	}
	return string(r), nil
}

// Scan implements sql.Scanner.
func (r *Role) Scan(src any) error {
	s, err := scanEnumText(src)
	if err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// =============================================================================
// APPOINTMENT STATUS - closed set
// =============================================================================

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

var AppointmentStatuses = []AppointmentStatus{
	StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled,
}

// ParseAppointmentStatus accepts any casing and returns the canonical status.
func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	st := AppointmentStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AppointmentStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: appointment status %q", ErrInvalidEnum, s)
}

func (s AppointmentStatus) String() string { return string(s) }

// Value implements driver.Valuer.
func (s AppointmentStatus) Value() (driver.Value, error) {
	if _, err := ParseAppointmentStatus(string(s)); err != nil {
		return nil, err
	}
	return string(s), nil
}

// Scan implements sql.Scanner.
func (s *AppointmentStatus) Scan(src any) error {
	text, err := scanEnumText(src)
	if err != nil {
		return err
	}
	parsed, err := ParseAppointmentStatus(text)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func scanEnumText(src any) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", fmt.Errorf("%w: cannot scan %T", ErrInvalidEnum, src)
}
