// Package validate holds the field checks callers run before a record
// reaches the store. Every failure is a *Error matching ErrValidation.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrValidation matches every validation failure.
var ErrValidation = errors.New("validation failed")

// Error describes one rejected field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *Error) Unwrap() error { return ErrValidation }

func fail(field, format string, args ...any) error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneSeparators = regexp.MustCompile(`[\s\-()]`)
	numericPattern  = regexp.MustCompile(`^-?\d*\.?\d+$|^-?\d+\.$`)
	sanitizePattern = regexp.MustCompile(`[<>"'%;()&+]`)

	bloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}
	genders     = []string{"Male", "Female", "Other"}
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
	phoneMin   = 10
	phoneMax   = 15
)

// Required rejects empty and whitespace-only values.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fail(field, "is required")
	}
	return nil
}

func Email(value string) error {
	if value == "" {
		return fail("email", "is required")
	}
	if !emailPattern.MatchString(value) {
		return fail("email", "invalid format")
	}
	return nil
}

// Phone accepts 10 to 15 digits once spaces, dashes and parentheses are removed.
func Phone(value string) error {
	if value == "" {
		return fail("phone", "is required")
	}
	cleaned := phoneSeparators.ReplaceAllString(value, "")
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return fail("phone", "must contain only digits")
		}
	}
	if n := len(cleaned); n < phoneMin || n > phoneMax {
		return fail("phone", "must be between %d and %d digits", phoneMin, phoneMax)
	}
	return nil
}

// Date requires a calendar date in YYYY-MM-DD form.
func Date(field, value string) error {
	if value == "" {
		return fail(field, "is required")
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		return fail(field, "must be in YYYY-MM-DD format")
	}
	return nil
}

// Time requires a 24-hour HH:MM clock time.
func Time(field, value string) error {
	if value == "" {
		return fail(field, "is required")
	}
	if _, err := time.Parse(timeLayout, value); err != nil {
		return fail(field, "must be in HH:MM format")
	}
	return nil
}

// Length bounds the rune count of value. A zero hi means unbounded.
func Length(field, value string, lo, hi int) error {
	n := utf8.RuneCountInString(value)
	if n < lo {
		return fail(field, "must be at least %d characters long", lo)
	}
	if hi > 0 && n > hi {
		return fail(field, "must not exceed %d characters", hi)
	}
	return nil
}

// Numeric accepts an optionally signed decimal number.
func Numeric(field, value string) error {
	if !numericPattern.MatchString(value) {
		return fail(field, "must be a valid number")
	}
	return nil
}

// BloodGroup accepts an empty value or one of the eight ABO/Rh groups.
func BloodGroup(value string) error {
	if value == "" {
		return nil
	}
	for _, g := range bloodGroups {
		if value == g {
			return nil
		}
	}
	return fail("blood_group", "must be one of %s", strings.Join(bloodGroups, ", "))
}

func Gender(value string) error {
	for _, g := range genders {
		if value == g {
			return nil
		}
	}
	return fail("gender", "must be Male, Female, or Other")
}

// Sanitize trims value and strips markup and quoting characters.
func Sanitize(value string) string {
	return sanitizePattern.ReplaceAllString(strings.TrimSpace(value), "")
}

// All returns the first failure among checks.
func All(checks ...error) error {
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}
