package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/clinic-core/validate"
)

func TestPhone(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
	}{
		{"5551234567", true},
		{"(555) 123-4567", true},
		{"+1 555 123 4567", false},
		{"123456789", false},
		{"1234567890123456", false},
		{"555123456x", false},
		{"", false},
	}
	for _, tc := range tests {
		err := validate.Phone(tc.in)
		if tc.valid {
			assert.NoError(t, err, tc.in)
		} else {
			assert.ErrorIs(t, err, validate.ErrValidation, tc.in)
		}
	}
}

func TestEmail(t *testing.T) {
	assert.NoError(t, validate.Email("ada.lovelace+clinic@example.co.uk"))
	assert.ErrorIs(t, validate.Email("ada@example"), validate.ErrValidation)
	assert.ErrorIs(t, validate.Email("not an email"), validate.ErrValidation)
	assert.ErrorIs(t, validate.Email(""), validate.ErrValidation)
}

func TestDateAndTime(t *testing.T) {
	assert.NoError(t, validate.Date("date_of_birth", "1990-02-28"))
	assert.Error(t, validate.Date("date_of_birth", "1990-02-30"))
	assert.Error(t, validate.Date("date_of_birth", "28/02/1990"))

	assert.NoError(t, validate.Time("appointment_time", "09:30"))
	assert.NoError(t, validate.Time("appointment_time", "23:59"))
	assert.Error(t, validate.Time("appointment_time", "24:00"))
	assert.Error(t, validate.Time("appointment_time", "9.30"))
}

func TestRequiredAndLength(t *testing.T) {
	assert.Error(t, validate.Required("first_name", "   "))
	assert.NoError(t, validate.Required("first_name", "Ada"))

	assert.NoError(t, validate.Length("password", "secret", 6, 0))
	assert.Error(t, validate.Length("password", "short", 6, 0))
	assert.Error(t, validate.Length("code", "toolong", 1, 4))
	assert.NoError(t, validate.Length("name", "Zoë", 3, 3))
}

func TestNumeric(t *testing.T) {
	for _, ok := range []string{"42", "-3", "1.5", ".5", "5."} {
		assert.NoError(t, validate.Numeric("amount", ok), ok)
	}
	for _, bad := range []string{"", "abc", "1.2.3", "--1", "1e5"} {
		assert.Error(t, validate.Numeric("amount", bad), bad)
	}
}

func TestBloodGroupAndGender(t *testing.T) {
	assert.NoError(t, validate.BloodGroup(""))
	assert.NoError(t, validate.BloodGroup("AB-"))
	assert.Error(t, validate.BloodGroup("C+"))

	assert.NoError(t, validate.Gender("Other"))
	assert.Error(t, validate.Gender("male"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "scriptalert1/script", validate.Sanitize("  <script>alert(1)</script> "))
	assert.Equal(t, "OBrien", validate.Sanitize("O'Brien"))
}

func TestErrorCarriesField(t *testing.T) {
	err := validate.All(nil, validate.Required("last_name", ""), validate.Phone(""))

	var ve *validate.Error
	if assert.ErrorAs(t, err, &ve) {
		assert.Equal(t, "last_name", ve.Field)
		assert.Equal(t, "last_name: is required", ve.Error())
	}
	assert.NoError(t, validate.All(nil, nil))
}
