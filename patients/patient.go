package patients

import (
	"strings"
	"time"

	"github.com/warp/clinic-core/record"
)

// Patient is the typed view of a patients record.
type Patient struct {
	ID               string
	FirstName        string
	LastName         string
	DateOfBirth      string
	Gender           string
	Phone            string
	Email            string
	Address          string
	BloodGroup       string
	EmergencyContact string
	RegistrationDate string
	Active           bool
	CreatedAt        string
}

func (p Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Age in whole years on the given day. An unparseable birth date yields 0.
func (p Patient) Age(on time.Time) int {
	dob, err := time.Parse("2006-01-02", p.DateOfBirth)
	if err != nil {
		return 0
	}
	age := on.Year() - dob.Year()
	if on.Month() < dob.Month() || (on.Month() == dob.Month() && on.Day() < dob.Day()) {
		age--
	}
	return age
}

// Record flattens p. Empty optional fields are left out.
func (p Patient) Record() record.Record {
	rec := record.Record{
		"patient_id":        p.ID,
		"first_name":        p.FirstName,
		"last_name":         p.LastName,
		"date_of_birth":     p.DateOfBirth,
		"gender":            p.Gender,
		"phone":             p.Phone,
		"registration_date": p.RegistrationDate,
		"is_active":         p.Active,
	}
	optional := map[string]string{
		"email":             p.Email,
		"address":           p.Address,
		"blood_group":       p.BloodGroup,
		"emergency_contact": p.EmergencyContact,
		"created_at":        p.CreatedAt,
	}
	for k, v := range optional {
		if v != "" {
			rec[k] = v
		}
	}
	return rec
}

// FromRecord reads a patients record. A missing is_active counts as active.
func FromRecord(rec record.Record) Patient {
	return Patient{
		ID:               rec.String("patient_id"),
		FirstName:        rec.String("first_name"),
		LastName:         rec.String("last_name"),
		DateOfBirth:      rec.String("date_of_birth"),
		Gender:           rec.String("gender"),
		Phone:            rec.String("phone"),
		Email:            rec.String("email"),
		Address:          rec.String("address"),
		BloodGroup:       rec.String("blood_group"),
		EmergencyContact: rec.String("emergency_contact"),
		RegistrationDate: rec.String("registration_date"),
		Active:           rec.Bool("is_active", true),
		CreatedAt:        rec.String("created_at"),
	}
}
