package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/warp/clinic-core/record"
)

// schemaSQL creates the four clinic tables. Idempotent.
//
// Every table carries an internal AUTOINCREMENT key used only for ordering
// and row addressing. The business identifier is a separate UNIQUE column.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('admin', 'doctor', 'nurse', 'receptionist')),
		full_name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		specialization TEXT,
		is_active BOOLEAN DEFAULT 1,
		created_at TEXT
	);

	CREATE TABLE IF NOT EXISTS patients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		date_of_birth TEXT,
		gender TEXT,
		phone TEXT,
		email TEXT,
		address TEXT,
		blood_group TEXT,
		emergency_contact TEXT,
		registration_date TEXT,
		is_active BOOLEAN DEFAULT 1,
		created_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_patients_active
		ON patients(is_active);

	CREATE TABLE IF NOT EXISTS appointments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		appointment_id TEXT NOT NULL UNIQUE,
		patient_id TEXT NOT NULL,
		patient_name TEXT,
		doctor_id TEXT,
		doctor_name TEXT,
		appointment_date TEXT,
		appointment_time TEXT,
		department TEXT,
		reason TEXT,
		status TEXT DEFAULT 'scheduled'
			CHECK (status IN ('scheduled', 'confirmed', 'completed', 'cancelled')),
		notes TEXT,
		created_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_appointments_patient
		ON appointments(patient_id);
	CREATE INDEX IF NOT EXISTS idx_appointments_date
		ON appointments(appointment_date);

	CREATE TABLE IF NOT EXISTS billing (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_id TEXT NOT NULL UNIQUE,
		patient_id TEXT NOT NULL,
		patient_name TEXT,
		appointment_id TEXT,
		date TEXT,
		items TEXT,
		subtotal REAL,
		discount_percent REAL,
		discount_amount REAL,
		tax_percent REAL,
		tax_amount REAL,
		total REAL,
		status TEXT DEFAULT 'pending',
		payment_method TEXT,
		created_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_billing_patient
		ON billing(patient_id);
`

// =============================================================================
// TABLE SCHEMAS - the single marshaling boundary between records and rows
// =============================================================================

type kind int

const (
	kindText kind = iota
	kindReal
	kindBool
	kindRole
	kindAppointmentStatus
)

type column struct {
	name string
	kind kind
}

type tableSchema struct {
	name    string
	idField string
	columns []column
	byName  map[string]column
}

func newSchema(name, idField string, cols ...column) *tableSchema {
	s := &tableSchema{name: name, idField: idField, columns: cols, byName: make(map[string]column, len(cols))}
	for _, c := range cols {
		s.byName[c.name] = c
	}
	return s
}

func textCol(name string) column { return column{name: name, kind: kindText} }
func realCol(name string) column { return column{name: name, kind: kindReal} }
func boolCol(name string) column { return column{name: name, kind: kindBool} }

var schemas = map[string]*tableSchema{
	record.TableUsers: newSchema(record.TableUsers, "user_id",
		textCol("user_id"), textCol("username"), textCol("password"),
		column{name: "role", kind: kindRole},
		textCol("full_name"), textCol("email"), textCol("phone"), textCol("specialization"),
		boolCol("is_active"), textCol("created_at"),
	),
	record.TablePatients: newSchema(record.TablePatients, "patient_id",
		textCol("patient_id"), textCol("first_name"), textCol("last_name"), textCol("date_of_birth"),
		textCol("gender"), textCol("phone"), textCol("email"), textCol("address"), textCol("blood_group"),
		textCol("emergency_contact"), textCol("registration_date"), boolCol("is_active"), textCol("created_at"),
	),
	record.TableAppointments: newSchema(record.TableAppointments, "appointment_id",
		textCol("appointment_id"), textCol("patient_id"), textCol("patient_name"), textCol("doctor_id"),
		textCol("doctor_name"), textCol("appointment_date"), textCol("appointment_time"), textCol("department"),
		textCol("reason"), column{name: "status", kind: kindAppointmentStatus}, textCol("notes"), textCol("created_at"),
	),
	record.TableBilling: newSchema(record.TableBilling, "invoice_id",
		textCol("invoice_id"), textCol("patient_id"), textCol("patient_name"), textCol("appointment_id"),
		textCol("date"), textCol("items"), realCol("subtotal"), realCol("discount_percent"), realCol("discount_amount"),
		realCol("tax_percent"), realCol("tax_amount"), realCol("total"), textCol("status"), textCol("payment_method"),
		textCol("created_at"),
	),
}

func lookupSchema(table string) (*tableSchema, error) {
	s, ok := schemas[table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", record.ErrUnknownTable, table)
	}
	return s, nil
}

func (s *tableSchema) column(field string) (column, error) {
	c, ok := s.byName[field]
	if !ok {
		return column{}, fmt.Errorf("%w: %s.%s", record.ErrUnknownField, s.name, field)
	}
	return c, nil
}

// encode converts a record value into a driver argument for field.
// Enum fields are parsed into their typed form here and nowhere else.
func (s *tableSchema) encode(field string, v any) (any, error) {
	c, err := s.column(field)
	if err != nil {
		return nil, err
	}
	v = record.Normalize(v)
	if v == nil {
		return nil, nil
	}
	switch c.kind {
	case kindText:
		if str, ok := v.(string); ok {
			return str, nil
		}
	case kindReal:
		if f, ok := v.(float64); ok {
			return f, nil
		}
	case kindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case kindRole:
		if str, ok := v.(string); ok {
			return record.ParseRole(str)
		}
	case kindAppointmentStatus:
		if str, ok := v.(string); ok {
			return record.ParseAppointmentStatus(str)
		}
	}
	return nil, fmt.Errorf("%w: %s.%s cannot hold %T", record.ErrTypeMismatch, s.name, field, v)
}

// scanTargets returns one destination per column, in column order.
func (s *tableSchema) scanTargets() []any {
	dest := make([]any, len(s.columns))
	for i, c := range s.columns {
		switch c.kind {
		case kindText:
			dest[i] = new(sql.NullString)
		case kindReal:
			dest[i] = new(sql.NullFloat64)
		case kindBool:
			dest[i] = new(sql.NullBool)
		case kindRole:
			dest[i] = new(sql.Null[record.Role])
		case kindAppointmentStatus:
			dest[i] = new(sql.Null[record.AppointmentStatus])
		}
	}
	return dest
}

// decode builds a record from scanned targets. NULL columns are omitted so a
// record reads back with the field set it was written with.
func (s *tableSchema) decode(dest []any) record.Record {
	rec := make(record.Record, len(dest))
	for i, c := range s.columns {
		switch v := dest[i].(type) {
		case *sql.NullString:
			if v.Valid {
				rec[c.name] = v.String
			}
		case *sql.NullFloat64:
			if v.Valid {
				rec[c.name] = v.Float64
			}
		case *sql.NullBool:
			if v.Valid {
				rec[c.name] = v.Bool
			}
		case *sql.Null[record.Role]:
			if v.Valid {
				rec[c.name] = v.V.String()
			}
		case *sql.Null[record.AppointmentStatus]:
			if v.Valid {
				rec[c.name] = v.V.String()
			}
		}
	}
	return rec
}

func (s *tableSchema) selectList() string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.name
	}
	return strings.Join(names, ", ")
}
