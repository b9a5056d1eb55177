package record

import (
	"fmt"
	"strconv"
	"strings"
)

// Logical table names.
const (
	TableUsers        = "users"
	TablePatients     = "patients"
	TableAppointments = "appointments"
	TableBilling      = "billing"
)

// Table describes a logical collection and its business identifier.
type Table struct {
	Name    string
	IDField string
	Prefix  string
}

// Tables lists the four collections in dependency order (users first).
var Tables = []Table{
	{Name: TableUsers, IDField: "user_id", Prefix: "USR"},
	{Name: TablePatients, IDField: "patient_id", Prefix: "PAT"},
	{Name: TableAppointments, IDField: "appointment_id", Prefix: "APT"},
	{Name: TableBilling, IDField: "invoice_id", Prefix: "INV"},
}

// LookupTable returns the registry entry for name.
func LookupTable(name string) (Table, bool) {
	for _, t := range Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// IDField returns the identifier field for name, or ErrUnknownTable.
func IDField(name string) (string, error) {
	t, ok := LookupTable(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return t.IDField, nil
}

// idWidth is the minimum number of digits in a generated suffix.
const idWidth = 3

// NextID computes prefix + zero-padded (max suffix + 1) over ids.
// Values without the prefix, or whose remainder is not all digits, are
// ignored. An empty or fully ignored input yields prefix + "001".
func NextID(prefix string, ids []string) string {
	max := 0
	for _, id := range ids {
		n, ok := Suffix(prefix, id)
		if ok && n > max {
			max = n
		}
	}
	return FormatID(prefix, max+1)
}

// Suffix extracts the numeric suffix of id following prefix.
func Suffix(prefix, id string) (int, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	rest := id[len(prefix):]
	if rest == "" {
		return 0, false
	}
	for _, c := range rest {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FormatID renders prefix and n with the standard padding.
func FormatID(prefix string, n int) string {
	return fmt.Sprintf("%s%0*d", prefix, idWidth, n)
}
