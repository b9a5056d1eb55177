package record

import (
	"encoding/json"
	"reflect"
)

// Normalize maps a field value onto the small set of shapes both backends
// can round-trip: string, bool, float64, nil, and anything JSON-shaped.
// Every integer and float kind becomes float64; enum types become their
// canonical string.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, string, bool, float64:
		return v
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case Role:
		return x.String()
	case AppointmentStatus:
		return x.String()
	}
	return v
}

// Equal compares two field values after normalisation.
func Equal(a, b any) bool {
	return reflect.DeepEqual(Normalize(a), Normalize(b))
}

// Match reports whether rec satisfies every filter. A nil filter value
// matches a field that is absent or null; otherwise a record lacking a
// filtered field never matches.
func Match(rec Record, filters Filters) bool {
	for field, want := range filters {
		got, ok := rec[field]
		if Normalize(want) == nil {
			if ok && Normalize(got) != nil {
				return false
			}
			continue
		}
		if !ok {
			return false
		}
		if !Equal(got, want) {
			return false
		}
	}
	return true
}

// Merge applies updates to dst in place. A nil value removes the field, the
// same way a relational backend stores NULL and omits it on read.
func Merge(dst, updates Record) {
	for k, v := range updates {
		v = Normalize(v)
		if v == nil {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
}
