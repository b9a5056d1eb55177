/*
invoice.go - In-memory invoice and its derived aggregates

PURPOSE:
  An Invoice is a draft until the engine saves it. While a draft, line items,
  discount and tax can change freely. Aggregates are never cached: every
  accessor recomputes from the current items and percentages.

AGGREGATES:
  subtotal        = sum(quantity * unit price)
  discount amount = subtotal * discount% / 100
  tax amount      = (subtotal - discount amount) * tax% / 100
  total           = subtotal - discount amount + tax amount

LIFECYCLE:
  Draft (mutable) -> Pending (saved, frozen) -> Paid (terminal)

  Once saved, the in-memory invoice rejects mutation with ErrInvoiceSaved.
  Status transitions after that point happen on the stored record only.

SEE ALSO:
  - engine.go: creates, saves and settles invoices
*/
package billing

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/clinic-core/record"
)

// Status is the lifecycle state of a stored invoice.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

var hundred = decimal.NewFromInt(100)

// =============================================================================
// LINE ITEM
// =============================================================================

// LineItem is one priced entry. Negative quantities and prices are accepted
// and flow through the aggregates unchanged.
type LineItem struct {
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Total is quantity times unit price.
func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// itemDoc is the stored shape of a line item inside the invoice's items field.
type itemDoc struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// EncodeItems renders items as the JSON string stored in the items field.
func EncodeItems(items []LineItem) (string, error) {
	docs := make([]itemDoc, len(items))
	for i, li := range items {
		docs[i] = itemDoc{
			Description: li.Description,
			Quantity:    float64(li.Quantity),
			UnitPrice:   li.UnitPrice.InexactFloat64(),
			Total:       li.Total().InexactFloat64(),
		}
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeItems reads a stored items value. It accepts the JSON string written
// by EncodeItems, or an already-decoded list from a hand-edited table file.
// A missing value decodes to no items.
func DecodeItems(v any) ([]LineItem, error) {
	var raw []byte
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		if x == "" {
			return nil, nil
		}
		raw = []byte(x)
	case []any:
		data, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedItems, err)
		}
		raw = data
	default:
		return nil, fmt.Errorf("%w: unexpected %T", ErrMalformedItems, v)
	}

	var docs []itemDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedItems, err)
	}
	items := make([]LineItem, len(docs))
	for i, d := range docs {
		items[i] = LineItem{
			Description: d.Description,
			Quantity:    int(d.Quantity),
			UnitPrice:   decimal.NewFromFloat(d.UnitPrice),
		}
	}
	return items, nil
}

// =============================================================================
// INVOICE
// =============================================================================

// Invoice is a staged invoice. Create one with Engine.CreateInvoice.
type Invoice struct {
	id              string
	patientID       string
	patientName     string
	appointmentID   string
	date            string
	items           []LineItem
	discountPercent decimal.Decimal
	taxPercent      decimal.Decimal
	saved           bool
}

func (inv *Invoice) ID() string          { return inv.id }
func (inv *Invoice) PatientID() string   { return inv.patientID }
func (inv *Invoice) PatientName() string { return inv.patientName }
func (inv *Invoice) Date() string        { return inv.date }

// AppointmentID is the optional appointment this invoice settles.
func (inv *Invoice) AppointmentID() string { return inv.appointmentID }

func (inv *Invoice) DiscountPercent() decimal.Decimal { return inv.discountPercent }
func (inv *Invoice) TaxPercent() decimal.Decimal      { return inv.taxPercent }

// Saved reports whether the invoice has been persisted and frozen.
func (inv *Invoice) Saved() bool { return inv.saved }

// Items returns a copy of the line items.
func (inv *Invoice) Items() []LineItem {
	out := make([]LineItem, len(inv.items))
	copy(out, inv.items)
	return out
}

// AddItem appends a line item.
func (inv *Invoice) AddItem(description string, quantity int, unitPrice decimal.Decimal) error {
	if inv.saved {
		return ErrInvoiceSaved
	}
	inv.items = append(inv.items, LineItem{Description: description, Quantity: quantity, UnitPrice: unitPrice})
	return nil
}

func (inv *Invoice) SetDiscountPercent(p decimal.Decimal) error {
	if inv.saved {
		return ErrInvoiceSaved
	}
	inv.discountPercent = p
	return nil
}

func (inv *Invoice) SetTaxPercent(p decimal.Decimal) error {
	if inv.saved {
		return ErrInvoiceSaved
	}
	inv.taxPercent = p
	return nil
}

// SetAppointmentID links the invoice to an appointment.
func (inv *Invoice) SetAppointmentID(id string) error {
	if inv.saved {
		return ErrInvoiceSaved
	}
	inv.appointmentID = id
	return nil
}

func (inv *Invoice) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, li := range inv.items {
		sum = sum.Add(li.Total())
	}
	return sum
}

func (inv *Invoice) DiscountAmount() decimal.Decimal {
	return inv.Subtotal().Mul(inv.discountPercent).Div(hundred)
}

func (inv *Invoice) TaxAmount() decimal.Decimal {
	base := inv.Subtotal().Sub(inv.DiscountAmount())
	return base.Mul(inv.taxPercent).Div(hundred)
}

func (inv *Invoice) Total() decimal.Decimal {
	return inv.Subtotal().Sub(inv.DiscountAmount()).Add(inv.TaxAmount())
}

// Record flattens the invoice into a billing record. The aggregates are
// evaluated once here and stored as a snapshot.
func (inv *Invoice) Record() (record.Record, error) {
	items, err := EncodeItems(inv.items)
	if err != nil {
		return nil, err
	}
	rec := record.Record{
		"invoice_id":       inv.id,
		"patient_id":       inv.patientID,
		"patient_name":     inv.patientName,
		"date":             inv.date,
		"items":            items,
		"subtotal":         inv.Subtotal().InexactFloat64(),
		"discount_percent": inv.discountPercent.InexactFloat64(),
		"discount_amount":  inv.DiscountAmount().InexactFloat64(),
		"tax_percent":      inv.taxPercent.InexactFloat64(),
		"tax_amount":       inv.TaxAmount().InexactFloat64(),
		"total":            inv.Total().InexactFloat64(),
		"status":           string(StatusPending),
	}
	if inv.appointmentID != "" {
		rec["appointment_id"] = inv.appointmentID
	}
	return rec, nil
}
