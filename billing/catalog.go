package billing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Catalog codes the engine refers to directly.
const (
	CodeConsultation = "consultation"
	CodeMedicine     = "medicine"
)

// Service is one priced catalog entry. A zero price marks a variable-price
// entry whose price is supplied per line.
type Service struct {
	Code  string
	Name  string
	Price decimal.Decimal
}

// Catalog maps service codes to services. It is read-only once built.
type Catalog struct {
	services map[string]Service
}

// NewCatalog builds a catalog. A later entry with the same code replaces an
// earlier one.
func NewCatalog(services ...Service) *Catalog {
	c := &Catalog{services: make(map[string]Service, len(services))}
	for _, s := range services {
		c.services[s.Code] = s
	}
	return c
}

// Lookup returns the service for code.
func (c *Catalog) Lookup(code string) (Service, bool) {
	s, ok := c.services[code]
	return s, ok
}

// Services returns every entry ordered by code.
func (c *Catalog) Services() []Service {
	out := make([]Service, 0, len(c.services))
	for _, s := range c.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (c *Catalog) Len() int { return len(c.services) }
