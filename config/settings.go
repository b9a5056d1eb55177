package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"github.com/warp/clinic-core/billing"
	"github.com/warp/clinic-core/record"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Settings is the injected domain configuration: the priced service catalog
// and the staff accounts seeded into an empty users table.
type Settings struct {
	Catalog   *billing.Catalog
	SeedUsers []record.Record
}

type settingsDoc struct {
	Catalog   map[string]serviceDoc `yaml:"catalog"`
	SeedUsers []map[string]any      `yaml:"seed_users"`
}

type serviceDoc struct {
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
}

// DefaultSettings returns the built-in catalog and seed accounts.
func DefaultSettings() (*Settings, error) {
	doc, err := decodeSettings(bytes.NewReader(defaultsYAML))
	if err != nil {
		return nil, fmt.Errorf("failed to decode built-in settings: %w", err)
	}
	return doc.settings()
}

// LoadSettings reads the YAML document at path over the built-in defaults.
// Each top-level section present in the file replaces the default one;
// absent sections keep their defaults. An empty path yields the defaults.
func LoadSettings(path string) (*Settings, error) {
	base, err := decodeSettings(bytes.NewReader(defaultsYAML))
	if err != nil {
		return nil, fmt.Errorf("failed to decode built-in settings: %w", err)
	}
	if path == "" {
		return base.settings()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings: %w", err)
	}
	defer f.Close()

	override, err := decodeSettings(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if override.Catalog != nil {
		base.Catalog = override.Catalog
	}
	if override.SeedUsers != nil {
		base.SeedUsers = override.SeedUsers
	}
	return base.settings()
}

func decodeSettings(r io.Reader) (*settingsDoc, error) {
	var doc settingsDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &doc, nil
}

func (d *settingsDoc) settings() (*Settings, error) {
	services := make([]billing.Service, 0, len(d.Catalog))
	for code, svc := range d.Catalog {
		if svc.Name == "" {
			return nil, fmt.Errorf("catalog entry %q: name is required", code)
		}
		price, err := decimal.NewFromString(svc.Price)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %q: invalid price %q: %w", code, svc.Price, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("catalog entry %q: price must not be negative", code)
		}
		services = append(services, billing.Service{Code: code, Name: svc.Name, Price: price})
	}

	users := make([]record.Record, 0, len(d.SeedUsers))
	for i, u := range d.SeedUsers {
		rec := record.Record(u)
		if rec.String("user_id") == "" || rec.String("username") == "" {
			return nil, fmt.Errorf("seed user %d: user_id and username are required", i)
		}
		if _, err := record.ParseRole(rec.String("role")); err != nil {
			return nil, fmt.Errorf("seed user %s: %w", rec.String("user_id"), err)
		}
		users = append(users, rec)
	}

	return &Settings{Catalog: billing.NewCatalog(services...), SeedUsers: users}, nil
}
