package storage

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jkaninda/duka/internal/domain"
)

//go:embed data/*.json
var defaultData embed.FS

const (
	productsFile = "products.json"
	ordersFile   = "orders.json"
)

// Dataset is the seed content for a store.
type Dataset struct {
	Products []domain.Product
	Orders   []domain.Order
}

// DefaultDataset returns the embedded demo catalog and orders.
func DefaultDataset() (*Dataset, error) {
	sub, err := fs.Sub(defaultData, "data")
	if err != nil {
		return nil, err
	}
	return loadDataset(sub)
}

// LoadDataset reads products.json and orders.json from dir.
// An empty dir returns the embedded defaults.
func LoadDataset(dir string) (*Dataset, error) {
	if dir == "" {
		return DefaultDataset()
	}
	if _, err := os.Stat(filepath.Join(dir, productsFile)); err != nil {
		return nil, fmt.Errorf("data directory %s: %w", dir, err)
	}
	return loadDataset(os.DirFS(dir))
}

func loadDataset(fsys fs.FS) (*Dataset, error) {
	ds := &Dataset{}
	if err := readJSON(fsys, productsFile, &ds.Products); err != nil {
		return nil, err
	}
	if err := readJSON(fsys, ordersFile, &ds.Orders); err != nil {
		return nil, err
	}
	if err := ds.normalize(); err != nil {
		return nil, err
	}
	return ds, nil
}

func readJSON(fsys fs.FS, name string, v any) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// normalize upper-cases identifiers, defaults missing statuses to open and
// converts timestamps to UTC. Duplicate identifiers are rejected.
func (ds *Dataset) normalize() error {
	seen := make(map[string]struct{}, len(ds.Products))
	for i := range ds.Products {
		p := &ds.Products[i]
		p.ID = strings.ToUpper(strings.TrimSpace(p.ID))
		if err := validate.Struct(p); err != nil {
			return fmt.Errorf("product at index %d: %w", i, err)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate product id %s", p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	seen = make(map[string]struct{}, len(ds.Orders))
	for i := range ds.Orders {
		o := &ds.Orders[i]
		o.ID = strings.ToUpper(strings.TrimSpace(o.ID))
		if err := validate.Struct(o); err != nil {
			return fmt.Errorf("order at index %d: %w", i, err)
		}
		if _, dup := seen[o.ID]; dup {
			return fmt.Errorf("duplicate order id %s", o.ID)
		}
		seen[o.ID] = struct{}{}
		if o.Status == "" {
			o.Status = domain.OrderOpen
		}
		if !o.Status.Valid() {
			return fmt.Errorf("order %s has unknown status %q", o.ID, o.Status)
		}
		o.CreatedAt = o.CreatedAt.UTC()
	}
	return nil
}
