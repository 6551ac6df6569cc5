// Package catalog holds the static product table the storefront sells from.
// The table is read once at startup and never mutated.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"storebot/core/logger"
)

// ErrNotFound indicates the product/tier pair is not part of the catalog.
var ErrNotFound = errors.New("catalog: product or quantity not found")

// Tier is a purchasable quantity of a product with its base price in the
// minor currency unit.
type Tier struct {
	Label string `yaml:"label"`
	Price int64  `yaml:"price"`
}

// Product is a catalog entry with its quantity tiers and an optional photo.
type Product struct {
	Name  string `yaml:"name"`
	Photo string `yaml:"photo"`
	Tiers []Tier `yaml:"tiers"`
}

// Quality describes the optional quality upgrade applied on top of a tier.
type Quality struct {
	Label  string  `yaml:"label"`
	Factor float64 `yaml:"factor"`
}

type file struct {
	Quality  Quality   `yaml:"quality"`
	Products []Product `yaml:"products"`
}

// Catalog is the read-only product table. Products keep file order so menus
// render deterministically.
type Catalog struct {
	products []Product
	quality  Quality
}

// Load reads the catalog from a YAML file and validates it.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	c, err := New(f.Products, f.Quality)
	if err != nil {
		return nil, err
	}
	logger.Info(logger.Background(), "service.catalog", "catalog.load",
		slog.String("path", path),
		slog.Int("count", len(c.products)),
		slog.Float64("quality_factor", c.quality.Factor),
	)
	return c, nil
}

// New builds a catalog from in-memory data. Used by Load and by tests.
func New(products []Product, quality Quality) (*Catalog, error) {
	if len(products) == 0 {
		return nil, errors.New("catalog: no products defined")
	}
	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		if p.Name == "" {
			return nil, errors.New("catalog: product with empty name")
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate product %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		if len(p.Tiers) == 0 {
			return nil, fmt.Errorf("catalog: product %q has no quantity tiers", p.Name)
		}
		for _, t := range p.Tiers {
			if t.Label == "" || t.Price <= 0 {
				return nil, fmt.Errorf("catalog: product %q has an invalid tier", p.Name)
			}
		}
	}
	if quality.Factor == 0 {
		quality.Factor = 1.10
	}
	if quality.Factor < 1 {
		return nil, fmt.Errorf("catalog: quality factor %v must be >= 1", quality.Factor)
	}
	if quality.Label == "" {
		quality.Label = "Premium"
	}
	return &Catalog{products: products, quality: quality}, nil
}

// Products returns all catalog entries in file order.
func (c *Catalog) Products() []Product {
	return c.products
}

// Product looks up a catalog entry by name.
func (c *Catalog) Product(name string) (Product, bool) {
	for _, p := range c.products {
		if p.Name == name {
			return p, true
		}
	}
	return Product{}, false
}

// Quality returns the configured quality upgrade.
func (c *Catalog) Quality() Quality {
	return c.quality
}

// BasePrice returns the base price for a product/quantity pair.
func (c *Catalog) BasePrice(product, quantity string) (int64, error) {
	p, ok := c.Product(product)
	if !ok {
		return 0, ErrNotFound
	}
	for _, t := range p.Tiers {
		if t.Label == quantity {
			return t.Price, nil
		}
	}
	return 0, ErrNotFound
}

// Price computes the final price for a selection. The quality upgrade
// multiplies the base price by the configured factor and truncates toward
// zero, which keeps parity with historical pricing.
func (c *Catalog) Price(product, quantity string, upgrade bool) (int64, error) {
	base, err := c.BasePrice(product, quantity)
	if err != nil {
		return 0, err
	}
	if !upgrade {
		return base, nil
	}
	return int64(math.Floor(float64(base) * c.quality.Factor)), nil
}
