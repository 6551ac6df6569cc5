package catalog

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New([]Product{
		{Name: "A", Tiers: []Tier{{Label: "1", Price: 1000}, {Label: "2", Price: 2000}}},
		{Name: "B", Tiers: []Tier{{Label: "1", Price: 2190}, {Label: "3", Price: 3990}}},
	}, Quality{Label: "Premium", Factor: 1.10})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	return c
}

func TestPriceParity(t *testing.T) {
	c := testCatalog(t)
	for _, p := range c.Products() {
		for _, tier := range p.Tiers {
			plain, err := c.Price(p.Name, tier.Label, false)
			if err != nil {
				t.Fatalf("price(%s,%s): %v", p.Name, tier.Label, err)
			}
			if plain != tier.Price {
				t.Errorf("price(%s,%s,false) = %d, want %d", p.Name, tier.Label, plain, tier.Price)
			}
			upgraded, err := c.Price(p.Name, tier.Label, true)
			if err != nil {
				t.Fatalf("price(%s,%s,true): %v", p.Name, tier.Label, err)
			}
			want := int64(math.Floor(float64(tier.Price) * 1.10))
			if upgraded != want {
				t.Errorf("price(%s,%s,true) = %d, want %d", p.Name, tier.Label, upgraded, want)
			}
		}
	}
}

func TestPriceUpgradeTruncates(t *testing.T) {
	c := testCatalog(t)
	got, err := c.Price("A", "2", true)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if got != 2200 {
		t.Errorf("price(A,2,true) = %d, want 2200", got)
	}
}

func TestPriceNotFound(t *testing.T) {
	c := testCatalog(t)
	cases := []struct{ product, quantity string }{
		{"A", "99"},
		{"missing", "1"},
	}
	for _, tc := range cases {
		if _, err := c.BasePrice(tc.product, tc.quantity); !errors.Is(err, ErrNotFound) {
			t.Errorf("basePrice(%s,%s) err = %v, want ErrNotFound", tc.product, tc.quantity, err)
		}
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := `
quality:
  label: "Premium roast"
  factor: 1.10
products:
  - name: "Arabica"
    photo: "photos/arabica.jpg"
    tiers:
      - label: "250 g"
        price: 1190
      - label: "500 g"
        price: 2090
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := len(c.Products()); got != 1 {
		t.Fatalf("products = %d, want 1", got)
	}
	if p, ok := c.Product("Arabica"); !ok || p.Photo != "photos/arabica.jpg" {
		t.Errorf("product lookup = %+v, %v", p, ok)
	}
	if price, err := c.Price("Arabica", "250 g", true); err != nil || price != 1309 {
		t.Errorf("price = %d, %v; want 1309", price, err)
	}
}

func TestNewRejectsInvalid(t *testing.T) {
	if _, err := New(nil, Quality{}); err == nil {
		t.Error("expected error for empty catalog")
	}
	if _, err := New([]Product{{Name: "A"}}, Quality{}); err == nil {
		t.Error("expected error for product without tiers")
	}
	if _, err := New([]Product{
		{Name: "A", Tiers: []Tier{{Label: "1", Price: 100}}},
		{Name: "A", Tiers: []Tier{{Label: "1", Price: 100}}},
	}, Quality{}); err == nil {
		t.Error("expected error for duplicate product")
	}
}
