// Package menu holds the server-authoritative menu catalog. A Catalog is
// built once at startup and never mutated; callers receive it by pointer and
// pass it to the cost engine explicitly.
package menu

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/toastysunday/api/internal/money"
	"gopkg.in/yaml.v3"
)

// NoBaseCharge is the baseCost sentinel for sections whose base action is
// free (drinks: water).
const NoBaseCharge money.Money = -100

// ErrInvalidCatalog is returned for catalog documents that break an invariant.
var ErrInvalidCatalog = errors.New("invalid menu catalog")

//go:embed default_menu.json
var defaultMenu []byte

// Base is a section's fixed charge.
type Base struct {
	Cost        money.Money `json:"baseCost" yaml:"baseCost"`
	Description string      `json:"baseDescription" yaml:"baseDescription"`
}

// Charge is what one instance pays for the base: the base cost when it is
// positive, nothing otherwise.
func (b Base) Charge() money.Money {
	if b.Cost > 0 {
		return b.Cost
	}
	return money.Zero
}

// Extra is an individually priced add-on.
type Extra struct {
	Name string      `json:"name" yaml:"name"`
	Cost money.Money `json:"cost" yaml:"cost"`
}

// Section is one category's base and its ordered extras.
type Section struct {
	Base   Base    `json:"base" yaml:"base"`
	Extras []Extra `json:"extras" yaml:"extras"`
}

type document struct {
	MainCourse Section `json:"mainCourse" yaml:"mainCourse"`
	Drinks     Section `json:"drinks" yaml:"drinks"`
	Desert     Section `json:"desert" yaml:"desert"`
}

// Catalog is the immutable, indexed menu.
type Catalog struct {
	sections map[string]Section
	extras   map[string]map[string]money.Money
}

// New validates the sections and builds a Catalog. The slices are copied.
func New(mainCourse, drinks, desert Section) (*Catalog, error) {
	c := &Catalog{
		sections: make(map[string]Section, 3),
		extras:   make(map[string]map[string]money.Money, 3),
	}
	for _, entry := range []struct {
		cat Category
		sec Section
	}{
		{MainCourse, mainCourse},
		{Drink, drinks},
		{Dessert, desert},
	} {
		if err := c.add(entry.cat, entry.sec); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) add(cat Category, sec Section) error {
	if sec.Base.Cost < 0 && sec.Base.Cost != NoBaseCharge {
		return fmt.Errorf("%w: %s base cost %s", ErrInvalidCatalog, cat.Key, sec.Base.Cost)
	}
	index := make(map[string]money.Money, len(sec.Extras))
	extras := make([]Extra, len(sec.Extras))
	for i, e := range sec.Extras {
		name := strings.TrimSpace(e.Name)
		switch {
		case name == "":
			return fmt.Errorf("%w: %s extra %d has no name", ErrInvalidCatalog, cat.Key, i)
		case name == MainCourse.Marker || name == Dessert.Marker:
			return fmt.Errorf("%w: %s extra %q collides with an instance marker", ErrInvalidCatalog, cat.Key, name)
		case e.Cost < 0:
			return fmt.Errorf("%w: %s extra %q has negative cost", ErrInvalidCatalog, cat.Key, name)
		}
		if _, dup := index[name]; dup {
			return fmt.Errorf("%w: %s extra %q listed twice", ErrInvalidCatalog, cat.Key, name)
		}
		index[name] = e.Cost
		extras[i] = Extra{Name: name, Cost: e.Cost}
	}
	sec.Extras = extras
	c.sections[cat.Key] = sec
	c.extras[cat.Key] = index
	return nil
}

// Section returns a copy of the category's section.
func (c *Catalog) Section(cat Category) Section {
	sec := c.sections[cat.Key]
	sec.Extras = append([]Extra(nil), sec.Extras...)
	return sec
}

// Base returns the category's base.
func (c *Catalog) Base(cat Category) Base {
	return c.sections[cat.Key].Base
}

// ExtraCost returns the cost of a named extra and whether it exists.
func (c *Catalog) ExtraCost(cat Category, name string) (money.Money, bool) {
	cost, ok := c.extras[cat.Key][name]
	return cost, ok
}

// HasExtra reports whether name is an extra of the category.
func (c *Catalog) HasExtra(cat Category, name string) bool {
	_, ok := c.extras[cat.Key][name]
	return ok
}

// MarshalJSON renders the catalog in its document shape.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	return json.Marshal(document{
		MainCourse: c.Section(MainCourse),
		Drinks:     c.Section(Drink),
		Desert:     c.Section(Dessert),
	})
}

// Parse decodes a catalog document. format is "json" or "yaml".
func Parse(data []byte, format string) (*Catalog, error) {
	var doc document
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
		}
	case "json", "":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidCatalog, format)
	}
	return New(doc.MainCourse, doc.Drinks, doc.Desert)
}

// Load reads a catalog file, picking the format from its extension.
// An empty path loads the built-in menu.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read menu: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return Parse(data, format)
}

// Default returns the built-in menu.
func Default() (*Catalog, error) {
	return Parse(defaultMenu, "json")
}
