package order

import (
	"errors"
	"fmt"

	"github.com/toastysunday/api/internal/menu"
	"github.com/toastysunday/api/internal/money"
)

// Errors returned by decoding, validation and pricing.
var (
	ErrEmptyOrder         = errors.New("order has no items")
	ErrUnknownExtra       = errors.New("unknown extra")
	ErrInvalidCost        = errors.New("order cost out of range")
	ErrMalformedSelection = errors.New("malformed selection key")
	ErrMalformedItems     = errors.New("extra listed outside an instance")
	ErrDuplicateExtra     = errors.New("extra listed twice in one instance")
)

// UnknownExtraError names the offending token.
type UnknownExtraError struct {
	Category string
	Name     string
}

func (e *UnknownExtraError) Error() string {
	return fmt.Sprintf("unknown %s extra %q", e.Category, e.Name)
}

func (e *UnknownExtraError) Is(target error) bool {
	return target == ErrUnknownExtra
}

// Validate checks items against the catalog without pricing them.
func Validate(c *menu.Catalog, items Items) error {
	if items.Empty() {
		return ErrEmptyOrder
	}
	for _, cat := range menu.Categories() {
		seen := map[string]bool{}
		open := !cat.MultiInstance()
		for _, tok := range items.Tokens(cat) {
			if cat.IsMarker(tok) {
				open = true
				seen = map[string]bool{}
				continue
			}
			if !c.HasExtra(cat, tok) {
				return &UnknownExtraError{Category: cat.Key, Name: tok}
			}
			if !open {
				return fmt.Errorf("%w: %s %q", ErrMalformedItems, cat.Field, tok)
			}
			if cat.MultiInstance() {
				if seen[tok] {
					return fmt.Errorf("%w: %s %q", ErrDuplicateExtra, cat.Field, tok)
				}
				seen[tok] = true
			}
		}
	}
	return nil
}

// Pricer validates and prices orders against one catalog and cost ceiling.
type Pricer struct {
	Catalog *menu.Catalog
	MaxCost money.Money
}

// Price validates items and returns their cost, which must lie in
// (0, MaxCost].
func (p Pricer) Price(items Items) (money.Money, error) {
	if err := Validate(p.Catalog, items); err != nil {
		return 0, err
	}
	cost := ComputeCost(p.Catalog, items)
	if cost <= 0 || cost > p.MaxCost {
		return 0, fmt.Errorf("%w: %s", ErrInvalidCost, cost)
	}
	return cost, nil
}

// PriceSelection decodes a form selection and prices the result.
func (p Pricer) PriceSelection(sel Selection) (Items, money.Money, error) {
	items, err := Decode(sel)
	if err != nil {
		return Items{}, 0, err
	}
	cost, err := p.Price(items)
	if err != nil {
		return Items{}, 0, err
	}
	return items, cost, nil
}
