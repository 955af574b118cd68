// Package order turns client selections into priced order items. It owns the
// item codec, the cost engine, the validator and the weekly submission window.
// Nothing here touches storage; the catalog is always passed in.
package order

import "github.com/toastysunday/api/internal/menu"

// Items is the flattened per-category order content. Multi-instance
// categories open every instance with the category's marker token.
type Items struct {
	Toasties []string `json:"toasties"`
	Drinks   []string `json:"drinks"`
	Deserts  []string `json:"deserts"`
}

// Tokens returns the list held for cat.
func (it Items) Tokens(cat menu.Category) []string {
	switch cat.Key {
	case menu.MainCourse.Key:
		return it.Toasties
	case menu.Drink.Key:
		return it.Drinks
	case menu.Dessert.Key:
		return it.Deserts
	}
	return nil
}

func (it *Items) setTokens(cat menu.Category, tokens []string) {
	switch cat.Key {
	case menu.MainCourse.Key:
		it.Toasties = tokens
	case menu.Drink.Key:
		it.Drinks = tokens
	case menu.Dessert.Key:
		it.Deserts = tokens
	}
}

// Empty reports whether no category holds any token.
func (it Items) Empty() bool {
	return len(it.Toasties) == 0 && len(it.Drinks) == 0 && len(it.Deserts) == 0
}

// Normalize replaces nil lists with empty ones so they render as [].
func (it Items) Normalize() Items {
	for _, cat := range menu.Categories() {
		if it.Tokens(cat) == nil {
			it.setTokens(cat, []string{})
		}
	}
	return it
}

// Instances returns how many purchasable units cat holds: markers for
// multi-instance categories, tokens otherwise.
func (it Items) Instances(cat menu.Category) int {
	tokens := it.Tokens(cat)
	if !cat.MultiInstance() {
		return len(tokens)
	}
	n := 0
	for _, tok := range tokens {
		if cat.IsMarker(tok) {
			n++
		}
	}
	return n
}
