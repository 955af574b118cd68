package order

import (
	"github.com/toastysunday/api/internal/menu"
	"github.com/toastysunday/api/internal/money"
)

// ComputeCost prices items against the catalog. Every instance pays its
// category's base charge (markers for toasties and desserts, each entry for
// drinks) plus the cost of each named extra. Tokens the catalog does not
// know contribute nothing; Validate rejects them before anything is charged.
func ComputeCost(c *menu.Catalog, items Items) money.Money {
	total := money.Zero
	for _, cat := range menu.Categories() {
		base := c.Base(cat).Charge()
		for _, tok := range items.Tokens(cat) {
			if cat.IsMarker(tok) {
				total += base
				continue
			}
			if !cat.MultiInstance() {
				total += base
			}
			if cost, ok := c.ExtraCost(cat, tok); ok {
				total += cost
			}
		}
	}
	return total
}
