package service

import (
	"context"
	"fmt"

	"github.com/toastysunday/api/internal/menu"
	"github.com/toastysunday/api/internal/money"
	"github.com/toastysunday/api/internal/order"
)

// OrderGroups is one paid order split into displayable instances.
type OrderGroups struct {
	Username string        `json:"username"`
	Cost     money.Money   `json:"cost"`
	Toasties []order.Group `json:"toasties"`
	Drinks   []order.Group `json:"drinks"`
	Deserts  []order.Group `json:"deserts"`
}

// CategoryTotals counts what the kitchen needs for one category.
type CategoryTotals struct {
	Instances int            `json:"instances"`
	Extras    map[string]int `json:"extras"`
}

// Summary aggregates all paid orders for the kitchen.
type Summary struct {
	Orders     []OrderGroups             `json:"orders"`
	Totals     map[string]CategoryTotals `json:"totals"`
	PaidOrders int                       `json:"paid_orders"`
	Revenue    money.Money               `json:"revenue"`
}

// Summary groups every paid order and totals instances and extras per
// category. Unpaid orders are left out.
func (s *OrderService) Summary(ctx context.Context) (*Summary, error) {
	rows, err := s.store.ListPaidOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list paid orders: %w", err)
	}

	sum := &Summary{
		Orders: make([]OrderGroups, 0, len(rows)),
		Totals: make(map[string]CategoryTotals, 3),
	}
	for _, cat := range menu.Categories() {
		sum.Totals[cat.Field] = CategoryTotals{Extras: map[string]int{}}
	}

	for _, row := range rows {
		o := orderFromRow(row)
		sum.Orders = append(sum.Orders, OrderGroups{
			Username: o.Username,
			Cost:     o.Cost,
			Toasties: groups(menu.MainCourse, o.Toasties),
			Drinks:   groups(menu.Drink, o.Drinks),
			Deserts:  groups(menu.Dessert, o.Deserts),
		})
		sum.PaidOrders++
		sum.Revenue += o.Cost

		for _, cat := range menu.Categories() {
			totals := sum.Totals[cat.Field]
			totals.Instances += o.Items.Instances(cat)
			for _, tok := range o.Items.Tokens(cat) {
				if !cat.IsMarker(tok) {
					totals.Extras[tok]++
				}
			}
			sum.Totals[cat.Field] = totals
		}
	}
	return sum, nil
}

func groups(cat menu.Category, tokens []string) []order.Group {
	g := order.Groups(cat, tokens)
	if g == nil {
		return []order.Group{}
	}
	return g
}
