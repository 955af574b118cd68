package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/toastysunday/api/internal/menu"
	"github.com/toastysunday/api/internal/money"
	"github.com/toastysunday/api/internal/order"
)

func menuCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Inspect and price menu catalogs offline",
	}
	cmd.PersistentFlags().String("file", "", "catalog file, JSON or YAML (default $MENU_PATH, then the built-in menu)")
	cmd.AddCommand(menuCheckCmd())
	cmd.AddCommand(menuQuoteCmd())
	return cmd
}

func menuCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate a catalog and print what one of everything costs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, _, err := loadCatalog(cmd)
			if err != nil {
				return err
			}
			return printCatalog(cmd.OutOrStdout(), catalog)
		},
	}
}

func menuQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote [selection-key...]",
		Short: "Price a form selection against a catalog",
		Long: `Price a form selection against a catalog.

Selection keys name checked extras as extraName_category_index, where
category is toasty, drink or desert.

Examples:
  toastyctl menu quote --main Cheese_toasty_0 Ham_toasty_1
  toastyctl menu quote --drink --file menu.yaml Coffee_drink_0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, maxCost, err := loadCatalog(cmd)
			if err != nil {
				return err
			}

			var sel order.Selection
			sel.WantMain, _ = cmd.Flags().GetBool("main")
			sel.WantDrink, _ = cmd.Flags().GetBool("drink")
			sel.WantDessert, _ = cmd.Flags().GetBool("dessert")
			sel.ToastyCount, _ = cmd.Flags().GetInt("toasties")
			sel.DessertCount, _ = cmd.Flags().GetInt("desserts")
			sel.Checked = args

			items, cost, err := order.Pricer{Catalog: catalog, MaxCost: maxCost}.PriceSelection(sel)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, cat := range menu.Categories() {
				for _, g := range order.Groups(cat, items.Tokens(cat)) {
					fmt.Fprintf(out, "%s: %s\n", g.Label, g.Summary())
				}
			}
			fmt.Fprintf(out, "total: %s\n", cost)
			return nil
		},
	}
	cmd.Flags().Bool("main", false, "order toasties")
	cmd.Flags().Bool("drink", false, "order drinks")
	cmd.Flags().Bool("dessert", false, "order desserts")
	cmd.Flags().Int("toasties", 0, "number of toasties (default: highest index in the keys)")
	cmd.Flags().Int("desserts", 0, "number of desserts (default: highest index in the keys)")
	return cmd
}

// loadCatalog resolves the catalog path from --file or the environment and
// returns the configured cost ceiling alongside it.
func loadCatalog(cmd *cobra.Command) (*menu.Catalog, money.Money, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, 0, err
	}
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = cfg.MenuPath
	}
	catalog, err := menu.Load(path)
	if err != nil {
		return nil, 0, err
	}
	return catalog, cfg.MaxOrderCost, nil
}

func printCatalog(w io.Writer, c *menu.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, cat := range menu.Categories() {
		sec := c.Section(cat)
		fmt.Fprintf(tw, "%s\tbase %s\t%s\n", cat.Key, sec.Base.Cost, sec.Base.Description)
		for _, extra := range sec.Extras {
			single := order.Items{}.Normalize()
			tokens := []string{extra.Name}
			if cat.MultiInstance() {
				tokens = []string{cat.Marker, extra.Name}
			}
			switch cat.Key {
			case menu.MainCourse.Key:
				single.Toasties = tokens
			case menu.Drink.Key:
				single.Drinks = tokens
			case menu.Dessert.Key:
				single.Deserts = tokens
			}
			fmt.Fprintf(tw, "\t%s\t%s\t(one with it: %s)\n", extra.Name, extra.Cost, order.ComputeCost(c, single))
		}
	}
	return tw.Flush()
}
