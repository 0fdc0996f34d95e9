package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tansive/crmctl/internal/crm"
)

var recentOrderColumns = []column[crm.Order]{
	col("order no", func(o crm.Order) string { return orDash(o.OrderNo) }),
	col("customer", func(o crm.Order) string { return orDash(o.CustomerName) }),
	col("status", func(o crm.Order) string { return orDash(string(o.Status)) }),
	col("total", func(o crm.Order) string { return money(o.Total()) }),
	col("created", func(o crm.Order) string { return orDash(o.CreatedAt) }),
}

func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show record counts and the latest orders",
		Long: `Show how many customers, products, inventory records and orders exist, and
the five most recent orders. A count that cannot be loaded is shown as 0.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if err := a.requireLogin(); err != nil {
				return err
			}
			<-a.auth.Start(cmd.Context())

			sum := a.api.Dashboard(cmd.Context())
			if jsonOutput {
				return printResult(a.out, sum)
			}

			if u := a.auth.User(); u != nil {
				fmt.Fprintf(a.out, "Welcome back, %s\n\n", u.Username)
			}
			counts := []struct {
				label string
				n     int
			}{
				{"Customers", sum.Customers},
				{"Products", sum.Products},
				{"Inventory", sum.Inventory},
				{"Orders", sum.Orders},
			}
			for _, c := range counts {
				fmt.Fprintf(a.out, "%-10s %d\n", c.label, c.n)
			}
			if len(sum.Failed) > 0 {
				warnLabel.Fprintf(a.errOut, "Could not load: %s\n", strings.Join(sum.Failed, ", "))
			}

			fmt.Fprintln(a.out, "\nRecent orders:")
			if len(sum.RecentOrders) == 0 {
				fmt.Fprintln(a.out, "No orders yet.")
				return nil
			}
			return printTable(a.out, recentOrderColumns, sum.RecentOrders)
		},
	}
}
