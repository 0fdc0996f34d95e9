package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tansive/crmctl/internal/common/httpclient"
	"github.com/tansive/crmctl/internal/crm"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"sigs.k8s.io/yaml"
)

// ops are the calls a resource supports.
type ops[T any] struct {
	list   crm.LoadFunc[T]
	get    func(context.Context, string) (*T, error)
	create func(context.Context, *T) (*T, error)
	update func(context.Context, string, *T) (*T, error)
	remove func(context.Context, string) error
}

// resourceDef describes one resource command group.
type resourceDef[T any] struct {
	name     string
	singular string
	// idName is what the positional argument identifies
	idName  string
	columns []column[T]
	ops     func(api *crm.API) ops[T]
	id      func(T) int64
	extra   []func() *cobra.Command
	example string
	// noUpdate and noDelete drop the update and delete commands
	noUpdate bool
	noDelete bool
}

func newResourceCmds() []*cobra.Command {
	return []*cobra.Command{
		newResourceCmd(resourceDef[crm.Customer]{
			name:     "customers",
			singular: "customer",
			idName:   "ID",
			columns: []column[crm.Customer]{
				col("id", func(c crm.Customer) string { return itoa(c.ID) }),
				col("name", func(c crm.Customer) string { return c.Name }),
				col("company", func(c crm.Customer) string { return orDash(c.Company) }),
				col("email", func(c crm.Customer) string { return orDash(c.Email) }),
				col("phone", func(c crm.Customer) string { return orDash(c.Phone) }),
			},
			ops: func(api *crm.API) ops[crm.Customer] {
				return ops[crm.Customer]{
					list:   api.Customers.List,
					get:    api.Customers.Get,
					create: api.Customers.Create,
					update: api.Customers.Update,
					remove: api.Customers.Delete,
				}
			},
			id: func(c crm.Customer) int64 { return c.ID },
			example: `name: Acme
company: Acme Corp
email: ops@acme.example
phone: "{{ .ENV.ACME_PHONE }}"`,
		}),
		newResourceCmd(resourceDef[crm.Product]{
			name:     "products",
			singular: "product",
			idName:   "ID",
			columns: []column[crm.Product]{
				col("id", func(p crm.Product) string { return itoa(p.ID) }),
				col("name", func(p crm.Product) string { return p.Name }),
				col("sku", func(p crm.Product) string { return orDash(p.SKU) }),
				col("category", func(p crm.Product) string { return orDash(p.Category) }),
				col("price", func(p crm.Product) string { return money(p.Price) }),
				col("cost", func(p crm.Product) string { return money(p.Cost) }),
				col("unit", func(p crm.Product) string { return orDash(p.Unit) }),
			},
			ops: func(api *crm.API) ops[crm.Product] {
				return ops[crm.Product]{
					list:   api.Products.List,
					get:    api.Products.Get,
					create: api.Products.Create,
					update: api.Products.Update,
					remove: api.Products.Delete,
				}
			},
			id: func(p crm.Product) int64 { return p.ID },
			example: `name: Widget
sku: W-1
price: 12.50
cost: 4`,
		}),
		newResourceCmd(resourceDef[crm.Inventory]{
			name:     "inventory",
			singular: "inventory record",
			idName:   "PRODUCT_ID",
			columns: []column[crm.Inventory]{
				col("product", func(i crm.Inventory) string { return itoa(i.ProductID) }),
				col("quantity", func(i crm.Inventory) string { return itoa(i.Quantity) }),
				col("min stock", func(i crm.Inventory) string { return itoa(i.MinStock) }),
				col("warehouse", func(i crm.Inventory) string { return orDash(i.Warehouse) }),
				col("location", func(i crm.Inventory) string { return orDash(i.Location) }),
				col("state", func(i crm.Inventory) string {
					if i.LowStock() {
						return "LOW"
					}
					return "ok"
				}),
			},
			ops: func(api *crm.API) ops[crm.Inventory] {
				return ops[crm.Inventory]{
					list:   api.Inventory.List,
					get:    api.Inventory.GetByProductID,
					create: api.Inventory.Create,
					update: api.Inventory.UpdateByProductID,
				}
			},
			id:       func(i crm.Inventory) int64 { return i.ProductID },
			noDelete: true,
			example: `product_id: 3
quantity: 120
warehouse: east
min_stock: 20`,
		}),
		newResourceCmd(resourceDef[crm.Order]{
			name:     "orders",
			singular: "order",
			idName:   "ID",
			columns: []column[crm.Order]{
				col("id", func(o crm.Order) string { return itoa(o.ID) }),
				col("order no", func(o crm.Order) string { return orDash(o.OrderNo) }),
				col("customer", func(o crm.Order) string { return orDash(o.CustomerName) }),
				col("status", func(o crm.Order) string { return orDash(string(o.Status)) }),
				col("total", func(o crm.Order) string { return money(o.Total()) }),
			},
			ops: func(api *crm.API) ops[crm.Order] {
				return ops[crm.Order]{
					list:   api.Orders.List,
					get:    api.Orders.Get,
					create: api.Orders.Create,
					remove: api.Orders.Delete,
				}
			},
			id:       func(o crm.Order) int64 { return o.ID },
			extra:    []func() *cobra.Command{newOrderStatusCmd},
			noUpdate: true,
			example: `customer_id: 7
items:
  - product_id: 3
    quantity: 2
    price: 12.50
notes: deliver before noon`,
		}),
	}
}

func newResourceCmd[T any](def resourceDef[T]) *cobra.Command {
	cmd := &cobra.Command{
		Use:   def.name,
		Short: fmt.Sprintf("Manage %s", def.name),
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	cmd.AddCommand(newListCmd(def))
	cmd.AddCommand(newGetCmd(def))
	cmd.AddCommand(newCreateCmd(def))
	if !def.noUpdate {
		cmd.AddCommand(newUpdateCmd(def))
	}
	if !def.noDelete {
		cmd.AddCommand(newDeleteCmd(def))
	}
	for _, extra := range def.extra {
		cmd.AddCommand(extra())
	}
	return cmd
}

// resourceApp loads the app and the resource's operations for a signed-in
// user.
func resourceApp[T any](cmd *cobra.Command, def resourceDef[T]) (*app, ops[T], error) {
	a, err := newApp(cmd)
	if err != nil {
		return nil, ops[T]{}, err
	}
	if err := a.requireLogin(); err != nil {
		return nil, ops[T]{}, err
	}
	return a, def.ops(a.api), nil
}

func newListCmd[T any](def resourceDef[T]) *cobra.Command {
	var params crm.ListParams
	cmd := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %s", def.name),
		Long: fmt.Sprintf(`List %s one page at a time.

Examples:
  crmctl %s list
  crmctl %s list --page 2 --page-size 20
  crmctl %s list --keyword acme`, def.name, def.name, def.name, def.name),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, o, err := resourceApp(cmd, def)
			if err != nil {
				return err
			}
			view := crm.NewListView(o.list, params.PageSize)
			page, err := view.Load(cmd.Context(), params)
			if err != nil {
				return describeError(err, "failed to list "+def.name)
			}
			if jsonOutput {
				return printResult(a.out, page)
			}

			pager := view.Pager()
			fmt.Fprintf(a.out, "%s:\n", cases.Title(language.English).String(def.name))
			if len(page.Items) == 0 {
				fmt.Fprintln(a.out, "No records found.")
			} else if err := printTable(a.out, def.columns, page.Items); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Page %d of %d, %d records\n", pager.Page, pager.TotalPages(), pager.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&params.Page, "page", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&params.PageSize, "page-size", crm.DefaultPageSize, "Records per page")
	cmd.Flags().StringVarP(&params.Keyword, "keyword", "k", "", "Only show records matching keyword")
	return cmd
}

func newGetCmd[T any](def resourceDef[T]) *cobra.Command {
	return &cobra.Command{
		Use:   "get " + def.idName,
		Short: fmt.Sprintf("Show one %s", def.singular),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, o, err := resourceApp(cmd, def)
			if err != nil {
				return err
			}
			v, err := o.get(cmd.Context(), args[0])
			if err != nil {
				return describeError(err, fmt.Sprintf("failed to get %s %s", def.singular, args[0]))
			}
			if jsonOutput {
				return printResult(a.out, v)
			}
			out, err := yaml.Marshal(v)
			if err != nil {
				return fmt.Errorf("failed to format %s: %w", def.singular, err)
			}
			_, err = a.out.Write(out)
			return err
		},
	}
}

func newCreateCmd[T any](def resourceDef[T]) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create -f FILE",
		Short: fmt.Sprintf("Create %s from a YAML file", def.name),
		Long: fmt.Sprintf(`Create %s from a YAML file. The file may hold several documents separated
by "---"; each becomes one %s. Placeholders like {{ .ENV.NAME }} are filled
from the environment or a .env file.

Example file:
%s`, def.name, def.singular, indent(def.example)),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords[T](file)
			if err != nil {
				return err
			}
			a, o, err := resourceApp(cmd, def)
			if err != nil {
				return err
			}

			var created []*T
			for i := range records {
				v, err := o.create(cmd.Context(), &records[i])
				if err != nil {
					return describeError(err, fmt.Sprintf("failed to create %s", def.singular))
				}
				created = append(created, v)
				if !jsonOutput {
					okLabel.Fprintf(a.out, "✓ Created %s %d\n", def.singular, def.id(*v))
				}
			}
			if jsonOutput {
				return printResult(a.out, created)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "filename", "f", "", "YAML file to read")
	cmd.MarkFlagRequired("filename")
	return cmd
}

func newUpdateCmd[T any](def resourceDef[T]) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("update %s -f FILE", def.idName),
		Short: fmt.Sprintf("Replace a %s with the contents of a YAML file", def.singular),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords[T](file)
			if err != nil {
				return err
			}
			if len(records) != 1 {
				return fmt.Errorf("expected exactly one document in %s, found %d", file, len(records))
			}
			a, o, err := resourceApp(cmd, def)
			if err != nil {
				return err
			}
			v, err := o.update(cmd.Context(), args[0], &records[0])
			if err != nil {
				return describeError(err, fmt.Sprintf("failed to update %s %s", def.singular, args[0]))
			}
			if jsonOutput {
				return printResult(a.out, v)
			}
			okLabel.Fprintf(a.out, "✓ Updated %s %s\n", def.singular, args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "filename", "f", "", "YAML file to read")
	cmd.MarkFlagRequired("filename")
	return cmd
}

func newDeleteCmd[T any](def resourceDef[T]) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete " + def.idName,
		Short: fmt.Sprintf("Delete a %s", def.singular),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, o, err := resourceApp(cmd, def)
			if err != nil {
				return err
			}
			if !yes {
				ok, err := newPrompter(cmd).confirm(fmt.Sprintf("Delete %s %s?", def.singular, args[0]))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.out, "Cancelled.")
					return nil
				}
			}
			if err := o.remove(cmd.Context(), args[0]); err != nil {
				return describeError(err, fmt.Sprintf("failed to delete %s %s", def.singular, args[0]))
			}
			if jsonOutput {
				return printJSON(a.out, map[string]int{"result": 1})
			}
			okLabel.Fprintf(a.out, "✓ Deleted %s %s\n", def.singular, args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newOrderStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status ID STATUS",
		Short: "Move an order to another status",
		Long: `Move an order to another status. STATUS is one of pending, confirmed,
shipped, completed or cancelled.

Example:
  crmctl orders status 42 shipped`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := crm.ParseStatus(args[1])
			if err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if err := a.requireLogin(); err != nil {
				return err
			}
			if err := a.api.Orders.UpdateStatus(cmd.Context(), args[0], status); err != nil {
				return describeError(err, "failed to update order status")
			}
			if jsonOutput {
				return printJSON(a.out, map[string]any{"result": 1, "id": args[0], "status": status})
			}
			okLabel.Fprintf(a.out, "✓ Order %s is now %s\n", args[0], status)
			return nil
		},
	}
}

// readRecords parses file into records of type T.
func readRecords[T any](file string) ([]T, error) {
	docs, err := ParseMultiYAML(file)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents found in %s", file)
	}
	return decodeDocs[T](docs)
}

// describeError prefers the server's own message; without one the error is
// reported under summary.
func describeError(err error, summary string) error {
	var herr *httpclient.Error
	if !errors.As(err, &herr) {
		return err
	}
	if msg := httpclient.MessageOf(err, ""); msg != "" {
		return fmt.Errorf("%s: %s", summary, msg)
	}
	if herr.Status != 0 {
		return fmt.Errorf("%s: %s", summary, herr.Message)
	}
	return fmt.Errorf("%s: %w", summary, err)
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
