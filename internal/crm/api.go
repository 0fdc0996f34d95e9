package crm

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tansive/crmctl/internal/common/httpclient"
)

// API groups the resource clients over one HTTP client.
type API struct {
	Customers *Resource[Customer]
	Products  *Resource[Product]
	Inventory *InventoryAPI
	Orders    *OrderAPI
}

func New(client httpclient.HTTPClientInterface) *API {
	return &API{
		Customers: NewResource[Customer](client, "customers"),
		Products:  NewResource[Product](client, "products"),
		Inventory: NewInventoryAPI(client),
		Orders:    NewOrderAPI(client),
	}
}

// RecentOrderCount is how many orders the dashboard shows.
const RecentOrderCount = 5

// Summary is the dashboard view: record counts and the latest orders.
type Summary struct {
	Customers    int     `json:"customers"`
	Products     int     `json:"products"`
	Inventory    int     `json:"inventory"`
	Orders       int     `json:"orders"`
	RecentOrders []Order `json:"recent_orders"`
	// Failed names the collections whose call failed and were counted as 0.
	Failed []string `json:"failed,omitempty"`
}

// Dashboard loads the four counts concurrently. Every call runs to
// completion; one that fails contributes zero and no orders instead of
// failing the summary.
func (a *API) Dashboard(ctx context.Context) *Summary {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		sum    = &Summary{RecentOrders: []Order{}}
		counts = map[string]*int{
			"customers": &sum.Customers,
			"products":  &sum.Products,
			"inventory": &sum.Inventory,
		}
	)
	failed := func(name string, err error) {
		log.Debug().Err(err).Str("collection", name).Msg("dashboard count failed")
		mu.Lock()
		sum.Failed = append(sum.Failed, name)
		mu.Unlock()
	}

	one := ListParams{Page: 1, PageSize: 1}
	calls := map[string]func() (int, error){
		"customers": func() (int, error) { return total(a.Customers.List(ctx, one)) },
		"products":  func() (int, error) { return total(a.Products.List(ctx, one)) },
		"inventory": func() (int, error) { return total(a.Inventory.List(ctx, one)) },
	}
	for name, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := call()
			if err != nil {
				failed(name, err)
				return
			}
			*counts[name] = n
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		page, err := a.Orders.List(ctx, ListParams{Page: 1, PageSize: RecentOrderCount})
		if err != nil {
			failed("orders", err)
			return
		}
		sum.Orders = page.Total
		items := page.Items
		if len(items) > RecentOrderCount {
			items = items[:RecentOrderCount]
		}
		sum.RecentOrders = items
	}()

	wg.Wait()
	slices.Sort(sum.Failed)
	return sum
}

func total[T any](p *Page[T], err error) (int, error) {
	if err != nil {
		return 0, err
	}
	return p.Total, nil
}
