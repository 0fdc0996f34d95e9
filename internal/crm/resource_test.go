package crm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/crmctl/internal/common/httpclient"
	"github.com/tansive/crmctl/internal/common/validate"
	"github.com/tansive/crmctl/internal/crm/crmtest"
	"github.com/tansive/crmctl/internal/session"
)

func newTestAPI(t *testing.T, opts ...crmtest.Option) (*API, *crmtest.Backend, session.Store) {
	t.Helper()
	backend := crmtest.New(t, opts...)
	backend.AddUser("admin", "secret", "admin@example.com")
	store := session.NewMemoryStore()
	require.NoError(t, session.Persist(store, backend.Token("admin"), &session.User{Username: "admin"}))
	return New(httpclient.NewClient(backend, store, nil)), backend, store
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestCustomerLifecycle(t *testing.T) {
	api, _, _ := newTestAPI(t)
	ctx := context.Background()

	created, err := api.Customers.Create(ctx, &Customer{Name: "Acme", Email: "ops@acme.test", Phone: "555"})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	assert.Equal(t, "Acme", created.Name)
	id := idString(created.ID)

	got, err := api.Customers.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, *created, *got)

	got.Company = "Acme Corp"
	updated, err := api.Customers.Update(ctx, id, got)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", updated.Company)
	assert.Equal(t, created.ID, updated.ID)

	require.NoError(t, api.Customers.Delete(ctx, id))
	_, err = api.Customers.Get(ctx, id)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httpclient.StatusOf(err))
	assert.Equal(t, "record not found", httpclient.MessageOf(err, "failed"))
}

func TestCreateValidatesBeforeRequest(t *testing.T) {
	api, backend, _ := newTestAPI(t)
	ctx := context.Background()

	_, err := api.Customers.Create(ctx, &Customer{Name: " ", Email: "not-an-email"})
	require.Error(t, err)
	assert.ErrorIs(t, err, validate.ErrValidation)
	assert.Equal(t, "name is required; email must be a valid email address", err.Error())

	_, err = api.Orders.Create(ctx, &Order{CustomerID: 1, Items: []OrderItem{{ProductID: 0, Quantity: 0}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, validate.ErrValidation)

	_, err = api.Customers.Create(ctx, nil)
	assert.ErrorIs(t, err, validate.ErrValidation)

	_, err = api.Customers.Get(ctx, "")
	assert.ErrorIs(t, err, ErrMissingID)

	assert.Zero(t, backend.Hits("/customers"))
	assert.Zero(t, backend.Hits("/orders"))
}

func TestListAcrossShapes(t *testing.T) {
	for _, shape := range []crmtest.ListShape{crmtest.ShapeList, crmtest.ShapeItems, crmtest.ShapeArray} {
		api, _, _ := newTestAPI(t, crmtest.WithListShape(shape))
		ctx := context.Background()
		for _, name := range []string{"alpha", "beta", "gamma"} {
			_, err := api.Products.Create(ctx, &Product{Name: name, Price: 1})
			require.NoError(t, err)
		}

		page, err := api.Products.List(ctx, ListParams{Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		assert.Equal(t, 2, page.TotalPages())
		require.Len(t, page.Items, 2)
		assert.Equal(t, "gamma", page.Items[0].Name)

		page, err = api.Products.List(ctx, ListParams{Page: 2, PageSize: 2})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "alpha", page.Items[0].Name)
	}
}

func TestListKeyword(t *testing.T) {
	api, backend, _ := newTestAPI(t)
	ctx := context.Background()
	for _, name := range []string{"Acme", "Globex", "Acme Labs"} {
		_, err := api.Customers.Create(ctx, &Customer{Name: name})
		require.NoError(t, err)
	}

	page, err := api.Customers.List(ctx, ListParams{Keyword: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultPageSize, page.PageSize)
	assert.Equal(t, 4, backend.Hits("/customers"))
}

func TestUpdateMissingInventory(t *testing.T) {
	api, _, _ := newTestAPI(t)
	_, err := api.Inventory.UpdateByProductID(context.Background(), "42", &Inventory{ProductID: 42, Quantity: 1})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httpclient.StatusOf(err))
}

func TestOrders(t *testing.T) {
	api, backend, _ := newTestAPI(t)
	ctx := context.Background()

	order, err := api.Orders.Create(ctx, &Order{
		CustomerID: 7,
		Items: []OrderItem{
			{ProductID: 1, Quantity: 2, Price: 5},
			{ProductID: 2, Quantity: 1, Price: 2.5},
		},
		Notes: "rush",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, order.Status)
	assert.Equal(t, 12.5, order.Total())
	assert.Equal(t, "SO000001", order.OrderNo)
	id := idString(order.ID)

	require.NoError(t, api.Orders.UpdateStatus(ctx, id, StatusShipped))
	got, err := api.Orders.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status)
	assert.Len(t, got.Items, 2)

	err = api.Orders.UpdateStatus(ctx, id, "lost")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.EqualError(t, err, "status must be one of: pending, confirmed, shipped, completed, cancelled")
	assert.Equal(t, 1, backend.Hits("/orders/"+id+"/status"))

	require.NoError(t, api.Orders.Delete(ctx, id))
	page, err := api.Orders.List(ctx, ListParams{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Items)
}

func TestParseStatus(t *testing.T) {
	for _, s := range OrderStatuses {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStatus("Pending")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestInventoryByProduct(t *testing.T) {
	api, _, _ := newTestAPI(t)
	ctx := context.Background()

	_, err := api.Inventory.Create(ctx, &Inventory{ProductID: 9, Quantity: 3, Warehouse: "east", MinStock: 5})
	require.NoError(t, err)

	inv, err := api.Inventory.GetByProductID(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, 3, inv.Quantity)
	assert.True(t, inv.LowStock())

	inv.Quantity = 40
	updated, err := api.Inventory.UpdateByProductID(ctx, "9", inv)
	require.NoError(t, err)
	assert.Equal(t, 40, updated.Quantity)
	assert.Equal(t, inv.ID, updated.ID)

	_, err = api.Inventory.Create(ctx, &Inventory{})
	assert.ErrorIs(t, err, validate.ErrValidation)
}

func TestUnauthorizedClearsSession(t *testing.T) {
	api, backend, store := newTestAPI(t)
	backend.RevokeTokens()

	_, err := api.Customers.List(context.Background(), ListParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, httpclient.ErrUnauthorized)
	assert.Equal(t, "", session.Token(store))
}

func TestRequestCarriesToken(t *testing.T) {
	api, backend, store := newTestAPI(t)
	_, err := api.Products.List(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+session.Token(store), backend.LastHeader("Authorization"))
	assert.NotEmpty(t, backend.LastHeader(httpclient.RequestIDHeader))
}

type origin string

func (o origin) GetServerURL() string { return string(o) }

func TestMemberPathsEscapeOnce(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.EscapedPath())
		mu.Unlock()
		w.Write([]byte(`{"code":200,"data":{"id":1,"name":"x","product_id":1}}`))
	}))
	t.Cleanup(srv.Close)
	api := New(httpclient.NewClient(origin(srv.URL), session.NewMemoryStore(), nil))
	ctx := context.Background()

	_, err := api.Customers.Get(ctx, "a b")
	require.NoError(t, err)
	_, err = api.Inventory.GetByProductID(ctx, "x/y")
	require.NoError(t, err)
	require.NoError(t, api.Orders.UpdateStatus(ctx, "7%", StatusShipped))

	assert.ErrorIs(t, api.Customers.Delete(ctx, ".."), ErrInvalidID)
	assert.ErrorIs(t, api.Orders.Delete(ctx, "."), ErrInvalidID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"GET /api/v1/customers/a%20b",
		"GET /api/v1/inventory/product/x%2Fy",
		"PUT /api/v1/orders/7%25/status",
	}, paths)
}
