package crm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tansive/crmctl/internal/common/httpclient"
	"github.com/tansive/crmctl/internal/common/validate"
	"github.com/tidwall/sjson"
)

// ErrInvalidStatus is returned for a status outside OrderStatuses.
var ErrInvalidStatus = validate.ErrValidation.New("invalid order status")

// OrderAPI manages orders. Orders are not edited in place; only their status
// moves.
type OrderAPI struct {
	res *Resource[Order]
}

func NewOrderAPI(client httpclient.HTTPClientInterface) *OrderAPI {
	return &OrderAPI{res: NewResource[Order](client, "orders")}
}

func (a *OrderAPI) List(ctx context.Context, params ListParams) (*Page[Order], error) {
	return a.res.List(ctx, params)
}

func (a *OrderAPI) Get(ctx context.Context, id string) (*Order, error) {
	return a.res.Get(ctx, id)
}

func (a *OrderAPI) Create(ctx context.Context, v *Order) (*Order, error) {
	return a.res.Create(ctx, v)
}

func (a *OrderAPI) Delete(ctx context.Context, id string) error {
	return a.res.Delete(ctx, id)
}

// UpdateStatus moves order id to status.
func (a *OrderAPI) UpdateStatus(ctx context.Context, id string, status OrderStatus) error {
	if err := checkID(id); err != nil {
		return err
	}
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}
	body, err := sjson.SetBytes(nil, "status", string(status))
	if err != nil {
		return fmt.Errorf("unable to encode status: %w", err)
	}
	_, err = a.res.client.Put(ctx, a.res.Path(id, "status"), body)
	return err
}

// ParseStatus returns the order status named s, or ErrInvalidStatus.
func ParseStatus(s string) (OrderStatus, error) {
	for _, st := range OrderStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	names := make([]string, len(OrderStatuses))
	for i, st := range OrderStatuses {
		names[i] = string(st)
	}
	return "", ErrInvalidStatus.Msg(fmt.Sprintf("status must be one of: %s", strings.Join(names, ", ")))
}
