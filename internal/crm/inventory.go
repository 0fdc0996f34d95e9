package crm

import (
	"context"

	"github.com/tansive/crmctl/internal/common/httpclient"
)

// InventoryAPI manages stock records. Records are addressed by product and
// cannot be deleted.
type InventoryAPI struct {
	res *Resource[Inventory]
}

func NewInventoryAPI(client httpclient.HTTPClientInterface) *InventoryAPI {
	return &InventoryAPI{res: NewResource[Inventory](client, "inventory")}
}

func (a *InventoryAPI) List(ctx context.Context, params ListParams) (*Page[Inventory], error) {
	return a.res.List(ctx, params)
}

func (a *InventoryAPI) Create(ctx context.Context, v *Inventory) (*Inventory, error) {
	return a.res.Create(ctx, v)
}

// GetByProductID fetches the stock record of a product.
func (a *InventoryAPI) GetByProductID(ctx context.Context, productID string) (*Inventory, error) {
	if err := checkID(productID); err != nil {
		return nil, err
	}
	resp, err := a.res.client.Get(ctx, a.res.Path("product", productID), nil)
	if err != nil {
		return nil, err
	}
	return decodeResult[Inventory](resp.Data())
}

// UpdateByProductID replaces the stock record of a product.
func (a *InventoryAPI) UpdateByProductID(ctx context.Context, productID string, v *Inventory) (*Inventory, error) {
	if err := checkID(productID); err != nil {
		return nil, err
	}
	return a.res.send(ctx, a.res.client.Put, a.res.Path("product", productID), v)
}
