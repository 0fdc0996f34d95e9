package crm

// Customer is a CRM contact record.
type Customer struct {
	ID      int64  `json:"id,omitempty" yaml:"id,omitempty"`
	Name    string `json:"name" yaml:"name" validate:"notblank"`
	Company string `json:"company,omitempty" yaml:"company,omitempty"`
	Email   string `json:"email,omitempty" yaml:"email,omitempty" validate:"omitempty,email"`
	Phone   string `json:"phone,omitempty" yaml:"phone,omitempty"`
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	Notes   string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Product is a sellable item. Price and Cost default to zero when omitted.
type Product struct {
	ID          int64   `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string  `json:"name" yaml:"name" validate:"notblank"`
	SKU         string  `json:"sku,omitempty" yaml:"sku,omitempty"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Price       float64 `json:"price" yaml:"price" validate:"gte=0"`
	Cost        float64 `json:"cost" yaml:"cost" validate:"gte=0"`
	Category    string  `json:"category,omitempty" yaml:"category,omitempty"`
	Unit        string  `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// Inventory is the stock record of one product. It is addressed by
// ProductID, not by ID.
type Inventory struct {
	ID        int64  `json:"id,omitempty" yaml:"id,omitempty"`
	ProductID int64  `json:"product_id" yaml:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" yaml:"quantity"`
	Warehouse string `json:"warehouse,omitempty" yaml:"warehouse,omitempty"`
	Location  string `json:"location,omitempty" yaml:"location,omitempty"`
	MinStock  int    `json:"min_stock" yaml:"min_stock"`
}

// LowStock reports whether the quantity is at or below the threshold.
func (i Inventory) LowStock() bool {
	return i.MinStock > 0 && i.Quantity <= i.MinStock
}

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusShipped   OrderStatus = "shipped"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists the statuses in workflow order.
var OrderStatuses = []OrderStatus{
	StatusPending,
	StatusConfirmed,
	StatusShipped,
	StatusCompleted,
	StatusCancelled,
}

type OrderItem struct {
	ProductID   int64   `json:"product_id" yaml:"product_id" validate:"required"`
	ProductName string  `json:"product_name,omitempty" yaml:"product_name,omitempty"`
	Quantity    int     `json:"quantity" yaml:"quantity" validate:"gte=1"`
	Price       float64 `json:"price" yaml:"price" validate:"gte=0"`
}

type Order struct {
	ID           int64       `json:"id,omitempty" yaml:"id,omitempty"`
	OrderNo      string      `json:"order_no,omitempty" yaml:"order_no,omitempty"`
	CustomerID   int64       `json:"customer_id" yaml:"customer_id" validate:"required"`
	CustomerName string      `json:"customer_name,omitempty" yaml:"customer_name,omitempty"`
	Items        []OrderItem `json:"items" yaml:"items" validate:"required,min=1,dive"`
	Notes        string      `json:"notes,omitempty" yaml:"notes,omitempty"`
	Status       OrderStatus `json:"status,omitempty" yaml:"status,omitempty" validate:"omitempty,oneof=pending confirmed shipped completed cancelled"`
	TotalAmount  float64     `json:"total_amount,omitempty" yaml:"total_amount,omitempty"`
	Amount       float64     `json:"amount,omitempty" yaml:"amount,omitempty"`
	CreatedAt    string      `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Total is the order amount as reported by the server. Older backends send
// it as amount instead of total_amount.
func (o Order) Total() float64 {
	if o.TotalAmount != 0 {
		return o.TotalAmount
	}
	return o.Amount
}
