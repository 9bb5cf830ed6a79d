package model

import "time"

type OrderStatus string

const (
	OrderDraft             OrderStatus = "draft"
	OrderOrdered           OrderStatus = "ordered"
	OrderPartiallyReceived OrderStatus = "partially_received"
	OrderReceived          OrderStatus = "received"
	OrderCancelled         OrderStatus = "cancelled"
)

// Open orders still expect goods.
func (s OrderStatus) Open() bool {
	return s == OrderOrdered || s == OrderPartiallyReceived
}

type PurchaseOrder struct {
	ID           int64       `db:"id" json:"id"`
	TenantID     int64       `db:"tenant_id" json:"tenantId"`
	Number       string      `db:"number" json:"number"`
	SupplierID   int64       `db:"supplier_id" json:"supplierId"`
	SupplierName string      `db:"supplier_name" json:"supplierName"`
	Status       OrderStatus `db:"status" json:"status"`
	OrderedAt    *time.Time  `db:"ordered_at" json:"orderedAt,omitempty"`
	ExpectedAt   *time.Time  `db:"expected_at" json:"expectedAt,omitempty"`
	Notes        string      `db:"notes" json:"notes"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updatedAt"`
	Lines        []OrderLine `json:"lines"`
	Total        float64     `json:"total"`
}

type OrderLine struct {
	ID          int64   `db:"id" json:"id"`
	OrderID     int64   `db:"order_id" json:"orderId"`
	ProductID   int64   `db:"product_id" json:"productId"`
	ProductName string  `db:"product_name" json:"productName"`
	Quantity    float64 `db:"quantity" json:"quantity"`
	Received    float64 `db:"received" json:"received"`
	UnitCost    float64 `db:"unit_cost" json:"unitCost"`
}

// Outstanding is the quantity still expected on the line.
func (l OrderLine) Outstanding() float64 { return l.Quantity - l.Received }

type OrderLineInput struct {
	ProductID int64   `json:"productId"`
	Quantity  float64 `json:"quantity"`
	UnitCost  float64 `json:"unitCost"`
}

type PurchaseOrderInput struct {
	SupplierID int64            `json:"supplierId"`
	Notes      string           `json:"notes"`
	Lines      []OrderLineInput `json:"lines"`
}

type ReceiptLine struct {
	LineID   int64   `json:"lineId"`
	Quantity float64 `json:"quantity"`
}

// DeliveryItem is one product line of a supplier delivery note.
type DeliveryItem struct {
	ProductID int64   `json:"productId"`
	Quantity  float64 `json:"quantity"`
}

// DeliveryResult reports how a delivery was matched against open orders.
type DeliveryResult struct {
	Applied   []AppliedDelivery `json:"applied"`
	Unmatched []DeliveryItem    `json:"unmatched"`
}

type AppliedDelivery struct {
	OrderID   int64   `json:"orderId"`
	Number    string  `json:"number"`
	LineID    int64   `json:"lineId"`
	ProductID int64   `json:"productId"`
	Quantity  float64 `json:"quantity"`
}

type ReorderSuggestion struct {
	ProductID    int64   `json:"productId"`
	ProductName  string  `json:"productName"`
	SKU          string  `json:"sku"`
	SupplierID   *int64  `json:"supplierId,omitempty"`
	Stock        float64 `json:"stock"`
	OnOrder      float64 `json:"onOrder"`
	ReorderPoint float64 `json:"reorderPoint"`
	Quantity     float64 `json:"quantity"`
	UnitCost     float64 `json:"unitCost"`
}
