package model

import "time"

type ProductCategory string

const (
	CategoryFrame       ProductCategory = "frame"
	CategoryLens        ProductCategory = "lens"
	CategoryContactLens ProductCategory = "contact_lens"
	CategorySolution    ProductCategory = "solution"
	CategoryAccessory   ProductCategory = "accessory"
	CategoryService     ProductCategory = "service"
)

func (c ProductCategory) Valid() bool {
	switch c {
	case CategoryFrame, CategoryLens, CategoryContactLens, CategorySolution, CategoryAccessory, CategoryService:
		return true
	}
	return false
}

// Stocked reports whether products of the category carry inventory.
func (c ProductCategory) Stocked() bool { return c != CategoryService }

type Product struct {
	ID              int64           `db:"id" json:"id"`
	TenantID        int64           `db:"tenant_id" json:"tenantId"`
	SKU             string          `db:"sku" json:"sku"`
	Barcode         string          `db:"barcode" json:"barcode"`
	Name            string          `db:"name" json:"name"`
	Category        ProductCategory `db:"category" json:"category"`
	Brand           string          `db:"brand" json:"brand"`
	Model           string          `db:"model" json:"model"`
	Color           string          `db:"color" json:"color"`
	Size            string          `db:"size" json:"size"`
	SupplierID      *int64          `db:"supplier_id" json:"supplierId,omitempty"`
	CostPrice       float64         `db:"cost_price" json:"costPrice"`
	SalePrice       float64         `db:"sale_price" json:"salePrice"`
	TaxRate         float64         `db:"tax_rate" json:"taxRate"`
	StockQuantity   float64         `db:"stock_quantity" json:"stockQuantity"`
	ReorderPoint    float64         `db:"reorder_point" json:"reorderPoint"`
	ReorderQuantity float64         `db:"reorder_quantity" json:"reorderQuantity"`
	Active          bool            `db:"active" json:"active"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

type ProductInput struct {
	SKU             string          `json:"sku"`
	Barcode         string          `json:"barcode"`
	Name            string          `json:"name"`
	Category        ProductCategory `json:"category"`
	Brand           string          `json:"brand"`
	Model           string          `json:"model"`
	Color           string          `json:"color"`
	Size            string          `json:"size"`
	SupplierID      *int64          `json:"supplierId"`
	CostPrice       float64         `json:"costPrice"`
	SalePrice       float64         `json:"salePrice"`
	TaxRate         float64         `json:"taxRate"`
	ReorderPoint    float64         `json:"reorderPoint"`
	ReorderQuantity float64         `json:"reorderQuantity"`
	Active          *bool           `json:"active"`
}

type ProductFilter struct {
	Query      string
	Category   ProductCategory
	SupplierID int64
	LowStock   bool
	ActiveOnly bool
	Limit      int
	Offset     int
}

type MovementKind string

const (
	MovementReceive    MovementKind = "receive"
	MovementSale       MovementKind = "sale"
	MovementAdjust     MovementKind = "adjust"
	MovementReturn     MovementKind = "return"
	MovementCorrection MovementKind = "correction"
)

func (k MovementKind) Valid() bool {
	switch k {
	case MovementReceive, MovementSale, MovementAdjust, MovementReturn, MovementCorrection:
		return true
	}
	return false
}

// Signed converts an entered quantity into the stock delta for k.
// Sales leave stock; receipts and customer returns add to it.
// Adjust and correction quantities are already deltas.
func (k MovementKind) Signed(qty float64) float64 {
	switch k {
	case MovementSale:
		if qty > 0 {
			return -qty
		}
	case MovementReceive, MovementReturn:
		if qty < 0 {
			return -qty
		}
	}
	return qty
}

type StockMovement struct {
	ID           int64        `db:"id" json:"id"`
	TenantID     int64        `db:"tenant_id" json:"tenantId"`
	ProductID    int64        `db:"product_id" json:"productId"`
	Kind         MovementKind `db:"kind" json:"kind"`
	Quantity     float64      `db:"quantity" json:"quantity"`
	BalanceAfter float64      `db:"balance_after" json:"balanceAfter"`
	Reference    string       `db:"reference" json:"reference"`
	Note         string       `db:"note" json:"note"`
	UserID       *int64       `db:"user_id" json:"userId,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"createdAt"`
}

// LowStockItem is a product whose available quantity is at or under its reorder point.
type LowStockItem struct {
	Product
	OnOrder   float64 `db:"on_order" json:"onOrder"`
	Available float64 `json:"available"`
}

type ValuationRow struct {
	Category  ProductCategory `db:"category" json:"category"`
	Products  int             `db:"products" json:"products"`
	Units     float64         `db:"units" json:"units"`
	CostValue float64         `db:"cost_value" json:"costValue"`
	SaleValue float64         `db:"sale_value" json:"saleValue"`
}
