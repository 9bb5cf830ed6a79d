package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"optica/model"
)

const productColumns = `id, tenant_id, sku, barcode, name, category, brand, model, color, size, supplier_id,
	cost_price, sale_price, tax_rate, stock_quantity, reorder_point, reorder_quantity, active, created_at, updated_at`

// CreateProductInTx inserts a product, generating its SKU when none is given.
// Barcode must already be normalised.
func CreateProductInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, in model.ProductInput) (*model.Product, error) {
	sku := strings.TrimSpace(in.SKU)
	var err error
	if sku == "" {
		sku, err = nextFreeCodeInTx(ctx, tx, tenantID, "products", "sku", SeqProduct, "SK", 6)
	} else {
		err = claimCodeInTx(ctx, tx, tenantID, SeqProduct, "SK", sku)
	}
	if err != nil {
		return nil, err
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	ts := now()
	p := model.Product{
		TenantID:        tenantID,
		SKU:             sku,
		Barcode:         in.Barcode,
		Name:            in.Name,
		Category:        in.Category,
		Brand:           in.Brand,
		Model:           in.Model,
		Color:           in.Color,
		Size:            in.Size,
		SupplierID:      in.SupplierID,
		CostPrice:       in.CostPrice,
		SalePrice:       in.SalePrice,
		TaxRate:         in.TaxRate,
		ReorderPoint:    in.ReorderPoint,
		ReorderQuantity: in.ReorderQuantity,
		Active:          active,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	err = tx.GetContext(ctx, &p.ID, tx.Rebind(`
		INSERT INTO products (tenant_id, sku, barcode, name, category, brand, model, color, size, supplier_id,
			cost_price, sale_price, tax_rate, stock_quantity, reorder_point, reorder_quantity, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?) RETURNING id`),
		p.TenantID, p.SKU, p.Barcode, p.Name, p.Category, p.Brand, p.Model, p.Color, p.Size, p.SupplierID,
		p.CostPrice, p.SalePrice, p.TaxRate, p.ReorderPoint, p.ReorderQuantity, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.Conflictf("a product with SKU %s or barcode %s already exists", sku, in.Barcode)
		}
		return nil, fmt.Errorf("CreateProductInTx (SKU: %s) failed: %w", sku, err)
	}
	return &p, nil
}

func GetProduct(ctx context.Context, db DBTX, scope model.Scope, id int64) (*model.Product, error) {
	cond, args := scopeFilter("tenant_id", scope)
	var p model.Product
	err := db.GetContext(ctx, &p, db.Rebind(`SELECT `+productColumns+` FROM products WHERE id = ? AND `+cond),
		append([]interface{}{id}, args...)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// GetProductByBarcode looks up a normalised GTIN-14.
func GetProductByBarcode(ctx context.Context, db DBTX, scope model.Scope, gtin string) (*model.Product, error) {
	cond, args := scopeFilter("tenant_id", scope)
	var p model.Product
	err := db.GetContext(ctx, &p, db.Rebind(`SELECT `+productColumns+` FROM products WHERE barcode = ? AND `+cond+` ORDER BY id LIMIT 1`),
		append([]interface{}{gtin}, args...)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// GetProductBySKU looks up a product by its tenant-unique SKU.
func GetProductBySKU(ctx context.Context, db DBTX, scope model.Scope, sku string) (*model.Product, error) {
	cond, args := scopeFilter("tenant_id", scope)
	var p model.Product
	err := db.GetContext(ctx, &p, db.Rebind(`SELECT `+productColumns+` FROM products WHERE sku = ? AND `+cond+` ORDER BY id LIMIT 1`),
		append([]interface{}{sku}, args...)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func ListProducts(ctx context.Context, db DBTX, scope model.Scope, f model.ProductFilter) ([]model.Product, error) {
	cond, args := scopeFilter("tenant_id", scope)
	mustConditions := []string{cond}

	if f.Query != "" {
		mustConditions = append(mustConditions,
			`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(sku) LIKE ? ESCAPE '\' OR LOWER(brand) LIKE ? ESCAPE '\' OR LOWER(model) LIKE ? ESCAPE '\' OR barcode LIKE ? ESCAPE '\')`)
		p := likePattern(f.Query)
		args = append(args, p, p, p, p, p)
	}
	if f.Category != "" {
		mustConditions = append(mustConditions, "category = ?")
		args = append(args, f.Category)
	}
	if f.SupplierID > 0 {
		mustConditions = append(mustConditions, "supplier_id = ?")
		args = append(args, f.SupplierID)
	}
	if f.ActiveOnly {
		mustConditions = append(mustConditions, "active = ?")
		args = append(args, true)
	}
	if f.LowStock {
		mustConditions = append(mustConditions, lowStockCond)
		args = append(args, lowStockArgs()...)
	}

	q := `SELECT ` + productColumns + ` FROM products p WHERE ` + strings.Join(mustConditions, " AND ") + ` ORDER BY name, id`
	if f.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}
	products := []model.Product{}
	if err := db.SelectContext(ctx, &products, db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// UpdateProduct rewrites the catalog fields. Stock is only changed through movements.
func UpdateProduct(ctx context.Context, db DBTX, scope model.Scope, id int64, in model.ProductInput) (*model.Product, error) {
	existing, err := GetProduct(ctx, db, scope, id)
	if err != nil {
		return nil, err
	}
	sku := strings.TrimSpace(in.SKU)
	if sku == "" {
		sku = existing.SKU
	}
	active := existing.Active
	if in.Active != nil {
		active = *in.Active
	}
	cond, args := scopeFilter("tenant_id", scope)
	res, err := db.ExecContext(ctx, db.Rebind(`
		UPDATE products SET sku = ?, barcode = ?, name = ?, category = ?, brand = ?, model = ?, color = ?, size = ?,
			supplier_id = ?, cost_price = ?, sale_price = ?, tax_rate = ?, reorder_point = ?, reorder_quantity = ?,
			active = ?, updated_at = ?
		WHERE id = ? AND `+cond),
		append([]interface{}{sku, in.Barcode, in.Name, in.Category, in.Brand, in.Model, in.Color, in.Size,
			in.SupplierID, in.CostPrice, in.SalePrice, in.TaxRate, in.ReorderPoint, in.ReorderQuantity,
			active, now(), id}, args...)...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.Conflictf("a product with SKU %s or barcode %s already exists", sku, in.Barcode)
		}
		return nil, fmt.Errorf("UpdateProduct (ID: %d) failed: %w", id, err)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return GetProduct(ctx, db, scope, id)
}

// DeleteProductInTx removes a product that was never ordered or moved.
func DeleteProductInTx(ctx context.Context, tx *sqlx.Tx, scope model.Scope, id int64) error {
	if _, err := GetProduct(ctx, tx, scope, id); err != nil {
		return err
	}
	var refs int
	err := tx.GetContext(ctx, &refs, tx.Rebind(`
		SELECT (SELECT COUNT(*) FROM purchase_order_lines WHERE product_id = ?)
		     + (SELECT COUNT(*) FROM stock_movements WHERE product_id = ?)`), id, id)
	if err != nil {
		return fmt.Errorf("DeleteProductInTx (ID: %d) reference check failed: %w", id, err)
	}
	if refs > 0 {
		return model.Conflictf("product is referenced by orders or stock movements; deactivate it instead")
	}
	return deleteScoped(ctx, tx, "products", "product", scope, id)
}
