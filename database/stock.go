package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"optica/model"
)

// MoveParams describes one stock movement. Quantity is signed by Kind.Signed.
type MoveParams struct {
	ProductID int64
	Kind      model.MovementKind
	Quantity  float64
	Reference string
	Note      string
	UserID    *int64
}

// MoveInTx records a movement and applies it to products.stock_quantity.
// Stock may only go negative through a correction.
func MoveInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, p MoveParams) (*model.StockMovement, error) {
	if !p.Kind.Valid() {
		return nil, fmt.Errorf("unknown movement kind %q", p.Kind)
	}
	var category model.ProductCategory
	err := tx.GetContext(ctx, &category, tx.Rebind(`SELECT category FROM products WHERE id = ? AND tenant_id = ?`),
		p.ProductID, tenantID)
	if err != nil {
		return nil, notFound(err)
	}
	if !category.Stocked() {
		return nil, model.Conflictf("product %d is a service and carries no stock", p.ProductID)
	}

	delta := p.Kind.Signed(p.Quantity)
	ts := now()
	var balance float64
	err = tx.GetContext(ctx, &balance, tx.Rebind(`
		UPDATE products SET stock_quantity = stock_quantity + ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
		RETURNING stock_quantity`), delta, ts, p.ProductID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("MoveInTx (Product: %d) stock update failed: %w", p.ProductID, err)
	}
	if balance < 0 && p.Kind != model.MovementCorrection {
		return nil, model.Conflictf("insufficient stock for product %d: balance would be %g", p.ProductID, balance)
	}

	m := model.StockMovement{
		TenantID:     tenantID,
		ProductID:    p.ProductID,
		Kind:         p.Kind,
		Quantity:     delta,
		BalanceAfter: balance,
		Reference:    p.Reference,
		Note:         p.Note,
		UserID:       p.UserID,
		CreatedAt:    ts,
	}
	err = tx.GetContext(ctx, &m.ID, tx.Rebind(`
		INSERT INTO stock_movements (tenant_id, product_id, kind, quantity, balance_after, reference, note, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		m.TenantID, m.ProductID, m.Kind, m.Quantity, m.BalanceAfter, m.Reference, m.Note, m.UserID, m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("MoveInTx (Product: %d) insert failed: %w", p.ProductID, err)
	}
	return &m, nil
}

// CountInTx records a physical count as an adjust movement holding the difference.
// It returns nil when the count matches the book quantity.
func CountInTx(ctx context.Context, tx *sqlx.Tx, tenantID, productID int64, counted float64, note string, userID *int64) (*model.StockMovement, error) {
	var current float64
	err := tx.GetContext(ctx, &current, tx.Rebind(`SELECT stock_quantity FROM products WHERE id = ? AND tenant_id = ?`),
		productID, tenantID)
	if err != nil {
		return nil, notFound(err)
	}
	if counted == current {
		return nil, nil
	}
	return MoveInTx(ctx, tx, tenantID, MoveParams{
		ProductID: productID,
		Kind:      model.MovementAdjust,
		Quantity:  counted - current,
		Reference: "count",
		Note:      note,
		UserID:    userID,
	})
}

func ListMovements(ctx context.Context, db DBTX, scope model.Scope, productID int64, limit int) ([]model.StockMovement, error) {
	cond, args := scopeFilter("tenant_id", scope)
	q := `SELECT id, tenant_id, product_id, kind, quantity, balance_after, reference, note, user_id, created_at
		FROM stock_movements WHERE product_id = ? AND ` + cond + ` ORDER BY id DESC`
	args = append([]interface{}{productID}, args...)
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	movements := []model.StockMovement{}
	if err := db.SelectContext(ctx, &movements, db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("ListMovements (Product: %d) failed: %w", productID, err)
	}
	return movements, nil
}

// onOrderExpr sums the outstanding quantity of open order lines for products p.
const onOrderExpr = `COALESCE((
	SELECT SUM(l.quantity - l.received) FROM purchase_order_lines l
	JOIN purchase_orders o ON o.id = l.order_id
	WHERE l.product_id = p.id AND o.status IN ('ordered', 'partially_received')), 0)`

// lowStockCond is the single low stock predicate for products p: active,
// stocked, under reorder management (a reorder point or a reorder quantity)
// and with stock plus on-order quantity at or below the reorder point.
const lowStockCond = `p.active = ? AND p.category <> ? AND (p.reorder_point > 0 OR p.reorder_quantity > 0)
	AND p.stock_quantity + ` + onOrderExpr + ` <= p.reorder_point`

func lowStockArgs() []interface{} { return []interface{}{true, model.CategoryService} }

// ListLowStock returns the products matching lowStockCond with their
// on-order quantity, most short first.
func ListLowStock(ctx context.Context, db DBTX, scope model.Scope, supplierID int64) ([]model.LowStockItem, error) {
	cond, args := scopeFilter("p.tenant_id", scope)
	mustConditions := []string{cond, lowStockCond}
	args = append(args, lowStockArgs()...)
	if supplierID > 0 {
		mustConditions = append(mustConditions, "p.supplier_id = ?")
		args = append(args, supplierID)
	}

	cols := "p." + strings.Join(strings.Fields(strings.ReplaceAll(productColumns, ",", " ")), ", p.")
	q := `SELECT * FROM (
		SELECT ` + cols + `, ` + onOrderExpr + ` AS on_order
		FROM products p WHERE ` + strings.Join(mustConditions, " AND ") + `
	) x
	ORDER BY (stock_quantity + on_order) - reorder_point, name, id`

	items := []model.LowStockItem{}
	if err := db.SelectContext(ctx, &items, db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("ListLowStock failed: %w", err)
	}
	for i := range items {
		items[i].Available = items[i].StockQuantity + items[i].OnOrder
	}
	return items, nil
}

// GetStockValuation sums stock at cost and sale price per category.
func GetStockValuation(ctx context.Context, db DBTX, scope model.Scope) ([]model.ValuationRow, error) {
	cond, args := scopeFilter("tenant_id", scope)
	rows := []model.ValuationRow{}
	err := db.SelectContext(ctx, &rows, db.Rebind(`
		SELECT category, COUNT(*) AS products,
		       COALESCE(SUM(stock_quantity), 0) AS units,
		       COALESCE(SUM(stock_quantity * cost_price), 0) AS cost_value,
		       COALESCE(SUM(stock_quantity * sale_price), 0) AS sale_value
		FROM products
		WHERE `+cond+` AND category <> ?
		GROUP BY category ORDER BY category`), append(args, model.CategoryService)...)
	if err != nil {
		return nil, fmt.Errorf("GetStockValuation failed: %w", err)
	}
	return rows, nil
}
