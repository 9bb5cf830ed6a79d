package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"optica/model"
)

const orderSelect = `
	SELECT o.id, o.tenant_id, o.number, o.supplier_id, s.name AS supplier_name, o.status,
	       o.ordered_at, o.expected_at, o.notes, o.created_at, o.updated_at
	FROM purchase_orders o
	JOIN suppliers s ON s.id = o.supplier_id`

const lineSelect = `
	SELECT l.id, l.order_id, l.product_id, p.name AS product_name, l.quantity, l.received, l.unit_cost
	FROM purchase_order_lines l
	JOIN products p ON p.id = l.product_id`

type OrderFilter struct {
	SupplierID int64
	Status     model.OrderStatus
}

// NextOrderNumberInTx returns PO + YYMMDD + a per-day four digit counter.
func NextOrderNumberInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, day time.Time) (string, error) {
	prefix := "PO" + day.Format("060102")
	return NextSequenceInTx(ctx, tx, tenantID, prefix, prefix, 4)
}

// CreatePurchaseOrderInTx inserts a draft order with its lines.
func CreatePurchaseOrderInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, in model.PurchaseOrderInput, day time.Time) (int64, error) {
	number, err := NextOrderNumberInTx(ctx, tx, tenantID, day)
	if err != nil {
		return 0, err
	}
	ts := now()
	var id int64
	err = tx.GetContext(ctx, &id, tx.Rebind(`
		INSERT INTO purchase_orders (tenant_id, number, supplier_id, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		tenantID, number, in.SupplierID, model.OrderDraft, in.Notes, ts, ts)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, model.Conflictf("purchase order number %s already exists", number)
		}
		return 0, fmt.Errorf("CreatePurchaseOrderInTx (Number: %s) failed: %w", number, err)
	}
	if err := insertOrderLinesInTx(ctx, tx, id, in.Lines); err != nil {
		return 0, err
	}
	return id, nil
}

func insertOrderLinesInTx(ctx context.Context, tx *sqlx.Tx, orderID int64, lines []model.OrderLineInput) error {
	q := tx.Rebind(`INSERT INTO purchase_order_lines (order_id, product_id, quantity, received, unit_cost) VALUES (?, ?, ?, 0, ?)`)
	for _, l := range lines {
		if _, err := tx.ExecContext(ctx, q, orderID, l.ProductID, l.Quantity, l.UnitCost); err != nil {
			if isUniqueViolation(err) {
				return model.Conflictf("product %d appears twice on the order", l.ProductID)
			}
			return fmt.Errorf("failed to insert order line for product %d: %w", l.ProductID, err)
		}
	}
	return nil
}

// ReplaceDraftInTx rewrites notes and lines of a draft order.
func ReplaceDraftInTx(ctx context.Context, tx *sqlx.Tx, tenantID, orderID int64, in model.PurchaseOrderInput) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE purchase_orders SET supplier_id = ?, notes = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND status = ?`),
		in.SupplierID, in.Notes, now(), orderID, tenantID, model.OrderDraft)
	if err != nil {
		return fmt.Errorf("ReplaceDraftInTx (ID: %d) failed: %w", orderID, err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM purchase_order_lines WHERE order_id = ?`), orderID); err != nil {
		return fmt.Errorf("ReplaceDraftInTx (ID: %d) line delete failed: %w", orderID, err)
	}
	return insertOrderLinesInTx(ctx, tx, orderID, in.Lines)
}

func GetPurchaseOrder(ctx context.Context, db DBTX, scope model.Scope, id int64) (*model.PurchaseOrder, error) {
	cond, args := scopeFilter("o.tenant_id", scope)
	var o model.PurchaseOrder
	err := db.GetContext(ctx, &o, db.Rebind(orderSelect+` WHERE o.id = ? AND `+cond), append([]interface{}{id}, args...)...)
	if err != nil {
		return nil, notFound(err)
	}
	orders := []model.PurchaseOrder{o}
	if err := attachLines(ctx, db, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func ListPurchaseOrders(ctx context.Context, db DBTX, scope model.Scope, f OrderFilter) ([]model.PurchaseOrder, error) {
	cond, args := scopeFilter("o.tenant_id", scope)
	mustConditions := []string{cond}
	if f.SupplierID > 0 {
		mustConditions = append(mustConditions, "o.supplier_id = ?")
		args = append(args, f.SupplierID)
	}
	if f.Status != "" {
		mustConditions = append(mustConditions, "o.status = ?")
		args = append(args, f.Status)
	}
	orders := []model.PurchaseOrder{}
	err := db.SelectContext(ctx, &orders, db.Rebind(orderSelect+` WHERE `+strings.Join(mustConditions, " AND ")+
		` ORDER BY o.created_at DESC, o.id DESC`), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchase orders: %w", err)
	}
	if err := attachLines(ctx, db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachLines loads the lines of all orders in one query and computes totals.
func attachLines(ctx context.Context, db DBTX, orders []model.PurchaseOrder) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]interface{}, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
		orders[i].Lines = []model.OrderLine{}
	}
	lines := []model.OrderLine{}
	err := db.SelectContext(ctx, &lines, db.Rebind(lineSelect+` WHERE l.order_id IN `+inClause(len(ids))+` ORDER BY l.id`), ids...)
	if err != nil {
		return fmt.Errorf("failed to load order lines: %w", err)
	}
	for _, l := range lines {
		i := index[l.OrderID]
		orders[i].Lines = append(orders[i].Lines, l)
		orders[i].Total += l.Quantity * l.UnitCost
	}
	return nil
}

// SubmitOrderInTx moves a draft to ordered.
func SubmitOrderInTx(ctx context.Context, tx *sqlx.Tx, tenantID, orderID int64, orderedAt, expectedAt time.Time) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE purchase_orders SET status = ?, ordered_at = ?, expected_at = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND status = ?`),
		model.OrderOrdered, orderedAt.UTC(), expectedAt.UTC(), now(), orderID, tenantID, model.OrderDraft)
	if err != nil {
		return fmt.Errorf("SubmitOrderInTx (ID: %d) failed: %w", orderID, err)
	}
	return expectAffected(res)
}

func SetOrderStatus(ctx context.Context, db DBTX, tenantID, orderID int64, status model.OrderStatus) error {
	res, err := db.ExecContext(ctx, db.Rebind(`UPDATE purchase_orders SET status = ?, updated_at = ? WHERE id = ? AND tenant_id = ?`),
		status, now(), orderID, tenantID)
	if err != nil {
		return fmt.Errorf("SetOrderStatus (ID: %d) failed: %w", orderID, err)
	}
	return expectAffected(res)
}

// AddReceivedInTx raises the received quantity of a line, never beyond the ordered quantity.
func AddReceivedInTx(ctx context.Context, tx *sqlx.Tx, lineID int64, qty float64) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE purchase_order_lines SET received = received + ?
		WHERE id = ? AND received + ? <= quantity`), qty, lineID, qty)
	if err != nil {
		return fmt.Errorf("AddReceivedInTx (Line: %d) failed: %w", lineID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return model.Conflictf("line %d cannot receive %g more than ordered", lineID, qty)
	}
	return nil
}

// RefreshOrderStatusInTx derives received / partially_received from the lines.
func RefreshOrderStatusInTx(ctx context.Context, tx *sqlx.Tx, tenantID, orderID int64) (model.OrderStatus, error) {
	var agg struct {
		Outstanding int     `db:"outstanding"`
		Received    float64 `db:"received"`
	}
	err := tx.GetContext(ctx, &agg, tx.Rebind(`
		SELECT COALESCE(SUM(CASE WHEN received < quantity THEN 1 ELSE 0 END), 0) AS outstanding,
		       COALESCE(SUM(received), 0) AS received
		FROM purchase_order_lines WHERE order_id = ?`), orderID)
	if err != nil {
		return "", fmt.Errorf("RefreshOrderStatusInTx (ID: %d) failed: %w", orderID, err)
	}
	status := model.OrderOrdered
	switch {
	case agg.Outstanding == 0:
		status = model.OrderReceived
	case agg.Received > 0:
		status = model.OrderPartiallyReceived
	}
	return status, SetOrderStatus(ctx, tx, tenantID, orderID, status)
}

func DeletePurchaseOrder(ctx context.Context, db DBTX, tenantID, orderID int64) error {
	res, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM purchase_orders WHERE id = ? AND tenant_id = ? AND status = ?`),
		orderID, tenantID, model.OrderDraft)
	if err != nil {
		return fmt.Errorf("DeletePurchaseOrder (ID: %d) failed: %w", orderID, err)
	}
	return expectAffected(res)
}

// ReconcileDeliveryInTx applies delivered quantities to the open order lines of a
// supplier, oldest order first. Quantities that match no open line are returned
// in Unmatched.
func ReconcileDeliveryInTx(ctx context.Context, tx *sqlx.Tx, tenantID, supplierID int64, items []model.DeliveryItem) (*model.DeliveryResult, error) {
	result := &model.DeliveryResult{Applied: []model.AppliedDelivery{}, Unmatched: []model.DeliveryItem{}}

	for _, item := range items {
		deliveryQty := item.Quantity

		var open []struct {
			LineID      int64   `db:"line_id"`
			OrderID     int64   `db:"order_id"`
			Number      string  `db:"number"`
			Outstanding float64 `db:"outstanding"`
		}
		err := tx.SelectContext(ctx, &open, tx.Rebind(`
			SELECT l.id AS line_id, o.id AS order_id, o.number, l.quantity - l.received AS outstanding
			FROM purchase_order_lines l
			JOIN purchase_orders o ON o.id = l.order_id
			WHERE o.tenant_id = ? AND o.supplier_id = ? AND l.product_id = ?
			  AND o.status IN (?, ?) AND l.received < l.quantity
			ORDER BY o.ordered_at, o.id`),
			tenantID, supplierID, item.ProductID, model.OrderOrdered, model.OrderPartiallyReceived)
		if err != nil {
			return nil, fmt.Errorf("failed to query open lines for product %d: %w", item.ProductID, err)
		}

		// Decide every allocation before writing.
		var actions []model.AppliedDelivery
		for _, l := range open {
			if deliveryQty <= 0 {
				break
			}
			applied := l.Outstanding
			if deliveryQty < applied {
				applied = deliveryQty
			}
			actions = append(actions, model.AppliedDelivery{
				OrderID: l.OrderID, Number: l.Number, LineID: l.LineID, ProductID: item.ProductID, Quantity: applied,
			})
			deliveryQty -= applied
		}

		touched := map[int64]bool{}
		for _, a := range actions {
			if err := AddReceivedInTx(ctx, tx, a.LineID, a.Quantity); err != nil {
				return nil, err
			}
			touched[a.OrderID] = true
		}
		for orderID := range touched {
			if _, err := RefreshOrderStatusInTx(ctx, tx, tenantID, orderID); err != nil {
				return nil, err
			}
		}
		result.Applied = append(result.Applied, actions...)
		if deliveryQty > 0 {
			result.Unmatched = append(result.Unmatched, model.DeliveryItem{ProductID: item.ProductID, Quantity: deliveryQty})
		}
	}
	return result, nil
}

// OnOrderByProduct returns the outstanding open-order quantity per product.
func OnOrderByProduct(ctx context.Context, db DBTX, scope model.Scope) (map[int64]float64, error) {
	cond, args := scopeFilter("o.tenant_id", scope)
	var rows []struct {
		ProductID int64   `db:"product_id"`
		Qty       float64 `db:"qty"`
	}
	err := db.SelectContext(ctx, &rows, db.Rebind(`
		SELECT l.product_id, SUM(l.quantity - l.received) AS qty
		FROM purchase_order_lines l JOIN purchase_orders o ON o.id = l.order_id
		WHERE `+cond+` AND o.status IN (?, ?)
		GROUP BY l.product_id`), append(args, model.OrderOrdered, model.OrderPartiallyReceived)...)
	if err != nil {
		return nil, fmt.Errorf("OnOrderByProduct failed: %w", err)
	}
	m := make(map[int64]float64, len(rows))
	for _, r := range rows {
		m[r.ProductID] = r.Qty
	}
	return m, nil
}

// OpenOrdersSummary counts open orders and values their outstanding quantities at cost.
func OpenOrdersSummary(ctx context.Context, db DBTX, scope model.Scope) (int, float64, error) {
	cond, args := scopeFilter("o.tenant_id", scope)
	var agg struct {
		Orders int     `db:"orders"`
		Value  float64 `db:"value"`
	}
	err := db.GetContext(ctx, &agg, db.Rebind(`
		SELECT COUNT(DISTINCT o.id) AS orders, COALESCE(SUM((l.quantity - l.received) * l.unit_cost), 0) AS value
		FROM purchase_orders o LEFT JOIN purchase_order_lines l ON l.order_id = o.id
		WHERE `+cond+` AND o.status IN (?, ?)`), append(args, model.OrderOrdered, model.OrderPartiallyReceived)...)
	if err != nil {
		return 0, 0, fmt.Errorf("OpenOrdersSummary failed: %w", err)
	}
	return agg.Orders, agg.Value, nil
}
