// Package purchaseorder runs the purchase order lifecycle: drafting, submitting,
// receiving goods and reconciling supplier deliveries against open orders.
package purchaseorder

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"optica/database"
	"optica/metrics"
	"optica/model"
)

// checkDraft validates in against the tenant's suppliers and products.
// Missing unit costs default to the product cost price.
func checkDraft(ctx context.Context, tx *sqlx.Tx, tenantID int64, in *model.PurchaseOrderInput) error {
	in.Notes = strings.TrimSpace(in.Notes)
	scope := model.TenantScope(tenantID)
	v := &model.ValidationError{}

	if in.SupplierID <= 0 {
		v.Add("supplierId", "required")
	} else if _, err := database.GetSupplier(ctx, tx, scope, in.SupplierID); err != nil {
		if !model.IsClientError(err) {
			return err
		}
		v.Add("supplierId", "unknown supplier")
	}

	seen := make(map[int64]bool, len(in.Lines))
	for i := range in.Lines {
		l := &in.Lines[i]
		field := fmt.Sprintf("lines[%d]", i)
		if l.Quantity <= 0 {
			v.Add(field+".quantity", "must be positive")
		}
		if l.UnitCost < 0 {
			v.Add(field+".unitCost", "cannot be negative")
		}
		if seen[l.ProductID] {
			v.Add(field+".productId", "product appears twice")
			continue
		}
		seen[l.ProductID] = true
		p, err := database.GetProduct(ctx, tx, scope, l.ProductID)
		if err != nil {
			if !model.IsClientError(err) {
				return err
			}
			v.Add(field+".productId", "unknown product")
			continue
		}
		if !p.Category.Stocked() {
			v.Add(field+".productId", "services cannot be ordered")
			continue
		}
		if l.UnitCost == 0 {
			l.UnitCost = p.CostPrice
		}
	}
	return v.Err()
}

// Create stores a draft order numbered for day.
func Create(ctx context.Context, db *sqlx.DB, tenantID int64, in model.PurchaseOrderInput, day time.Time) (*model.PurchaseOrder, error) {
	var o *model.PurchaseOrder
	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if err := checkDraft(ctx, tx, tenantID, &in); err != nil {
			return err
		}
		id, err := database.CreatePurchaseOrderInTx(ctx, tx, tenantID, in, day)
		if err != nil {
			return err
		}
		o, err = database.GetPurchaseOrder(ctx, tx, model.TenantScope(tenantID), id)
		return err
	})
	return o, err
}

// getInState loads an order and fails with ErrInvalidTransition unless its
// status is one of allowed.
func getInState(ctx context.Context, tx *sqlx.Tx, tenantID, id int64, action string, allowed ...model.OrderStatus) (*model.PurchaseOrder, error) {
	o, err := database.GetPurchaseOrder(ctx, tx, model.TenantScope(tenantID), id)
	if err != nil {
		return nil, err
	}
	for _, s := range allowed {
		if o.Status == s {
			return o, nil
		}
	}
	return nil, fmt.Errorf("%w: cannot %s a %s order", model.ErrInvalidTransition, action, o.Status)
}

// Update rewrites a draft.
func Update(ctx context.Context, db *sqlx.DB, tenantID, id int64, in model.PurchaseOrderInput) (*model.PurchaseOrder, error) {
	var o *model.PurchaseOrder
	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := getInState(ctx, tx, tenantID, id, "edit", model.OrderDraft); err != nil {
			return err
		}
		if err := checkDraft(ctx, tx, tenantID, &in); err != nil {
			return err
		}
		if err := database.ReplaceDraftInTx(ctx, tx, tenantID, id, in); err != nil {
			return err
		}
		var err error
		o, err = database.GetPurchaseOrder(ctx, tx, model.TenantScope(tenantID), id)
		return err
	})
	return o, err
}

// Submit sends a draft to the supplier. The expected date adds the supplier
// lead time to now.
func Submit(ctx context.Context, db *sqlx.DB, tenantID, id int64, now time.Time) (*model.PurchaseOrder, error) {
	var o *model.PurchaseOrder
	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		draft, err := getInState(ctx, tx, tenantID, id, "submit", model.OrderDraft)
		if err != nil {
			return err
		}
		if len(draft.Lines) == 0 {
			return &model.ValidationError{Fields: map[string]string{"lines": "an order needs at least one line"}}
		}
		s, err := database.GetSupplier(ctx, tx, model.TenantScope(tenantID), draft.SupplierID)
		if err != nil {
			return err
		}
		expected := now.AddDate(0, 0, s.LeadTimeDays)
		if err := database.SubmitOrderInTx(ctx, tx, tenantID, id, now, expected); err != nil {
			return err
		}
		o, err = database.GetPurchaseOrder(ctx, tx, model.TenantScope(tenantID), id)
		return err
	})
	return o, err
}

// Receive books goods against the lines of an open order. Every receipt is a
// receive movement referencing the order number.
func Receive(ctx context.Context, db *sqlx.DB, m *metrics.Metrics, tenantID, id int64, receipts []model.ReceiptLine, userID *int64) (*model.PurchaseOrder, error) {
	if len(receipts) == 0 {
		return nil, &model.ValidationError{Fields: map[string]string{"lines": "nothing to receive"}}
	}
	var o *model.PurchaseOrder
	moved := 0
	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		current, err := getInState(ctx, tx, tenantID, id, "receive", model.OrderOrdered, model.OrderPartiallyReceived)
		if err != nil {
			return err
		}
		lines := make(map[int64]model.OrderLine, len(current.Lines))
		for _, l := range current.Lines {
			lines[l.ID] = l
		}

		v := &model.ValidationError{}
		for i, rc := range receipts {
			field := fmt.Sprintf("lines[%d]", i)
			if _, ok := lines[rc.LineID]; !ok {
				v.Add(field+".lineId", "not a line of this order")
			}
			if rc.Quantity <= 0 {
				v.Add(field+".quantity", "must be positive")
			}
		}
		if err := v.Err(); err != nil {
			return err
		}

		for _, rc := range receipts {
			if err := database.AddReceivedInTx(ctx, tx, rc.LineID, rc.Quantity); err != nil {
				return err
			}
			_, err := database.MoveInTx(ctx, tx, tenantID, database.MoveParams{
				ProductID: lines[rc.LineID].ProductID,
				Kind:      model.MovementReceive,
				Quantity:  rc.Quantity,
				Reference: current.Number,
				UserID:    userID,
			})
			if err != nil {
				return err
			}
			moved++
		}
		if _, err := database.RefreshOrderStatusInTx(ctx, tx, tenantID, id); err != nil {
			return err
		}
		o, err = database.GetPurchaseOrder(ctx, tx, model.TenantScope(tenantID), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := 0; i < moved; i++ {
		m.StockMoved(string(model.MovementReceive))
	}
	if o.Status == model.OrderReceived {
		m.OrderReceived()
		zap.S().Infow("purchase order received", "tenant", tenantID, "order", o.Number)
	}
	return o, nil
}

// DeliveryRequest is a supplier delivery note.
type DeliveryRequest struct {
	SupplierID int64                `json:"supplierId"`
	Reference  string               `json:"reference"`
	Items      []model.DeliveryItem `json:"items"`
}

// ReceiveDelivery matches a delivery against the supplier's open orders, oldest
// first, and receives every delivered quantity into stock, matched or not.
func ReceiveDelivery(ctx context.Context, db *sqlx.DB, m *metrics.Metrics, tenantID int64, req DeliveryRequest, userID *int64) (*model.DeliveryResult, error) {
	v := &model.ValidationError{}
	if req.SupplierID <= 0 {
		v.Add("supplierId", "required")
	}
	if len(req.Items) == 0 {
		v.Add("items", "nothing delivered")
	}
	seen := make(map[int64]bool, len(req.Items))
	for i, it := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if it.Quantity <= 0 {
			v.Add(field+".quantity", "must be positive")
		}
		if seen[it.ProductID] {
			v.Add(field+".productId", "product appears twice")
		}
		seen[it.ProductID] = true
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	scope := model.TenantScope(tenantID)
	var result *model.DeliveryResult
	var completed []string
	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := database.GetSupplier(ctx, tx, scope, req.SupplierID); err != nil {
			if model.IsClientError(err) {
				return &model.ValidationError{Fields: map[string]string{"supplierId": "unknown supplier"}}
			}
			return err
		}
		var err error
		result, err = database.ReconcileDeliveryInTx(ctx, tx, tenantID, req.SupplierID, req.Items)
		if err != nil {
			return err
		}

		numbers := map[int64][]string{}
		touched := map[int64]string{}
		for _, a := range result.Applied {
			numbers[a.ProductID] = append(numbers[a.ProductID], a.Number)
			touched[a.OrderID] = a.Number
		}
		for _, it := range req.Items {
			ref := strings.Join(numbers[it.ProductID], ",")
			if ref == "" {
				ref = strings.TrimSpace(req.Reference)
			}
			_, err := database.MoveInTx(ctx, tx, tenantID, database.MoveParams{
				ProductID: it.ProductID,
				Kind:      model.MovementReceive,
				Quantity:  it.Quantity,
				Reference: ref,
				Note:      "delivery " + strings.TrimSpace(req.Reference),
				UserID:    userID,
			})
			if err != nil {
				return err
			}
		}
		for orderID, number := range touched {
			o, err := database.GetPurchaseOrder(ctx, tx, scope, orderID)
			if err != nil {
				return err
			}
			if o.Status == model.OrderReceived {
				completed = append(completed, number)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for range req.Items {
		m.StockMoved(string(model.MovementReceive))
	}
	for range completed {
		m.OrderReceived()
	}
	zap.S().Infow("delivery reconciled",
		"tenant", tenantID, "supplier", req.SupplierID,
		"applied", len(result.Applied), "unmatched", len(result.Unmatched), "completed", completed)
	return result, nil
}

// Cancel withdraws a draft or an order nothing has been received for.
func Cancel(ctx context.Context, db *sqlx.DB, tenantID, id int64) (*model.PurchaseOrder, error) {
	var o *model.PurchaseOrder
	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := getInState(ctx, tx, tenantID, id, "cancel", model.OrderDraft, model.OrderOrdered); err != nil {
			return err
		}
		if err := database.SetOrderStatus(ctx, tx, tenantID, id, model.OrderCancelled); err != nil {
			return err
		}
		var err error
		o, err = database.GetPurchaseOrder(ctx, tx, model.TenantScope(tenantID), id)
		return err
	})
	return o, err
}

// Delete removes a draft.
func Delete(ctx context.Context, db *sqlx.DB, tenantID, id int64) error {
	return database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := getInState(ctx, tx, tenantID, id, "delete", model.OrderDraft); err != nil {
			return err
		}
		return database.DeletePurchaseOrder(ctx, tx, tenantID, id)
	})
}

// SuggestQuantity is the reorder quantity for a product with available units
// (stock plus on order): enough to reach the reorder point scaled by
// coefficient, and never less than the product's reorder quantity.
func SuggestQuantity(p model.Product, available, coefficient float64) float64 {
	target := math.Ceil(p.ReorderPoint * coefficient)
	return math.Max(p.ReorderQuantity, target-available)
}

// Suggestions lists the low-stock products of a tenant, optionally for one supplier.
func Suggestions(ctx context.Context, db database.DBTX, tenantID, supplierID int64) ([]model.ReorderSuggestion, error) {
	s, err := database.GetClinicSettings(ctx, db, tenantID)
	if err != nil {
		return nil, err
	}
	low, err := database.ListLowStock(ctx, db, model.TenantScope(tenantID), supplierID)
	if err != nil {
		return nil, err
	}
	out := make([]model.ReorderSuggestion, 0, len(low))
	for _, item := range low {
		qty := SuggestQuantity(item.Product, item.Available, s.ReorderCoefficient)
		if qty <= 0 {
			continue
		}
		out = append(out, model.ReorderSuggestion{
			ProductID:    item.ID,
			ProductName:  item.Name,
			SKU:          item.SKU,
			SupplierID:   item.SupplierID,
			Stock:        item.StockQuantity,
			OnOrder:      item.OnOrder,
			ReorderPoint: item.ReorderPoint,
			Quantity:     qty,
			UnitCost:     item.CostPrice,
		})
	}
	return out, nil
}

// FromSuggestions drafts an order for supplierID holding every current
// suggestion of that supplier.
func FromSuggestions(ctx context.Context, db *sqlx.DB, tenantID, supplierID int64, day time.Time) (*model.PurchaseOrder, error) {
	if supplierID <= 0 {
		return nil, &model.ValidationError{Fields: map[string]string{"supplierId": "required"}}
	}
	suggestions, err := Suggestions(ctx, db, tenantID, supplierID)
	if err != nil {
		return nil, err
	}
	if len(suggestions) == 0 {
		return nil, model.Conflictf("nothing to reorder from supplier %d", supplierID)
	}
	in := model.PurchaseOrderInput{SupplierID: supplierID, Notes: "created from reorder suggestions"}
	for _, s := range suggestions {
		in.Lines = append(in.Lines, model.OrderLineInput{ProductID: s.ProductID, Quantity: s.Quantity, UnitCost: s.UnitCost})
	}
	return Create(ctx, db, tenantID, in, day)
}

// Sheet returns an order with the products of its lines, ready for
// parsers.WriteOrderSheet. Drafts are refused.
func Sheet(ctx context.Context, db database.DBTX, scope model.Scope, id int64) (*model.PurchaseOrder, map[int64]model.Product, error) {
	o, err := database.GetPurchaseOrder(ctx, db, scope, id)
	if err != nil {
		return nil, nil, err
	}
	if o.Status == model.OrderDraft {
		return nil, nil, fmt.Errorf("%w: submit order %s before exporting it", model.ErrInvalidTransition, o.Number)
	}
	products := make(map[int64]model.Product, len(o.Lines))
	for _, l := range o.Lines {
		if _, ok := products[l.ProductID]; ok {
			continue
		}
		p, err := database.GetProduct(ctx, db, model.TenantScope(o.TenantID), l.ProductID)
		if err != nil {
			return nil, nil, err
		}
		products[p.ID] = *p
	}
	return o, products, nil
}
