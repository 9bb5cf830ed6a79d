// Package inventory records stock movements and reports on stock levels.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"optica/barcode"
	"optica/database"
	"optica/metrics"
	"optica/model"
	"optica/parsers"
)

// MovementRequest is a manual stock movement. For adjust, Quantity is the
// counted stock level; for every other kind it is the moved amount.
type MovementRequest struct {
	ProductID int64              `json:"productId"`
	Kind      model.MovementKind `json:"kind"`
	Quantity  float64            `json:"quantity"`
	Reference string             `json:"reference"`
	Note      string             `json:"note"`
}

func (req *MovementRequest) Validate() error {
	req.Reference = strings.TrimSpace(req.Reference)
	req.Note = strings.TrimSpace(req.Note)
	v := &model.ValidationError{}
	if req.ProductID <= 0 {
		v.Add("productId", "required")
	}
	if !req.Kind.Valid() {
		v.Add("kind", "must be receive, sale, adjust, return or correction")
	}
	switch {
	case math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0):
		v.Add("quantity", "must be a number")
	case req.Kind == model.MovementAdjust:
		if req.Quantity < 0 {
			v.Add("quantity", "a counted quantity cannot be negative")
		}
	case req.Kind == model.MovementCorrection:
		if req.Quantity == 0 {
			v.Add("quantity", "must not be zero")
		}
	case req.Quantity <= 0:
		v.Add("quantity", "must be positive")
	}
	return v.Err()
}

// Record applies one manual movement. An adjust that matches the book
// quantity records nothing and returns nil.
func Record(ctx context.Context, db *sqlx.DB, m *metrics.Metrics, tenantID int64, req MovementRequest, userID *int64) (*model.StockMovement, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var mv *model.StockMovement
	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		var err error
		if req.Kind == model.MovementAdjust {
			mv, err = database.CountInTx(ctx, tx, tenantID, req.ProductID, req.Quantity, req.Note, userID)
			return err
		}
		mv, err = database.MoveInTx(ctx, tx, tenantID, database.MoveParams{
			ProductID: req.ProductID,
			Kind:      req.Kind,
			Quantity:  req.Quantity,
			Reference: req.Reference,
			Note:      req.Note,
			UserID:    userID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if mv != nil {
		m.StockMoved(string(mv.Kind))
	}
	return mv, nil
}

type CountItem struct {
	ProductID int64   `json:"productId"`
	Counted   float64 `json:"counted"`
}

type CountRequest struct {
	Items []CountItem `json:"items"`
	Note  string      `json:"note"`
}

// Count applies a stocktake in one transaction. Only products whose count
// differs from the book get a movement.
func Count(ctx context.Context, db *sqlx.DB, m *metrics.Metrics, tenantID int64, req CountRequest, userID *int64) ([]model.StockMovement, error) {
	v := &model.ValidationError{}
	if len(req.Items) == 0 {
		v.Add("items", "at least one item is required")
	}
	seen := map[int64]bool{}
	for _, it := range req.Items {
		if it.ProductID <= 0 {
			v.Add("items", "every item needs a productId")
		} else if seen[it.ProductID] {
			v.Add("items", "a product may be counted once per request")
		}
		seen[it.ProductID] = true
		if it.Counted < 0 || math.IsNaN(it.Counted) {
			v.Add("items", "counted quantities cannot be negative")
		}
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	movements := []model.StockMovement{}
	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		for _, it := range req.Items {
			mv, err := database.CountInTx(ctx, tx, tenantID, it.ProductID, it.Counted, strings.TrimSpace(req.Note), userID)
			if err != nil {
				return err
			}
			if mv != nil {
				movements = append(movements, *mv)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for range movements {
		m.StockMoved(string(model.MovementAdjust))
	}
	zap.S().Infow("stock counted", "tenant", tenantID, "items", len(req.Items), "adjusted", len(movements))
	return movements, nil
}

// CountImportResult is the outcome of a stocktake sheet.
type CountImportResult struct {
	Movements []model.StockMovement `json:"movements"`
	Counted   int                   `json:"counted"`
	Errors    []parsers.RowError    `json:"errors"`
}

// CountCSV applies a stocktake sheet. Rows are matched by barcode, else by
// SKU. Unknown products and repeated rows are reported and left out; the
// remaining rows are applied as one Count.
func CountCSV(ctx context.Context, db *sqlx.DB, m *metrics.Metrics, tenantID int64, r io.Reader, encoding, note string, userID *int64) (*CountImportResult, error) {
	decoded, err := parsers.NewDecodingReader(r, encoding)
	if err != nil {
		return nil, &model.ValidationError{Fields: map[string]string{"encoding": err.Error()}}
	}
	records, rowErrors, err := parsers.ParseStockCountCSV(decoded)
	if err != nil {
		return nil, &model.ValidationError{Fields: map[string]string{"file": err.Error()}}
	}

	result := &CountImportResult{Errors: append([]parsers.RowError{}, rowErrors...)}
	scope := model.TenantScope(tenantID)
	req := CountRequest{Note: note}
	seen := map[int64]int{}
	for _, rec := range records {
		p, err := lookupCounted(ctx, db, scope, rec)
		if err != nil {
			if !model.IsClientError(err) {
				return nil, err
			}
			result.Errors = append(result.Errors, parsers.RowError{Line: rec.Line, Message: err.Error()})
			continue
		}
		if first, ok := seen[p.ID]; ok {
			result.Errors = append(result.Errors, parsers.RowError{Line: rec.Line, Message: fmt.Sprintf("%s already counted on line %d", p.SKU, first)})
			continue
		}
		seen[p.ID] = rec.Line
		req.Items = append(req.Items, CountItem{ProductID: p.ID, Counted: rec.Counted})
	}
	if len(req.Items) == 0 {
		return nil, &model.ValidationError{Fields: map[string]string{"file": "no countable rows"}}
	}

	movements, err := Count(ctx, db, m, tenantID, req, userID)
	if err != nil {
		return nil, err
	}
	result.Movements = movements
	result.Counted = len(req.Items)
	return result, nil
}

func lookupCounted(ctx context.Context, db database.DBTX, scope model.Scope, rec parsers.ParsedStockCountRecord) (*model.Product, error) {
	if rec.Barcode != "" {
		gtin, err := barcode.Normalize(rec.Barcode)
		if err != nil {
			return nil, &model.ValidationError{Fields: map[string]string{"barcode": err.Error()}}
		}
		p, err := database.GetProductByBarcode(ctx, db, scope, gtin)
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("barcode %s: %w", rec.Barcode, err)
		}
		return p, err
	}
	p, err := database.GetProductBySKU(ctx, db, scope, rec.SKU)
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("sku %s: %w", rec.SKU, err)
	}
	return p, err
}

// ValuationReport totals stock value by category.
type ValuationReport struct {
	Rows      []model.ValuationRow `json:"rows"`
	CostTotal float64              `json:"costTotal"`
	SaleTotal float64              `json:"saleTotal"`
}

func Valuation(ctx context.Context, db database.DBTX, scope model.Scope) (*ValuationReport, error) {
	rows, err := database.GetStockValuation(ctx, db, scope)
	if err != nil {
		return nil, err
	}
	report := &ValuationReport{Rows: rows}
	for _, r := range rows {
		report.CostTotal += r.CostValue
		report.SaleTotal += r.SaleValue
	}
	return report, nil
}
