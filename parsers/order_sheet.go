package parsers

import (
	"encoding/csv"
	"io"
	"strconv"

	"optica/model"
)

// OrderSheetColumns is the header of the sheet sent to suppliers.
var OrderSheetColumns = []string{"order_number", "supplier", "sku", "barcode", "product", "quantity", "unit_cost", "line_total"}

func formatAmount(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// WriteOrderSheet writes one row per order line. products supplies SKU and
// barcode; a line whose product is missing keeps only its name.
func WriteOrderSheet(w io.Writer, o *model.PurchaseOrder, products map[int64]model.Product) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(OrderSheetColumns); err != nil {
		return err
	}
	for _, l := range o.Lines {
		p := products[l.ProductID]
		row := []string{
			o.Number,
			o.SupplierName,
			p.SKU,
			p.Barcode,
			l.ProductName,
			formatAmount(l.Quantity),
			formatAmount(l.UnitCost),
			formatAmount(l.Quantity * l.UnitCost),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
