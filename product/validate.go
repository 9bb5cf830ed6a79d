// Package product serves the inventory catalog.
package product

import (
	"math"
	"strings"

	"optica/barcode"
	"optica/model"
)

func nonNegative(v *model.ValidationError, field string, f float64) {
	if math.IsNaN(f) || f < 0 {
		v.Add(field, "must not be negative")
	}
}

// Validate normalises in. The barcode is rewritten to its GTIN-14.
func Validate(in *model.ProductInput) error {
	in.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
	in.Name = strings.TrimSpace(in.Name)
	in.Brand = strings.TrimSpace(in.Brand)
	in.Model = strings.TrimSpace(in.Model)
	in.Color = strings.TrimSpace(in.Color)
	in.Size = strings.TrimSpace(in.Size)

	v := &model.ValidationError{}
	if in.Name == "" {
		v.Add("name", "required")
	}
	if !in.Category.Valid() {
		v.Add("category", "must be frame, lens, contact_lens, solution, accessory or service")
	}
	gtin, err := barcode.Normalize(in.Barcode)
	if err != nil {
		v.Add("barcode", err.Error())
	}
	in.Barcode = gtin

	nonNegative(v, "costPrice", in.CostPrice)
	nonNegative(v, "salePrice", in.SalePrice)
	nonNegative(v, "reorderPoint", in.ReorderPoint)
	nonNegative(v, "reorderQuantity", in.ReorderQuantity)
	if math.IsNaN(in.TaxRate) || in.TaxRate < 0 || in.TaxRate > 100 {
		v.Add("taxRate", "must be a percentage between 0 and 100")
	}
	if in.SupplierID != nil && *in.SupplierID <= 0 {
		in.SupplierID = nil
	}
	if in.Category == model.CategoryService {
		in.ReorderPoint = 0
		in.ReorderQuantity = 0
	}
	return v.Err()
}
