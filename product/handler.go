package product

import (
	"context"
	"net/http"

	"github.com/jmoiron/sqlx"

	"optica/barcode"
	"optica/database"
	"optica/model"
	"optica/tenant"
	"optica/web"
)

func checkSupplier(ctx context.Context, db database.DBTX, tenantID int64, in model.ProductInput) error {
	if in.SupplierID == nil {
		return nil
	}
	if _, err := database.GetSupplier(ctx, db, model.TenantScope(tenantID), *in.SupplierID); err != nil {
		if model.IsClientError(err) {
			return &model.ValidationError{Fields: map[string]string{"supplierId": "unknown supplier"}}
		}
		return err
	}
	return nil
}

// Create validates in and inserts it for tenantID.
func Create(ctx context.Context, db *sqlx.DB, tenantID int64, in model.ProductInput) (*model.Product, error) {
	if err := Validate(&in); err != nil {
		return nil, err
	}
	var p *model.Product
	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if err := checkSupplier(ctx, tx, tenantID, in); err != nil {
			return err
		}
		var err error
		p, err = database.CreateProductInTx(ctx, tx, tenantID, in)
		return err
	})
	return p, err
}

// Update rewrites the catalog fields of a product. A product holding stock
// cannot become a service.
func Update(ctx context.Context, db *sqlx.DB, tenantID, id int64, in model.ProductInput) (*model.Product, error) {
	if err := Validate(&in); err != nil {
		return nil, err
	}
	scope := model.TenantScope(tenantID)
	var p *model.Product
	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		current, err := database.GetProduct(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if !in.Category.Stocked() && current.StockQuantity != 0 {
			return model.Conflictf("product %s still holds %.2f in stock", current.SKU, current.StockQuantity)
		}
		if err := checkSupplier(ctx, tx, tenantID, in); err != nil {
			return err
		}
		p, err = database.UpdateProduct(ctx, tx, scope, id, in)
		return err
	})
	return p, err
}

func ListProductsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		supplierID, err := web.QueryInt64(r, "supplier")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		limit, err := web.QueryInt(r, "limit", 0)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		offset, err := web.QueryInt(r, "offset", 0)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		f := model.ProductFilter{
			Query:      r.URL.Query().Get("q"),
			Category:   model.ProductCategory(r.URL.Query().Get("category")),
			SupplierID: supplierID,
			LowStock:   web.QueryBool(r, "low_stock"),
			ActiveOnly: web.QueryBool(r, "active"),
			Limit:      limit,
			Offset:     offset,
		}
		if f.Category != "" && !f.Category.Valid() {
			web.Error(w, r, web.BadRequestf("unknown category %q", f.Category))
			return
		}
		products, err := database.ListProducts(r.Context(), db, tenant.ScopeFrom(r.Context()), f)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, products)
	}
}

func GetProductHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		p, err := database.GetProduct(r.Context(), db, tenant.ScopeFrom(r.Context()), id)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, p)
	}
}

// ByBarcodeHandler resolves a scanned ?code (retail or GS1) to a product.
func ByBarcodeHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scan, err := barcode.Parse(r.URL.Query().Get("code"))
		if err != nil {
			web.Error(w, r, web.BadRequestf("%v", err))
			return
		}
		p, err := database.GetProductByBarcode(r.Context(), db, tenant.ScopeFrom(r.Context()), scan.Gtin14)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, p)
	}
}

func CreateProductHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		var in model.ProductInput
		if err := web.Decode(r, &in); err != nil {
			web.Error(w, r, err)
			return
		}
		p, err := Create(r.Context(), db, tenantID, in)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusCreated, p)
	}
}

func UpdateProductHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		id, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		var in model.ProductInput
		if err := web.Decode(r, &in); err != nil {
			web.Error(w, r, err)
			return
		}
		p, err := Update(r.Context(), db, tenantID, id, in)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, p)
	}
}

func DeleteProductHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		id, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		err = database.WithTx(r.Context(), db, func(tx *sqlx.Tx) error {
			return database.DeleteProductInTx(r.Context(), tx, model.TenantScope(tenantID), id)
		})
		if err != nil {
			web.Error(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
