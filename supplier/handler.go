package supplier

import (
	"net/http"

	"github.com/jmoiron/sqlx"

	"optica/database"
	"optica/model"
	"optica/tenant"
	"optica/web"
)

func ListSuppliersHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := database.ListSuppliers(r.Context(), db, tenant.ScopeFrom(r.Context()), r.URL.Query().Get("q"))
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, list)
	}
}

func GetSupplierHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		s, err := database.GetSupplier(r.Context(), db, tenant.ScopeFrom(r.Context()), id)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, s)
	}
}

func CreateSupplierHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		var in model.Supplier
		if err := web.Decode(r, &in); err != nil {
			web.Error(w, r, err)
			return
		}
		if err := Validate(&in); err != nil {
			web.Error(w, r, err)
			return
		}
		var created *model.Supplier
		err = database.WithTx(r.Context(), db, func(tx *sqlx.Tx) error {
			created, err = database.CreateSupplierInTx(r.Context(), tx, tenantID, in)
			return err
		})
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusCreated, created)
	}
}

func UpdateSupplierHandler(db *sqlx.DB) http.HandlerFunc {
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
		var in model.Supplier
		if err := web.Decode(r, &in); err != nil {
			web.Error(w, r, err)
			return
		}
		if err := Validate(&in); err != nil {
			web.Error(w, r, err)
			return
		}
		in.ID = id
		updated, err := database.UpdateSupplier(r.Context(), db, model.TenantScope(tenantID), in)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, updated)
	}
}

// DeleteSupplierHandler refuses with 409 while products or orders reference the supplier.
func DeleteSupplierHandler(db *sqlx.DB) http.HandlerFunc {
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
			return database.DeleteSupplierInTx(r.Context(), tx, model.TenantScope(tenantID), id)
		})
		if err != nil {
			web.Error(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
