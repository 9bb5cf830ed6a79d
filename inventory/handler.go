package inventory

import (
	"net/http"

	"github.com/jmoiron/sqlx"

	"optica/database"
	"optica/metrics"
	"optica/tenant"
	"optica/web"
)

const defaultMovementLimit = 100

func userID(r *http.Request) *int64 {
	if u := tenant.UserFrom(r.Context()); u != nil {
		id := u.ID
		return &id
	}
	return nil
}

// ListMovementsHandler returns the newest movements of one product.
func ListMovementsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		limit, err := web.QueryInt(r, "limit", defaultMovementLimit)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		scope := tenant.ScopeFrom(r.Context())
		if _, err := database.GetProduct(r.Context(), db, scope, id); err != nil {
			web.Error(w, r, err)
			return
		}
		movements, err := database.ListMovements(r.Context(), db, scope, id, limit)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, movements)
	}
}

func CreateMovementHandler(db *sqlx.DB, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		var req MovementRequest
		if err := web.Decode(r, &req); err != nil {
			web.Error(w, r, err)
			return
		}
		mv, err := Record(r.Context(), db, m, tenantID, req, userID(r))
		if err != nil {
			web.Error(w, r, err)
			return
		}
		if mv == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		web.JSON(w, http.StatusCreated, mv)
	}
}

func CountHandler(db *sqlx.DB, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		var req CountRequest
		if err := web.Decode(r, &req); err != nil {
			web.Error(w, r, err)
			return
		}
		movements, err := Count(r.Context(), db, m, tenantID, req, userID(r))
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, movements)
	}
}

const maxCountSheetSize = 5 << 20

// CountImportHandler applies an uploaded stocktake sheet (multipart field
// "file", optional "encoding" and "note").
func CountImportHandler(db *sqlx.DB, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxCountSheetSize)
		file, _, err := r.FormFile("file")
		if err != nil {
			web.Error(w, r, web.BadRequestf("failed to read uploaded file: %v", err))
			return
		}
		defer file.Close()

		result, err := CountCSV(r.Context(), db, m, tenantID, file, r.FormValue("encoding"), r.FormValue("note"), userID(r))
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, result)
	}
}

func LowStockHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		supplierID, err := web.QueryInt64(r, "supplier")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		items, err := database.ListLowStock(r.Context(), db, tenant.ScopeFrom(r.Context()), supplierID)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, items)
	}
}

func ValuationHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := Valuation(r.Context(), db, tenant.ScopeFrom(r.Context()))
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, report)
	}
}
