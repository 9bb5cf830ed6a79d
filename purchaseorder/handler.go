package purchaseorder

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"optica/database"
	"optica/metrics"
	"optica/model"
	"optica/parsers"
	"optica/settings"
	"optica/tenant"
	"optica/web"
)

func userID(r *http.Request) *int64 {
	if u := tenant.UserFrom(r.Context()); u != nil {
		id := u.ID
		return &id
	}
	return nil
}

// writeTarget resolves the tenant and the order id of a mutating request.
func writeTarget(r *http.Request) (tenantID, id int64, err error) {
	if tenantID, err = tenant.WriteTenant(r.Context()); err != nil {
		return 0, 0, err
	}
	id, err = web.PathID(r, "id")
	return tenantID, id, err
}

func ListOrdersHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		supplierID, err := web.QueryInt64(r, "supplier")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		f := database.OrderFilter{SupplierID: supplierID, Status: model.OrderStatus(r.URL.Query().Get("status"))}
		orders, err := database.ListPurchaseOrders(r.Context(), db, tenant.ScopeFrom(r.Context()), f)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, orders)
	}
}

func GetOrderHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		o, err := database.GetPurchaseOrder(r.Context(), db, tenant.ScopeFrom(r.Context()), id)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, o)
	}
}

func CreateOrderHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		var in model.PurchaseOrderInput
		if err := web.Decode(r, &in); err != nil {
			web.Error(w, r, err)
			return
		}
		day, err := settings.Today(r.Context(), db, model.TenantScope(tenantID), time.Now())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		o, err := Create(r.Context(), db, tenantID, in, day)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusCreated, o)
	}
}

func UpdateOrderHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, id, err := writeTarget(r)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		var in model.PurchaseOrderInput
		if err := web.Decode(r, &in); err != nil {
			web.Error(w, r, err)
			return
		}
		o, err := Update(r.Context(), db, tenantID, id, in)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, o)
	}
}

func SubmitOrderHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, id, err := writeTarget(r)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		o, err := Submit(r.Context(), db, tenantID, id, time.Now())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, o)
	}
}

type receiveRequest struct {
	Lines []model.ReceiptLine `json:"lines"`
}

func ReceiveOrderHandler(db *sqlx.DB, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, id, err := writeTarget(r)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		var req receiveRequest
		if err := web.Decode(r, &req); err != nil {
			web.Error(w, r, err)
			return
		}
		o, err := Receive(r.Context(), db, m, tenantID, id, req.Lines, userID(r))
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, o)
	}
}

func CancelOrderHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, id, err := writeTarget(r)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		o, err := Cancel(r.Context(), db, tenantID, id)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, o)
	}
}

func DeleteOrderHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, id, err := writeTarget(r)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		if err := Delete(r.Context(), db, tenantID, id); err != nil {
			web.Error(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DeliveryHandler reconciles a delivery note against the supplier's open orders.
func DeliveryHandler(db *sqlx.DB, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		var req DeliveryRequest
		if err := web.Decode(r, &req); err != nil {
			web.Error(w, r, err)
			return
		}
		result, err := ReceiveDelivery(r.Context(), db, m, tenantID, req, userID(r))
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, result)
	}
}

// SuggestionsHandler needs a concrete tenant: the reorder coefficient is per clinic.
func SuggestionsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		supplierID, err := web.QueryInt64(r, "supplier")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		list, err := Suggestions(r.Context(), db, tenantID, supplierID)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, list)
	}
}

type fromSuggestionsRequest struct {
	SupplierID int64 `json:"supplierId"`
}

func FromSuggestionsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		var req fromSuggestionsRequest
		if err := web.Decode(r, &req); err != nil {
			web.Error(w, r, err)
			return
		}
		day, err := settings.Today(r.Context(), db, model.TenantScope(tenantID), time.Now())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		o, err := FromSuggestions(r.Context(), db, tenantID, req.SupplierID, day)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusCreated, o)
	}
}

// ExportOrderHandler downloads a submitted order as a CSV sheet for the
// supplier. ?encoding selects the output charset.
func ExportOrderHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		label := r.URL.Query().Get("encoding")
		if _, err := parsers.LookupEncoding(label); err != nil {
			web.Error(w, r, web.BadRequestf("%v", err))
			return
		}
		o, products, err := Sheet(r.Context(), db, tenant.ScopeFrom(r.Context()), id)
		if err != nil {
			web.Error(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, o.Number))
		out, _ := parsers.NewEncodingWriter(w, label)
		if err := parsers.WriteOrderSheet(out, o, products); err != nil {
			zap.S().Warnw("order export interrupted", "order", o.Number, "error", err)
		}
	}
}
