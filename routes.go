package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"optica/appointment"
	"optica/attachment"
	"optica/auth"
	"optica/blob"
	"optica/customer"
	"optica/dashboard"
	"optica/inventory"
	"optica/metrics"
	"optica/prescription"
	"optica/product"
	"optica/purchaseorder"
	"optica/render"
	"optica/settings"
	"optica/supplier"
	"optica/tenant"
	"optica/web"
)

// Deps is everything the handlers are built from.
type Deps struct {
	DB      *sqlx.DB
	Metrics *metrics.Metrics
	Blobs   blob.Store
	PDF     render.PDFRenderer
	Session auth.Options
}

// NewRouter returns the API with request logging and metrics around it.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()
	SetupRoutes(mux, d)
	return observe(mux, d.Metrics)
}

func SetupRoutes(mux *http.ServeMux, d Deps) {
	db, m := d.DB, d.Metrics
	protect := auth.Middleware(db, d.Session)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protect(noteScope(h)))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			web.WriteJSONError(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		web.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	mux.HandleFunc("POST /api/auth/login", auth.LoginHandler(db, d.Session))
	handle("POST /api/auth/logout", auth.LogoutHandler(db, d.Session))
	handle("GET /api/auth/me", auth.MeHandler())

	handle("GET /api/users", auth.ListUsersHandler(db))
	handle("POST /api/users", auth.CreateUserHandler(db))
	handle("PUT /api/users/{id}", auth.UpdateUserHandler(db))

	handle("GET /api/tenants", tenant.ListTenantsHandler(db))
	handle("POST /api/tenants", tenant.CreateTenantHandler(db))
	handle("POST /api/tenants/select", tenant.SelectTenantHandler(db))

	handle("GET /api/settings", settings.GetSettingsHandler(db))
	handle("PUT /api/settings", settings.SaveSettingsHandler(db))

	handle("GET /api/customers", customer.ListCustomersHandler(db))
	handle("POST /api/customers", customer.CreateCustomerHandler(db))
	handle("POST /api/customers/import", customer.ImportCustomersHandler(db, m))
	handle("GET /api/customers/export", customer.ExportCustomersHandler(db))
	handle("GET /api/customers/{id}", customer.GetCustomerHandler(db))
	handle("PUT /api/customers/{id}", customer.UpdateCustomerHandler(db))
	handle("DELETE /api/customers/{id}", customer.DeleteCustomerHandler(db))
	handle("GET /api/customers/{id}/history", customer.HistoryHandler(db))
	handle("GET /api/customers/{id}/prescriptions", prescription.ListByCustomerHandler(db))
	handle("GET /api/customers/{id}/attachments", attachment.ListHandler(db))
	handle("POST /api/customers/{id}/attachments", attachment.UploadHandler(db, d.Blobs))

	handle("GET /api/attachments/{id}", attachment.DownloadHandler(db, d.Blobs))
	handle("DELETE /api/attachments/{id}", attachment.DeleteHandler(db, d.Blobs))

	handle("GET /api/appointments", appointment.ListAppointmentsHandler(db))
	handle("POST /api/appointments", appointment.CreateAppointmentHandler(db, m))
	handle("GET /api/appointments/slots", appointment.SlotsHandler(db))
	handle("GET /api/appointments/{id}", appointment.GetAppointmentHandler(db))
	handle("PUT /api/appointments/{id}", appointment.UpdateAppointmentHandler(db))
	handle("POST /api/appointments/{id}/status", appointment.SetStatusHandler(db))
	handle("DELETE /api/appointments/{id}", appointment.DeleteAppointmentHandler(db))

	handle("GET /api/products", product.ListProductsHandler(db))
	handle("POST /api/products", product.CreateProductHandler(db))
	handle("GET /api/products/by_barcode", product.ByBarcodeHandler(db))
	handle("GET /api/products/{id}", product.GetProductHandler(db))
	handle("PUT /api/products/{id}", product.UpdateProductHandler(db))
	handle("DELETE /api/products/{id}", product.DeleteProductHandler(db))
	handle("GET /api/products/{id}/movements", inventory.ListMovementsHandler(db))

	handle("POST /api/inventory/movements", inventory.CreateMovementHandler(db, m))
	handle("POST /api/inventory/count", inventory.CountHandler(db, m))
	handle("POST /api/inventory/count/import", inventory.CountImportHandler(db, m))
	handle("GET /api/inventory/low_stock", inventory.LowStockHandler(db))
	handle("GET /api/inventory/valuation", inventory.ValuationHandler(db))

	handle("POST /api/prescriptions", prescription.CreatePrescriptionHandler(db))
	handle("GET /api/prescriptions/expiring", prescription.ExpiringHandler(db))
	handle("GET /api/prescriptions/{id}", prescription.GetPrescriptionHandler(db))
	handle("PUT /api/prescriptions/{id}", prescription.UpdatePrescriptionHandler(db))
	handle("DELETE /api/prescriptions/{id}", prescription.DeletePrescriptionHandler(db))
	handle("GET /api/prescriptions/{id}/print", prescription.PrintHandler(db, d.PDF))

	handle("GET /api/suppliers", supplier.ListSuppliersHandler(db))
	handle("POST /api/suppliers", supplier.CreateSupplierHandler(db))
	handle("GET /api/suppliers/{id}", supplier.GetSupplierHandler(db))
	handle("PUT /api/suppliers/{id}", supplier.UpdateSupplierHandler(db))
	handle("DELETE /api/suppliers/{id}", supplier.DeleteSupplierHandler(db))

	handle("GET /api/purchase_orders", purchaseorder.ListOrdersHandler(db))
	handle("POST /api/purchase_orders", purchaseorder.CreateOrderHandler(db))
	handle("GET /api/purchase_orders/suggestions", purchaseorder.SuggestionsHandler(db))
	handle("POST /api/purchase_orders/from_suggestions", purchaseorder.FromSuggestionsHandler(db))
	handle("POST /api/purchase_orders/deliveries", purchaseorder.DeliveryHandler(db, m))
	handle("GET /api/purchase_orders/{id}", purchaseorder.GetOrderHandler(db))
	handle("PUT /api/purchase_orders/{id}", purchaseorder.UpdateOrderHandler(db))
	handle("DELETE /api/purchase_orders/{id}", purchaseorder.DeleteOrderHandler(db))
	handle("POST /api/purchase_orders/{id}/submit", purchaseorder.SubmitOrderHandler(db))
	handle("POST /api/purchase_orders/{id}/receive", purchaseorder.ReceiveOrderHandler(db, m))
	handle("POST /api/purchase_orders/{id}/cancel", purchaseorder.CancelOrderHandler(db))
	handle("GET /api/purchase_orders/{id}/export", purchaseorder.ExportOrderHandler(db))

	handle("GET /api/dashboard", dashboard.DashboardHandler(db))
}

// requestNote is filled in while a request is served and logged afterwards.
type requestNote struct {
	tenant int64
	all    bool
}

type noteKey struct{}

// noteScope records the resolved scope for the access log.
func noteScope(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if n, ok := r.Context().Value(noteKey{}).(*requestNote); ok {
			s := tenant.ScopeFrom(r.Context())
			n.tenant, n.all = s.TenantID, s.All
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// observe logs every request once and feeds the request metrics. The route
// label is the matched mux pattern so ids do not explode cardinality.
func observe(next *http.ServeMux, m *metrics.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		note := &requestNote{}
		r = r.WithContext(context.WithValue(r.Context(), noteKey{}, note))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		d := time.Since(start)
		m.ObserveRequest(r.Method, route, rec.status, d)
		zap.L().Info("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", d),
			zap.Int64("tenant", note.tenant),
			zap.Bool("all_tenants", note.all))
	})
}
