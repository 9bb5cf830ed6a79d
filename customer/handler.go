package customer

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
	"optica/tenant"
	"optica/web"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	maxImportSize   = 10 << 20
)

func ListCustomersHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := web.QueryInt(r, "limit", defaultPageSize)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		offset, err := web.QueryInt(r, "offset", 0)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		if limit <= 0 || limit > maxPageSize {
			limit = defaultPageSize
		}
		if offset < 0 {
			offset = 0
		}
		customers, err := database.ListCustomers(r.Context(), db, tenant.ScopeFrom(r.Context()), model.CustomerFilter{
			Query:  r.URL.Query().Get("q"),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, customers)
	}
}

func GetCustomerHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		c, err := database.GetCustomer(r.Context(), db, tenant.ScopeFrom(r.Context()), id)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, c)
	}
}

func CreateCustomerHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		var in model.CustomerInput
		if err := web.Decode(r, &in); err != nil {
			web.Error(w, r, err)
			return
		}
		if err := Validate(&in, time.Now().UTC()); err != nil {
			web.Error(w, r, err)
			return
		}
		var c *model.Customer
		err = database.WithTx(r.Context(), db, func(tx *sqlx.Tx) error {
			var err error
			c, err = database.CreateCustomerInTx(r.Context(), tx, tenantID, in)
			return err
		})
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusCreated, c)
	}
}

func UpdateCustomerHandler(db *sqlx.DB) http.HandlerFunc {
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
		var in model.CustomerInput
		if err := web.Decode(r, &in); err != nil {
			web.Error(w, r, err)
			return
		}
		if err := Validate(&in, time.Now().UTC()); err != nil {
			web.Error(w, r, err)
			return
		}
		c, err := database.UpdateCustomer(r.Context(), db, model.TenantScope(tenantID), id, in)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, c)
	}
}

func DeleteCustomerHandler(db *sqlx.DB) http.HandlerFunc {
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
			return database.DeleteCustomerInTx(r.Context(), tx, model.TenantScope(tenantID), id)
		})
		if err != nil {
			web.Error(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ImportCustomersHandler accepts a multipart "file" and an optional "encoding" label.
func ImportCustomersHandler(db *sqlx.DB, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
		file, _, err := r.FormFile("file")
		if err != nil {
			web.Error(w, r, web.BadRequestf("failed to read uploaded file: %v", err))
			return
		}
		defer file.Close()

		result, err := Import(r.Context(), db, m, tenantID, file, r.FormValue("encoding"))
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, result)
	}
}

// ExportCustomersHandler streams every customer in scope as CSV. The optional
// "encoding" query value selects the output charset.
func ExportCustomersHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		label := r.URL.Query().Get("encoding")
		if _, err := parsers.LookupEncoding(label); err != nil {
			web.Error(w, r, web.BadRequestf("%v", err))
			return
		}
		customers, err := database.ListCustomers(r.Context(), db, tenant.ScopeFrom(r.Context()), model.CustomerFilter{})
		if err != nil {
			web.Error(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="customers-%s.csv"`, time.Now().UTC().Format("20060102")))
		out, _ := parsers.NewEncodingWriter(w, label)
		if err := parsers.WriteCustomerCSV(out, customers); err != nil {
			zap.S().Warnw("customer export interrupted", "error", err)
			return
		}
		if c, ok := out.(interface{ Close() error }); ok {
			c.Close()
		}
	}
}

// HistoryHandler returns the customer with its appointments and prescriptions.
func HistoryHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		scope := tenant.ScopeFrom(r.Context())
		c, err := database.GetCustomer(r.Context(), db, scope, id)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		appointments, err := database.ListAppointments(r.Context(), db, scope, model.AppointmentFilter{CustomerID: id})
		if err != nil {
			web.Error(w, r, err)
			return
		}
		prescriptions, err := database.ListPrescriptionsByCustomer(r.Context(), db, scope, id)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, model.CustomerHistory{
			Customer:      *c,
			Appointments:  appointments,
			Prescriptions: prescriptions,
		})
	}
}
