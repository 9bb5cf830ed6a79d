package prescription

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"optica/database"
	"optica/model"
	"optica/render"
	"optica/settings"
	"optica/tenant"
	"optica/web"
)

const (
	defaultExpiringDays = 30
	maxExpiringDays     = 365
)

func clinicToday(r *http.Request, db *sqlx.DB) (time.Time, error) {
	return settings.Today(r.Context(), db, tenant.ScopeFrom(r.Context()), time.Now())
}

// ListByCustomerHandler lists a customer's prescriptions, newest exam first.
func ListByCustomerHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		scope := tenant.ScopeFrom(r.Context())
		if _, err := database.GetCustomer(r.Context(), db, scope, id); err != nil {
			web.Error(w, r, err)
			return
		}
		list, err := database.ListPrescriptionsByCustomer(r.Context(), db, scope, id)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, list)
	}
}

func GetPrescriptionHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		p, err := database.GetPrescription(r.Context(), db, tenant.ScopeFrom(r.Context()), id)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, p)
	}
}

func CreatePrescriptionHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		var in model.PrescriptionInput
		if err := web.Decode(r, &in); err != nil {
			web.Error(w, r, err)
			return
		}
		today, err := clinicToday(r, db)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		p, err := Create(r.Context(), db, tenantID, in, today)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusCreated, p)
	}
}

func UpdatePrescriptionHandler(db *sqlx.DB) http.HandlerFunc {
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
		var in model.PrescriptionInput
		if err := web.Decode(r, &in); err != nil {
			web.Error(w, r, err)
			return
		}
		today, err := clinicToday(r, db)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		p, err := Update(r.Context(), db, tenantID, id, in, today)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, p)
	}
}

func DeletePrescriptionHandler(db *sqlx.DB) http.HandlerFunc {
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
		if err := database.DeletePrescription(r.Context(), db, model.TenantScope(tenantID), id); err != nil {
			web.Error(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ExpiringHandler lists current prescriptions expiring within ?days (default 30).
func ExpiringHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := web.QueryInt(r, "days", defaultExpiringDays)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		if days < 1 || days > maxExpiringDays {
			web.Error(w, r, web.BadRequestf("days must be between 1 and %d", maxExpiringDays))
			return
		}
		today, err := clinicToday(r, db)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		list, err := database.ListExpiringPrescriptions(r.Context(), db, tenant.ScopeFrom(r.Context()),
			today.Format(dateLayout), today.AddDate(0, 0, days).Format(dateLayout))
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, list)
	}
}

// PrintHandler renders a prescription sheet as HTML, or as PDF through pdf.
func PrintHandler(db *sqlx.DB, pdf render.PDFRenderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		format := r.URL.Query().Get("format")
		if format == "" {
			format = "html"
		}
		if format != "html" && format != "pdf" {
			web.Error(w, r, web.BadRequestf("format must be html or pdf"))
			return
		}

		today, err := clinicToday(r, db)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		sheet, err := Sheet(r.Context(), db, tenant.ScopeFrom(r.Context()), id, today)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		html, err := render.RenderPrescriptionHTML(*sheet)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		if format == "html" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write(html)
			return
		}

		if pdf == nil {
			web.WriteJSONError(w, "PDF printing is not configured", http.StatusServiceUnavailable)
			return
		}
		out, err := pdf.PDF(r.Context(), html)
		if err != nil {
			zap.L().Error("prescription PDF failed", zap.Int64("prescription", id), zap.Error(err))
			web.WriteJSONError(w, "failed to render PDF", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="prescription-%d.pdf"`, id))
		w.Write(out)
	}
}
