package appointment

import (
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"optica/database"
	"optica/metrics"
	"optica/model"
	"optica/settings"
	"optica/tenant"
	"optica/web"
)

// maxRangeDays bounds a calendar query.
const maxRangeDays = 62

func queryDate(r *http.Request, name string) (time.Time, bool, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return time.Time{}, false, nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, false, web.BadRequestf("%s must be YYYY-MM-DD", name)
	}
	return d, true, nil
}

// ListAppointmentsHandler returns the calendar between from and to inclusive.
// Without a range it returns the coming week of the clinic.
func ListAppointmentsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := tenant.ScopeFrom(r.Context())
		from, hasFrom, err := queryDate(r, "from")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		to, hasTo, err := queryDate(r, "to")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		if !hasFrom {
			if from, err = settings.Today(r.Context(), db, scope, time.Now()); err != nil {
				web.Error(w, r, err)
				return
			}
		}
		if !hasTo {
			to = from.AddDate(0, 0, 6)
		}
		if to.Before(from) {
			web.Error(w, r, web.BadRequestf("to must not be before from"))
			return
		}
		// from and to are both included.
		if days := int(to.Sub(from).Hours()/24) + 1; days > maxRangeDays {
			web.Error(w, r, web.BadRequestf("range may span at most %d days", maxRangeDays))
			return
		}

		f := model.AppointmentFilter{
			From:   from.Format(dateLayout),
			To:     to.Format(dateLayout),
			Status: model.AppointmentStatus(r.URL.Query().Get("status")),
		}
		if f.Status != "" && !f.Status.Valid() {
			web.Error(w, r, web.BadRequestf("unknown status %q", f.Status))
			return
		}
		if staff, err := web.QueryInt64(r, "staff"); err != nil {
			web.Error(w, r, err)
			return
		} else if staff > 0 {
			f.StaffID = &staff
		}
		if f.CustomerID, err = web.QueryInt64(r, "customer"); err != nil {
			web.Error(w, r, err)
			return
		}

		appointments, err := database.ListAppointments(r.Context(), db, scope, f)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, appointments)
	}
}

// SlotsHandler lays out the bookable slots of a date, optionally for one staff member.
func SlotsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		date, ok, err := queryDate(r, "date")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		if !ok {
			web.Error(w, r, web.BadRequestf("date is required"))
			return
		}
		var staff *int64
		if id, err := web.QueryInt64(r, "staff"); err != nil {
			web.Error(w, r, err)
			return
		} else if id > 0 {
			staff = &id
		}

		s, err := database.GetClinicSettings(r.Context(), db, tenantID)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		booked, err := database.ListActiveAppointmentsOnDate(r.Context(), db, tenantID, date.Format(dateLayout), 0)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		day, err := Slots(s, date, booked, staff)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, day)
	}
}

func GetAppointmentHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		a, err := database.GetAppointment(r.Context(), db, tenant.ScopeFrom(r.Context()), id)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, a)
	}
}

func CreateAppointmentHandler(db *sqlx.DB, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		var in model.AppointmentInput
		if err := web.Decode(r, &in); err != nil {
			web.Error(w, r, err)
			return
		}
		a, err := Book(r.Context(), db, tenantID, in)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		m.AppointmentBooked()
		zap.S().Infow("appointment booked", "tenant", tenantID, "appointment", a.ID, "date", a.Date, "start", a.StartTime)
		web.JSON(w, http.StatusCreated, a)
	}
}

func UpdateAppointmentHandler(db *sqlx.DB) http.HandlerFunc {
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
		var in model.AppointmentInput
		if err := web.Decode(r, &in); err != nil {
			web.Error(w, r, err)
			return
		}
		a, err := Reschedule(r.Context(), db, tenantID, id, in)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, a)
	}
}

type statusRequest struct {
	Status model.AppointmentStatus `json:"status"`
}

func SetStatusHandler(db *sqlx.DB) http.HandlerFunc {
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
		var req statusRequest
		if err := web.Decode(r, &req); err != nil {
			web.Error(w, r, err)
			return
		}
		a, err := ChangeStatus(r.Context(), db, tenantID, id, req.Status)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, a)
	}
}

func DeleteAppointmentHandler(db *sqlx.DB) http.HandlerFunc {
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
		if err := database.DeleteAppointment(r.Context(), db, model.TenantScope(tenantID), id); err != nil {
			web.Error(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
