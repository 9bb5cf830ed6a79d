package settings

import (
	"net/http"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"optica/database"
	"optica/model"
	"optica/tenant"
	"optica/web"
)

// GetSettingsHandler returns the selected clinic's settings, or defaults when
// none have been saved.
func GetSettingsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		s, err := database.GetClinicSettings(r.Context(), db, tenantID)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, s)
	}
}

// SaveSettingsHandler replaces the clinic's settings (admins only).
func SaveSettingsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if u := tenant.UserFrom(r.Context()); !u.CanAdminister() {
			web.Error(w, r, model.ErrForbidden)
			return
		}
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		var s model.ClinicSettings
		if err := web.Decode(r, &s); err != nil {
			web.Error(w, r, err)
			return
		}
		s.TenantID = tenantID
		if err := Validate(&s); err != nil {
			web.Error(w, r, err)
			return
		}
		if err := database.SaveClinicSettings(r.Context(), db, s); err != nil {
			web.Error(w, r, err)
			return
		}
		zap.S().Infow("clinic settings saved", "tenant", tenantID)
		web.JSON(w, http.StatusOK, s)
	}
}
