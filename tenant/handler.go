package tenant

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"optica/database"
	"optica/model"
	"optica/web"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

type CreateRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Validate normalises the slug and checks both fields.
func (req *CreateRequest) Validate() error {
	req.Name = strings.TrimSpace(req.Name)
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	v := &model.ValidationError{}
	if req.Name == "" {
		v.Add("name", "required")
	}
	if !slugRegex.MatchString(req.Slug) {
		v.Add("slug", "use 2-63 lowercase letters, digits or dashes")
	}
	return v.Err()
}

func requireSuperuser(w http.ResponseWriter, r *http.Request) bool {
	if u := UserFrom(r.Context()); u == nil || !u.IsSuperuser {
		web.Error(w, r, model.ErrForbidden)
		return false
	}
	return true
}

// ListTenantsHandler lists every tenant (superuser only).
func ListTenantsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireSuperuser(w, r) {
			return
		}
		tenants, err := database.GetAllTenants(r.Context(), db)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, tenants)
	}
}

func CreateTenantHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireSuperuser(w, r) {
			return
		}
		var req CreateRequest
		if err := web.Decode(r, &req); err != nil {
			web.Error(w, r, err)
			return
		}
		if err := req.Validate(); err != nil {
			web.Error(w, r, err)
			return
		}
		t, err := database.CreateTenant(r.Context(), db, req.Name, req.Slug)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		zap.S().Infow("tenant created", "tenant", t.ID, "slug", t.Slug)
		web.JSON(w, http.StatusCreated, t)
	}
}

type selectRequest struct {
	Tenant string `json:"tenant"`
}

// SelectTenantHandler stores the superuser's working tenant in a cookie.
// An empty tenant clears the selection.
func SelectTenantHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireSuperuser(w, r) {
			return
		}
		var req selectRequest
		if err := web.Decode(r, &req); err != nil {
			web.Error(w, r, err)
			return
		}
		if strings.TrimSpace(req.Tenant) == "" {
			http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
			web.JSON(w, http.StatusOK, model.Scope{All: true})
			return
		}
		scope, err := Resolve(r.Context(), db, UserFrom(r.Context()), req.Tenant)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    req.Tenant,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		web.JSON(w, http.StatusOK, scope)
	}
}
