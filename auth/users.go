package auth

import (
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"optica/database"
	"optica/model"
	"optica/tenant"
	"optica/web"
)

type UserRequest struct {
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        model.Role `json:"role"`
	Password    string     `json:"password"`
	IsSuperuser bool       `json:"isSuperuser"`
	Active      *bool      `json:"active"`
}

// Validate checks a user request. Passwords are required on create only.
func (req *UserRequest) Validate(create bool) error {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Role == "" {
		req.Role = model.RoleStaff
	}
	v := &model.ValidationError{}
	if create && (!strings.Contains(req.Email, "@") || strings.HasPrefix(req.Email, "@")) {
		v.Add("email", "must be a valid email address")
	}
	if req.Name == "" {
		v.Add("name", "required")
	}
	if !req.Role.Valid() {
		v.Add("role", "must be admin or staff")
	}
	if (create || req.Password != "") && len(req.Password) < MinPasswordLength {
		v.Add("password", ErrWeakPassword.Error())
	}
	return v.Err()
}

func requireAdmin(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	u := tenant.UserFrom(r.Context())
	if !u.CanAdminister() {
		web.Error(w, r, model.ErrForbidden)
		return nil, false
	}
	return u, true
}

func ListUsersHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		users, err := database.ListUsers(r.Context(), db, tenant.ScopeFrom(r.Context()))
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, users)
	}
}

func CreateUserHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireAdmin(w, r)
		if !ok {
			return
		}
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		var req UserRequest
		if err := web.Decode(r, &req); err != nil {
			web.Error(w, r, err)
			return
		}
		if err := req.Validate(true); err != nil {
			web.Error(w, r, err)
			return
		}
		if req.IsSuperuser && !actor.IsSuperuser {
			web.Error(w, r, model.ErrForbidden)
			return
		}
		hash, err := HashPassword(req.Password)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		u := &model.User{
			TenantID:     tenantID,
			Email:        req.Email,
			Name:         req.Name,
			Role:         req.Role,
			IsSuperuser:  req.IsSuperuser,
			PasswordHash: hash,
			Active:       req.Active == nil || *req.Active,
		}
		if err := database.CreateUser(r.Context(), db, u); err != nil {
			web.Error(w, r, err)
			return
		}
		zap.S().Infow("user created", "user", u.ID, "tenant", tenantID, "by", actor.ID)
		web.JSON(w, http.StatusCreated, u)
	}
}

// UpdateUserHandler changes name, role, active flag and optionally the password.
func UpdateUserHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireAdmin(w, r)
		if !ok {
			return
		}
		id, err := web.PathID(r, "id")
		if err != nil {
			web.Error(w, r, err)
			return
		}
		tenantID, err := tenant.WriteTenant(r.Context())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		scope := model.TenantScope(tenantID)
		var req UserRequest
		if err := web.Decode(r, &req); err != nil {
			web.Error(w, r, err)
			return
		}
		if err := req.Validate(false); err != nil {
			web.Error(w, r, err)
			return
		}
		u, err := database.GetUser(r.Context(), db, scope, id)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		if u.ID == actor.ID && req.Active != nil && !*req.Active {
			web.Error(w, r, web.BadRequestf("you cannot deactivate yourself"))
			return
		}
		u.Name = req.Name
		u.Role = req.Role
		if req.Active != nil {
			u.Active = *req.Active
		}
		u.PasswordHash = ""
		if req.Password != "" {
			if u.PasswordHash, err = HashPassword(req.Password); err != nil {
				web.Error(w, r, err)
				return
			}
		}
		if err := database.UpdateUser(r.Context(), db, scope, u); err != nil {
			web.Error(w, r, err)
			return
		}
		updated, err := database.GetUser(r.Context(), db, scope, id)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, updated)
	}
}
