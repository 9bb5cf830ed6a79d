package model

import "time"

type Tenant struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Scope limits which tenant's rows a query may touch.
// A positive TenantID restricts to that tenant; All removes the predicate
// and is only ever granted to superusers for reads.
type Scope struct {
	TenantID int64 `json:"tenantId"`
	All      bool  `json:"all"`
}

// TenantScope is shorthand for a single-tenant scope.
func TenantScope(id int64) Scope { return Scope{TenantID: id} }

// ForWrite returns the tenant a write must be attributed to.
func (s Scope) ForWrite() (int64, error) {
	if s.All || s.TenantID <= 0 {
		return 0, ErrTenantRequired
	}
	return s.TenantID, nil
}

type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleStaff }

type User struct {
	ID           int64     `db:"id" json:"id"`
	TenantID     int64     `db:"tenant_id" json:"tenantId"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	Role         Role      `db:"role" json:"role"`
	IsSuperuser  bool      `db:"is_superuser" json:"isSuperuser"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// CanAdminister reports whether u may manage users and settings of its tenant.
func (u *User) CanAdminister() bool {
	return u != nil && (u.IsSuperuser || u.Role == RoleAdmin)
}

type Session struct {
	Token     string    `db:"token" json:"token"`
	UserID    int64     `db:"user_id" json:"userId"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
