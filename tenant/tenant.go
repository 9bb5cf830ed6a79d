// Package tenant resolves which clinic's rows a request may see.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"optica/database"
	"optica/model"
)

const (
	HeaderName = "X-Tenant-ID"
	QueryName  = "tenant"
	CookieName = "optica_tenant"
)

// Requested returns the tenant a superuser asked for: header, then query, then cookie.
func Requested(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(HeaderName)); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.URL.Query().Get(QueryName)); v != "" {
		return v
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// lookup finds a tenant by numeric id or slug.
func lookup(ctx context.Context, db database.DBTX, ref string) (*model.Tenant, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return database.GetTenant(ctx, db, id)
	}
	return database.GetTenantBySlug(ctx, db, ref)
}

// Resolve computes the scope of a request made by user.
// Regular users are pinned to their own tenant. Superusers may pick any
// tenant and see every tenant when they pick none.
func Resolve(ctx context.Context, db database.DBTX, user *model.User, requested string) (model.Scope, error) {
	if user == nil {
		return model.Scope{}, model.ErrUnauthorized
	}
	requested = strings.TrimSpace(requested)

	if !user.IsSuperuser {
		if requested == "" {
			return model.TenantScope(user.TenantID), nil
		}
		t, err := lookup(ctx, db, requested)
		if err != nil || t.ID != user.TenantID {
			return model.Scope{}, model.ErrForbidden
		}
		return model.TenantScope(user.TenantID), nil
	}

	if requested == "" {
		return model.Scope{All: true}, nil
	}
	t, err := lookup(ctx, db, requested)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Scope{}, fmt.Errorf("tenant %q: %w", requested, model.ErrNotFound)
		}
		return model.Scope{}, err
	}
	return model.TenantScope(t.ID), nil
}

type ctxKey int

const (
	userKey ctxKey = iota
	scopeKey
)

// WithRequest stores the authenticated user and its resolved scope.
func WithRequest(ctx context.Context, user *model.User, scope model.Scope) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, scopeKey, scope)
}

func UserFrom(ctx context.Context) *model.User {
	u, _ := ctx.Value(userKey).(*model.User)
	return u
}

// ScopeFrom returns the request scope. A missing scope never matches any tenant.
func ScopeFrom(ctx context.Context) model.Scope {
	s, ok := ctx.Value(scopeKey).(model.Scope)
	if !ok {
		return model.Scope{TenantID: -1}
	}
	return s
}

// WriteTenant returns the tenant id a mutating request must use.
func WriteTenant(ctx context.Context) (int64, error) {
	return ScopeFrom(ctx).ForWrite()
}
