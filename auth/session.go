// Package auth handles logins, sessions and user management.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"optica/database"
	"optica/model"
	"optica/tenant"
	"optica/web"
)

// Options configures session cookies.
type Options struct {
	TTL        time.Duration
	CookieName string
	Secure     bool
}

func (o Options) cookieName() string {
	if o.CookieName == "" {
		return "optica_session"
	}
	return o.CookieName
}

// Login verifies credentials and opens a session. Unknown users, inactive
// users and wrong passwords all yield ErrUnauthorized.
func Login(ctx context.Context, db database.DBTX, email, password string, ttl time.Duration) (*model.Session, *model.User, error) {
	u, err := database.GetUserByEmail(ctx, db, email)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, nil, err
	}
	hash := ""
	if u != nil {
		hash = u.PasswordHash
	}
	if !CheckPassword(hash, password) || u == nil || !u.Active {
		return nil, nil, model.ErrUnauthorized
	}
	s, err := database.CreateSession(ctx, db, uuid.NewString(), u.ID, ttl)
	if err != nil {
		return nil, nil, err
	}
	return s, u, nil
}

// tokenFrom reads the session token from the cookie or a bearer header.
func tokenFrom(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// Middleware authenticates the request and stores user and scope in its context.
func Middleware(db *sqlx.DB, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFrom(r, opts.cookieName())
			if token == "" {
				web.Error(w, r, model.ErrUnauthorized)
				return
			}
			u, err := database.GetSessionUser(r.Context(), db, token, time.Now())
			if err != nil {
				if !errors.Is(err, model.ErrNotFound) {
					web.Error(w, r, err)
					return
				}
				web.Error(w, r, model.ErrUnauthorized)
				return
			}
			scope, err := tenant.Resolve(r.Context(), db, u, tenant.Requested(r))
			if err != nil {
				web.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(tenant.WithRequest(r.Context(), u, scope)))
		})
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
}

func LoginHandler(db *sqlx.DB, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := web.Decode(r, &req); err != nil {
			web.Error(w, r, err)
			return
		}
		s, u, err := Login(r.Context(), db, req.Email, req.Password, opts.TTL)
		if err != nil {
			if errors.Is(err, model.ErrUnauthorized) {
				zap.S().Infow("login rejected", "email", strings.ToLower(strings.TrimSpace(req.Email)))
				web.WriteJSONError(w, "invalid email or password", http.StatusUnauthorized)
				return
			}
			web.Error(w, r, err)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     opts.cookieName(),
			Value:    s.Token,
			Path:     "/",
			Expires:  s.ExpiresAt,
			HttpOnly: true,
			Secure:   opts.Secure,
			SameSite: http.SameSiteLaxMode,
		})
		zap.S().Infow("login", "user", u.ID, "tenant", u.TenantID)
		web.JSON(w, http.StatusOK, loginResponse{Token: s.Token, ExpiresAt: s.ExpiresAt, User: u})
	}
}

func LogoutHandler(db *sqlx.DB, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token := tokenFrom(r, opts.cookieName()); token != "" {
			if err := database.DeleteSession(r.Context(), db, token); err != nil {
				web.Error(w, r, err)
				return
			}
		}
		http.SetCookie(w, &http.Cookie{Name: opts.cookieName(), Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
		w.WriteHeader(http.StatusNoContent)
	}
}

type meResponse struct {
	User  *model.User `json:"user"`
	Scope model.Scope `json:"scope"`
}

func MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		web.JSON(w, http.StatusOK, meResponse{User: tenant.UserFrom(r.Context()), Scope: tenant.ScopeFrom(r.Context())})
	}
}

// RunSweeper deletes expired sessions every interval until ctx is done.
func RunSweeper(ctx context.Context, db database.DBTX, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			n, err := database.DeleteExpiredSessions(ctx, db, t)
			if err != nil {
				if ctx.Err() == nil {
					zap.S().Warnw("session sweep failed", "error", err)
				}
				continue
			}
			if n > 0 {
				zap.S().Debugw("expired sessions removed", "count", n)
			}
		}
	}
}
