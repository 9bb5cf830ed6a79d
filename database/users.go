package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"optica/model"
)

const userColumns = `id, tenant_id, email, name, role, is_superuser, password_hash, active, created_at`

func CreateUser(ctx context.Context, db DBTX, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = now()
	err := db.GetContext(ctx, &u.ID, db.Rebind(`
		INSERT INTO users (tenant_id, email, name, role, is_superuser, password_hash, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		u.TenantID, u.Email, u.Name, u.Role, u.IsSuperuser, u.PasswordHash, u.Active, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Conflictf("a user with email %s already exists", u.Email)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("tenant %d: %w", u.TenantID, model.ErrNotFound)
		}
		return fmt.Errorf("CreateUser (Email: %s) failed: %w", u.Email, err)
	}
	return nil
}

func GetUser(ctx context.Context, db DBTX, scope model.Scope, id int64) (*model.User, error) {
	cond, args := scopeFilter("tenant_id", scope)
	var u model.User
	err := db.GetContext(ctx, &u, db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ? AND `+cond),
		append([]interface{}{id}, args...)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetUserByEmail is unscoped: login happens before a tenant is known.
func GetUserByEmail(ctx context.Context, db DBTX, email string) (*model.User, error) {
	var u model.User
	err := db.GetContext(ctx, &u, db.Rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`),
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func ListUsers(ctx context.Context, db DBTX, scope model.Scope) ([]model.User, error) {
	cond, args := scopeFilter("tenant_id", scope)
	users := []model.User{}
	err := db.SelectContext(ctx, &users, db.Rebind(`SELECT `+userColumns+` FROM users WHERE `+cond+` ORDER BY name, id`), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdateUser writes name, role, active and, when non-empty, the password hash.
func UpdateUser(ctx context.Context, db DBTX, scope model.Scope, u *model.User) error {
	cond, args := scopeFilter("tenant_id", scope)
	q := `UPDATE users SET name = ?, role = ?, active = ?`
	qargs := []interface{}{u.Name, u.Role, u.Active}
	if u.PasswordHash != "" {
		q += `, password_hash = ?`
		qargs = append(qargs, u.PasswordHash)
	}
	q += ` WHERE id = ? AND ` + cond
	qargs = append(append(qargs, u.ID), args...)
	res, err := db.ExecContext(ctx, db.Rebind(q), qargs...)
	if err != nil {
		return fmt.Errorf("UpdateUser (ID: %d) failed: %w", u.ID, err)
	}
	return expectAffected(res)
}

func CreateSession(ctx context.Context, db DBTX, token string, userID int64, ttl time.Duration) (*model.Session, error) {
	s := model.Session{Token: token, UserID: userID, CreatedAt: now()}
	s.ExpiresAt = s.CreatedAt.Add(ttl)
	_, err := db.ExecContext(ctx, db.Rebind(
		`INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`),
		s.Token, s.UserID, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("CreateSession (User: %d) failed: %w", userID, err)
	}
	return &s, nil
}

// GetSessionUser returns the active user owning an unexpired session token.
func GetSessionUser(ctx context.Context, db DBTX, token string, at time.Time) (*model.User, error) {
	var u model.User
	err := db.GetContext(ctx, &u, db.Rebind(`
		SELECT u.id, u.tenant_id, u.email, u.name, u.role, u.is_superuser, u.password_hash, u.active, u.created_at
		FROM sessions s JOIN users u ON u.id = s.user_id
		WHERE s.token = ? AND s.expires_at > ? AND u.active = ?`), token, at.UTC(), true)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func DeleteSession(ctx context.Context, db DBTX, token string) error {
	if _, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM sessions WHERE token = ?`), token); err != nil {
		return fmt.Errorf("DeleteSession failed: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired before at.
func DeleteExpiredSessions(ctx context.Context, db DBTX, at time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`), at.UTC())
	if err != nil {
		return 0, fmt.Errorf("DeleteExpiredSessions failed: %w", err)
	}
	return res.RowsAffected()
}
