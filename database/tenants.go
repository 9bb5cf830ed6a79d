package database

import (
	"context"
	"fmt"

	"optica/model"
)

func CreateTenant(ctx context.Context, db DBTX, name, slug string) (*model.Tenant, error) {
	t := model.Tenant{Name: name, Slug: slug, CreatedAt: now()}
	err := db.GetContext(ctx, &t.ID, db.Rebind(
		`INSERT INTO tenants (name, slug, created_at) VALUES (?, ?, ?) RETURNING id`),
		t.Name, t.Slug, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.Conflictf("tenant slug %q already exists", slug)
		}
		return nil, fmt.Errorf("CreateTenant (Slug: %s) failed: %w", slug, err)
	}
	return &t, nil
}

func GetTenant(ctx context.Context, db DBTX, id int64) (*model.Tenant, error) {
	var t model.Tenant
	err := db.GetContext(ctx, &t, db.Rebind(`SELECT id, name, slug, created_at FROM tenants WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func GetTenantBySlug(ctx context.Context, db DBTX, slug string) (*model.Tenant, error) {
	var t model.Tenant
	err := db.GetContext(ctx, &t, db.Rebind(`SELECT id, name, slug, created_at FROM tenants WHERE slug = ?`), slug)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func GetAllTenants(ctx context.Context, db DBTX) ([]model.Tenant, error) {
	tenants := []model.Tenant{}
	if err := db.SelectContext(ctx, &tenants, `SELECT id, name, slug, created_at FROM tenants ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("failed to get all tenants: %w", err)
	}
	return tenants, nil
}
