package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"optica/model"
)

const supplierColumns = `id, tenant_id, code, name, contact_name, phone, email, address, lead_time_days, notes`

func CreateSupplierInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, s model.Supplier) (*model.Supplier, error) {
	s.TenantID = tenantID
	s.Code = strings.TrimSpace(s.Code)
	var err error
	if s.Code == "" {
		s.Code, err = nextFreeCodeInTx(ctx, tx, tenantID, "suppliers", "code", SeqSupplier, "SU", 4)
	} else {
		err = claimCodeInTx(ctx, tx, tenantID, SeqSupplier, "SU", s.Code)
	}
	if err != nil {
		return nil, err
	}
	err = tx.GetContext(ctx, &s.ID, tx.Rebind(`
		INSERT INTO suppliers (tenant_id, code, name, contact_name, phone, email, address, lead_time_days, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		s.TenantID, s.Code, s.Name, s.ContactName, s.Phone, s.Email, s.Address, s.LeadTimeDays, s.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.Conflictf("supplier code %s already exists", s.Code)
		}
		return nil, fmt.Errorf("CreateSupplierInTx (Code: %s) failed: %w", s.Code, err)
	}
	return &s, nil
}

func GetSupplier(ctx context.Context, db DBTX, scope model.Scope, id int64) (*model.Supplier, error) {
	cond, args := scopeFilter("tenant_id", scope)
	var s model.Supplier
	err := db.GetContext(ctx, &s, db.Rebind(`SELECT `+supplierColumns+` FROM suppliers WHERE id = ? AND `+cond),
		append([]interface{}{id}, args...)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func ListSuppliers(ctx context.Context, db DBTX, scope model.Scope, query string) ([]model.Supplier, error) {
	cond, args := scopeFilter("tenant_id", scope)
	q := `SELECT ` + supplierColumns + ` FROM suppliers WHERE ` + cond
	if query != "" {
		q += ` AND (LOWER(name) LIKE ? ESCAPE '\' OR LOWER(code) LIKE ? ESCAPE '\')`
		p := likePattern(query)
		args = append(args, p, p)
	}
	suppliers := []model.Supplier{}
	if err := db.SelectContext(ctx, &suppliers, db.Rebind(q+` ORDER BY name, id`), args...); err != nil {
		return nil, fmt.Errorf("failed to list suppliers: %w", err)
	}
	return suppliers, nil
}

func UpdateSupplier(ctx context.Context, db DBTX, scope model.Scope, s model.Supplier) (*model.Supplier, error) {
	existing, err := GetSupplier(ctx, db, scope, s.ID)
	if err != nil {
		return nil, err
	}
	code := strings.TrimSpace(s.Code)
	if code == "" {
		code = existing.Code
	}
	cond, args := scopeFilter("tenant_id", scope)
	res, err := db.ExecContext(ctx, db.Rebind(`
		UPDATE suppliers SET code = ?, name = ?, contact_name = ?, phone = ?, email = ?, address = ?,
			lead_time_days = ?, notes = ?
		WHERE id = ? AND `+cond),
		append([]interface{}{code, s.Name, s.ContactName, s.Phone, s.Email, s.Address,
			s.LeadTimeDays, s.Notes, s.ID}, args...)...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.Conflictf("supplier code %s already exists", code)
		}
		return nil, fmt.Errorf("UpdateSupplier (ID: %d) failed: %w", s.ID, err)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return GetSupplier(ctx, db, scope, s.ID)
}

func DeleteSupplierInTx(ctx context.Context, tx *sqlx.Tx, scope model.Scope, id int64) error {
	if _, err := GetSupplier(ctx, tx, scope, id); err != nil {
		return err
	}
	var refs int
	err := tx.GetContext(ctx, &refs, tx.Rebind(`
		SELECT (SELECT COUNT(*) FROM products WHERE supplier_id = ?)
		     + (SELECT COUNT(*) FROM purchase_orders WHERE supplier_id = ?)`), id, id)
	if err != nil {
		return fmt.Errorf("DeleteSupplierInTx (ID: %d) reference check failed: %w", id, err)
	}
	if refs > 0 {
		return model.Conflictf("supplier is referenced by products or purchase orders")
	}
	return deleteScoped(ctx, tx, "suppliers", "supplier", scope, id)
}
