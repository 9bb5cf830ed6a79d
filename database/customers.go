package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"optica/model"
	"optica/search"
)

const customerColumns = `id, tenant_id, code, first_name, last_name, birth_date, phone, email, address, notes, search_key, created_at, updated_at`

func customerSearchKey(in model.CustomerInput, code string) string {
	return search.Key(in.LastName, in.FirstName, in.Phone, in.Email, code)
}

// CreateCustomerInTx inserts a customer, generating its code when in.Code is empty.
func CreateCustomerInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, in model.CustomerInput) (*model.Customer, error) {
	code := strings.TrimSpace(in.Code)
	var err error
	if code == "" {
		code, err = nextFreeCodeInTx(ctx, tx, tenantID, "customers", "code", SeqCustomer, "CU", 5)
	} else {
		err = claimCodeInTx(ctx, tx, tenantID, SeqCustomer, "CU", code)
	}
	if err != nil {
		return nil, err
	}
	ts := now()
	c := model.Customer{
		TenantID:  tenantID,
		Code:      code,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		BirthDate: in.BirthDate,
		Phone:     in.Phone,
		Email:     in.Email,
		Address:   in.Address,
		Notes:     in.Notes,
		SearchKey: customerSearchKey(in, code),
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	err = tx.GetContext(ctx, &c.ID, tx.Rebind(`
		INSERT INTO customers (tenant_id, code, first_name, last_name, birth_date, phone, email, address, notes, search_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		c.TenantID, c.Code, c.FirstName, c.LastName, c.BirthDate, c.Phone, c.Email, c.Address, c.Notes, c.SearchKey, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.Conflictf("customer code %s already exists", code)
		}
		return nil, fmt.Errorf("CreateCustomerInTx (Code: %s) failed: %w", code, err)
	}
	return &c, nil
}

func GetCustomer(ctx context.Context, db DBTX, scope model.Scope, id int64) (*model.Customer, error) {
	cond, args := scopeFilter("tenant_id", scope)
	var c model.Customer
	err := db.GetContext(ctx, &c, db.Rebind(`SELECT `+customerColumns+` FROM customers WHERE id = ? AND `+cond),
		append([]interface{}{id}, args...)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func GetCustomerByCode(ctx context.Context, db DBTX, tenantID int64, code string) (*model.Customer, error) {
	var c model.Customer
	err := db.GetContext(ctx, &c, db.Rebind(`SELECT `+customerColumns+` FROM customers WHERE tenant_id = ? AND code = ?`), tenantID, code)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ListCustomers searches by folded name, phone, email or code.
func ListCustomers(ctx context.Context, db DBTX, scope model.Scope, f model.CustomerFilter) ([]model.Customer, error) {
	cond, args := scopeFilter("tenant_id", scope)
	mustConditions := []string{cond}

	for _, term := range strings.Fields(search.Fold(f.Query)) {
		mustConditions = append(mustConditions, `search_key LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(term))
	}

	q := `SELECT ` + customerColumns + ` FROM customers WHERE ` + strings.Join(mustConditions, " AND ") +
		` ORDER BY last_name, first_name, id`
	if f.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	customers := []model.Customer{}
	if err := db.SelectContext(ctx, &customers, db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return customers, nil
}

func UpdateCustomer(ctx context.Context, db DBTX, scope model.Scope, id int64, in model.CustomerInput) (*model.Customer, error) {
	existing, err := GetCustomer(ctx, db, scope, id)
	if err != nil {
		return nil, err
	}
	cond, args := scopeFilter("tenant_id", scope)
	ts := now()
	res, err := db.ExecContext(ctx, db.Rebind(`
		UPDATE customers SET first_name = ?, last_name = ?, birth_date = ?, phone = ?, email = ?,
			address = ?, notes = ?, search_key = ?, updated_at = ?
		WHERE id = ? AND `+cond),
		append([]interface{}{in.FirstName, in.LastName, in.BirthDate, in.Phone, in.Email,
			in.Address, in.Notes, customerSearchKey(in, existing.Code), ts, id}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("UpdateCustomer (ID: %d) failed: %w", id, err)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return GetCustomer(ctx, db, scope, id)
}

// DeleteCustomerInTx refuses to remove customers that still have clinical records.
func DeleteCustomerInTx(ctx context.Context, tx *sqlx.Tx, scope model.Scope, id int64) error {
	if _, err := GetCustomer(ctx, tx, scope, id); err != nil {
		return err
	}
	var refs int
	err := tx.GetContext(ctx, &refs, tx.Rebind(`
		SELECT (SELECT COUNT(*) FROM appointments WHERE customer_id = ?)
		     + (SELECT COUNT(*) FROM prescriptions WHERE customer_id = ?)
		     + (SELECT COUNT(*) FROM attachments WHERE customer_id = ?)`), id, id, id)
	if err != nil {
		return fmt.Errorf("DeleteCustomerInTx (ID: %d) reference check failed: %w", id, err)
	}
	if refs > 0 {
		return model.Conflictf("customer has %d appointments, prescriptions or attachments", refs)
	}
	return deleteScoped(ctx, tx, "customers", "customer", scope, id)
}

// UpsertCustomerByCodeInTx updates the customer holding code or creates it.
// It reports whether a new row was created.
func UpsertCustomerByCodeInTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, in model.CustomerInput) (*model.Customer, bool, error) {
	if in.Code != "" {
		existing, err := GetCustomerByCode(ctx, tx, tenantID, in.Code)
		if err == nil {
			c, err := UpdateCustomer(ctx, tx, model.TenantScope(tenantID), existing.ID, in)
			return c, false, err
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, false, err
		}
	}
	c, err := CreateCustomerInTx(ctx, tx, tenantID, in)
	return c, err == nil, err
}

func CountCustomersCreatedSince(ctx context.Context, db DBTX, scope model.Scope, since time.Time) (int, error) {
	cond, args := scopeFilter("tenant_id", scope)
	var n int
	err := db.GetContext(ctx, &n, db.Rebind(`SELECT COUNT(*) FROM customers WHERE `+cond+` AND created_at >= ?`),
		append(args, since.UTC())...)
	if err != nil {
		return 0, fmt.Errorf("CountCustomersCreatedSince failed: %w", err)
	}
	return n, nil
}
