package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optica/database"
	"optica/model"
	"optica/testutil"
)

func TestMigrateIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, database.Migrate(context.Background(), db))

	var versions int
	require.NoError(t, db.Get(&versions, `SELECT COUNT(*) FROM schema_migrations`))
	assert.Equal(t, 1, versions)
}

func TestCreateTenantRejectsDuplicateSlug(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	testutil.Tenant(t, db, "alpha")

	_, err := database.CreateTenant(ctx, db, "Another", "alpha")
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = database.GetTenantBySlug(ctx, db, "gamma")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSequencesArePerTenant(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	a := testutil.Tenant(t, db, "alpha")
	b := testutil.Tenant(t, db, "beta")

	next := func(tenantID int64) string {
		var code string
		require.NoError(t, database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
			var err error
			code, err = database.NextSequenceInTx(ctx, tx, tenantID, database.SeqCustomer, "CU", 5)
			return err
		}))
		return code
	}

	assert.Equal(t, "CU00001", next(a.ID))
	assert.Equal(t, "CU00002", next(a.ID))
	assert.Equal(t, "CU00001", next(b.ID))

	require.NoError(t, database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if err := database.SetSequenceFloorInTx(ctx, tx, a.ID, database.SeqCustomer, 40); err != nil {
			return err
		}
		return database.SetSequenceFloorInTx(ctx, tx, a.ID, database.SeqCustomer, 7)
	}))
	assert.Equal(t, "CU00041", next(a.ID), "a lower floor never rewinds the counter")
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	boom := errors.New("boom")

	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := database.CreateTenant(ctx, tx, "Gone", "gone"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Panics(t, func() {
		database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
			if _, err := database.CreateTenant(ctx, tx, "Gone", "gone"); err != nil {
				return err
			}
			panic("boom")
		})
	})

	tenants, err := database.GetAllTenants(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, tenants)
}

func TestCustomerQueriesRespectScope(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	a := testutil.Tenant(t, db, "alpha")
	b := testutil.Tenant(t, db, "beta")
	jane := testutil.Customer(t, db, a.ID, "Jane", "Doe")
	testutil.Customer(t, db, b.ID, "Ana", "Silva")

	_, err := database.GetCustomer(ctx, db, model.TenantScope(b.ID), jane.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	got, err := database.GetCustomer(ctx, db, model.Scope{All: true}, jane.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.TenantID)

	list, err := database.ListCustomers(ctx, db, model.TenantScope(a.ID), model.CustomerFilter{Query: "do"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, jane.ID, list[0].ID)

	all, err := database.ListCustomers(ctx, db, model.Scope{All: true}, model.CustomerFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGeneratedCodesSkipTakenCodes(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	a := testutil.Tenant(t, db, "alpha")

	customerCode := func(code string) string {
		var c *model.Customer
		require.NoError(t, database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
			var err error
			c, err = database.CreateCustomerInTx(ctx, tx, a.ID, model.CustomerInput{LastName: "Doe", Code: code})
			return err
		}))
		return c.Code
	}

	assert.Equal(t, "CU00002", customerCode("CU00002"))
	assert.Equal(t, "CU00003", customerCode(""), "an explicit generated-form code moves the counter")
	assert.Equal(t, "VIP-1", customerCode("VIP-1"))
	assert.Equal(t, "CU00004", customerCode(""))

	_, err := db.Exec(`INSERT INTO customers (tenant_id, code, last_name, created_at, updated_at)
		VALUES (?, 'CU00005', 'Legacy', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "CU00006", customerCode(""), "rows written around the counter are skipped")

	t.Run("products", func(t *testing.T) {
		sku := func(in string) string {
			var p *model.Product
			require.NoError(t, database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
				var err error
				p, err = database.CreateProductInTx(ctx, tx, a.ID, model.ProductInput{SKU: in, Name: "Frame " + in, Category: model.CategoryFrame})
				return err
			}))
			return p.SKU
		}
		assert.Equal(t, "SK000001", sku("SK000001"))
		assert.Equal(t, "SK000002", sku(""))
	})

	t.Run("suppliers", func(t *testing.T) {
		code := func(in string) string {
			var s *model.Supplier
			require.NoError(t, database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
				var err error
				s, err = database.CreateSupplierInTx(ctx, tx, a.ID, model.Supplier{Code: in, Name: "Lens Co " + in})
				return err
			}))
			return s.Code
		}
		assert.Equal(t, "SU0001", code("SU0001"))
		assert.Equal(t, "SU0002", code(""))
	})
}

func TestSequenceNumber(t *testing.T) {
	n, ok := database.SequenceNumber("CU", "cu00042")
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	for _, code := range []string{"X-1", "CUabc", "CU", "CU-3", "SK000001"} {
		_, ok := database.SequenceNumber("CU", code)
		assert.False(t, ok, code)
	}
}

func TestWithSavepointKeepsTransactionUsable(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	boom := errors.New("boom")

	require.NoError(t, database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		err := database.WithSavepoint(ctx, tx, "row", func() error {
			if _, err := database.CreateTenant(ctx, tx, "Undone", "undone"); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		err = database.WithSavepoint(ctx, tx, "row", func() error {
			_, err := database.CreateTenant(ctx, tx, "Kept", "kept")
			return err
		})
		require.NoError(t, err)

		_, err = database.CreateTenant(ctx, tx, "Duplicate", "kept")
		require.ErrorIs(t, err, model.ErrConflict)
		return nil
	}))

	tenants, err := database.GetAllTenants(ctx, db)
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, "kept", tenants[0].Slug)
}

func TestDeleteReportsLateReferencesAsConflict(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	a := testutil.Tenant(t, db, "alpha")
	jane := testutil.Customer(t, db, a.ID, "Jane", "Doe")

	_, err := db.Exec(`INSERT INTO prescriptions (tenant_id, customer_id, kind, exam_date, expires_on, created_at)
		VALUES (?, ?, 'glasses', '2026-01-05', '2028-01-05', CURRENT_TIMESTAMP)`, a.ID, jane.ID)
	require.NoError(t, err)

	// The row delete alone, without the reference count in front of it.
	err = database.DeleteScoped(ctx, db, "customers", "customer", model.TenantScope(a.ID), jane.ID)
	assert.ErrorIs(t, err, model.ErrConflict)

	err = database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		return database.DeleteCustomerInTx(ctx, tx, model.TenantScope(a.ID), jane.ID)
	})
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = database.GetCustomer(ctx, db, model.TenantScope(a.ID), jane.ID)
	assert.NoError(t, err)
}

func TestLowStockIsOneRule(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	a := testutil.Tenant(t, db, "alpha")
	scope := model.TenantScope(a.ID)

	var supplier *model.Supplier
	products := map[string]*model.Product{}
	require.NoError(t, database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		var err error
		if supplier, err = database.CreateSupplierInTx(ctx, tx, a.ID, model.Supplier{Name: "Lens Co"}); err != nil {
			return err
		}
		for name, in := range map[string]model.ProductInput{
			"quantity only": {ReorderQuantity: 5},
			"unmanaged":     {},
			"covered":       {ReorderPoint: 5},
			"short":         {ReorderPoint: 5},
		} {
			in.Name, in.Category = name, model.CategoryContactLens
			if products[name], err = database.CreateProductInTx(ctx, tx, a.ID, in); err != nil {
				return err
			}
		}
		return nil
	}))

	_, err := db.Exec(`UPDATE products SET stock_quantity = 3 WHERE id IN (?, ?)`, products["covered"].ID, products["short"].ID)
	require.NoError(t, err)
	res, err := db.Exec(`INSERT INTO purchase_orders (tenant_id, number, supplier_id, status, created_at, updated_at)
		VALUES (?, 'PO1', ?, 'ordered', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`, a.ID, supplier.ID)
	require.NoError(t, err)
	orderID, err := res.LastInsertId()
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO purchase_order_lines (order_id, product_id, quantity) VALUES (?, ?, 4)`, orderID, products["covered"].ID)
	require.NoError(t, err)

	names := func(ps []model.Product) []string {
		out := []string{}
		for _, p := range ps {
			out = append(out, p.Name)
		}
		return out
	}

	low, err := database.ListLowStock(ctx, db, scope, 0)
	require.NoError(t, err)
	var lowProducts []model.Product
	for _, item := range low {
		lowProducts = append(lowProducts, item.Product)
	}
	assert.ElementsMatch(t, []string{"quantity only", "short"}, names(lowProducts))

	listed, err := database.ListProducts(ctx, db, scope, model.ProductFilter{LowStock: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"quantity only", "short"}, names(listed))
}
