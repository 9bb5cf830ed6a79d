package product

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optica/database"
	"optica/model"
	"optica/testutil"
)

func TestValidate(t *testing.T) {
	in := model.ProductInput{Name: " Titan frame ", Category: model.CategoryFrame, Barcode: "4006381333931", SKU: " fr-1 "}
	require.NoError(t, Validate(&in))
	assert.Equal(t, "Titan frame", in.Name)
	assert.Equal(t, "04006381333931", in.Barcode)
	assert.Equal(t, "FR-1", in.SKU)

	in = model.ProductInput{Name: "Eye exam", Category: model.CategoryService, ReorderPoint: 4, ReorderQuantity: 2}
	require.NoError(t, Validate(&in))
	assert.Zero(t, in.ReorderPoint)
	assert.Zero(t, in.ReorderQuantity)

	in = model.ProductInput{Category: "spaceship", Barcode: "4006381333932", CostPrice: -1, TaxRate: 120}
	var verr *model.ValidationError
	require.ErrorAs(t, Validate(&in), &verr)
	for _, f := range []string{"name", "category", "barcode", "costPrice", "taxRate"} {
		assert.Contains(t, verr.Fields, f)
	}
}

func TestCreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	a := testutil.Tenant(t, db, "alpha")
	b := testutil.Tenant(t, db, "beta")

	var foreignSupplier *model.Supplier
	require.NoError(t, database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		var err error
		foreignSupplier, err = database.CreateSupplierInTx(ctx, tx, b.ID, model.Supplier{Name: "Lens Co"})
		return err
	}))

	p, err := Create(ctx, db, a.ID, model.ProductInput{Name: "Daily lenses", Category: model.CategoryContactLens, Barcode: "(01)04006381333931"})
	require.NoError(t, err)
	assert.Equal(t, "SK000001", p.SKU)
	assert.Equal(t, "04006381333931", p.Barcode)
	assert.True(t, p.Active)

	_, err = Create(ctx, db, a.ID, model.ProductInput{Name: "Same code", Category: model.CategoryFrame, Barcode: "4006381333931"})
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = Create(ctx, db, b.ID, model.ProductInput{Name: "Same code elsewhere", Category: model.CategoryFrame, Barcode: "4006381333931"})
	assert.NoError(t, err, "barcodes are unique per tenant")

	var verr *model.ValidationError
	_, err = Create(ctx, db, a.ID, model.ProductInput{Name: "X", Category: model.CategoryFrame, SupplierID: &foreignSupplier.ID})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "supplierId")

	require.NoError(t, database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		_, err := database.MoveInTx(ctx, tx, a.ID, database.MoveParams{ProductID: p.ID, Kind: model.MovementReceive, Quantity: 3})
		return err
	}))
	_, err = Update(ctx, db, a.ID, p.ID, model.ProductInput{Name: "Daily lenses", Category: model.CategoryService})
	assert.ErrorIs(t, err, model.ErrConflict)

	inactive := false
	updated, err := Update(ctx, db, a.ID, p.ID, model.ProductInput{Name: "Daily lenses 30", Category: model.CategoryContactLens, Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "SK000001", updated.SKU, "an omitted SKU is kept")
	assert.Equal(t, "", updated.Barcode)
	assert.False(t, updated.Active)
	assert.Equal(t, 3.0, updated.StockQuantity)

	_, err = Update(ctx, db, b.ID, p.ID, model.ProductInput{Name: "hijack", Category: model.CategoryFrame})
	assert.ErrorIs(t, err, model.ErrNotFound)
}
