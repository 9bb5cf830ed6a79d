package purchaseorder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optica/database"
	"optica/metrics"
	"optica/model"
	"optica/tenant"
	dbtest "optica/testutil"
)

var day = time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)

type fixture struct {
	db       *sqlx.DB
	tenant   int64
	supplier *model.Supplier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.NewDB(t)
	a := dbtest.Tenant(t, db, "alpha")
	return &fixture{db: db, tenant: a.ID, supplier: newSupplier(t, db, a.ID, "Lens Co", 5)}
}

func newSupplier(t *testing.T, db *sqlx.DB, tenantID int64, name string, lead int) *model.Supplier {
	t.Helper()
	var s *model.Supplier
	require.NoError(t, database.WithTx(context.Background(), db, func(tx *sqlx.Tx) error {
		var err error
		s, err = database.CreateSupplierInTx(context.Background(), tx, tenantID, model.Supplier{Name: name, LeadTimeDays: lead})
		return err
	}))
	return s
}

func (f *fixture) product(t *testing.T, name string, cat model.ProductCategory, reorderPoint, reorderQty float64) *model.Product {
	t.Helper()
	var p *model.Product
	require.NoError(t, database.WithTx(context.Background(), f.db, func(tx *sqlx.Tx) error {
		var err error
		p, err = database.CreateProductInTx(context.Background(), tx, f.tenant, model.ProductInput{
			Name: name, Category: cat, SupplierID: &f.supplier.ID, CostPrice: 12,
			ReorderPoint: reorderPoint, ReorderQuantity: reorderQty,
		})
		return err
	}))
	return p
}

func (f *fixture) stock(t *testing.T, id int64) float64 {
	t.Helper()
	p, err := database.GetProduct(context.Background(), f.db, model.TenantScope(f.tenant), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func (f *fixture) ordered(t *testing.T, lines ...model.OrderLineInput) *model.PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	o, err := Create(ctx, f.db, f.tenant, model.PurchaseOrderInput{SupplierID: f.supplier.ID, Lines: lines}, day)
	require.NoError(t, err)
	o, err = Submit(ctx, f.db, f.tenant, o.ID, day.Add(9*time.Hour))
	require.NoError(t, err)
	return o
}

func receivedCounter(t *testing.T, m *metrics.Metrics, n int) {
	t.Helper()
	expected := `
# HELP optica_purchase_orders_received_total Purchase orders that became fully received.
# TYPE optica_purchase_orders_received_total counter
optica_purchase_orders_received_total ` + strconv.Itoa(n) + `
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(expected), "optica_purchase_orders_received_total"))
}

func TestCreateValidatesLines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lens := f.product(t, "Lens", model.CategoryLens, 0, 0)
	fitting := f.product(t, "Fitting", model.CategoryService, 0, 0)

	other := dbtest.Tenant(t, f.db, "beta")
	foreignSupplier := newSupplier(t, f.db, other.ID, "Elsewhere", 1)

	_, err := Create(ctx, f.db, f.tenant, model.PurchaseOrderInput{
		SupplierID: foreignSupplier.ID,
		Lines: []model.OrderLineInput{
			{ProductID: lens.ID, Quantity: 0},
			{ProductID: lens.ID, Quantity: 1},
			{ProductID: fitting.ID, Quantity: 1},
			{ProductID: 9999, Quantity: 1},
		},
	}, day)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "supplierId")
	assert.Contains(t, verr.Fields, "lines[0].quantity")
	assert.Contains(t, verr.Fields, "lines[1].productId")
	assert.Contains(t, verr.Fields, "lines[2].productId")
	assert.Contains(t, verr.Fields, "lines[3].productId")

	o, err := Create(ctx, f.db, f.tenant, model.PurchaseOrderInput{
		SupplierID: f.supplier.ID,
		Lines:      []model.OrderLineInput{{ProductID: lens.ID, Quantity: 4}},
	}, day)
	require.NoError(t, err)
	assert.Equal(t, "PO2604150001", o.Number)
	assert.Equal(t, model.OrderDraft, o.Status)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, 12.0, o.Lines[0].UnitCost, "unit cost defaults to the product cost")
	assert.Equal(t, 48.0, o.Total)

	second, err := Create(ctx, f.db, f.tenant, model.PurchaseOrderInput{SupplierID: f.supplier.ID}, day)
	require.NoError(t, err)
	assert.Equal(t, "PO2604150002", second.Number)

	updated, err := Update(ctx, f.db, f.tenant, second.ID, model.PurchaseOrderInput{
		SupplierID: f.supplier.ID,
		Lines:      []model.OrderLineInput{{ProductID: lens.ID, Quantity: 2, UnitCost: 10}},
	})
	require.NoError(t, err)
	assert.Equal(t, 20.0, updated.Total)
}

func TestSubmitReceiveCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := metrics.New()
	lens := f.product(t, "Lens", model.CategoryLens, 0, 0)
	frame := f.product(t, "Frame", model.CategoryFrame, 0, 0)

	empty, err := Create(ctx, f.db, f.tenant, model.PurchaseOrderInput{SupplierID: f.supplier.ID}, day)
	require.NoError(t, err)
	_, err = Submit(ctx, f.db, f.tenant, empty.ID, day)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "lines")

	_, err = Receive(ctx, f.db, m, f.tenant, empty.ID, []model.ReceiptLine{{LineID: 1, Quantity: 1}}, nil)
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "drafts cannot be received")

	o := f.ordered(t,
		model.OrderLineInput{ProductID: lens.ID, Quantity: 4},
		model.OrderLineInput{ProductID: frame.ID, Quantity: 2},
	)
	assert.Equal(t, model.OrderOrdered, o.Status)
	require.NotNil(t, o.OrderedAt)
	require.NotNil(t, o.ExpectedAt)
	assert.Equal(t, 5*24*time.Hour, o.ExpectedAt.Sub(*o.OrderedAt))

	_, err = Update(ctx, f.db, f.tenant, o.ID, model.PurchaseOrderInput{SupplierID: f.supplier.ID})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	lensLine, frameLine := o.Lines[0].ID, o.Lines[1].ID
	o, err = Receive(ctx, f.db, m, f.tenant, o.ID, []model.ReceiptLine{{LineID: lensLine, Quantity: 3}}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPartiallyReceived, o.Status)
	assert.Equal(t, 3.0, f.stock(t, lens.ID))

	_, err = Receive(ctx, f.db, m, f.tenant, o.ID, []model.ReceiptLine{
		{LineID: frameLine, Quantity: 2},
		{LineID: lensLine, Quantity: 2},
	}, nil)
	assert.ErrorIs(t, err, model.ErrConflict, "over-receiving a line fails")
	assert.Equal(t, 0.0, f.stock(t, frame.ID), "the whole receipt rolls back")

	_, err = Receive(ctx, f.db, m, f.tenant, o.ID, []model.ReceiptLine{{LineID: 424242, Quantity: 1}}, nil)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "lines[0].lineId")

	_, err = Cancel(ctx, f.db, f.tenant, o.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "partially received orders cannot be cancelled")

	receivedCounter(t, m, 0)
	o, err = Receive(ctx, f.db, m, f.tenant, o.ID, []model.ReceiptLine{
		{LineID: frameLine, Quantity: 2},
		{LineID: lensLine, Quantity: 1},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.OrderReceived, o.Status)
	assert.Equal(t, 4.0, f.stock(t, lens.ID))
	assert.Equal(t, 2.0, f.stock(t, frame.ID))
	receivedCounter(t, m, 1)

	movements, err := database.ListMovements(ctx, f.db, model.TenantScope(f.tenant), lens.ID, 10)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, o.Number, movements[0].Reference)

	assert.ErrorIs(t, Delete(ctx, f.db, f.tenant, o.ID), model.ErrInvalidTransition)

	cancelled, err := Cancel(ctx, f.db, f.tenant, empty.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, cancelled.Status)

	draft, err := Create(ctx, f.db, f.tenant, model.PurchaseOrderInput{SupplierID: f.supplier.ID}, day)
	require.NoError(t, err)
	require.NoError(t, Delete(ctx, f.db, f.tenant, draft.ID))
	_, err = database.GetPurchaseOrder(ctx, f.db, model.TenantScope(f.tenant), draft.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestReceiveDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := metrics.New()
	lens := f.product(t, "Lens", model.CategoryLens, 0, 0)
	cloth := f.product(t, "Cloth", model.CategoryAccessory, 0, 0)

	first := f.ordered(t, model.OrderLineInput{ProductID: lens.ID, Quantity: 3})
	second := f.ordered(t, model.OrderLineInput{ProductID: lens.ID, Quantity: 4})

	result, err := ReceiveDelivery(ctx, f.db, m, f.tenant, DeliveryRequest{
		SupplierID: f.supplier.ID,
		Reference:  "DN-77",
		Items: []model.DeliveryItem{
			{ProductID: lens.ID, Quantity: 5},
			{ProductID: cloth.ID, Quantity: 10},
		},
	}, nil)
	require.NoError(t, err)
	require.Len(t, result.Applied, 2)
	assert.Equal(t, first.ID, result.Applied[0].OrderID, "oldest order first")
	assert.Equal(t, 3.0, result.Applied[0].Quantity)
	assert.Equal(t, second.ID, result.Applied[1].OrderID)
	assert.Equal(t, 2.0, result.Applied[1].Quantity)
	assert.Equal(t, []model.DeliveryItem{{ProductID: cloth.ID, Quantity: 10}}, result.Unmatched)

	assert.Equal(t, 5.0, f.stock(t, lens.ID))
	assert.Equal(t, 10.0, f.stock(t, cloth.ID), "unmatched goods are still received")

	scope := model.TenantScope(f.tenant)
	o1, err := database.GetPurchaseOrder(ctx, f.db, scope, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderReceived, o1.Status)
	o2, err := database.GetPurchaseOrder(ctx, f.db, scope, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPartiallyReceived, o2.Status)
	receivedCounter(t, m, 1)

	movements, err := database.ListMovements(ctx, f.db, scope, lens.ID, 10)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, first.Number+","+second.Number, movements[0].Reference)

	_, err = ReceiveDelivery(ctx, f.db, m, f.tenant, DeliveryRequest{SupplierID: f.supplier.ID}, nil)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "items")
}

func TestSuggestQuantity(t *testing.T) {
	p := model.Product{ReorderPoint: 4, ReorderQuantity: 2}
	assert.Equal(t, 6.0, SuggestQuantity(p, 0, 1.5))
	assert.Equal(t, 3.0, SuggestQuantity(p, 3, 1.5))
	assert.Equal(t, 2.0, SuggestQuantity(p, 4, 1.0), "never below the reorder quantity")
	assert.Equal(t, 5.0, SuggestQuantity(model.Product{ReorderPoint: 3}, 0, 1.5), "the target is rounded up")
}

func TestSuggestionsAndFromSuggestions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lens := f.product(t, "Lens", model.CategoryLens, 4, 2)
	frame := f.product(t, "Frame", model.CategoryFrame, 4, 0)
	f.product(t, "Untracked", model.CategoryAccessory, 0, 0)
	require.NoError(t, database.WithTx(ctx, f.db, func(tx *sqlx.Tx) error {
		_, err := database.MoveInTx(ctx, tx, f.tenant, database.MoveParams{ProductID: frame.ID, Kind: model.MovementReceive, Quantity: 9})
		return err
	}))
	f.ordered(t, model.OrderLineInput{ProductID: lens.ID, Quantity: 3})

	list, err := Suggestions(ctx, f.db, f.tenant, f.supplier.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, lens.ID, list[0].ProductID)
	assert.Equal(t, 3.0, list[0].OnOrder)
	assert.Equal(t, 3.0, list[0].Quantity, "ceil(4*1.5) minus the 3 on order")

	other := newSupplier(t, f.db, f.tenant, "Frames Ltd", 0)
	_, err = FromSuggestions(ctx, f.db, f.tenant, other.ID, day)
	assert.ErrorIs(t, err, model.ErrConflict)

	o, err := FromSuggestions(ctx, f.db, f.tenant, f.supplier.ID, day)
	require.NoError(t, err)
	assert.Equal(t, model.OrderDraft, o.Status)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, 3.0, o.Lines[0].Quantity)
	assert.Equal(t, 12.0, o.Lines[0].UnitCost)
}

func TestExportOrderHandler(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := dbtest.Tenant(t, f.db, "beta")
	staff := dbtest.User(t, f.db, f.tenant, "staff@alpha.test", model.RoleStaff, false)
	lens := f.product(t, "Lens", model.CategoryLens, 0, 0)
	o := f.ordered(t, model.OrderLineInput{ProductID: lens.ID, Quantity: 4, UnitCost: 2.5})
	draft, err := Create(ctx, f.db, f.tenant, model.PurchaseOrderInput{SupplierID: f.supplier.ID}, day)
	require.NoError(t, err)

	export := func(id int64, scope model.Scope, query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/purchase_orders/"+strconv.FormatInt(id, 10)+"/export"+query, nil)
		req.SetPathValue("id", strconv.FormatInt(id, 10))
		req = req.WithContext(tenant.WithRequest(req.Context(), staff, scope))
		rec := httptest.NewRecorder()
		ExportOrderHandler(f.db)(rec, req)
		return rec
	}

	rec := export(o.ID, model.TenantScope(f.tenant), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), o.Number+".csv")
	assert.Equal(t,
		"order_number,supplier,sku,barcode,product,quantity,unit_cost,line_total\n"+
			o.Number+",Lens Co,"+lens.SKU+",,Lens,4,2.5,10\n",
		rec.Body.String())

	assert.Equal(t, http.StatusConflict, export(draft.ID, model.TenantScope(f.tenant), "").Code)
	assert.Equal(t, http.StatusNotFound, export(o.ID, model.TenantScope(other.ID), "").Code)
	assert.Equal(t, http.StatusBadRequest, export(o.ID, model.TenantScope(f.tenant), "?encoding=klingon").Code)
}
