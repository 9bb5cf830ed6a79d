package supplier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optica/model"
	"optica/product"
	"optica/tenant"
	"optica/testutil"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		in    model.Supplier
		field string
	}{
		{"ok", model.Supplier{Name: " Lens Co ", Email: "Orders@LensCo.example", LeadTimeDays: 7}, ""},
		{"name required", model.Supplier{Name: "  "}, "name"},
		{"negative lead time", model.Supplier{Name: "A", LeadTimeDays: -1}, "leadTimeDays"},
		{"bad email", model.Supplier{Name: "A", Email: "orders at lensco"}, "email"},
		{"display name is not an address", model.Supplier{Name: "A", Email: "Lens <a@b.example>"}, "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.in)
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			var verr *model.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	s := model.Supplier{Name: " Lens Co ", Email: "Orders@LensCo.example", Code: " su9 "}
	require.NoError(t, Validate(&s))
	assert.Equal(t, "Lens Co", s.Name)
	assert.Equal(t, "orders@lensco.example", s.Email)
	assert.Equal(t, "SU9", s.Code)
}

func TestHandlers(t *testing.T) {
	db := testutil.NewDB(t)
	a := testutil.Tenant(t, db, "alpha")
	b := testutil.Tenant(t, db, "beta")
	admin := testutil.User(t, db, a.ID, "admin@alpha.test", model.RoleAdmin, false)

	serve := func(h http.HandlerFunc, method, target, body string, scope model.Scope, id int64) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		if id > 0 {
			req.SetPathValue("id", fmt.Sprint(id))
		}
		req = req.WithContext(tenant.WithRequest(req.Context(), admin, scope))
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec
	}
	scopeA := model.TenantScope(a.ID)

	rec := serve(CreateSupplierHandler(db), http.MethodPost, "/api/suppliers", `{"name":"Lens Co","leadTimeDays":5}`, scopeA, 0)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created model.Supplier
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "SU0001", created.Code)
	assert.Equal(t, a.ID, created.TenantID)

	rec = serve(CreateSupplierHandler(db), http.MethodPost, "/api/suppliers", `{"name":"Dup","code":"su0001"}`, scopeA, 0)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(CreateSupplierHandler(db), http.MethodPost, "/api/suppliers", `{"name":""}`, scopeA, 0)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(ListSuppliersHandler(db), http.MethodGet, "/api/suppliers?q=lens", "", scopeA, 0)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Supplier
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = serve(ListSuppliersHandler(db), http.MethodGet, "/api/suppliers", "", model.TenantScope(b.ID), 0)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list)

	rec = serve(GetSupplierHandler(db), http.MethodGet, "/api/suppliers/x", "", model.TenantScope(b.ID), created.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(UpdateSupplierHandler(db), http.MethodPut, "/api/suppliers/x", `{"name":"Lens Company","leadTimeDays":10}`, scopeA, created.ID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated model.Supplier
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "SU0001", updated.Code, "an omitted code is kept")
	assert.Equal(t, 10, updated.LeadTimeDays)

	_, err := product.Create(context.Background(), db, a.ID, model.ProductInput{
		Name: "Frame", Category: model.CategoryFrame, SupplierID: &created.ID,
	})
	require.NoError(t, err)
	rec = serve(DeleteSupplierHandler(db), http.MethodDelete, "/api/suppliers/x", "", scopeA, created.ID)
	assert.Equal(t, http.StatusConflict, rec.Code, "referenced suppliers stay")

	rec = serve(CreateSupplierHandler(db), http.MethodPost, "/api/suppliers", `{"name":"Spare"}`, scopeA, 0)
	require.Equal(t, http.StatusCreated, rec.Code)
	var spare model.Supplier
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spare))
	rec = serve(DeleteSupplierHandler(db), http.MethodDelete, "/api/suppliers/x", "", model.TenantScope(b.ID), spare.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(DeleteSupplierHandler(db), http.MethodDelete, "/api/suppliers/x", "", scopeA, spare.ID)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
