package attachment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optica/blob"
	"optica/model"
	"optica/tenant"
	"optica/testutil"
)

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"referral.pdf":           "referral.pdf",
		`C:\scans\Jane Doe.jpg`:  "Jane_Doe.jpg",
		"../../etc/passwd":       "passwd",
		"処方箋.png":                "___.png",
		"":                       "file",
		"...":                    "file",
		strings.Repeat("a", 120): strings.Repeat("a", maxNameLength),
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeName(in), in)
	}
}

func TestKey(t *testing.T) {
	k := Key(3, 9, "scan 1.pdf")
	assert.True(t, strings.HasPrefix(k, "tenants/3/customers/9/"), k)
	assert.True(t, strings.HasSuffix(k, "-scan_1.pdf"), k)
	assert.NotEqual(t, k, Key(3, 9, "scan 1.pdf"))
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func TestUploadRejectsOversizedContent(t *testing.T) {
	db := testutil.NewDB(t)
	a := testutil.Tenant(t, db, "alpha")
	c := testutil.Customer(t, db, a.ID, "Jane", "Doe")
	store := blob.NewMemory()

	_, err := Upload(context.Background(), db, store, a.ID, c.ID, "big.bin", "", io.LimitReader(zeros{}, MaxSize+10))
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "file")
	assert.Zero(t, store.Len(), "the partial blob is removed")
}

func TestHandlers(t *testing.T) {
	db := testutil.NewDB(t)
	a := testutil.Tenant(t, db, "alpha")
	b := testutil.Tenant(t, db, "beta")
	staff := testutil.User(t, db, a.ID, "staff@alpha.test", model.RoleStaff, false)
	jane := testutil.Customer(t, db, a.ID, "Jane", "Doe")
	store := blob.NewMemory()

	serve := func(h http.HandlerFunc, req *http.Request, scope model.Scope, id int64) *httptest.ResponseRecorder {
		req.SetPathValue("id", fmt.Sprint(id))
		req = req.WithContext(tenant.WithRequest(req.Context(), staff, scope))
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec
	}
	upload := func(scope model.Scope, customerID int64, name, content string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/customers/x/attachments", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return serve(UploadHandler(db, store), req, scope, customerID)
	}
	scopeA := model.TenantScope(a.ID)

	rec := upload(scopeA, jane.ID, "referral letter.txt", "see the patient")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var att model.Attachment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &att))
	assert.Equal(t, "referral letter.txt", att.FileName)
	assert.Equal(t, int64(15), att.Size)
	assert.Equal(t, "application/octet-stream", att.ContentType)
	assert.Equal(t, 1, store.Len())

	rec = upload(model.TenantScope(b.ID), jane.ID, "x.txt", "nope")
	assert.Equal(t, http.StatusNotFound, rec.Code, "customers of other tenants are invisible")

	req := httptest.NewRequest(http.MethodPost, "/api/customers/x/attachments", strings.NewReader("plain"))
	rec = serve(UploadHandler(db, store), req, scopeA, jane.ID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(ListHandler(db), httptest.NewRequest(http.MethodGet, "/", nil), scopeA, jane.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Attachment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = serve(DownloadHandler(db, store), httptest.NewRequest(http.MethodGet, "/", nil), scopeA, att.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "see the patient", rec.Body.String())
	assert.Equal(t, `attachment; filename="referral letter.txt"`, rec.Header().Get("Content-Disposition"))

	rec = serve(DownloadHandler(db, store), httptest.NewRequest(http.MethodGet, "/", nil), model.TenantScope(b.ID), att.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(DeleteHandler(db, store), httptest.NewRequest(http.MethodDelete, "/", nil), model.TenantScope(b.ID), att.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1, store.Len())

	rec = serve(DeleteHandler(db, store), httptest.NewRequest(http.MethodDelete, "/", nil), scopeA, att.ID)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, store.Len())
}
