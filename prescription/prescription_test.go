package prescription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optica/database"
	"optica/model"
	"optica/tenant"
	"optica/testutil"
)

var today = time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

func glasses(customerID int64) model.PrescriptionInput {
	return model.PrescriptionInput{
		CustomerID:        customerID,
		Kind:              model.PrescriptionGlasses,
		ExamDate:          "2026-04-01",
		RightEye:          model.Eye{Sphere: -1.25, Cylinder: -0.5, Axis: 180},
		LeftEye:           model.Eye{Sphere: -1},
		PupillaryDistance: 62,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.PrescriptionInput)
		field  string
	}{
		{"ok", func(*model.PrescriptionInput) {}, ""},
		{"sphere off step", func(in *model.PrescriptionInput) { in.RightEye.Sphere = -1.3 }, "rightEye.sphere"},
		{"sphere out of range", func(in *model.PrescriptionInput) { in.LeftEye.Sphere = 31 }, "leftEye.sphere"},
		{"cylinder out of range", func(in *model.PrescriptionInput) { in.LeftEye.Cylinder = -10.25; in.LeftEye.Axis = 5 }, "leftEye.cylinder"},
		{"axis missing", func(in *model.PrescriptionInput) { in.RightEye.Axis = 0 }, "rightEye.axis"},
		{"axis too large", func(in *model.PrescriptionInput) { in.RightEye.Axis = 181 }, "rightEye.axis"},
		{"axis without cylinder", func(in *model.PrescriptionInput) { in.LeftEye.Axis = 90 }, "leftEye.axis"},
		{"add too strong", func(in *model.PrescriptionInput) { in.LeftEye.Add = 4.25 }, "leftEye.add"},
		{"prism without base", func(in *model.PrescriptionInput) { in.LeftEye.Prism = 2 }, "leftEye.base"},
		{"prism too strong", func(in *model.PrescriptionInput) { in.LeftEye.Prism = 11; in.LeftEye.Base = "up" }, "leftEye.prism"},
		{"pd missing", func(in *model.PrescriptionInput) { in.PupillaryDistance = 0 }, "pupillaryDistance"},
		{"pd too wide", func(in *model.PrescriptionInput) { in.PupillaryDistance = 85 }, "pupillaryDistance"},
		{"exam in future", func(in *model.PrescriptionInput) { in.ExamDate = "2026-04-16" }, "examDate"},
		{"expiry before exam", func(in *model.PrescriptionInput) { in.ExpiresOn = "2026-03-01" }, "expiresOn"},
		{"bad kind", func(in *model.PrescriptionInput) { in.Kind = "monocle" }, "kind"},
		{"contacts without base curve", func(in *model.PrescriptionInput) {
			in.Kind = model.PrescriptionContacts
			in.RightEye.Diameter, in.LeftEye.BaseCurve, in.LeftEye.Diameter = f(14), f(8.6), f(14)
		}, "rightEye.baseCurve"},
		{"contacts diameter out of range", func(in *model.PrescriptionInput) {
			in.Kind = model.PrescriptionContacts
			in.RightEye.BaseCurve, in.RightEye.Diameter = f(8.6), f(17)
			in.LeftEye.BaseCurve, in.LeftEye.Diameter = f(8.6), f(14)
		}, "rightEye.diameter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := glasses(1)
			tt.mutate(&in)
			err := Validate(&in, today)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *model.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	in := glasses(1)
	in.LeftEye.Base = "IN"
	in.LeftEye.BaseCurve = f(8.4)
	require.NoError(t, Validate(&in, today))
	assert.Equal(t, "2028-04-01", in.ExpiresOn)
	assert.Empty(t, in.LeftEye.Base, "a base without prism is dropped")
	assert.Nil(t, in.LeftEye.BaseCurve, "glasses carry no contact lens fit")

	in = glasses(1)
	in.Kind = model.PrescriptionContacts
	in.PupillaryDistance = 0
	in.RightEye.BaseCurve, in.RightEye.Diameter = f(8.6), f(14.2)
	in.LeftEye.BaseCurve, in.LeftEye.Diameter = f(8.6), f(14.2)
	require.NoError(t, Validate(&in, today))
	assert.Equal(t, "2027-04-01", in.ExpiresOn)
}

func TestCreateUpdateAndExpiring(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	a := testutil.Tenant(t, db, "alpha")
	b := testutil.Tenant(t, db, "beta")
	jane := testutil.Customer(t, db, a.ID, "Jane", "Doe")
	other := testutil.Customer(t, db, b.ID, "Ana", "Silva")

	var verr *model.ValidationError
	_, err := Create(ctx, db, a.ID, glasses(other.ID), today)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "customerId")

	old := glasses(jane.ID)
	old.ExamDate = "2024-04-20"
	first, err := Create(ctx, db, a.ID, old, today)
	require.NoError(t, err)
	assert.Equal(t, "2026-04-20", first.ExpiresOn)
	assert.Equal(t, -0.5, first.RightEye.Cylinder)
	assert.Equal(t, 180, first.RightEye.Axis)

	scope := model.TenantScope(a.ID)
	expiring, err := database.ListExpiringPrescriptions(ctx, db, scope, "2026-04-15", "2026-05-15")
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, first.ID, expiring[0].ID)

	newer, err := Create(ctx, db, a.ID, glasses(jane.ID), today)
	require.NoError(t, err)
	expiring, err = database.ListExpiringPrescriptions(ctx, db, scope, "2026-04-15", "2026-05-15")
	require.NoError(t, err)
	assert.Empty(t, expiring, "a newer exam supersedes the expiring one")

	upd := glasses(other.ID)
	upd.Prescriber = "Dr. Ito"
	updated, err := Update(ctx, db, a.ID, newer.ID, upd, today)
	require.NoError(t, err)
	assert.Equal(t, jane.ID, updated.CustomerID, "updates never move a prescription")
	assert.Equal(t, "Dr. Ito", updated.Prescriber)

	_, err = Update(ctx, db, b.ID, newer.ID, upd, today)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

type fakePDF struct {
	got []byte
	err error
}

func (f *fakePDF) PDF(_ context.Context, html []byte) ([]byte, error) {
	f.got = html
	return []byte("%PDF-1.7 fake"), f.err
}

func TestPrintHandler(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	a := testutil.Tenant(t, db, "alpha")
	b := testutil.Tenant(t, db, "beta")
	staff := testutil.User(t, db, a.ID, "staff@alpha.test", model.RoleStaff, false)
	jane := testutil.Customer(t, db, a.ID, "Jane", "Doe")
	p, err := Create(ctx, db, a.ID, glasses(jane.ID), today)
	require.NoError(t, err)

	do := func(h http.Handler, scope model.Scope, query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/prescriptions/%d/print%s", p.ID, query), nil)
		req.SetPathValue("id", fmt.Sprint(p.ID))
		req = req.WithContext(tenant.WithRequest(req.Context(), staff, scope))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	renderer := &fakePDF{}
	h := PrintHandler(db, renderer)

	rec := do(h, model.TenantScope(a.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Clinic alpha")
	assert.Contains(t, rec.Body.String(), "Doe Jane")

	rec = do(h, model.TenantScope(a.ID), "?format=pdf")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.7 fake", rec.Body.String())
	assert.Contains(t, string(renderer.got), "Spectacle prescription")

	rec = do(h, model.TenantScope(b.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, model.TenantScope(a.ID), "?format=docx")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	renderer.err = errors.New("browser crashed")
	rec = do(h, model.TenantScope(a.ID), "?format=pdf")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = do(PrintHandler(db, nil), model.TenantScope(a.ID), "?format=pdf")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
