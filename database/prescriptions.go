package database

import (
	"context"
	"database/sql"
	"fmt"

	"optica/model"
)

// prescriptionRow is the flat table layout; od is the right eye, os the left.
type prescriptionRow struct {
	ID                int64                  `db:"id"`
	TenantID          int64                  `db:"tenant_id"`
	CustomerID        int64                  `db:"customer_id"`
	Kind              model.PrescriptionKind `db:"kind"`
	ExamDate          string                 `db:"exam_date"`
	ExpiresOn         string                 `db:"expires_on"`
	Prescriber        string                 `db:"prescriber"`
	ODSphere          float64                `db:"od_sphere"`
	ODCylinder        float64                `db:"od_cylinder"`
	ODAxis            int                    `db:"od_axis"`
	ODAdd             float64                `db:"od_add"`
	ODPrism           float64                `db:"od_prism"`
	ODBase            string                 `db:"od_base"`
	ODBaseCurve       sql.NullFloat64        `db:"od_base_curve"`
	ODDiameter        sql.NullFloat64        `db:"od_diameter"`
	OSSphere          float64                `db:"os_sphere"`
	OSCylinder        float64                `db:"os_cylinder"`
	OSAxis            int                    `db:"os_axis"`
	OSAdd             float64                `db:"os_add"`
	OSPrism           float64                `db:"os_prism"`
	OSBase            string                 `db:"os_base"`
	OSBaseCurve       sql.NullFloat64        `db:"os_base_curve"`
	OSDiameter        sql.NullFloat64        `db:"os_diameter"`
	PupillaryDistance float64                `db:"pupillary_distance"`
	Notes             string                 `db:"notes"`
	CreatedAt         sql.NullTime           `db:"created_at"`
	CustomerName      string                 `db:"customer_name"`
}

func nullable(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func (r prescriptionRow) toModel() model.Prescription {
	return model.Prescription{
		ID:         r.ID,
		TenantID:   r.TenantID,
		CustomerID: r.CustomerID,
		Kind:       r.Kind,
		ExamDate:   r.ExamDate,
		ExpiresOn:  r.ExpiresOn,
		Prescriber: r.Prescriber,
		RightEye: model.Eye{
			Sphere: r.ODSphere, Cylinder: r.ODCylinder, Axis: r.ODAxis, Add: r.ODAdd,
			Prism: r.ODPrism, Base: r.ODBase, BaseCurve: nullable(r.ODBaseCurve), Diameter: nullable(r.ODDiameter),
		},
		LeftEye: model.Eye{
			Sphere: r.OSSphere, Cylinder: r.OSCylinder, Axis: r.OSAxis, Add: r.OSAdd,
			Prism: r.OSPrism, Base: r.OSBase, BaseCurve: nullable(r.OSBaseCurve), Diameter: nullable(r.OSDiameter),
		},
		PupillaryDistance: r.PupillaryDistance,
		Notes:             r.Notes,
		CreatedAt:         r.CreatedAt.Time,
		CustomerName:      r.CustomerName,
	}
}

const prescriptionSelect = `
	SELECT p.id, p.tenant_id, p.customer_id, p.kind, p.exam_date, p.expires_on, p.prescriber,
	       p.od_sphere, p.od_cylinder, p.od_axis, p.od_add, p.od_prism, p.od_base, p.od_base_curve, p.od_diameter,
	       p.os_sphere, p.os_cylinder, p.os_axis, p.os_add, p.os_prism, p.os_base, p.os_base_curve, p.os_diameter,
	       p.pupillary_distance, p.notes, p.created_at,
	       TRIM(c.last_name || ' ' || c.first_name) AS customer_name
	FROM prescriptions p
	JOIN customers c ON c.id = p.customer_id`

// eyeArgs flattens an eye in column order.
func eyeArgs(e model.Eye) []interface{} {
	return []interface{}{e.Sphere, e.Cylinder, e.Axis, e.Add, e.Prism, e.Base, e.BaseCurve, e.Diameter}
}

func CreatePrescription(ctx context.Context, db DBTX, tenantID int64, in model.PrescriptionInput) (int64, error) {
	args := []interface{}{tenantID, in.CustomerID, in.Kind, in.ExamDate, in.ExpiresOn, in.Prescriber}
	args = append(args, eyeArgs(in.RightEye)...)
	args = append(args, eyeArgs(in.LeftEye)...)
	args = append(args, in.PupillaryDistance, in.Notes, now())

	var id int64
	err := db.GetContext(ctx, &id, db.Rebind(`
		INSERT INTO prescriptions (tenant_id, customer_id, kind, exam_date, expires_on, prescriber,
			od_sphere, od_cylinder, od_axis, od_add, od_prism, od_base, od_base_curve, od_diameter,
			os_sphere, os_cylinder, os_axis, os_add, os_prism, os_base, os_base_curve, os_diameter,
			pupillary_distance, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`), args...)
	if err != nil {
		return 0, fmt.Errorf("CreatePrescription (Customer: %d) failed: %w", in.CustomerID, err)
	}
	return id, nil
}

func GetPrescription(ctx context.Context, db DBTX, scope model.Scope, id int64) (*model.Prescription, error) {
	cond, args := scopeFilter("p.tenant_id", scope)
	var row prescriptionRow
	err := db.GetContext(ctx, &row, db.Rebind(prescriptionSelect+` WHERE p.id = ? AND `+cond), append([]interface{}{id}, args...)...)
	if err != nil {
		return nil, notFound(err)
	}
	p := row.toModel()
	return &p, nil
}

func selectPrescriptions(ctx context.Context, db DBTX, q string, args ...interface{}) ([]model.Prescription, error) {
	var rows []prescriptionRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(q), args...); err != nil {
		return nil, err
	}
	out := make([]model.Prescription, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// ListPrescriptionsByCustomer returns the newest exam first.
func ListPrescriptionsByCustomer(ctx context.Context, db DBTX, scope model.Scope, customerID int64) ([]model.Prescription, error) {
	cond, args := scopeFilter("p.tenant_id", scope)
	out, err := selectPrescriptions(ctx, db, prescriptionSelect+` WHERE p.customer_id = ? AND `+cond+
		` ORDER BY p.exam_date DESC, p.id DESC`, append([]interface{}{customerID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("ListPrescriptionsByCustomer (Customer: %d) failed: %w", customerID, err)
	}
	return out, nil
}

// ListExpiringPrescriptions returns prescriptions with from <= expires_on <= to.
// Only the latest prescription of each kind per customer is considered.
func ListExpiringPrescriptions(ctx context.Context, db DBTX, scope model.Scope, from, to string) ([]model.Prescription, error) {
	cond, args := scopeFilter("p.tenant_id", scope)
	out, err := selectPrescriptions(ctx, db, prescriptionSelect+` WHERE `+cond+`
		AND p.expires_on >= ? AND p.expires_on <= ?
		AND NOT EXISTS (
			SELECT 1 FROM prescriptions n
			WHERE n.customer_id = p.customer_id AND n.kind = p.kind AND n.exam_date > p.exam_date)
		ORDER BY p.expires_on, p.id`, append(args, from, to)...)
	if err != nil {
		return nil, fmt.Errorf("ListExpiringPrescriptions failed: %w", err)
	}
	return out, nil
}

func UpdatePrescription(ctx context.Context, db DBTX, scope model.Scope, id int64, in model.PrescriptionInput) error {
	cond, scopeArgs := scopeFilter("tenant_id", scope)
	args := []interface{}{in.Kind, in.ExamDate, in.ExpiresOn, in.Prescriber}
	args = append(args, eyeArgs(in.RightEye)...)
	args = append(args, eyeArgs(in.LeftEye)...)
	args = append(args, in.PupillaryDistance, in.Notes, id)
	args = append(args, scopeArgs...)

	res, err := db.ExecContext(ctx, db.Rebind(`
		UPDATE prescriptions SET kind = ?, exam_date = ?, expires_on = ?, prescriber = ?,
			od_sphere = ?, od_cylinder = ?, od_axis = ?, od_add = ?, od_prism = ?, od_base = ?, od_base_curve = ?, od_diameter = ?,
			os_sphere = ?, os_cylinder = ?, os_axis = ?, os_add = ?, os_prism = ?, os_base = ?, os_base_curve = ?, os_diameter = ?,
			pupillary_distance = ?, notes = ?
		WHERE id = ? AND `+cond), args...)
	if err != nil {
		return fmt.Errorf("UpdatePrescription (ID: %d) failed: %w", id, err)
	}
	return expectAffected(res)
}

func DeletePrescription(ctx context.Context, db DBTX, scope model.Scope, id int64) error {
	cond, args := scopeFilter("tenant_id", scope)
	res, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM prescriptions WHERE id = ? AND `+cond), append([]interface{}{id}, args...)...)
	if err != nil {
		return fmt.Errorf("DeletePrescription (ID: %d) failed: %w", id, err)
	}
	return expectAffected(res)
}
