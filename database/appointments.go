package database

import (
	"context"
	"fmt"
	"strings"

	"optica/model"
)

const appointmentSelect = `
	SELECT a.id, a.tenant_id, a.customer_id, a.staff_user_id, a.appointment_date, a.start_time,
	       a.duration_minutes, a.kind, a.status, a.notes, a.created_at, a.updated_at,
	       TRIM(c.last_name || ' ' || c.first_name) AS customer_name
	FROM appointments a
	JOIN customers c ON c.id = a.customer_id`

func CreateAppointment(ctx context.Context, db DBTX, tenantID int64, in model.AppointmentInput) (*model.Appointment, error) {
	ts := now()
	a := model.Appointment{
		TenantID:        tenantID,
		CustomerID:      in.CustomerID,
		StaffUserID:     in.StaffUserID,
		Date:            in.Date,
		StartTime:       in.StartTime,
		DurationMinutes: in.DurationMinutes,
		Kind:            in.Kind,
		Status:          model.StatusScheduled,
		Notes:           in.Notes,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	err := db.GetContext(ctx, &a.ID, db.Rebind(`
		INSERT INTO appointments (tenant_id, customer_id, staff_user_id, appointment_date, start_time,
			duration_minutes, kind, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		a.TenantID, a.CustomerID, a.StaffUserID, a.Date, a.StartTime,
		a.DurationMinutes, a.Kind, a.Status, a.Notes, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("CreateAppointment (Customer: %d, %s %s) failed: %w", in.CustomerID, in.Date, in.StartTime, err)
	}
	return &a, nil
}

func GetAppointment(ctx context.Context, db DBTX, scope model.Scope, id int64) (*model.Appointment, error) {
	cond, args := scopeFilter("a.tenant_id", scope)
	var a model.Appointment
	err := db.GetContext(ctx, &a, db.Rebind(appointmentSelect+` WHERE a.id = ? AND `+cond),
		append([]interface{}{id}, args...)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func ListAppointments(ctx context.Context, db DBTX, scope model.Scope, f model.AppointmentFilter) ([]model.Appointment, error) {
	cond, args := scopeFilter("a.tenant_id", scope)
	mustConditions := []string{cond}

	if f.From != "" {
		mustConditions = append(mustConditions, "a.appointment_date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		mustConditions = append(mustConditions, "a.appointment_date <= ?")
		args = append(args, f.To)
	}
	if f.StaffID != nil {
		mustConditions = append(mustConditions, "a.staff_user_id = ?")
		args = append(args, *f.StaffID)
	}
	if f.CustomerID > 0 {
		mustConditions = append(mustConditions, "a.customer_id = ?")
		args = append(args, f.CustomerID)
	}
	if f.Status != "" {
		mustConditions = append(mustConditions, "a.status = ?")
		args = append(args, f.Status)
	}

	q := appointmentSelect + ` WHERE ` + strings.Join(mustConditions, " AND ") +
		` ORDER BY a.appointment_date, a.start_time, a.id`
	appointments := []model.Appointment{}
	if err := db.SelectContext(ctx, &appointments, db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

// ListActiveAppointmentsOnDate returns the appointments occupying time on date
// for a tenant. excludeID skips the appointment being rescheduled.
func ListActiveAppointmentsOnDate(ctx context.Context, db DBTX, tenantID int64, date string, excludeID int64) ([]model.Appointment, error) {
	appointments := []model.Appointment{}
	err := db.SelectContext(ctx, &appointments, db.Rebind(appointmentSelect+`
		WHERE a.tenant_id = ? AND a.appointment_date = ? AND a.id <> ?
		  AND a.status IN (?, ?, ?)
		ORDER BY a.start_time, a.id`),
		tenantID, date, excludeID, model.StatusScheduled, model.StatusConfirmed, model.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("ListActiveAppointmentsOnDate (%s) failed: %w", date, err)
	}
	return appointments, nil
}

func UpdateAppointment(ctx context.Context, db DBTX, scope model.Scope, id int64, in model.AppointmentInput) error {
	cond, args := scopeFilter("tenant_id", scope)
	res, err := db.ExecContext(ctx, db.Rebind(`
		UPDATE appointments SET customer_id = ?, staff_user_id = ?, appointment_date = ?, start_time = ?,
			duration_minutes = ?, kind = ?, notes = ?, updated_at = ?
		WHERE id = ? AND `+cond),
		append([]interface{}{in.CustomerID, in.StaffUserID, in.Date, in.StartTime,
			in.DurationMinutes, in.Kind, in.Notes, now(), id}, args...)...)
	if err != nil {
		return fmt.Errorf("UpdateAppointment (ID: %d) failed: %w", id, err)
	}
	return expectAffected(res)
}

func SetAppointmentStatus(ctx context.Context, db DBTX, scope model.Scope, id int64, status model.AppointmentStatus) error {
	cond, args := scopeFilter("tenant_id", scope)
	res, err := db.ExecContext(ctx, db.Rebind(`UPDATE appointments SET status = ?, updated_at = ? WHERE id = ? AND `+cond),
		append([]interface{}{status, now(), id}, args...)...)
	if err != nil {
		return fmt.Errorf("SetAppointmentStatus (ID: %d) failed: %w", id, err)
	}
	return expectAffected(res)
}

func DeleteAppointment(ctx context.Context, db DBTX, scope model.Scope, id int64) error {
	cond, args := scopeFilter("tenant_id", scope)
	res, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM appointments WHERE id = ? AND `+cond),
		append([]interface{}{id}, args...)...)
	if err != nil {
		return fmt.Errorf("DeleteAppointment (ID: %d) failed: %w", id, err)
	}
	return expectAffected(res)
}

// CountAppointmentsBetween counts active appointments with from <= date <= to.
func CountAppointmentsBetween(ctx context.Context, db DBTX, scope model.Scope, from, to string) (int, error) {
	cond, args := scopeFilter("tenant_id", scope)
	var n int
	err := db.GetContext(ctx, &n, db.Rebind(`
		SELECT COUNT(*) FROM appointments
		WHERE `+cond+` AND appointment_date >= ? AND appointment_date <= ? AND status IN (?, ?)`),
		append(args, from, to, model.StatusScheduled, model.StatusConfirmed)...)
	if err != nil {
		return 0, fmt.Errorf("CountAppointmentsBetween failed: %w", err)
	}
	return n, nil
}
