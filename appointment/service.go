package appointment

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"optica/database"
	"optica/model"
)

// checkParties verifies that the customer and the optional staff member belong to tenantID.
func checkParties(ctx context.Context, tx *sqlx.Tx, tenantID int64, in model.AppointmentInput) error {
	scope := model.TenantScope(tenantID)
	v := &model.ValidationError{}
	if _, err := database.GetCustomer(ctx, tx, scope, in.CustomerID); err != nil {
		if !model.IsClientError(err) {
			return err
		}
		v.Add("customerId", "unknown customer")
	}
	if in.StaffUserID != nil {
		u, err := database.GetUser(ctx, tx, scope, *in.StaffUserID)
		if err != nil && !model.IsClientError(err) {
			return err
		}
		if err != nil || !u.Active {
			v.Add("staffUserId", "unknown or inactive staff member")
		}
	}
	return v.Err()
}

// prepare validates in for tenantID and rejects overlaps. excludeID skips the
// appointment being rescheduled.
func prepare(ctx context.Context, tx *sqlx.Tx, tenantID, excludeID int64, in *model.AppointmentInput) error {
	in.Notes = strings.TrimSpace(in.Notes)
	settings, err := database.GetClinicSettings(ctx, tx, tenantID)
	if err != nil {
		return err
	}
	if err := ValidateInput(in, settings); err != nil {
		return err
	}
	if err := checkParties(ctx, tx, tenantID, *in); err != nil {
		return err
	}
	existing, err := database.ListActiveAppointmentsOnDate(ctx, tx, tenantID, in.Date, excludeID)
	if err != nil {
		return err
	}
	return CheckOverlap(*in, existing)
}

// Book creates an appointment after validating hours and overlaps.
func Book(ctx context.Context, db *sqlx.DB, tenantID int64, in model.AppointmentInput) (*model.Appointment, error) {
	var a *model.Appointment
	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if err := prepare(ctx, tx, tenantID, 0, &in); err != nil {
			return err
		}
		var err error
		a, err = database.CreateAppointment(ctx, tx, tenantID, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Reschedule replaces the editable fields of an open appointment.
func Reschedule(ctx context.Context, db *sqlx.DB, tenantID, id int64, in model.AppointmentInput) (*model.Appointment, error) {
	scope := model.TenantScope(tenantID)
	var a *model.Appointment
	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		current, err := database.GetAppointment(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if current.Status != model.StatusScheduled && current.Status != model.StatusConfirmed {
			return model.Conflictf("appointment %d is %s and can no longer be changed", id, current.Status)
		}
		if err := prepare(ctx, tx, tenantID, id, &in); err != nil {
			return err
		}
		if err := database.UpdateAppointment(ctx, tx, scope, id, in); err != nil {
			return err
		}
		a, err = database.GetAppointment(ctx, tx, scope, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ChangeStatus moves an appointment along its lifecycle.
func ChangeStatus(ctx context.Context, db *sqlx.DB, tenantID, id int64, next model.AppointmentStatus) (*model.Appointment, error) {
	if !next.Valid() {
		return nil, &model.ValidationError{Fields: map[string]string{"status": "unknown status"}}
	}
	scope := model.TenantScope(tenantID)
	var a *model.Appointment
	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		current, err := database.GetAppointment(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransition(next) {
			return fmt.Errorf("%w: %s to %s", model.ErrInvalidTransition, current.Status, next)
		}
		if err := database.SetAppointmentStatus(ctx, tx, scope, id, next); err != nil {
			return err
		}
		a, err = database.GetAppointment(ctx, tx, scope, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}
