package prescription

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"optica/database"
	"optica/model"
	"optica/render"
)

func checkCustomer(ctx context.Context, db database.DBTX, tenantID, customerID int64) error {
	if _, err := database.GetCustomer(ctx, db, model.TenantScope(tenantID), customerID); err != nil {
		if model.IsClientError(err) {
			return &model.ValidationError{Fields: map[string]string{"customerId": "unknown customer"}}
		}
		return err
	}
	return nil
}

// Create validates in and stores it for tenantID.
func Create(ctx context.Context, db *sqlx.DB, tenantID int64, in model.PrescriptionInput, today time.Time) (*model.Prescription, error) {
	if err := Validate(&in, today); err != nil {
		return nil, err
	}
	var p *model.Prescription
	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if err := checkCustomer(ctx, tx, tenantID, in.CustomerID); err != nil {
			return err
		}
		id, err := database.CreatePrescription(ctx, tx, tenantID, in)
		if err != nil {
			return err
		}
		p, err = database.GetPrescription(ctx, tx, model.TenantScope(tenantID), id)
		return err
	})
	return p, err
}

// Update replaces a prescription. It stays attached to its customer.
func Update(ctx context.Context, db *sqlx.DB, tenantID, id int64, in model.PrescriptionInput, today time.Time) (*model.Prescription, error) {
	scope := model.TenantScope(tenantID)
	var p *model.Prescription
	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		current, err := database.GetPrescription(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		in.CustomerID = current.CustomerID
		if err := Validate(&in, today); err != nil {
			return err
		}
		if err := database.UpdatePrescription(ctx, tx, scope, id, in); err != nil {
			return err
		}
		p, err = database.GetPrescription(ctx, tx, scope, id)
		return err
	})
	return p, err
}

// Sheet gathers what is printed for prescription id.
func Sheet(ctx context.Context, db database.DBTX, scope model.Scope, id int64, printedOn time.Time) (*render.PrescriptionSheet, error) {
	p, err := database.GetPrescription(ctx, db, scope, id)
	if err != nil {
		return nil, err
	}
	c, err := database.GetCustomer(ctx, db, model.TenantScope(p.TenantID), p.CustomerID)
	if err != nil {
		return nil, err
	}
	s, err := database.GetClinicSettings(ctx, db, p.TenantID)
	if err != nil {
		return nil, err
	}
	return &render.PrescriptionSheet{
		ClinicName:   s.ClinicName,
		Customer:     *c,
		Prescription: *p,
		PrintedOn:    printedOn.Format(dateLayout),
	}, nil
}
