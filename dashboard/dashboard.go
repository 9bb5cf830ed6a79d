// Package dashboard summarises a clinic's day: appointments, customers, stock,
// open orders and expiring prescriptions.
package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"optica/database"
	"optica/inventory"
	"optica/model"
	"optica/settings"
	"optica/tenant"
	"optica/web"
)

const (
	dateLayout      = "2006-01-02"
	upcomingDays    = 7
	newCustomerDays = 30
	expiringDays    = 30
	lowStockPreview = 10
)

// Build gathers every dashboard section for scope. Sections are queried
// concurrently and the first failure cancels the rest.
func Build(ctx context.Context, db *sqlx.DB, scope model.Scope, now time.Time) (*model.Dashboard, error) {
	today, err := settings.Today(ctx, db, scope, now)
	if err != nil {
		return nil, err
	}
	d := &model.Dashboard{Date: today.Format(dateLayout)}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		list, err := database.ListAppointments(ctx, db, scope, model.AppointmentFilter{From: d.Date, To: d.Date})
		d.TodayAppointments = list
		return err
	})
	g.Go(func() error {
		from := today.AddDate(0, 0, 1).Format(dateLayout)
		to := today.AddDate(0, 0, upcomingDays).Format(dateLayout)
		n, err := database.CountAppointmentsBetween(ctx, db, scope, from, to)
		d.UpcomingAppointments = n
		return err
	})
	g.Go(func() error {
		n, err := database.CountCustomersCreatedSince(ctx, db, scope, now.AddDate(0, 0, -newCustomerDays))
		d.NewCustomers = n
		return err
	})
	g.Go(func() error {
		low, err := database.ListLowStock(ctx, db, scope, 0)
		if err != nil {
			return err
		}
		d.LowStockCount = len(low)
		if len(low) > lowStockPreview {
			low = low[:lowStockPreview]
		}
		d.LowStock = low
		return nil
	})
	g.Go(func() error {
		n, value, err := database.OpenOrdersSummary(ctx, db, scope)
		d.OpenOrders, d.OpenOrdersValue = n, value
		return err
	})
	g.Go(func() error {
		list, err := database.ListExpiringPrescriptions(ctx, db, scope,
			d.Date, today.AddDate(0, 0, expiringDays).Format(dateLayout))
		d.ExpiringPrescriptions = len(list)
		return err
	})
	g.Go(func() error {
		report, err := inventory.Valuation(ctx, db, scope)
		if err != nil {
			return err
		}
		d.StockValue = report.CostTotal
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

func DashboardHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := Build(r.Context(), db, tenant.ScopeFrom(r.Context()), time.Now())
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.JSON(w, http.StatusOK, d)
	}
}
