// Package testutil opens migrated in-memory databases for tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"optica/database"
	"optica/model"
)

var dbSeq atomic.Int64

// NewDB returns a fresh migrated SQLite database private to t.
func NewDB(t testing.TB) *sqlx.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:optica_test_%d?mode=memory&cache=shared&_foreign_keys=on", dbSeq.Add(1))
	db, err := database.Open(context.Background(), database.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

// Tenant creates a tenant with the given slug.
func Tenant(t testing.TB, db *sqlx.DB, slug string) *model.Tenant {
	t.Helper()
	tn, err := database.CreateTenant(context.Background(), db, "Clinic "+slug, slug)
	require.NoError(t, err)
	return tn
}

// Password is the plain password of every user created by User.
const Password = "correct-horse"

// User creates an active user with Password. Hashing uses the minimum cost.
func User(t testing.TB, db *sqlx.DB, tenantID int64, email string, role model.Role, superuser bool) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)
	u := &model.User{
		TenantID:     tenantID,
		Email:        email,
		Name:         email,
		Role:         role,
		IsSuperuser:  superuser,
		PasswordHash: string(hash),
		Active:       true,
	}
	require.NoError(t, database.CreateUser(context.Background(), db, u))
	return u
}

// Customer creates a customer in tenantID.
func Customer(t testing.TB, db *sqlx.DB, tenantID int64, first, last string) *model.Customer {
	t.Helper()
	var c *model.Customer
	err := database.WithTx(context.Background(), db, func(tx *sqlx.Tx) error {
		var err error
		c, err = database.CreateCustomerInTx(context.Background(), tx, tenantID, model.CustomerInput{FirstName: first, LastName: last})
		return err
	})
	require.NoError(t, err)
	return c
}
