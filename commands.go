package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"optica/auth"
	"optica/blob"
	"optica/config"
	"optica/customer"
	"optica/database"
	"optica/metrics"
	"optica/model"
	"optica/render"
	"optica/tenant"
)

const shutdownTimeout = 15 * time.Second

// openDB connects with the loaded configuration and applies pending migrations.
func openDB(ctx context.Context) (*sqlx.DB, error) {
	cfg := config.GetConfig()
	db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// findTenant accepts a numeric id or a slug.
func findTenant(ctx context.Context, db database.DBTX, ref string) (*model.Tenant, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return database.GetTenant(ctx, db, id)
	}
	return database.GetTenantBySlug(ctx, db, ref)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cfg := config.GetConfig()

		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		blobs, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}

		deps := Deps{
			DB:      db,
			Metrics: metrics.New(),
			Blobs:   blobs,
			PDF:     &render.Browser{Bin: cfg.Print.BrowserBin, Timeout: cfg.Print.Timeout},
			Session: auth.Options{
				TTL:        cfg.Session.TTL,
				CookieName: cfg.Session.Cookie,
				Secure:     cfg.Session.Secure,
			},
		}

		sweepDone := make(chan struct{})
		go func() {
			defer close(sweepDone)
			auth.RunSweeper(ctx, db, cfg.Session.SweepInterval)
		}()

		srv := &http.Server{
			Addr:              cfg.Listen,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		}
		serveErr := make(chan error, 1)
		go func() {
			zap.S().Infow("listening", "addr", cfg.Listen, "db", cfg.Database.Driver, "blob", blobs.Driver())
			serveErr <- srv.ListenAndServe()
		}()

		select {
		case err := <-serveErr:
			stop()
			<-sweepDone
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		zap.L().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
		<-sweepDone
		return err
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
		return nil
	},
}

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
}

var (
	tenantName string
	tenantSlug string
)

var tenantCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a tenant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := tenant.CreateRequest{Name: tenantName, Slug: tenantSlug}
		if err := req.Validate(); err != nil {
			return err
		}
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		t, err := database.CreateTenant(cmd.Context(), db, req.Name, req.Slug)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created tenant %d (%s)\n", t.ID, t.Slug)
		return nil
	},
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		tenants, err := database.GetAllTenants(cmd.Context(), db)
		if err != nil {
			return err
		}
		for _, t := range tenants {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", t.ID, t.Slug, t.Name)
		}
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var (
	userTenant    string
	userEmail     string
	userName      string
	userPassword  string
	userRole      string
	userSuperuser bool
)

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user in a tenant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := auth.UserRequest{
			Email:       userEmail,
			Name:        userName,
			Role:        model.Role(userRole),
			Password:    userPassword,
			IsSuperuser: userSuperuser,
		}
		if err := req.Validate(true); err != nil {
			return err
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			return err
		}
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		t, err := findTenant(cmd.Context(), db, userTenant)
		if err != nil {
			return fmt.Errorf("tenant %q: %w", userTenant, err)
		}
		u := &model.User{
			TenantID:     t.ID,
			Email:        req.Email,
			Name:         req.Name,
			Role:         req.Role,
			IsSuperuser:  req.IsSuperuser,
			PasswordHash: hash,
			Active:       true,
		}
		if err := database.CreateUser(cmd.Context(), db, u); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s) in %s\n", u.ID, u.Email, t.Slug)
		return nil
	},
}

var customersCmd = &cobra.Command{
	Use:   "customers",
	Short: "Customer maintenance",
}

var (
	importTenant   string
	importFile     string
	importEncoding string
)

var customersImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a customer CSV into a tenant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(importFile)
		if err != nil {
			return err
		}
		defer f.Close()

		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		t, err := findTenant(cmd.Context(), db, importTenant)
		if err != nil {
			return fmt.Errorf("tenant %q: %w", importTenant, err)
		}
		res, err := customer.Import(cmd.Context(), db, nil, t.ID, f, importEncoding)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "created %d, updated %d, skipped %d\n", res.Created, res.Updated, res.Skipped)
		for _, e := range res.Errors {
			fmt.Fprintf(out, "  line %d: %s\n", e.Line, e.Message)
		}
		return nil
	},
}

func init() {
	tenantCreateCmd.Flags().StringVar(&tenantName, "name", "", "display name")
	tenantCreateCmd.Flags().StringVar(&tenantSlug, "slug", "", "unique slug used in URLs and headers")
	tenantCreateCmd.MarkFlagRequired("name")
	tenantCreateCmd.MarkFlagRequired("slug")
	tenantCmd.AddCommand(tenantCreateCmd, tenantListCmd)

	userCreateCmd.Flags().StringVar(&userTenant, "tenant", "", "tenant id or slug")
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "login email")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "display name")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "initial password")
	userCreateCmd.Flags().StringVar(&userRole, "role", string(model.RoleStaff), "admin or staff")
	userCreateCmd.Flags().BoolVar(&userSuperuser, "superuser", false, "grant access to every tenant")
	for _, name := range []string{"tenant", "email", "name", "password"} {
		userCreateCmd.MarkFlagRequired(name)
	}
	userCmd.AddCommand(userCreateCmd)

	customersImportCmd.Flags().StringVar(&importTenant, "tenant", "", "tenant id or slug")
	customersImportCmd.Flags().StringVar(&importFile, "file", "", "CSV file to import")
	customersImportCmd.Flags().StringVar(&importEncoding, "encoding", "utf-8", "file encoding (utf-8, shift_jis, latin1, ...)")
	customersImportCmd.MarkFlagRequired("tenant")
	customersImportCmd.MarkFlagRequired("file")
	customersCmd.AddCommand(customersImportCmd)
}
