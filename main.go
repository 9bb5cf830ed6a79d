// Package main runs the optica clinic API and its maintenance commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"optica/config"
	"optica/logging"
)

var (
	// configFile is set by the --config flag.
	configFile string
	// logLevel overrides log.level from the configuration when set.
	logLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "optica",
	Short: "Optica runs the multi-tenant optical clinic API",
	Long: `Optica serves the clinic JSON API (customers, appointments, prescriptions,
inventory and purchasing) and provides commands to migrate the database,
create tenants and users, and import customer files.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return teardown() },
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./optica.yaml or /etc/optica/optica.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tenantCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(customersCmd)
}

var restoreLogger func()

// setup loads the configuration and installs the global logger.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	_, undo, err := logging.Install(level, cfg.Log.Format)
	if err != nil {
		return err
	}
	restoreLogger = undo
	return nil
}

func teardown() error {
	_ = zap.L().Sync()
	if restoreLogger != nil {
		restoreLogger()
	}
	return nil
}
