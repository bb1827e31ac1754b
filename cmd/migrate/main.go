// Command migrate manages the PostgreSQL schema. The SQLite store creates its
// schema when opened and has nothing to migrate.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/helixir/reference-service/internal/config"
	"github.com/helixir/reference-service/internal/database"
	"github.com/helixir/reference-service/internal/observability"
)

var (
	timeout  time.Duration
	logLevel string
	confirm  bool
)

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Apply or inspect reference-service database migrations",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *database.Migrator) (database.MigrationStatus, error) {
			return m.Up()
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert every applied migration, dropping all data",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm {
			return fmt.Errorf("down drops every table; rerun with --yes to confirm")
		}
		return withMigrator(func(m *database.Migrator) (database.MigrationStatus, error) {
			return m.Down()
		})
	},
}

var stepsCmd = &cobra.Command{
	Use:   "steps N",
	Short: "Apply N migrations, or revert -N when negative",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n == 0 {
			return fmt.Errorf("steps needs a non-zero integer, got %q", args[0])
		}
		return withMigrator(func(m *database.Migrator) (database.MigrationStatus, error) {
			return m.Steps(n)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *database.Migrator) (database.MigrationStatus, error) {
			return m.Status()
		})
	},
}

var forceCmd = &cobra.Command{
	Use:   "force VERSION",
	Short: "Mark VERSION as applied and clear the dirty flag",
	Long: `Force records VERSION in the migrations table without running any SQL.
Use it after a failed migration has been repaired by hand.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 {
			return fmt.Errorf("force needs a version >= 0, got %q", args[0])
		}
		return withMigrator(func(m *database.Migrator) (database.MigrationStatus, error) {
			return m.Force(v)
		})
	},
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "database connect timeout")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
	downCmd.Flags().BoolVar(&confirm, "yes", false, "confirm reverting all migrations")

	rootCmd.AddCommand(upCmd, downCmd, stepsCmd, statusCmd, forceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// withMigrator connects using the service configuration, runs fn and prints
// the resulting schema version.
func withMigrator(fn func(*database.Migrator) (database.MigrationStatus, error)) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("configured driver is %s; migrations only apply to %s",
			cfg.Database.Driver, config.DriverPostgres)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  logLevel,
		Format: "console",
		Output: "stderr",
	}).With().Str("component", "migrate").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	m, err := database.NewMigrator(db, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("closing migrator")
		}
	}()

	st, err := fn(m)
	if err != nil {
		return err
	}
	fmt.Println(st)
	return nil
}
