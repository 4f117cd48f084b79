package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/liamcoop/cstt/internal/config"
	"github.com/liamcoop/cstt/internal/logger"
	"github.com/spf13/cobra"
)

type options struct {
	databaseURL    string
	migrationsPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error("Migration failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply the test data schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.databaseURL, "database", "", "database URL (defaults to DATABASE_URL)")
	root.PersistentFlags().StringVar(&opts.migrationsPath, "path", "migrations", "path to migrations directory")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.run(func(m *migrate.Migrate) error {
					logger.Info("Running migrations up...")
					err := m.Up()
					if errors.Is(err, migrate.ErrNoChange) {
						logger.Info("No migrations to run (database is up to date)")
						return nil
					}
					if err != nil {
						return fmt.Errorf("failed to run migrations: %w", err)
					}
					logger.Info("Migrations completed successfully")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations, all of them unless steps is given",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.run(func(m *migrate.Migrate) error {
					var err error
					if len(args) == 1 {
						steps, perr := strconv.Atoi(args[0])
						if perr != nil || steps <= 0 {
							return fmt.Errorf("invalid step count %q", args[0])
						}
						logger.Info("Rolling back migrations...", "steps", steps)
						err = m.Steps(-steps)
					} else {
						logger.Info("Rolling back all migrations...")
						err = m.Down()
					}
					if err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("failed to rollback migrations: %w", err)
					}
					logger.Info("Rollback completed successfully")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.run(func(m *migrate.Migrate) error {
					version, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
						return nil
					}
					if err != nil {
						return fmt.Errorf("failed to get version: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%d (dirty: %v)\n", version, dirty)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version number: %w", err)
				}
				return opts.run(func(m *migrate.Migrate) error {
					if err := m.Force(version); err != nil {
						return fmt.Errorf("failed to force version: %w", err)
					}
					logger.Info("Forced schema version", "version", version)
					return nil
				})
			},
		},
	)
	return root
}

// resolveDatabaseURL prefers the flag, then DATABASE_URL from the
// environment or a .env file
func (o *options) resolveDatabaseURL() (string, error) {
	if o.databaseURL != "" {
		return o.databaseURL, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	if cfg.DatabaseURL == "" {
		return "", errors.New("database URL is required: use --database or DATABASE_URL")
	}
	return cfg.DatabaseURL, nil
}

func (o *options) run(fn func(*migrate.Migrate) error) error {
	databaseURL, err := o.resolveDatabaseURL()
	if err != nil {
		return err
	}

	logger.Info("Connecting to database...", "migrations", o.migrationsPath)
	m, err := migrate.New("file://"+o.migrationsPath, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer m.Close()

	return fn(m)
}
