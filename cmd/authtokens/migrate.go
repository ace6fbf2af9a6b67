package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authtokens/store"
)

const defaultMigrationsTable = "authtokens_schema_migrations"

type migrateOptions struct {
	databaseURL     string
	migrationsTable string
}

func newMigrateCommand(root *rootOptions) *cobra.Command {
	opts := migrateOptions{migrationsTable: defaultMigrationsTable}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres refresh session schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	migrateCmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "Postgres URL. Defaults to AUTHTOKENS_MIGRATE_DATABASE_URL, then storage.postgres.dsn from the config.")
	migrateCmd.PersistentFlags().StringVar(&opts.migrationsTable, "migrations-table", opts.migrationsTable, "Migrations version table name.")

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up [steps]",
		Short: "Apply pending migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, hasSteps, err := parseMigrationStepsArg(args)
			if err != nil {
				return err
			}
			runner, err := newMigrationRunner(root, opts)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := closeMigrationRunner(runner); closeErr != nil {
					cmd.PrintErrf("warning: failed to close migration runner cleanly: %v\n", closeErr)
				}
			}()

			if hasSteps {
				err = runner.Steps(steps)
			} else {
				err = runner.Up()
			}
			if isNoChangeBoundaryError(err) {
				cmd.Println("No schema changes to apply.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			cmd.Println("Migrations applied.")
			return nil
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down <steps>",
		Short: "Roll back migrations by step count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _, err := parseMigrationStepsArg(args)
			if err != nil {
				return err
			}
			runner, err := newMigrationRunner(root, opts)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := closeMigrationRunner(runner); closeErr != nil {
					cmd.PrintErrf("warning: failed to close migration runner cleanly: %v\n", closeErr)
				}
			}()

			err = runner.Steps(-steps)
			if isNoChangeBoundaryError(err) {
				cmd.Println("No schema changes to roll back.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("rollback migrations: %w", err)
			}
			cmd.Printf("Rolled back %d migration step(s).\n", steps)
			return nil
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := newMigrationRunner(root, opts)
			if err != nil {
				return err
			}
			defer closeMigrationRunner(runner)

			version, dirty, err := runner.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				cmd.Println("No migrations applied.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("read schema version: %w", err)
			}
			cmd.Printf("version=%d dirty=%t\n", version, dirty)
			return nil
		},
	})

	return migrateCmd
}

func resolveDatabaseURL(root *rootOptions, flagValue string) (string, error) {
	databaseURL := strings.TrimSpace(flagValue)
	if databaseURL == "" {
		databaseURL = strings.TrimSpace(os.Getenv("AUTHTOKENS_MIGRATE_DATABASE_URL"))
	}
	if databaseURL == "" {
		cfg, err := root.loadConfig()
		if err == nil {
			databaseURL = cfg.Storage.Postgres.DSN
		}
	}
	if databaseURL == "" {
		return "", errors.New("missing database URL: set --database-url, AUTHTOKENS_MIGRATE_DATABASE_URL or storage.postgres.dsn")
	}
	return databaseURL, nil
}

func newMigrationRunner(root *rootOptions, opts migrateOptions) (*migrate.Migrate, error) {
	databaseURL, err := resolveDatabaseURL(root, opts.databaseURL)
	if err != nil {
		return nil, err
	}
	databaseURL, err = applyMigrationsTable(databaseURL, opts.migrationsTable)
	if err != nil {
		return nil, err
	}

	source, err := iofs.New(store.Migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	runner, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create migrate runner: %w", err)
	}
	return runner, nil
}

// applyMigrationsTable sets x-migrations-table unless the URL already does.
func applyMigrationsTable(databaseURL, table string) (string, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return databaseURL, nil
	}

	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	query := parsed.Query()
	if strings.TrimSpace(query.Get("x-migrations-table")) != "" {
		return databaseURL, nil
	}
	query.Set("x-migrations-table", table)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func parseMigrationStepsArg(args []string) (int, bool, error) {
	if len(args) == 0 {
		return 0, false, nil
	}

	steps, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil || steps <= 0 {
		return 0, false, fmt.Errorf("invalid migration steps %q: expected a positive integer", args[0])
	}
	return steps, true, nil
}

func closeMigrationRunner(runner *migrate.Migrate) error {
	if runner == nil {
		return nil
	}
	sourceErr, databaseErr := runner.Close()
	return errors.Join(sourceErr, databaseErr)
}

func isNoChangeBoundaryError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return true
	}
	// Steps past the first or last migration returns a bare os.ErrNotExist.
	return err == os.ErrNotExist
}
