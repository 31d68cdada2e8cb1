package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"simpletasks/backend/internal/config"
	"simpletasks/backend/internal/database"
	"simpletasks/backend/internal/repositories"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var configPath string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "simpletasks",
		Short:        "Per-user task management API",
		SilenceUsage: true,
		RunE:         runServe,
	}

	root.PersistentFlags().AddFlagSet(globalFlags())
	root.AddCommand(newServeCommand(), newMigrateCommand())
	return root
}

func globalFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("global", pflag.ContinueOnError)
	fs.StringVarP(&configPath, "config", "c", "", "path to a TOML config file (defaults to $CONFIG_FILE)")
	return fs
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	app.setupRoutes()
	return app.startServer()
}

func newMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: withDatabase(func(pool *database.DatabasePool, cfg *config.Config) error {
				return repositories.Migrate(pool.DB, pool.Driver(), migrationConfig(cfg))
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: withDatabase(func(pool *database.DatabasePool, cfg *config.Config) error {
				if err := requirePostgres(pool); err != nil {
					return err
				}
				return repositories.RollbackMigration(pool.DB, migrationConfig(cfg))
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: withDatabase(func(pool *database.DatabasePool, cfg *config.Config) error {
				if err := requirePostgres(pool); err != nil {
					return err
				}
				version, dirty, err := repositories.GetMigrationVersion(pool.DB, migrationConfig(cfg))
				if errors.Is(err, migrate.ErrNilVersion) {
					log.Println("📋 No migrations applied")
					return nil
				}
				if err != nil {
					return err
				}
				log.Printf("📋 Schema version %d (dirty: %t)", version, dirty)
				return nil
			}),
		},
	)

	return migrateCmd
}

// withDatabase loads config, opens the pool for the duration of fn and
// closes it afterwards.
func withDatabase(fn func(*database.DatabasePool, *config.Config) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		pool, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		return fn(pool, cfg)
	}
}

func requirePostgres(pool *database.DatabasePool) error {
	if pool.Driver() != "postgres" {
		return fmt.Errorf("versioned migrations are only available for postgres (driver is %q)", pool.Driver())
	}
	return nil
}

func openDatabase(cfg *config.Config) (*database.DatabasePool, error) {
	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.GetDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		LogLevel:        database.ParseLogLevel(cfg.Database.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return pool, nil
}

func migrationConfig(cfg *config.Config) *repositories.MigrationConfig {
	mc := repositories.DefaultMigrationConfig()
	mc.MigrationsPath = cfg.Database.MigrationsPath
	mc.DBName = cfg.Database.Name
	return mc
}
