package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver, used only for migrations

	"github.com/sekuba/dvnstats-sub001/pkg/store/postgres/migrations"
)

// runMigrations applies pending schema migrations. golang-migrate takes a
// Postgres advisory lock internally, so concurrent instances starting up at
// once converge on a single migration run.
func runMigrations(ctx context.Context, connString string, logger *slog.Logger) error {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping migration connection: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "schema_migrations",
		DatabaseName:    "dvnstats",
	})
	if err != nil {
		return fmt.Errorf("create postgres migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("create migration source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	logger.Info("applying migrations")
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	} else if err == migrate.ErrNoChange {
		logger.Info("schema already up to date")
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("read migration version: %w", err)
	}
	if err == nil {
		logger.Info("schema version", "version", version, "dirty", dirty)
		if dirty {
			logger.Warn("schema is in a dirty state, manual intervention may be required")
		}
	}

	return nil
}

// RunMigrations applies pending migrations without standing up a full
// Store. No dvnstats subcommand calls it.
func RunMigrations(ctx context.Context, cfg *Config) error {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid postgres config: %w", err)
	}
	return runMigrations(ctx, cfg.ConnectionString(), slog.Default())
}
