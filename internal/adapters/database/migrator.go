package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

var ErrDirtySchema = errors.New("schema is in a dirty migration state")

type migrator struct {
	db *sqlx.DB

	logger *slog.Logger
}

func NewDatabaseMigrator(db *sqlx.DB, logger *slog.Logger) *migrator {
	return &migrator{
		db:     db,
		logger: logger,
	}
}

// withSchema runs fn with a migrate instance bound to schemaName on a dedicated connection
//
// The schema is created if it does not exist.
func (m *migrator) withSchema(ctx context.Context, schemaName string, fn func(instance *migrate.Migrate) error) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("migrate: failed to connect to db: %w", err)
	}
	defer conn.Close()

	err = prepareSchema(ctx, conn, schemaName)
	if err != nil {
		return err
	}

	source, err := iofs.New(embeddedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrate: failed to read embedded migrations: %w", err)
	}
	defer source.Close()

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{
		DatabaseName: DB_NAME,
		SchemaName:   schemaName,
	})
	if err != nil {
		return fmt.Errorf("migrate: failed to create postgres driver: %w", err)
	}

	instance, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate: failed to create migration instance: %w", err)
	}
	defer instance.Close()

	return fn(instance)
}

func prepareSchema(ctx context.Context, conn *sql.Conn, schemaName string) error {
	quoted := pq.QuoteIdentifier(schemaName)

	_, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoted))
	if err != nil {
		return fmt.Errorf("migrate: failed to create schema %s: %w", schemaName, err)
	}

	_, err = conn.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", quoted))
	if err != nil {
		return fmt.Errorf("migrate: failed to set search path to %s: %w", schemaName, err)
	}

	return nil
}

// Migrate applies all pending migrations to the assets schema
func (m *migrator) Migrate(ctx context.Context, schemaName string) error {
	logger := m.logger.With("schema", schemaName)

	return m.withSchema(ctx, schemaName, func(instance *migrate.Migrate) error {
		_, dirty, err := instance.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("migrate: failed to read schema version: %w", err)
		}
		if dirty {
			return fmt.Errorf("migrate: %w: %s", ErrDirtySchema, schemaName)
		}

		logger.InfoContext(ctx, "Applying asset migrations")
		err = instance.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.InfoContext(ctx, "Asset schema already up to date")
			return nil
		}
		if err != nil {
			return fmt.Errorf("migrate: failed to apply migrations: %w", err)
		}

		version, _, err := instance.Version()
		if err != nil {
			return fmt.Errorf("migrate: failed to read schema version after migrating: %w", err)
		}
		logger.InfoContext(ctx, "Applied asset migrations", "version", version)
		return nil
	})
}

// Version returns the migration version of the schema, or 0 if nothing has been applied
func (m *migrator) Version(ctx context.Context, schemaName string) (uint, error) {
	var version uint
	err := m.withSchema(ctx, schemaName, func(instance *migrate.Migrate) error {
		v, _, err := instance.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("migrate: failed to read schema version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}
