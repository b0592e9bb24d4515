package db

import (
	"errors"
	"fmt"

	"github.com/AdamBeresnev/tourney/migrations"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

// NewMigrate builds a migrator for the dialect of conn using the embedded migration set.
// Closing the returned instance closes conn as well.
func NewMigrate(conn *sqlx.DB) (*migrate.Migrate, error) {
	var (
		driver database.Driver
		dir    string
		err    error
	)

	switch conn.DriverName() {
	case DriverSQLite:
		dir = "sqlite"
		driver, err = sqlite3.WithInstance(conn.DB, &sqlite3.Config{})
	case DriverPostgres:
		dir = "postgres"
		driver, err = postgres.WithInstance(conn.DB, &postgres.Config{})
	default:
		return nil, fmt.Errorf("no migrations for driver %q", conn.DriverName())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate driver instance: %w", err)
	}

	source, err := iofs.New(migrations.FS, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, conn.DriverName(), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

func MigrateUp(conn *sqlx.DB) error {
	m, err := NewMigrate(conn)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func MigrateDown(conn *sqlx.DB) error {
	m, err := NewMigrate(conn)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return nil
}
