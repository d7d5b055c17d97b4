package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// DefaultMigrationsURL points at the SQL files shipped with the repository,
// relative to the repository root.
const DefaultMigrationsURL = "file://internal/db/migrations"

// MigrateUp applies every pending up migration. No pending migration is not an error.
func MigrateUp(sourceURL, dsn string) error {
	return runMigrations(sourceURL, dsn, func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown rolls back the given number of migrations.
func MigrateDown(sourceURL, dsn string, steps int) error {
	if steps < 1 {
		return errors.New("steps must be positive")
	}
	return runMigrations(sourceURL, dsn, func(m *migrate.Migrate) error { return m.Steps(-steps) })
}

func runMigrations(sourceURL, dsn string, apply func(*migrate.Migrate) error) error {
	migrator, err := migrate.New(sourceURL, dsn)
	if err != nil {
		return fmt.Errorf("init migrator failed: %w", err)
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := apply(migrator); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
