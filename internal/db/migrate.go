package db

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fitgoals/apiserver/config"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// DefaultMigrationsDir is relative to the repository root.
const DefaultMigrationsDir = "internal/db/migrations"

// MigrateUp applies every pending migration in dir.
func MigrateUp(cfg config.DatabaseConfig, dir string) error {
	return runMigrations(cfg, dir, func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown rolls back the given number of migrations.
func MigrateDown(cfg config.DatabaseConfig, dir string, steps int) error {
	if steps < 1 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	return runMigrations(cfg, dir, func(m *migrate.Migrate) error { return m.Steps(-steps) })
}

func runMigrations(cfg config.DatabaseConfig, dir string, step func(*migrate.Migrate) error) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}

	migrator, err := migrate.New("file://"+filepath.ToSlash(abs), DSN(cfg))
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := step(migrator); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
