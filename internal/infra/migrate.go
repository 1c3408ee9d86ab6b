package infra

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// RunMigrations applies every pending migration found in dir.
func RunMigrations(databaseURL, dir string) error {
	m, closeFn, err := newMigrator(databaseURL, dir)
	if err != nil {
		return err
	}
	defer closeFn()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// RollbackMigrations reverts the given number of applied migrations.
func RollbackMigrations(databaseURL, dir string, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("rollback steps must be positive")
	}
	m, closeFn, err := newMigrator(databaseURL, dir)
	if err != nil {
		return err
	}
	defer closeFn()
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

func newMigrator(databaseURL, dir string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migration driver: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("resolve migrations dir: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(abs), "postgres", driver)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("load migrations: %w", err)
	}
	return m, func() { _, _ = m.Close() }, nil
}
