package sqlstore

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	mysqlmigrate "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/moving-hub/moving-hub/internal/infrastructure/sqlstore/migrations"
)

// MigrateResult describes what happened during migration.
type MigrateResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate runs all pending migrations for the database's dialect.
func (db *DB) Migrate() (*MigrateResult, error) {
	var (
		dir    string
		driver database.Driver
		err    error
	)
	switch db.Dialect {
	case DialectSQLite:
		dir = "sqlite"
		driver, err = sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	case DialectMySQL:
		dir = "mysql"
		driver, err = mysqlmigrate.WithInstance(db.DB, &mysqlmigrate.Config{})
	default:
		return nil, fmt.Errorf("unsupported dialect %q", db.Dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, dir)
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(db.Dialect), driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}

	err = m.Up()
	changed := true
	if errors.Is(err, migrate.ErrNoChange) {
		changed = false
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("migration up: %w", err)
	}

	version, dirty, _ := m.Version()
	return &MigrateResult{Version: version, Dirty: dirty, Changed: changed}, nil
}
