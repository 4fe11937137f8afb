// Package sqlstore persists service requests, chats and accounts through
// database/sql, backed by SQLite for development and tests or by MySQL.
// Timestamps are stored as unix microseconds.
package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names the SQL flavour behind a DB.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite3"
	DialectMySQL  Dialect = "mysql"
)

// DB wraps a database/sql handle together with its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// OpenSQLite opens a SQLite database with WAL mode and recommended pragmas.
// Write transactions take the lock up front so read-then-write sequences never
// fail on lock upgrade.
func OpenSQLite(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, Dialect: DialectSQLite}, nil
}

// OpenMySQL opens a MySQL database. The DSN is adjusted so that migrations may
// carry several statements per file and times are handled in UTC.
func OpenMySQL(dsn string) (*DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.MultiStatements = true
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, Dialect: DialectMySQL}, nil
}

// forUpdate returns the row-locking suffix for a SELECT inside a transaction.
// SQLite locks the whole database when the transaction begins.
func (db *DB) forUpdate() string {
	if db.Dialect == DialectMySQL {
		return " FOR UPDATE"
	}
	return ""
}

// insertIgnore returns the INSERT prefix that skips rows violating a unique key.
func (db *DB) insertIgnore() string {
	if db.Dialect == DialectMySQL {
		return "INSERT IGNORE INTO"
	}
	return "INSERT OR IGNORE INTO"
}
