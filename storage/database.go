// Package storage provides receipt persistence for ATLAS. It supports
// SQLite for local development and PostgreSQL for production, selected
// by the DATABASE_URL scheme.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the database named by databaseURL and verifies the
// connection. Supported schemes: sqlite:// (and sqlite:), postgres://,
// postgresql://. The caller is responsible for running Migrate before
// first use.
func Open(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("open database: empty database URL")
	}

	if isPostgresURL(databaseURL) {
		db, err := sqlx.Connect("postgres", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		return db, nil
	}

	path := sqlitePath(databaseURL)
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", path)
	if path == ":memory:" {
		// WAL is meaningless for in-memory databases, and a shared cache
		// keeps the schema visible across pooled connections.
		dsn = "file::memory:?cache=shared&_foreign_keys=on"
	}

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite tolerates a single writer; serialize access through one
	// connection to avoid SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)
	return db, nil
}

func isPostgresURL(u string) bool {
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://")
}

func sqlitePath(u string) string {
	for _, prefix := range []string{"sqlite:///", "sqlite://", "sqlite:"} {
		if strings.HasPrefix(u, prefix) {
			rest := strings.TrimPrefix(u, prefix)
			if prefix == "sqlite:///" {
				return "/" + rest
			}
			return rest
		}
	}
	return u
}
