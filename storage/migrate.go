package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migration is a named, one-shot schema change. Applied names are recorded
// in the _migrations ledger so each runs exactly once per database.
type migration struct {
	name string
	// up returns the statements for the given driver ("sqlite3" or
	// "postgres"); dialects differ only in autoincrement syntax.
	up func(driver string) []string
}

var migrations = []migration{
	{name: "001_create_receipts", up: migrationCreateReceipts},
}

func migrationCreateReceipts(driver string) []string {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == "postgres" {
		pk = "SERIAL PRIMARY KEY"
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS receipts (
			id %s,
			receipt_id TEXT UNIQUE NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			status TEXT NOT NULL,
			user_input TEXT NOT NULL,
			receipt_json TEXT NOT NULL
		)`, pk),
		`CREATE INDEX IF NOT EXISTS idx_receipts_receipt_id ON receipts(receipt_id)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_created_at ON receipts(created_at DESC)`,
	}
}

// Migrate applies all pending migrations. Safe to call on every startup.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	ledgerPK := "INTEGER PRIMARY KEY"
	if db.DriverName() == "postgres" {
		ledgerPK = "SERIAL PRIMARY KEY"
	}

	ledger := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS _migrations (
		id %s,
		name TEXT UNIQUE NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`, ledgerPK)
	if _, err := db.ExecContext(ctx, ledger); err != nil {
		return fmt.Errorf("create migrations ledger: %w", err)
	}

	for _, m := range migrations {
		var applied int
		query := db.Rebind("SELECT COUNT(*) FROM _migrations WHERE name = ?")
		if err := db.GetContext(ctx, &applied, query, m.name); err != nil {
			return fmt.Errorf("check migration %s: %w", m.name, err)
		}
		if applied > 0 {
			continue
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.name, err)
		}
		if err := applyMigration(ctx, tx, db.DriverName(), m); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.name, err)
		}
	}

	return nil
}

func applyMigration(ctx context.Context, tx *sqlx.Tx, driver string, m migration) error {
	for _, stmt := range m.up(driver) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	record := tx.Rebind("INSERT INTO _migrations (name) VALUES (?)")
	if _, err := tx.ExecContext(ctx, record, m.name); err != nil {
		return fmt.Errorf("record migration %s: %w", m.name, err)
	}
	return nil
}
