package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens/creates the SQLite DB file and ensures tables exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// Conservative pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is not great with many writers
	db.SetMaxIdleConns(1)

	// Pragmas to improve reliability
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA journal_mode=WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA foreign_keys=ON: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA busy_timeout=5000: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Fail fast if the DB cannot be reached
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const sqliteDriverName = "sqlite"

const schemaDevices = `
CREATE TABLE IF NOT EXISTS devices (
    id TEXT PRIMARY KEY,
    device_type TEXT NOT NULL,
    company_id TEXT NOT NULL,
    wallet_address TEXT,
    location TEXT,
    is_active BOOLEAN NOT NULL DEFAULT 1,
    co2_threshold REAL NOT NULL,
    energy_threshold REAL NOT NULL,
    time_window_s INTEGER NOT NULL,
    last_seen TIMESTAMP,
    registered_at TIMESTAMP NOT NULL
);
`

const schemaReadings = `
CREATE TABLE IF NOT EXISTS readings (
    id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL REFERENCES devices(id),
    ts TIMESTAMP NOT NULL,
    co2 REAL NOT NULL,
    energy REAL NOT NULL,
    temperature REAL,
    humidity REAL,
    content_hash TEXT NOT NULL,
    received_at TIMESTAMP NOT NULL,
    UNIQUE(device_id, content_hash)
);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS credit_transactions (
    id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL,
    company_id TEXT NOT NULL,
    window_start TIMESTAMP NOT NULL,
    content_hash TEXT NOT NULL,
    tx_type TEXT NOT NULL,
    amount INTEGER NOT NULL,
    status TEXT NOT NULL,
    snapshot TEXT,
    error_message TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE(device_id, window_start, content_hash)
);
`

const schemaCompanyCredits = `
CREATE TABLE IF NOT EXISTS company_credits (
    company_id TEXT PRIMARY KEY,
    total_credit INTEGER NOT NULL DEFAULT 0,
    current_credit INTEGER NOT NULL DEFAULT 0,
    sold_credit INTEGER NOT NULL DEFAULT 0,
    offer_price REAL
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		// In case of panic, rollback to avoid leaving an open transaction
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaDevices,
		schemaReadings,
		schemaTransactions,
		schemaCompanyCredits,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
