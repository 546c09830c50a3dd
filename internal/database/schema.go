package database

import "fmt"

// Schema statements, applied in order. Amounts are the TEXT rendering of
// scale-4 decimals; all arithmetic and comparison happens in Go on
// decimal.Decimal, never on SQLite's numeric affinity.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		type        TEXT NOT NULL,
		operator_id TEXT NOT NULL,
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_operator ON accounts(operator_id)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id                              TEXT PRIMARY KEY,
		type                            TEXT,
		settles_clearing_transaction_id TEXT,
		created_at                      TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS journal_entries (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_id TEXT NOT NULL REFERENCES transactions(id),
		account_id     TEXT NOT NULL REFERENCES accounts(id),
		amount         TEXT NOT NULL,
		direction      TEXT NOT NULL,
		phase          TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_journal_account ON journal_entries(account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_journal_transaction ON journal_entries(transaction_id)`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL,
		asset_type TEXT NOT NULL,
		amount     TEXT NOT NULL,
		direction  TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_asset ON ledger_entries(asset_type)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries(account_id)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		outcome_id    TEXT NOT NULL,
		operator_id   TEXT,
		side          TEXT NOT NULL,
		contract_side TEXT,
		price         TEXT NOT NULL,
		quantity      TEXT NOT NULL,
		created_at    TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS domain_events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		payload    TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		market_id  TEXT,
		user_id    TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_market ON domain_events(market_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_user ON domain_events(user_id)`,

	`CREATE TABLE IF NOT EXISTS follows (
		follower_id TEXT NOT NULL,
		leader_id   TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		PRIMARY KEY (follower_id, leader_id)
	)`,
}

// Migrate applies the schema. Every statement is idempotent.
func (db *DB) Migrate() error {
	for i, stmt := range migrations {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
