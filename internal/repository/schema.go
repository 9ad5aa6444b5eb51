// Package repository persists the engine's relational state in SQLite,
// following the teacher's DDL-as-const-string-plus-InitSchema pattern
// (internal/modules/cash_flows/schema.go) and its repository-struct idiom
// (internal/modules/trading/trade_repository.go).
package repository

import (
	"database/sql"
	"fmt"
)

const accountsSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	display_name TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	auto_trading_enabled INTEGER NOT NULL DEFAULT 0,
	oracle_base_url TEXT NOT NULL DEFAULT '',
	oracle_model TEXT NOT NULL DEFAULT '',
	oracle_api_key TEXT NOT NULL DEFAULT '',
	exchange_api_key TEXT NOT NULL DEFAULT '',
	exchange_api_secret TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
`

const strategyConfigsSchema = `
CREATE TABLE IF NOT EXISTS account_strategy_configs (
	account_id INTEGER NOT NULL UNIQUE REFERENCES accounts(id),
	trigger_mode TEXT NOT NULL DEFAULT 'interval',
	interval_seconds INTEGER NOT NULL DEFAULT 60,
	tick_batch_size INTEGER NOT NULL DEFAULT 5,
	enabled INTEGER NOT NULL DEFAULT 0,
	last_trigger_at TEXT,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
`

const decisionLogsSchema = `
CREATE TABLE IF NOT EXISTS ai_decision_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL REFERENCES accounts(id),
	decided_at TEXT NOT NULL,
	operation TEXT NOT NULL,
	symbol TEXT,
	previous_portion REAL NOT NULL DEFAULT 0,
	target_portion REAL NOT NULL DEFAULT 0,
	total_balance REAL NOT NULL DEFAULT 0,
	executed INTEGER NOT NULL DEFAULT 0,
	broker_order_id TEXT,
	failure_reason TEXT NOT NULL DEFAULT '',
	prompt_snapshot TEXT NOT NULL DEFAULT '',
	reasoning_snapshot TEXT NOT NULL DEFAULT '',
	raw_decision_snapshot TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_decision_logs_account ON ai_decision_logs(account_id, decided_at);
`

const assetSnapshotsSchema = `
CREATE TABLE IF NOT EXISTS account_asset_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL REFERENCES accounts(id),
	event_time TEXT NOT NULL,
	cash REAL NOT NULL DEFAULT 0,
	positions_value REAL NOT NULL DEFAULT 0,
	total_assets REAL NOT NULL DEFAULT 0,
	trigger_symbol TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_asset_snapshots_account_time ON account_asset_snapshots(account_id, event_time);
`

const promptTemplatesSchema = `
CREATE TABLE IF NOT EXISTS prompt_templates (
	name TEXT PRIMARY KEY,
	template TEXT NOT NULL,
	system_template TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE TABLE IF NOT EXISTS account_prompt_bindings (
	account_id INTEGER NOT NULL UNIQUE REFERENCES accounts(id),
	template_name TEXT NOT NULL REFERENCES prompt_templates(name)
);
`

const priceTicksSchema = `
CREATE TABLE IF NOT EXISTS crypto_price_ticks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	venue TEXT NOT NULL,
	price REAL NOT NULL,
	event_time TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_ticks_symbol_time ON crypto_price_ticks(symbol, event_time);
`

// InitSchema creates every table the engine persists to, idempotently.
func InitSchema(db *sql.DB) error {
	statements := []string{
		accountsSchema,
		strategyConfigsSchema,
		decisionLogsSchema,
		assetSnapshotsSchema,
		promptTemplatesSchema,
		priceTicksSchema,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
