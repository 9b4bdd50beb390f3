// Package store is the SQLite persistence layer (modernc.org/sqlite,
// pure-Go, no cgo), implementing every repository interface the other
// packages declare (orderqueue.Store, position.Store, record.Store,
// openorder.Store) plus the Strategy/Account/Capital/WebhookLog entity
// tables. Grounded on the teacher's store/strategy.go and store/tactics.go:
// plain database/sql, `?` placeholders, CREATE TABLE IF NOT EXISTS run
// at startup; updated_at is set by the UPDATE statements themselves (the
// schema has no triggers).
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the shared *sql.DB handle every store type in this package
// embeds, matching the teacher's one-struct-per-table convention
// (StrategyStore{db}, TacticsStore{db}, ...).
type DB struct {
	conn *sql.DB
}

// Open opens (creating if absent) the SQLite database at dsn and runs
// every table's schema migration. SQLite serializes writers at the
// connection-pool level, so MaxOpenConns is pinned to 1 — matching
// modernc.org/sqlite's documented single-writer guidance, since SQLite
// itself has no row-level locking for store/position.go's lock emulation
// to delegate to.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := conn.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error { return db.conn.Close() }

func (db *DB) migrate() error {
	stmts := []string{
		schemaUsers,
		schemaAccounts,
		schemaStrategies,
		schemaStrategyAccounts,
		schemaStrategyCapital,
		schemaStrategyPositions,
		schemaOpenOrders,
		schemaPendingOrders,
		schemaTrades,
		schemaTradeExecutions,
		schemaWebhookLogs,
		schemaDailyAccountSummaries,
	}
	for _, stmt := range stmts {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	return nil
}

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL,
	webhook_token TEXT NOT NULL DEFAULT ''
)`

const schemaAccounts = `
CREATE TABLE IF NOT EXISTS accounts (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id               INTEGER NOT NULL,
	exchange              TEXT NOT NULL,
	account_type          TEXT NOT NULL,
	encrypted_public_key  BLOB NOT NULL,
	encrypted_secret_key  BLOB NOT NULL,
	passphrase            TEXT,
	is_testnet            BOOLEAN NOT NULL DEFAULT 0,
	is_active             BOOLEAN NOT NULL DEFAULT 1
)`

const schemaStrategies = `
CREATE TABLE IF NOT EXISTS strategies (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     INTEGER NOT NULL,
	name        TEXT NOT NULL,
	group_name  TEXT NOT NULL UNIQUE,
	market_type TEXT NOT NULL,
	is_active   BOOLEAN NOT NULL DEFAULT 1,
	is_public   BOOLEAN NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_strategies_group_name ON strategies(group_name)`

const schemaStrategyAccounts = `
CREATE TABLE IF NOT EXISTS strategy_accounts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_id INTEGER NOT NULL,
	account_id  INTEGER NOT NULL,
	weight      TEXT NOT NULL DEFAULT '1',
	leverage    TEXT NOT NULL DEFAULT '1',
	max_symbols INTEGER NOT NULL DEFAULT 0,
	is_active   BOOLEAN NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_strategy_accounts_strategy_id ON strategy_accounts(strategy_id)`

const schemaStrategyCapital = `
CREATE TABLE IF NOT EXISTS strategy_capital (
	strategy_account_id INTEGER PRIMARY KEY,
	allocated_capital    TEXT NOT NULL DEFAULT '0',
	current_pnl          TEXT NOT NULL DEFAULT '0',
	last_updated         DATETIME DEFAULT CURRENT_TIMESTAMP
)`

const schemaStrategyPositions = `
CREATE TABLE IF NOT EXISTS strategy_positions (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_account_id INTEGER NOT NULL,
	symbol              TEXT NOT NULL,
	quantity            TEXT NOT NULL,
	entry_price         TEXT NOT NULL,
	last_updated        DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(strategy_account_id, symbol)
)`

const schemaOpenOrders = `
CREATE TABLE IF NOT EXISTS open_orders (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	exchange_order_id   TEXT NOT NULL UNIQUE,
	strategy_account_id INTEGER NOT NULL,
	symbol              TEXT NOT NULL,
	side                TEXT NOT NULL,
	order_type          TEXT NOT NULL,
	quantity            TEXT NOT NULL,
	filled_quantity     TEXT NOT NULL DEFAULT '0',
	price               TEXT NOT NULL DEFAULT '0',
	stop_price          TEXT NOT NULL DEFAULT '0',
	status              TEXT NOT NULL,
	market_type         TEXT NOT NULL,
	created_at          DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at          DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_open_orders_account_symbol ON open_orders(strategy_account_id, symbol)`

const schemaPendingOrders = `
CREATE TABLE IF NOT EXISTS pending_orders (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_account_id INTEGER NOT NULL,
	symbol              TEXT NOT NULL,
	side                TEXT NOT NULL,
	order_type          TEXT NOT NULL,
	quantity            TEXT NOT NULL,
	price               TEXT NOT NULL DEFAULT '0',
	stop_price          TEXT NOT NULL DEFAULT '0',
	priority            INTEGER NOT NULL,
	reason              TEXT NOT NULL DEFAULT '',
	enqueued_at         DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_pending_orders_lookup ON pending_orders(strategy_account_id, symbol, side)`

const schemaTrades = `
CREATE TABLE IF NOT EXISTS trades (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_account_id INTEGER NOT NULL,
	exchange_order_id   TEXT NOT NULL,
	symbol              TEXT NOT NULL,
	side                TEXT NOT NULL,
	quantity            TEXT NOT NULL,
	price               TEXT NOT NULL,
	order_price         TEXT NOT NULL DEFAULT '0',
	order_type          TEXT NOT NULL,
	is_entry            BOOLEAN NOT NULL,
	pnl                 TEXT,
	fee                 TEXT NOT NULL DEFAULT '0',
	timestamp           DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(strategy_account_id, exchange_order_id)
);
CREATE INDEX IF NOT EXISTS idx_trades_account_symbol ON trades(strategy_account_id, symbol)`

const schemaTradeExecutions = `
CREATE TABLE IF NOT EXISTS trade_executions (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	trade_id         INTEGER NOT NULL,
	venue_trade_id   TEXT NOT NULL,
	quantity         TEXT NOT NULL,
	price            TEXT NOT NULL,
	is_maker         BOOLEAN NOT NULL DEFAULT 0,
	commission_asset TEXT NOT NULL DEFAULT '',
	commission       TEXT NOT NULL DEFAULT '0',
	timestamp        DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(trade_id, venue_trade_id)
)`

const schemaWebhookLogs = `
CREATE TABLE IF NOT EXISTS webhook_logs (
	id                        INTEGER PRIMARY KEY AUTOINCREMENT,
	group_name                TEXT NOT NULL,
	raw_payload               TEXT NOT NULL,
	validation_time_ms        INTEGER NOT NULL DEFAULT 0,
	preprocessing_time_ms     INTEGER NOT NULL DEFAULT 0,
	total_processing_time_ms  INTEGER NOT NULL DEFAULT 0,
	success                   BOOLEAN NOT NULL,
	created_at                DATETIME DEFAULT CURRENT_TIMESTAMP
)`

const schemaDailyAccountSummaries = `
CREATE TABLE IF NOT EXISTS daily_account_summaries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL,
	date       DATE NOT NULL,
	equity     TEXT NOT NULL,
	pnl        TEXT NOT NULL,
	UNIQUE(account_id, date)
)`
