package storage

// sqlite.go: persistence for the risk manager and the executor.
//
// Tablas:
//   ledger          one row with the capital ledger (no in-flight reservations)
//   positions       one row per market (UPSERT), legs as JSON
//   daily           summary per closed UTC day
//   halts           markets blocked by leg risk until ClearHalt
//   order_attempts  every transition of every order attempt (UPSERT by id)
//
// Times are stored as fixed-width UTC TEXT (timeLayout) so text comparison
// in SQL follows time order.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger (
    id                  INTEGER PRIMARY KEY CHECK (id = 1),
    bankroll            REAL    NOT NULL,
    day                 TEXT    NOT NULL,
    deployed_today      REAL    NOT NULL DEFAULT 0,
    realized_today      REAL    NOT NULL DEFAULT 0,
    entries_today       INTEGER NOT NULL DEFAULT 0,
    wins_today          INTEGER NOT NULL DEFAULT 0,
    losses_today        INTEGER NOT NULL DEFAULT 0,
    settled_today       INTEGER NOT NULL DEFAULT 0,
    cycles              TEXT    NOT NULL DEFAULT '{}',
    consecutive_losses  INTEGER NOT NULL DEFAULT 0,
    cooldown_until      TEXT,
    updated_at          TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    market_id   TEXT PRIMARY KEY,
    event_id    TEXT NOT NULL DEFAULT '',
    question    TEXT,
    sport       TEXT NOT NULL DEFAULT '',
    strategy    TEXT NOT NULL,
    legs        TEXT NOT NULL DEFAULT '[]',
    cost        REAL NOT NULL DEFAULT 0,
    entry_time  TEXT NOT NULL,
    end_date    TEXT,
    status      TEXT NOT NULL,
    leg_risk    INTEGER NOT NULL DEFAULT 0,
    payout      REAL NOT NULL DEFAULT 0,
    pnl         REAL NOT NULL DEFAULT 0,
    winner      TEXT NOT NULL DEFAULT '',
    settled_at  TEXT
);

CREATE INDEX IF NOT EXISTS idx_positions_status  ON positions(status);
CREATE INDEX IF NOT EXISTS idx_positions_settled ON positions(settled_at);

CREATE TABLE IF NOT EXISTS daily (
    date            TEXT PRIMARY KEY,
    entries         INTEGER NOT NULL DEFAULT 0,
    deployed        REAL    NOT NULL DEFAULT 0,
    settled         INTEGER NOT NULL DEFAULT 0,
    wins            INTEGER NOT NULL DEFAULT 0,
    losses          INTEGER NOT NULL DEFAULT 0,
    realized_pnl    REAL    NOT NULL DEFAULT 0,
    bankroll        REAL    NOT NULL DEFAULT 0,
    open_positions  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS halts (
    market_id   TEXT PRIMARY KEY,
    reason      TEXT NOT NULL,
    halted_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS order_attempts (
    id               TEXT PRIMARY KEY,
    pair_id          TEXT NOT NULL DEFAULT '',
    market_id        TEXT NOT NULL,
    token_id         TEXT NOT NULL,
    outcome          TEXT NOT NULL DEFAULT '',
    side             TEXT NOT NULL,
    requested_price  REAL NOT NULL,
    requested_size   REAL NOT NULL,
    expected_price   REAL NOT NULL,
    state            TEXT NOT NULL,
    venue_order_id   TEXT NOT NULL DEFAULT '',
    filled_size      REAL NOT NULL DEFAULT 0,
    avg_fill_price   REAL NOT NULL DEFAULT 0,
    slippage         REAL NOT NULL DEFAULT 0,
    retries          INTEGER NOT NULL DEFAULT 0,
    cancel_attempts  INTEGER NOT NULL DEFAULT 0,
    reason           TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_market ON order_attempts(market_id);
CREATE INDEX IF NOT EXISTS idx_attempts_pair   ON order_attempts(pair_id);
`

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// retentionAttempts limits how long terminal order attempts are kept.
const retentionAttempts = 30 * 24 * time.Hour

// SQLiteStorage implements ports.RiskStore and ports.AttemptStore on SQLite
// (pure Go, no CGo).
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage opens (or creates) the database at path, applies the
// schema and prunes old attempts.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db, now: time.Now}
	s.pruneOld(context.Background())
	return s, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld deletes attempts finished more than retentionAttempts ago.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := formatTime(s.now().Add(-retentionAttempts))
	s.db.ExecContext(ctx, `DELETE FROM order_attempts WHERE updated_at < ? AND state NOT IN ('BUILT','SUBMITTED','POLLING')`, cutoff)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return formatTime(*t)
}

func nullTimeVal(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

// parseTime accepts RFC3339 and SQLite's default layout.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
