// Package storage provides the central SQLite database for AutoClaw.
// A single autoclaw.db file holds scheduler task state, the alert
// history, and the safety audit log. The WhatsApp session database
// (whatsmeow) remains separate.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// schema is the DDL executed on every startup (idempotent via IF NOT EXISTS).
const schema = `
-- Scheduler task state persisted across restarts.
CREATE TABLE IF NOT EXISTS tasks (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT DEFAULT '',
    schedule    TEXT DEFAULT '',
    enabled     INTEGER DEFAULT 1,
    last_run_at TEXT,
    last_error  TEXT DEFAULT '',
    run_count   INTEGER DEFAULT 0
);

-- Resource monitor alert history.
CREATE TABLE IF NOT EXISTS alert_history (
    id         TEXT PRIMARY KEY,
    type       TEXT NOT NULL,
    message    TEXT NOT NULL,
    severity   TEXT NOT NULL,
    value      REAL NOT NULL,
    threshold  REAL NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_history_created ON alert_history(created_at);

-- Safety gate decision audit log.
CREATE TABLE IF NOT EXISTS audit_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    action_type TEXT NOT NULL,
    subject     TEXT NOT NULL,
    allowed     INTEGER NOT NULL,
    reason      TEXT DEFAULT '',
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at);
`

// Open opens (or creates) the central autoclaw.db at the given path,
// enables WAL mode, and creates all tables.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = "./data/autoclaw.db"
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	db, err := sql.Open("sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn from the background loops.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return db, nil
}
