// Package store keeps indexed visits in SQLite, with optional FTS5 search
// over visit URLs and contexts.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	visits      INTEGER NOT NULL DEFAULT 0,
	errors      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS visits (
	id            TEXT PRIMARY KEY,
	source        TEXT NOT NULL,
	url           TEXT NOT NULL,
	dt            DATETIME NOT NULL,
	context       TEXT NOT NULL DEFAULT '',
	locator_title TEXT NOT NULL DEFAULT '',
	locator_href  TEXT NOT NULL DEFAULT '',
	run_id        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS errors (
	run_id  TEXT NOT NULL,
	source  TEXT NOT NULL,
	path    TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_visits_url ON visits(url);
CREATE INDEX IF NOT EXISTS idx_visits_source ON visits(source, run_id);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_errors_run ON errors(run_id);
`

// DB wraps a sql.DB with visit-history operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
