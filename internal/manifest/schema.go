// Package manifest records rendered fragments and the last reference table in
// SQLite, with optional FTS5 search over labels.
package manifest

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS fragments (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	artifact     TEXT NOT NULL,
	checksum     TEXT NOT NULL DEFAULT '',
	zoom         REAL NOT NULL DEFAULT 1,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_used_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_fragments_kind ON fragments(kind);

CREATE TABLE IF NOT EXISTS labels (
	namespace TEXT NOT NULL,
	label     TEXT NOT NULL,
	display   TEXT NOT NULL,
	chapter   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (namespace, label)
);
`

// DB wraps a sql.DB with manifest operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("manifest: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
