//go:build sqlite_fts5

package manifest

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/scimark/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS labels_fts USING fts5(
			namespace UNINDEXED,
			label,
			display,
			chapter UNINDEXED,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsClear(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM labels_fts`); err != nil {
		return fmt.Errorf("manifest: clear fts: %w", err)
	}
	return nil
}

func ftsInsert(tx *sql.Tx, l models.Label) error {
	_, err := tx.Exec(`INSERT INTO labels_fts (namespace, label, display, chapter) VALUES (?, ?, ?, ?)`,
		l.Namespace, l.Label, l.Display, l.Chapter)
	if err != nil {
		return fmt.Errorf("manifest: insert fts: %w", err)
	}
	return nil
}

// SearchLabels performs an FTS5 prefix search over label names and display
// text.
func (db *DB) SearchLabels(query string, limit int) ([]models.Label, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT namespace, label, display, chapter
		FROM labels_fts
		WHERE labels_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, `"`+strings.ReplaceAll(query, `"`, `""`)+`"*`, limit)
	if err != nil {
		return nil, fmt.Errorf("manifest: search: %w", err)
	}
	defer rows.Close()
	return scanLabels(rows)
}
