//go:build !sqlite_fts5

package manifest

import (
	"database/sql"
	"fmt"

	"github.com/starford/scimark/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; label search uses LIKE on the labels table.
	return nil
}

func ftsClear(_ *sql.Tx) error { return nil }

func ftsInsert(_ *sql.Tx, _ models.Label) error { return nil }

// SearchLabels performs a LIKE-based search (fallback when FTS5 is not
// compiled in).
func (db *DB) SearchLabels(query string, limit int) ([]models.Label, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT namespace, label, display, chapter
		FROM labels
		WHERE label LIKE ? OR display LIKE ?
		ORDER BY namespace, label
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("manifest: search: %w", err)
	}
	defer rows.Close()
	return scanLabels(rows)
}
