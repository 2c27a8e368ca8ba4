package manifest

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/scimark/internal/apperr"
	"github.com/starford/scimark/internal/models"
)

// ReplaceLabels swaps the stored reference table for labels in one
// transaction.
func (db *DB) ReplaceLabels(labels []models.Label) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("manifest: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM labels`); err != nil {
		return fmt.Errorf("manifest: clear labels: %w", err)
	}
	if err := ftsClear(tx); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO labels (namespace, label, display, chapter) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("manifest: prepare label insert: %w", err)
	}
	defer stmt.Close()
	for _, l := range labels {
		if _, err := stmt.Exec(l.Namespace, l.Label, l.Display, l.Chapter); err != nil {
			return fmt.Errorf("manifest: insert label: %w", err)
		}
		if err := ftsInsert(tx, l); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Label returns one stored label or an error wrapping apperr.ErrNotFound.
func (db *DB) Label(namespace, label string) (*models.Label, error) {
	l := models.Label{Namespace: namespace, Label: label}
	err := db.conn.QueryRow(`SELECT display, chapter FROM labels WHERE namespace = ? AND label = ?`,
		namespace, label).Scan(&l.Display, &l.Chapter)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("manifest: label %s:%s: %w", namespace, label, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: label: %w", err)
	}
	return &l, nil
}

// Labels lists stored labels ordered by namespace and label. An empty
// namespace lists all of them.
func (db *DB) Labels(namespace string) ([]models.Label, error) {
	q := `SELECT namespace, label, display, chapter FROM labels`
	var args []any
	if namespace != "" {
		q += ` WHERE namespace = ?`
		args = append(args, namespace)
	}
	rows, err := db.conn.Query(q+` ORDER BY namespace, label`, args...)
	if err != nil {
		return nil, fmt.Errorf("manifest: labels: %w", err)
	}
	defer rows.Close()
	return scanLabels(rows)
}

func scanLabels(rows *sql.Rows) ([]models.Label, error) {
	var out []models.Label
	for rows.Next() {
		var l models.Label
		if err := rows.Scan(&l.Namespace, &l.Label, &l.Display, &l.Chapter); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
