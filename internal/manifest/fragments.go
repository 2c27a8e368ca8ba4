package manifest

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/scimark/internal/models"
)

// Record inserts or refreshes a rendered fragment.
func (db *DB) Record(f models.Fragment) error {
	now := time.Now().UTC()
	_, err := db.conn.Exec(`
		INSERT INTO fragments (id, kind, artifact, checksum, zoom, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind         = excluded.kind,
			artifact     = excluded.artifact,
			checksum     = excluded.checksum,
			zoom         = excluded.zoom,
			last_used_at = excluded.last_used_at
	`, f.ID, f.Kind, f.Artifact, f.Checksum, f.Zoom, now, now)
	if err != nil {
		return fmt.Errorf("manifest: record fragment: %w", err)
	}
	return nil
}

// Checksum returns the recorded artifact checksum, or "" when id is unknown.
func (db *DB) Checksum(id string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM fragments WHERE id = ?`, id).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("manifest: checksum: %w", err)
	}
	return cs, nil
}

// Touch marks a fragment as used now.
func (db *DB) Touch(id string) error {
	if _, err := db.conn.Exec(`UPDATE fragments SET last_used_at = ? WHERE id = ?`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("manifest: touch: %w", err)
	}
	return nil
}

// Fragments returns a page of fragments, most recently used first, and the
// total count. An empty kind matches every kind.
func (db *DB) Fragments(limit, offset int, kind string) ([]models.Fragment, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		where string
		args  []any
	)
	if kind != "" {
		where = ` WHERE kind = ?`
		args = append(args, kind)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM fragments`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("manifest: count fragments: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT id, kind, artifact, checksum, zoom, created_at, last_used_at
		FROM fragments`+where+`
		ORDER BY last_used_at DESC, id
		LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("manifest: list fragments: %w", err)
	}
	defer rows.Close()

	var out []models.Fragment
	for rows.Next() {
		var f models.Fragment
		if err := rows.Scan(&f.ID, &f.Kind, &f.Artifact, &f.Checksum, &f.Zoom, &f.CreatedAt, &f.LastUsedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, f)
	}
	return out, total, rows.Err()
}

// Prune deletes fragments whose artifact is not in keep and returns how many
// rows were removed.
func (db *DB) Prune(keep map[string]struct{}) (int, error) {
	rows, err := db.conn.Query(`SELECT id, artifact FROM fragments`)
	if err != nil {
		return 0, fmt.Errorf("manifest: prune scan: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id, artifact string
		if err := rows.Scan(&id, &artifact); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := keep[artifact]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("manifest: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.Prepare(`DELETE FROM fragments WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("manifest: prepare prune: %w", err)
	}
	defer stmt.Close()
	for _, id := range stale {
		if _, err := stmt.Exec(id); err != nil {
			return 0, fmt.Errorf("manifest: prune %s: %w", id, err)
		}
	}
	return len(stale), tx.Commit()
}
