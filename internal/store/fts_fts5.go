//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS visits_fts USING fts5(
			id UNINDEXED,
			url,
			context,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, id, url, text string) error {
	_, _ = tx.Exec(`DELETE FROM visits_fts WHERE id = ?`, id)
	_, err := tx.Exec(`INSERT INTO visits_fts (id, url, context) VALUES (?, ?, ?)`, id, url, text)
	if err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

func ftsDeleteStale(tx *sql.Tx, source, runID string) error {
	_, err := tx.Exec(`
		DELETE FROM visits_fts
		WHERE id IN (SELECT id FROM visits WHERE source = ? AND run_id <> ?)
	`, source, runID)
	if err != nil {
		return fmt.Errorf("store: prune fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 full-text search over URLs and contexts.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]VisitRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT v.id, v.source, v.run_id, v.url, v.dt, v.context, v.locator_title, v.locator_href
		FROM visits_fts AS f
		JOIN visits AS v ON v.id = f.id
		WHERE visits_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return scanVisits(rows)
}
