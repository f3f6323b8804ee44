//go:build !sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on visits.url and visits.context.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _ string) error { return nil }

func ftsDeleteStale(_ *sql.Tx, _, _ string) error { return nil }

// Search performs a LIKE-based search over URLs and contexts (fallback when
// FTS5 is not compiled in).
func (db *DB) Search(ctx context.Context, query string, limit int) ([]VisitRow, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE url LIKE ? OR context LIKE ?
		ORDER BY dt DESC
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return scanVisits(rows)
}
