package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/waypoint/internal/apperr"
	"github.com/starford/waypoint/internal/checksum"
	"github.com/starford/waypoint/internal/models"
)

// VisitRow is a stored visit.
type VisitRow struct {
	ID     string
	Source string
	RunID  string
	models.Visit
}

// RunRow describes one indexing run of a source.
type RunRow struct {
	ID         string
	Source     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Visits     int
	Errors     int
}

// ErrorRow is an error reported by a source during a run.
type ErrorRow struct {
	RunID   string
	Source  string
	Path    string
	Message string
}

// Stats summarises the store.
type Stats struct {
	Visits    int
	URLs      int
	Runs      int
	BySource  map[string]int
	LastRunAt *time.Time
}

const visitColumns = `id, source, run_id, url, dt, context, locator_title, locator_href`

// BeginRun records the start of a run and returns its id.
func (db *DB) BeginRun(ctx context.Context, source string) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO runs (id, source, started_at) VALUES (?, ?, ?)`,
		id, source, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("store: begin run: %w", err)
	}
	return id, nil
}

// InsertVisits stores a batch of visits within a transaction. A visit that
// is already stored is claimed by runID.
func (db *DB) InsertVisits(ctx context.Context, runID, source string, visits []models.Visit) error {
	if len(visits) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO visits (id, source, run_id, url, dt, context, locator_title, locator_href)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			run_id = excluded.run_id,
			locator_title = excluded.locator_title
	`)
	if err != nil {
		return fmt.Errorf("store: prepare visit insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range visits {
		id := checksum.VisitID(v.URL, v.DT, v.Locator.Href, v.Context)
		if _, err := stmt.ExecContext(ctx, id, source, runID, v.URL, v.DT.UTC(), v.Context, v.Locator.Title, v.Locator.Href); err != nil {
			return fmt.Errorf("store: insert visit: %w", err)
		}
		if err := ftsUpsert(tx, id, v.URL, v.Context); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// InsertError records an error result of a run.
func (db *DB) InsertError(ctx context.Context, runID, source, path, message string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO errors (run_id, source, path, message) VALUES (?, ?, ?, ?)`,
		runID, source, path, message)
	if err != nil {
		return fmt.Errorf("store: insert error: %w", err)
	}
	return nil
}

// FinishRun closes a run. With prune set, visits of the run's source that
// were not seen by this run are deleted, so the source's visits reflect a
// full re-scan.
func (db *DB) FinishRun(ctx context.Context, runID string, visits, errs int, prune bool) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var source string
	if err := tx.QueryRowContext(ctx, `SELECT source FROM runs WHERE id = ?`, runID).Scan(&source); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("store: run %s: %w", runID, apperr.ErrNotFound)
		}
		return fmt.Errorf("store: finish run: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, visits = ?, errors = ? WHERE id = ?`,
		time.Now().UTC(), visits, errs, runID); err != nil {
		return fmt.Errorf("store: finish run: %w", err)
	}

	if prune {
		if err := ftsDeleteStale(tx, source, runID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM visits WHERE source = ? AND run_id <> ?`, source, runID); err != nil {
			return fmt.Errorf("store: prune visits: %w", err)
		}
	}
	return tx.Commit()
}

// VisitsForURL returns every visit of url, newest first.
func (db *DB) VisitsForURL(ctx context.Context, url string) ([]VisitRow, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+visitColumns+` FROM visits WHERE url = ? ORDER BY dt DESC`, url)
	if err != nil {
		return nil, fmt.Errorf("store: visits for url: %w", err)
	}
	return scanVisits(rows)
}

// Runs returns the most recent runs, newest first.
func (db *DB) Runs(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, source, started_at, finished_at, visits, errors
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Run returns a single run, or apperr.ErrNotFound.
func (db *DB) Run(ctx context.Context, id string) (*RunRow, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, source, started_at, finished_at, visits, errors
		FROM runs WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return r, err
}

// RunErrors returns the errors recorded for a run.
func (db *DB) RunErrors(ctx context.Context, runID string) ([]ErrorRow, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT run_id, source, path, message FROM errors WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: run errors: %w", err)
	}
	defer rows.Close()

	var out []ErrorRow
	for rows.Next() {
		var e ErrorRow
		if err := rows.Scan(&e.RunID, &e.Source, &e.Path, &e.Message); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats returns aggregate counts.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	s := Stats{BySource: make(map[string]int)}
	if err := db.conn.QueryRowContext(ctx,
		`SELECT count(*), count(DISTINCT url) FROM visits`).Scan(&s.Visits, &s.URLs); err != nil {
		return s, fmt.Errorf("store: stats: %w", err)
	}

	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM runs`).Scan(&s.Runs); err != nil {
		return s, fmt.Errorf("store: stats: %w", err)
	}
	var last time.Time
	err := db.conn.QueryRowContext(ctx, `
		SELECT finished_at FROM runs
		WHERE finished_at IS NOT NULL
		ORDER BY finished_at DESC
		LIMIT 1
	`).Scan(&last)
	switch {
	case err == nil:
		s.LastRunAt = &last
	case !errors.Is(err, sql.ErrNoRows):
		return s, fmt.Errorf("store: stats: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT source, count(*) FROM visits GROUP BY source`)
	if err != nil {
		return s, fmt.Errorf("store: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			src string
			n   int
		)
		if err := rows.Scan(&src, &n); err != nil {
			return s, err
		}
		s.BySource[src] = n
	}
	return s, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRow, error) {
	var (
		r        RunRow
		finished sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.Source, &r.StartedAt, &finished, &r.Visits, &r.Errors); err != nil {
		return nil, err
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

func scanVisits(rows *sql.Rows) ([]VisitRow, error) {
	defer rows.Close()
	var out []VisitRow
	for rows.Next() {
		var v VisitRow
		if err := rows.Scan(&v.ID, &v.Source, &v.RunID, &v.URL, &v.DT, &v.Context, &v.Locator.Title, &v.Locator.Href); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
