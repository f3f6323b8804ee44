// Package history is the read side of the visit store, shared by the HTTP
// API and the MCP server. It also serializes on-demand re-indexing.
package history

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/starford/waypoint/internal/apperr"
	"github.com/starford/waypoint/internal/indexer"
	"github.com/starford/waypoint/internal/models"
	"github.com/starford/waypoint/internal/store"
)

// VisitItem is a stored visit as returned to clients.
type VisitItem struct {
	URL     string         `json:"url"`
	DT      time.Time      `json:"dt"`
	Context string         `json:"context"`
	Locator models.Locator `json:"locator"`
	Source  string         `json:"source"`
}

// RunItem describes one indexing run.
type RunItem struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Visits     int        `json:"visits"`
	Errors     int        `json:"errors"`
}

// RunError is an error reported by a source during a run.
type RunError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// RunDetail is a run plus the errors it recorded.
type RunDetail struct {
	RunItem
	Failures []RunError `json:"failures"`
}

// Stats summarises the store.
type Stats struct {
	Visits    int            `json:"visits"`
	URLs      int            `json:"urls"`
	Runs      int            `json:"runs"`
	BySource  map[string]int `json:"by_source"`
	LastRunAt *time.Time     `json:"last_run_at,omitempty"`
}

// ReindexFunc runs a full indexing pass.
type ReindexFunc func(ctx context.Context) (indexer.Summary, error)

// Service coordinates store reads and re-index requests.
type Service struct {
	db      store.VisitStore
	reindex ReindexFunc
	mu      sync.Mutex
}

// NewService creates a new history service. reindex may be nil, in which
// case Reindex reports apperr.ErrUnavailable.
func NewService(db store.VisitStore, reindex ReindexFunc) *Service {
	return &Service{db: db, reindex: reindex}
}

// VisitsForURL returns every visit of url, newest first.
func (s *Service) VisitsForURL(ctx context.Context, url string) ([]VisitItem, error) {
	rows, err := s.db.VisitsForURL(ctx, strings.TrimSpace(url))
	if err != nil {
		return nil, err
	}
	return visitItems(rows), nil
}

// Search finds visits whose URL or context matches query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]VisitItem, error) {
	rows, err := s.db.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return visitItems(rows), nil
}

// Runs lists the most recent runs.
func (s *Service) Runs(ctx context.Context, limit int) ([]RunItem, error) {
	rows, err := s.db.Runs(ctx, limit)
	if err != nil {
		return nil, err
	}
	items := make([]RunItem, len(rows))
	for i, r := range rows {
		items[i] = runItem(r)
	}
	return items, nil
}

// Run returns one run with its errors, or apperr.ErrNotFound.
func (s *Service) Run(ctx context.Context, id string) (*RunDetail, error) {
	row, err := s.db.Run(ctx, id)
	if err != nil {
		return nil, err
	}
	errs, err := s.db.RunErrors(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &RunDetail{RunItem: runItem(*row), Failures: make([]RunError, len(errs))}
	for i, e := range errs {
		detail.Failures[i] = RunError{Path: e.Path, Message: e.Message}
	}
	return detail, nil
}

// Stats returns aggregate counts.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := s.db.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Visits:    st.Visits,
		URLs:      st.URLs,
		Runs:      st.Runs,
		BySource:  st.BySource,
		LastRunAt: st.LastRunAt,
	}, nil
}

// Reindex runs a full indexing pass. Only one pass runs at a time; a
// concurrent request gets apperr.ErrBusy.
func (s *Service) Reindex(ctx context.Context) (indexer.Summary, error) {
	if s.reindex == nil {
		return indexer.Summary{}, apperr.ErrUnavailable
	}
	if !s.mu.TryLock() {
		return indexer.Summary{}, apperr.ErrBusy
	}
	defer s.mu.Unlock()
	return s.reindex(ctx)
}

func runItem(r store.RunRow) RunItem {
	return RunItem{
		ID:         r.ID,
		Source:     r.Source,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Visits:     r.Visits,
		Errors:     r.Errors,
	}
}

func visitItems(rows []store.VisitRow) []VisitItem {
	items := make([]VisitItem, len(rows))
	for i, r := range rows {
		items[i] = VisitItem{
			URL:     r.URL,
			DT:      r.DT,
			Context: r.Context,
			Locator: r.Locator,
			Source:  r.Source,
		}
	}
	return items
}
