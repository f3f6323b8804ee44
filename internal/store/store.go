package store

import (
	"context"

	"github.com/starford/waypoint/internal/models"
)

// VisitStore is what indexing runs and readers need from the store.
// Consumers depend on it rather than on *DB so they can be tested with
// fakes.
type VisitStore interface {
	BeginRun(ctx context.Context, source string) (string, error)
	InsertVisits(ctx context.Context, runID, source string, visits []models.Visit) error
	InsertError(ctx context.Context, runID, source, path, message string) error
	FinishRun(ctx context.Context, runID string, visits, errs int, prune bool) error
	VisitsForURL(ctx context.Context, url string) ([]VisitRow, error)
	Search(ctx context.Context, query string, limit int) ([]VisitRow, error)
	Runs(ctx context.Context, limit int) ([]RunRow, error)
	Run(ctx context.Context, id string) (*RunRow, error)
	RunErrors(ctx context.Context, runID string) ([]ErrorRow, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Verify *DB satisfies VisitStore at compile time.
var _ VisitStore = (*DB)(nil)
