// Package indexer runs sources and stores what they produce.
package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/waypoint/internal/models"
	"github.com/starford/waypoint/internal/sources"
	"github.com/starford/waypoint/internal/store"
)

const batchSize = 500

// SourceSummary reports one source's run.
type SourceSummary struct {
	Source   string        `json:"source"`
	RunID    string        `json:"run_id"`
	Visits   int           `json:"visits"`
	Errors   int           `json:"errors"`
	Duration time.Duration `json:"duration"`
	// Err is set when the run could not be recorded at all.
	Err error `json:"-"`
}

// Summary reports a whole indexing pass.
type Summary struct {
	Sources []SourceSummary `json:"sources"`
	Visits  int             `json:"visits"`
	Errors  int             `json:"errors"`
}

// Run indexes every source in turn. Error results are logged and recorded
// with the run; they never stop it. A source whose run cannot be stored is
// reported in its SourceSummary and the remaining sources still run. The
// returned error is non-nil only when ctx ends the pass early.
func Run(ctx context.Context, db store.VisitStore, srcs []sources.Source, logger *slog.Logger) (Summary, error) {
	var sum Summary
	for _, src := range srcs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		s := runSource(ctx, db, src, logger)
		sum.Sources = append(sum.Sources, s)
		sum.Visits += s.Visits
		sum.Errors += s.Errors
	}
	logger.Info("indexer: pass finished",
		slog.Int("sources", len(srcs)),
		slog.Int("visits", sum.Visits),
		slog.Int("errors", sum.Errors))
	return sum, ctx.Err()
}

func runSource(ctx context.Context, db store.VisitStore, src sources.Source, logger *slog.Logger) SourceSummary {
	start := time.Now()
	name := src.Name()
	sum := SourceSummary{Source: name}

	runID, err := db.BeginRun(ctx, name)
	if err != nil {
		logger.Warn("indexer: begin run failed", slog.String("source", name), slog.String("error", err.Error()))
		sum.Err = err
		return sum
	}
	sum.RunID = runID

	batch := make([]models.Visit, 0, batchSize)
	storeFailed := false
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := db.InsertVisits(ctx, runID, name, batch); err != nil {
			logger.Warn("indexer: insert visits failed", slog.String("source", name), slog.String("error", err.Error()))
			storeFailed = true
		}
		batch = batch[:0]
	}

	for r := range src.Visits(ctx) {
		if r.IsError() {
			sum.Errors++
			path := ""
			if se, ok := models.AsSourceError(r.Err); ok {
				path = se.Path
			}
			logger.Warn("indexer: source error",
				slog.String("source", name),
				slog.String("path", path),
				slog.String("error", r.Err.Error()))
			if err := db.InsertError(ctx, runID, name, path, r.Err.Error()); err != nil {
				logger.Warn("indexer: insert error failed", slog.String("source", name), slog.String("error", err.Error()))
			}
			continue
		}
		sum.Visits++
		batch = append(batch, *r.Visit)
		if len(batch) == batchSize {
			flush()
		}
	}
	flush()

	// A cancelled or partially stored run must not drop the previous run's
	// visits.
	complete := ctx.Err() == nil && !storeFailed
	finishCtx := context.WithoutCancel(ctx)
	if err := db.FinishRun(finishCtx, runID, sum.Visits, sum.Errors, complete); err != nil {
		logger.Warn("indexer: finish run failed", slog.String("source", name), slog.String("error", err.Error()))
		sum.Err = err
	}
	sum.Duration = time.Since(start)

	logger.Info("indexer: source indexed",
		slog.String("source", name),
		slog.String("run_id", runID),
		slog.Int("visits", sum.Visits),
		slog.Int("errors", sum.Errors),
		slog.Duration("duration", sum.Duration))
	return sum
}
