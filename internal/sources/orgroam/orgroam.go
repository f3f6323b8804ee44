// Package orgroam indexes org-roam note collections. Nodes that reference a
// bibliography entry through ROAM_REFS ("cite:key") produce one visit per
// identifying field of that entry; URLs written in nodes produce visits too.
package orgroam

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/starford/waypoint/internal/extract"
	"github.com/starford/waypoint/internal/models"
	"github.com/starford/waypoint/internal/org"
)

// SourceName identifies this source in results and the store.
const SourceName = "orgroam"

// Sequential disables the worker pool: files are processed one after the
// other in file-set order.
const Sequential = -1

// Options configures an indexing run.
type Options struct {
	Ignored  []string
	Follow   bool
	Replacer extract.Replacer
	// Workers is Sequential, 0 for one worker per CPU, or a worker count.
	Workers      int
	EditorScheme string
	Logger       *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) workers() int {
	switch {
	case o.Workers == 0:
		return runtime.NumCPU()
	case o.Workers < 0:
		return Sequential
	default:
		return o.Workers
	}
}

// Source is the org-roam source over a set of root paths.
type Source struct {
	Paths []string
	Options
}

// New returns a Source over paths.
func New(opts Options, paths ...string) *Source {
	return &Source{Paths: paths, Options: opts}
}

func (s *Source) Name() string { return SourceName }

func (s *Source) Visits(ctx context.Context) iter.Seq[models.Result] {
	return Index(ctx, s.Options, s.Paths...)
}

// Index runs the two phases over paths: first the bibliography is built
// from every .bib file, then every .org file is walked against it. Results
// of a file are delivered together; in parallel mode files arrive in
// completion order.
func Index(ctx context.Context, opts Options, paths ...string) iter.Seq[models.Result] {
	return func(yield func(models.Result) bool) {
		logger := opts.logger()

		bibFiles, errs := collectAll(opts, ".bib", paths)
		for _, err := range errs {
			if !yield(models.ErrorResult(err)) {
				return
			}
		}
		bib, err := loadBibliography(ctx, logger, bibFiles)
		if err != nil {
			yield(models.ErrorResult(err))
			return
		}

		// Root errors were already reported by the first pass.
		orgFiles, _ := collectAll(opts, ".org", paths)
		logger.Debug("orgroam: indexing files",
			slog.Int("files", len(orgFiles)),
			slog.Int("bib_entries", bib.Len()),
			slog.Int("workers", opts.workers()))

		process := func(path string) fileOutcome {
			return processFile(path, bib, opts)
		}
		if opts.workers() == Sequential {
			runSequential(ctx, orgFiles, process, yield)
			return
		}
		runParallel(ctx, orgFiles, opts.workers(), process, yield)
	}
}

// fileOutcome is the total result of processing one file: either all of its
// results or a single error.
type fileOutcome struct {
	results []models.Result
	err     error
}

func (o fileOutcome) emit(yield func(models.Result) bool) bool {
	if o.err != nil {
		return yield(models.ErrorResult(o.err))
	}
	for _, r := range o.results {
		if !yield(r) {
			return false
		}
	}
	return true
}

func runSequential(ctx context.Context, files []string, process func(string) fileOutcome, yield func(models.Result) bool) {
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			yield(models.ErrorResult(err))
			return
		}
		if !process(path).emit(yield) {
			return
		}
	}
}

func runParallel(ctx context.Context, files []string, workers int, process func(string) fileOutcome, yield func(models.Result) bool) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)
	g.SetLimit(workers)
	outcomes := make(chan fileOutcome)

	go func() {
		defer close(outcomes)
		for _, path := range files {
			if gCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				if gCtx.Err() != nil {
					return nil
				}
				o := process(path)
				select {
				case outcomes <- o:
				case <-gCtx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	for o := range outcomes {
		if !o.emit(yield) {
			cancel()
			for range outcomes {
			}
			return
		}
	}
	if err := ctx.Err(); err != nil {
		yield(models.ErrorResult(err))
	}
}

// processFile parses and walks one org file. It never panics and never
// returns partial results: any whole-file failure becomes the outcome's
// error.
func processFile(path string, bib *Bibliography, opts Options) (out fileOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = fileOutcome{err: &models.SourceError{Source: SourceName, Path: path, Err: fmt.Errorf("panic: %v", r)}}
		}
	}()

	info, err := os.Stat(path)
	if err != nil {
		return fileOutcome{err: &models.SourceError{Source: SourceName, Path: path, Err: err}}
	}
	doc, err := org.Load(path)
	if err != nil {
		return fileOutcome{err: &models.SourceError{Source: SourceName, Path: path, Err: err}}
	}

	var results []models.Result
	for step := range Walk(doc.Root, info.ModTime()) {
		if step.Err != nil {
			results = append(results, models.ErrorResult(&models.SourceError{
				Source: SourceName,
				Path:   path,
				Line:   step.Node.Line,
				Entry:  step.Node.Heading,
				Err:    step.Err,
			}))
			continue
		}
		loc := models.FileLocator(opts.EditorScheme, path, step.Node.Line)
		for _, v := range crossRefVisits(step, bib, loc) {
			results = append(results, models.VisitResult(v))
		}
		for _, v := range linkVisits(step, path, opts.Replacer, loc) {
			results = append(results, models.VisitResult(v))
		}
	}
	return fileOutcome{results: results}
}
