package orgroam

import (
	"context"
	"errors"
	"log/slog"

	"github.com/starford/waypoint/internal/bibtex"
	"github.com/starford/waypoint/internal/fileset"
	"github.com/starford/waypoint/internal/models"
)

// Bibliography maps citation keys to bibliography entries. It is read-only
// once built and safe for concurrent lookups.
type Bibliography struct {
	entries map[string]bibtex.Entry
}

// Lookup returns the entry stored under key.
func (b *Bibliography) Lookup(key string) (bibtex.Entry, bool) {
	if b == nil {
		return bibtex.Entry{}, false
	}
	e, ok := b.entries[key]
	return e, ok
}

// Len returns the number of distinct citation keys.
func (b *Bibliography) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// BuildBibliography parses every .bib file under paths. When several files
// define the same key the last one wins, whole entry. Roots that cannot be
// traversed are reported in the returned error; the bibliography built from
// the remaining roots is still returned.
func BuildBibliography(ctx context.Context, opts Options, paths ...string) (*Bibliography, error) {
	files, errs := collectAll(opts, ".bib", paths)
	bib, err := loadBibliography(ctx, opts.logger(), files)
	if err != nil {
		errs = append(errs, err)
	}
	return bib, errors.Join(errs...)
}

func loadBibliography(ctx context.Context, logger *slog.Logger, files []string) (*Bibliography, error) {
	bib := &Bibliography{entries: make(map[string]bibtex.Entry)}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return bib, err
		}
		f, err := bibtex.Load(path)
		if err != nil {
			logger.Warn("orgroam: skip bibliography file",
				slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		for _, pe := range f.Errors {
			logger.Warn("orgroam: skip bibliography entry",
				slog.String("path", path),
				slog.Int("line", pe.Line),
				slog.String("key", pe.Key),
				slog.String("error", pe.Msg))
		}
		for _, e := range f.Entries {
			bib.entries[e.Key] = e
		}
	}
	logger.Debug("orgroam: bibliography loaded",
		slog.Int("files", len(files)), slog.Int("entries", len(bib.entries)))
	return bib, nil
}

// collectAll runs the file-set builder over every root and merges the
// results without duplicates. A root that cannot be traversed becomes a
// SourceError and is skipped.
func collectAll(opts Options, ext string, paths []string) ([]string, []error) {
	var (
		files []string
		errs  []error
	)
	for _, root := range paths {
		found, err := fileset.Collect(root, fileset.Options{
			Ext:    ext,
			Follow: opts.Follow,
			Ignore: opts.Ignored,
			Logger: opts.logger(),
		})
		if err != nil {
			errs = append(errs, &models.SourceError{Source: SourceName, Path: root, Err: err})
			continue
		}
		files = append(files, found...)
	}
	return fileset.Dedup(files...), errs
}
