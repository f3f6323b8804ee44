// Package bib emits visits straight from BibTeX libraries kept by reference
// managers such as JabRef or Zotero.
package bib

import (
	"context"
	"iter"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/starford/waypoint/internal/bibtex"
	"github.com/starford/waypoint/internal/extract"
	"github.com/starford/waypoint/internal/fileset"
	"github.com/starford/waypoint/internal/models"
)

// SourceName identifies this source in results and the store.
const SourceName = "bib"

// DefaultLocatorSchema is used when Options.LocatorSchema is empty.
const DefaultLocatorSchema = "zotero"

// Options configures the source.
type Options struct {
	LocatorSchema string
	Logger        *slog.Logger
}

// Source reads every file matched by its glob patterns.
type Source struct {
	Paths []string
	Options
}

// New returns a Source over the given glob patterns.
func New(opts Options, patterns ...string) *Source {
	return &Source{Paths: patterns, Options: opts}
}

func (s *Source) Name() string { return SourceName }

func (s *Source) Visits(ctx context.Context) iter.Seq[models.Result] {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	schema := s.LocatorSchema
	if schema == "" {
		schema = DefaultLocatorSchema
	}

	return func(yield func(models.Result) bool) {
		for _, pattern := range s.Paths {
			files, err := fileset.Glob(pattern)
			if err != nil {
				if !yield(models.ErrorResult(&models.SourceError{Source: SourceName, Path: pattern, Err: err})) {
					return
				}
				continue
			}
			logger.Debug("bib: expanded paths", slog.String("pattern", pattern), slog.Any("files", files))

			for _, path := range files {
				if err := ctx.Err(); err != nil {
					yield(models.ErrorResult(err))
					return
				}
				if !loadFile(path, schema, logger, yield) {
					return
				}
			}
		}
	}
}

func loadFile(path, schema string, logger *slog.Logger, yield func(models.Result) bool) bool {
	info, err := os.Stat(path)
	if err != nil {
		return yield(models.ErrorResult(&models.SourceError{Source: SourceName, Path: path, Err: err}))
	}
	f, err := bibtex.Load(path)
	if err != nil {
		return yield(models.ErrorResult(&models.SourceError{Source: SourceName, Path: path, Err: err}))
	}
	for _, pe := range f.Errors {
		logger.Warn("bib: skip entry",
			slog.String("path", path),
			slog.Int("line", pe.Line),
			slog.String("key", pe.Key),
			slog.String("error", pe.Msg))
	}
	for _, e := range f.Entries {
		for _, v := range entryVisits(e, entryTime(e, info.ModTime(), logger), schema) {
			if !yield(models.VisitResult(v)) {
				return false
			}
		}
	}
	return true
}

// entryVisits emits the url visit first, then isbn, issn and doi.
func entryVisits(e bibtex.Entry, dt time.Time, schema string) []models.Visit {
	ctx := entryContext(e)
	loc := Locator(schema, e.Key)

	var out []models.Visit
	if v := strings.TrimSpace(e.Get("url")); v != "" {
		out = append(out, models.Visit{URL: extract.Unescape(e.Get("url")), DT: dt, Context: ctx, Locator: loc})
	}
	for _, field := range []string{"isbn", "issn", "doi"} {
		if strings.TrimSpace(e.Get(field)) == "" {
			continue
		}
		out = append(out, models.Visit{URL: e.Get(field), DT: dt, Context: ctx, Locator: loc})
	}
	return out
}

func entryContext(e bibtex.Entry) string {
	parts := []string{e.Type + " " + e.Get("author") + " / cite:@" + e.Key}
	if e.Has("title") {
		parts = append(parts, e.Get("title"))
	}
	if e.Has("abstract") {
		parts = append(parts, e.Get("abstract"))
	}
	keywords := e.Get("keywords")
	if keywords == "" {
		keywords = e.Get("keyword")
	}
	if tags := models.JoinTags(strings.Split(keywords, ",")); tags != "" {
		parts = append(parts, tags)
	}
	return strings.Join(parts, "\n")
}

// Locator links back to the entry in the reference manager.
//
// The title follows schema but the link always opens Zotero: JabRef cannot
// select an entry by citation key.
func Locator(schema, key string) models.Locator {
	title := "JabRef"
	if schema == "zotero" {
		title = "Zotero"
	}
	return models.MakeLocator(title, "zotero://select/items/@["+key+"]")
}

// entryTime dates an entry from urldate, date or year and month, falling
// back to the file's modification time.
func entryTime(e bibtex.Entry, fallback time.Time, logger *slog.Logger) time.Time {
	for _, field := range []string{"urldate", "date"} {
		raw := strings.TrimSpace(e.Get(field))
		if raw == "" {
			continue
		}
		// biblatex ranges: "2018-09-01/2018-09-05"
		raw, _, _ = strings.Cut(raw, "/")
		t, err := dateparse.ParseIn(raw, time.Local)
		if err == nil {
			return t
		}
		logger.Debug("bib: unparsed date",
			slog.String("key", e.Key), slog.String("field", field), slog.String("error", err.Error()))
	}
	if year, err := strconv.Atoi(strings.TrimSpace(e.Get("year"))); err == nil && year > 0 {
		return time.Date(year, parseMonth(e.Get("month")), 1, 0, 0, 0, 0, time.Local)
	}
	return fallback
}

func parseMonth(s string) time.Month {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 12 {
		return time.Month(n)
	}
	if len(s) >= 3 {
		for m := time.January; m <= time.December; m++ {
			if strings.HasPrefix(strings.ToLower(m.String()), s[:3]) {
				return m
			}
		}
	}
	return time.January
}
