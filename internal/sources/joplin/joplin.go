// Package joplin emits visits from the Joplin desktop database.
package joplin

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/waypoint/internal/extract"
	"github.com/starford/waypoint/internal/fileset"
	"github.com/starford/waypoint/internal/models"
)

// SourceName identifies this source in results and the store.
const SourceName = "joplin"

// DefaultPath is where Joplin desktop keeps its database.
const DefaultPath = "~/.config/joplin*/database.sqlite"

// DefaultLocatorSchema is Joplin's URL scheme.
const DefaultLocatorSchema = "joplin"

const contextPreview = 200

var (
	markdownHighlight = regexp.MustCompile(`==(.+?)==`)
	htmlHighlight     = regexp.MustCompile(`<mark>(.+?)</mark>`)
)

// Options configures the source.
type Options struct {
	LocatorSchema string
	// HTTPOnly restricts the query to notes mentioning "http".
	HTTPOnly bool
	Logger   *slog.Logger
}

// Source reads every database matched by its glob patterns.
type Source struct {
	Paths []string
	Options
}

// New returns a Source over the given glob patterns. No pattern means
// DefaultPath.
func New(opts Options, patterns ...string) *Source {
	if len(patterns) == 0 {
		patterns = []string{DefaultPath}
	}
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
	query := notesQuery(s.HTTPOnly)

	return func(yield func(models.Result) bool) {
		for _, pattern := range s.Paths {
			files, err := fileset.Glob(pattern)
			if err != nil {
				if !yield(models.ErrorResult(&models.SourceError{Source: SourceName, Path: pattern, Err: err})) {
					return
				}
				continue
			}
			logger.Debug("joplin: expanded paths", slog.String("pattern", pattern), slog.Any("files", files))

			for _, path := range files {
				if !harvest(ctx, path, query, schema, logger, yield) {
					return
				}
			}
		}
	}
}

// notesQuery returns one row per note with its tags folded into a
// comma-separated list.
func notesQuery(httpOnly bool) string {
	extra := ""
	if httpOnly {
		extra = "AND (title LIKE '%http%' OR body LIKE '%http%' OR source_url LIKE '%http%')"
	}
	return `
WITH gtags AS (
    SELECT nt.note_id, GROUP_CONCAT(t.title, ',') AS tags
    FROM tags AS t
    LEFT JOIN note_tags AS nt ON t.id = nt.tag_id
    GROUP BY nt.note_id
)
SELECT id, title, body, updated_time, source_url, markup_language, g.tags
FROM notes
LEFT JOIN gtags AS g ON g.note_id = id
WHERE body IS NOT NULL ` + extra + `
ORDER BY updated_time`
}

type note struct {
	ID        string
	Title     string
	Body      string
	Updated   int64
	SourceURL string
	Markup    int
	Tags      string
}

// openReadOnly opens the database without taking locks or writing a
// journal, so a running Joplin instance is never disturbed.
func openReadOnly(path string) (*sql.DB, error) {
	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=ro&immutable=1"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("joplin: open %s: %w", path, err)
	}
	return db, nil
}

func harvest(ctx context.Context, path, query, schema string, logger *slog.Logger, yield func(models.Result) bool) bool {
	fail := func(err error) bool {
		return yield(models.ErrorResult(&models.SourceError{Source: SourceName, Path: path, Err: err}))
	}

	db, err := openReadOnly(path)
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fail(fmt.Errorf("joplin: query: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			n                   note
			title, srcURL, tags sql.NullString
			markup              sql.NullInt64
		)
		if err := rows.Scan(&n.ID, &title, &n.Body, &n.Updated, &srcURL, &markup, &tags); err != nil {
			logger.Warn("joplin: skip row", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		n.Title, n.SourceURL, n.Tags, n.Markup = title.String, srcURL.String, tags.String, int(markup.Int64)

		for _, v := range noteVisits(n, schema) {
			if !yield(models.VisitResult(v)) {
				return false
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fail(fmt.Errorf("joplin: rows: %w", err))
	}
	return true
}

func noteVisits(n note, schema string) []models.Visit {
	dt := time.UnixMilli(n.Updated).UTC()
	loc := models.MakeLocator("Joplin", schema+"://x-callback-url/openNote?id="+n.ID)
	var tags string
	if n.Tags != "" {
		tags = models.JoinTags(strings.Split(n.Tags, ","))
	}
	preview := truncate(n.Body, contextPreview)

	withTags := func(parts ...string) string {
		if tags != "" {
			parts = append(parts, tags)
		}
		return strings.Join(parts, "\n")
	}

	var out []models.Visit
	seen := make(map[string]struct{})
	for _, u := range append(extract.URLs(n.Body), extract.URLs(n.Title)...) {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, models.Visit{URL: u, DT: dt, Context: withTags(n.Title, preview, extract.Unescape(u)), Locator: loc})
	}

	if n.SourceURL == "" {
		return out
	}
	re := htmlHighlight
	if n.Markup == 1 {
		re = markdownHighlight
	}
	highlights := re.FindAllStringSubmatch(n.Body, -1)
	if len(highlights) == 0 {
		return append(out, models.Visit{
			URL:     n.SourceURL,
			DT:      dt,
			Context: withTags(n.Title, preview, "clipped: "+extract.Unescape(n.SourceURL)),
			Locator: loc,
		})
	}
	for _, hl := range highlights {
		out = append(out, models.Visit{URL: n.SourceURL, DT: dt, Context: withTags(n.Title, hl[1]), Locator: loc})
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
