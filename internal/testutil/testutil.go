// Package testutil provides shared test helpers for setting up note trees,
// stores and sources.
package testutil

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/waypoint/internal/models"
	"github.com/starford/waypoint/internal/store"
)

// TestDB creates a temporary SQLite store that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "waypoint-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestNotes creates a temporary directory holding files (relative path to
// content) and returns its resolved path.
func TestNotes(t *testing.T, files map[string]string) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// StaticSource replays a fixed list of results.
type StaticSource struct {
	SourceName string
	Results    []models.Result
}

func (s *StaticSource) Name() string { return s.SourceName }

func (s *StaticSource) Visits(context.Context) iter.Seq[models.Result] {
	return func(yield func(models.Result) bool) {
		for _, r := range s.Results {
			if !yield(r) {
				return
			}
		}
	}
}

// Quiet returns a logger that discards everything.
func Quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
