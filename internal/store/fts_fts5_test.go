//go:build sqlite_fts5

package store

import (
	"context"
	"testing"

	"github.com/starford/waypoint/internal/models"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM visits_fts`).Scan(&count); err != nil {
		t.Fatalf("visits_fts table missing: %v", err)
	}
}

func TestFTS5_PruneRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first, _ := db.BeginRun(ctx, "orgroam")
	_ = db.InsertVisits(ctx, first, "orgroam", []models.Visit{visit("https://gone.test", "vanishing content", 1)})
	_ = db.FinishRun(ctx, first, 1, 0, true)

	second, _ := db.BeginRun(ctx, "orgroam")
	_ = db.FinishRun(ctx, second, 0, 0, true)

	results, _ := db.Search(ctx, "vanishing", 10)
	if len(results) != 0 {
		t.Errorf("pruned visit still in FTS index: %+v", results)
	}
}
