package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starford/waypoint/internal/models"
	"github.com/starford/waypoint/internal/sources"
	"github.com/starford/waypoint/internal/sources/orgroam"
	"github.com/starford/waypoint/internal/testutil"
)

var quiet = testutil.Quiet()

func v(url string) models.Result {
	return models.VisitResult(models.Visit{
		URL:     url,
		DT:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Locator: models.MakeLocator("t", "t://"+url),
	})
}

func TestRun_StoresVisitsAndErrors(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()

	src := &testutil.StaticSource{SourceName: "static", Results: []models.Result{
		v("https://a.test"),
		models.ErrorResult(&models.SourceError{Source: "static", Path: "/x/bad", Err: errors.New("boom")}),
		v("https://b.test"),
	}}
	sum, err := Run(ctx, db, []sources.Source{src}, quiet)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Visits != 2 || sum.Errors != 1 || len(sum.Sources) != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	got, _ := db.VisitsForURL(ctx, "https://b.test")
	if len(got) != 1 || got[0].Source != "static" {
		t.Errorf("stored = %+v", got)
	}
	errs, _ := db.RunErrors(ctx, sum.Sources[0].RunID)
	if len(errs) != 1 || errs[0].Path != "/x/bad" {
		t.Errorf("run errors = %+v", errs)
	}
	run, err := db.Run(ctx, sum.Sources[0].RunID)
	if err != nil || run.Visits != 2 || run.Errors != 1 || run.FinishedAt == nil {
		t.Errorf("run = %+v, %v", run, err)
	}
}

func TestRun_FullRescanReplacesVisits(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()

	src := &testutil.StaticSource{SourceName: "static", Results: []models.Result{v("https://old.test")}}
	if _, err := Run(ctx, db, []sources.Source{src}, quiet); err != nil {
		t.Fatal(err)
	}
	src.Results = []models.Result{v("https://new.test")}
	if _, err := Run(ctx, db, []sources.Source{src}, quiet); err != nil {
		t.Fatal(err)
	}

	if got, _ := db.VisitsForURL(ctx, "https://old.test"); len(got) != 0 {
		t.Errorf("old visit survived a full re-scan: %+v", got)
	}
	if got, _ := db.VisitsForURL(ctx, "https://new.test"); len(got) != 1 {
		t.Errorf("new visit missing")
	}
}

func TestRun_CancelledKeepsPreviousVisits(t *testing.T) {
	db := testutil.TestDB(t)

	src := &testutil.StaticSource{SourceName: "static", Results: []models.Result{v("https://old.test")}}
	if _, err := Run(context.Background(), db, []sources.Source{src}, quiet); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, db, []sources.Source{src}, quiet); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if got, _ := db.VisitsForURL(context.Background(), "https://old.test"); len(got) != 1 {
		t.Errorf("previous visits lost")
	}
}

func TestRun_OrgRoamEndToEnd(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	dir := testutil.TestNotes(t, map[string]string{
		"refs.bib":  "@article{foo, url = {http://x.test/a}, doi = {10.1/y}}\n",
		"notes.org": ":PROPERTIES:\n:ROAM_REFS: cite:foo\n:END:\n#+CREATED: [2020-01-01]\n",
		"bad.org":   "* x\n:PROPERTIES:\n",
	})

	src := orgroam.New(orgroam.Options{Logger: quiet}, dir)
	sum, err := Run(ctx, db, []sources.Source{src}, quiet)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Visits != 2 || sum.Errors != 1 {
		t.Errorf("summary = %+v", sum)
	}
	got, _ := db.VisitsForURL(ctx, "10.1/y")
	if len(got) != 1 || got[0].Source != "orgroam" {
		t.Errorf("stored = %+v", got)
	}
}
