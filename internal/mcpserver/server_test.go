package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/waypoint/internal/history"
	"github.com/starford/waypoint/internal/models"
	"github.com/starford/waypoint/internal/testutil"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	db := testutil.TestDB(t)
	ctx := context.Background()

	runID, err := db.BeginRun(ctx, "bib")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.InsertVisits(ctx, runID, "bib", []models.Visit{{
		URL:     "10.1145/3290605",
		DT:      time.Date(2019, 5, 1, 0, 0, 0, 0, time.UTC),
		Context: "inproceedings Doe / cite:@doe2019\nOn clipping",
		Locator: models.MakeLocator("Zotero", "zotero://select/items/@[doe2019]"),
	}}); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertError(ctx, runID, "bib", "/lib/broken.bib", "unterminated entry"); err != nil {
		t.Fatal(err)
	}
	if err := db.FinishRun(ctx, runID, 1, 1, true); err != nil {
		t.Fatal(err)
	}

	return New(history.NewService(db, nil), "test"), runID
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are called
	// directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "visits_for_url":
		result, err = srv.visitsForURL(ctx, req)
	case "search_visits":
		result, err = srv.searchVisits(ctx, req)
	case "list_runs":
		result, err = srv.listRuns(ctx, req)
	case "get_run":
		result, err = srv.getRun(ctx, req)
	case "get_visit_format":
		result, err = srv.getVisitFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestVisitsForURL(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "visits_for_url", map[string]any{"url": "10.1145/3290605"})
	if r.IsError {
		t.Fatalf("error: %s", resultText(r))
	}
	var visits []history.VisitItem
	if err := json.Unmarshal([]byte(resultText(r)), &visits); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(visits) != 1 || visits[0].Locator.Title != "Zotero" || visits[0].Source != "bib" {
		t.Errorf("visits = %+v", visits)
	}
}

func TestVisitsForURL_None(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "visits_for_url", map[string]any{"url": "https://nowhere.test"})
	if r.IsError || !strings.HasPrefix(resultText(r), "no visits found") {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestVisitsForURL_MissingArg(t *testing.T) {
	srv, _ := testServer(t)
	if r := callTool(t, srv, "visits_for_url", map[string]any{}); !r.IsError {
		t.Error("expected error for missing url")
	}
}

func TestSearchVisits(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "search_visits", map[string]any{"query": "clipping", "limit": 5})
	if !strings.Contains(resultText(r), "doe2019") {
		t.Errorf("search = %q", resultText(r))
	}
}

func TestListAndGetRun(t *testing.T) {
	srv, runID := testServer(t)

	r := callTool(t, srv, "list_runs", map[string]any{})
	if !strings.Contains(resultText(r), runID) {
		t.Errorf("list_runs = %q", resultText(r))
	}

	r = callTool(t, srv, "get_run", map[string]any{"id": runID})
	if !strings.Contains(resultText(r), "/lib/broken.bib") {
		t.Errorf("get_run = %q", resultText(r))
	}

	r = callTool(t, srv, "get_run", map[string]any{"id": "missing"})
	if !r.IsError {
		t.Error("expected error for missing run")
	}
}

func TestGetVisitFormat(t *testing.T) {
	srv, _ := testServer(t)
	if r := callTool(t, srv, "get_visit_format", nil); resultText(r) != VisitFormat {
		t.Error("visit format mismatch")
	}
}
