// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the visit history to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/waypoint/internal/apperr"
	"github.com/starford/waypoint/internal/history"
)

const visitFormatURI = "waypoint://visit-format"

// Server wraps the MCP server with the history tools.
type Server struct {
	mcp *server.MCPServer
	svc *history.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *history.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Waypoint",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("visits_for_url",
		mcp.WithDescription("List every place a URL was referenced in notes, bibliographies and "+
			"notes-app clippings, newest first. Each visit carries its context and a locator "+
			"pointing back to the source. See the "+visitFormatURI+" resource for the shape."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Exact URL, DOI, ISBN or ISSN")),
	), s.visitsForURL)

	s.mcp.AddTool(mcp.NewTool("search_visits",
		mcp.WithDescription("Full-text search through visit URLs and contexts."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchVisits)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List the most recent indexing runs with their visit and error counts."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
	), s.listRuns)

	s.mcp.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Show one indexing run and the errors its source reported."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Run ID as returned by list_runs")),
	), s.getRun)

	s.mcp.AddTool(mcp.NewTool("get_visit_format",
		mcp.WithDescription("Returns the description of visit records and locators."),
	), s.getVisitFormat)

	s.mcp.AddResource(
		mcp.NewResource(visitFormatURI, "Visit Format",
			mcp.WithResourceDescription("Shape of visit records returned by the tools."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readVisitFormatResource,
	)

	return s
}

// ServeStdio serves MCP on stdin/stdout until ctx is cancelled or stdin
// is closed.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) visitsForURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	visits, err := s.svc.VisitsForURL(ctx, u)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(visits) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("no visits found for %s", u)), nil
	}
	return jsonResult(visits)
}

func (s *Server) searchVisits(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) listRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.svc.Runs(ctx, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(runs)
}

func (s *Server) getRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	run, err := s.svc.Run(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("run not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(run)
}

func (s *Server) getVisitFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(VisitFormat), nil
}

func (s *Server) readVisitFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      visitFormatURI,
			MIMEType: "text/markdown",
			Text:     VisitFormat,
		},
	}, nil
}
