package api

import (
	"github.com/starford/waypoint/internal/history"
	"github.com/starford/waypoint/internal/indexer"
)

// VisitItem is a stored visit (aliased from the domain layer).
type VisitItem = history.VisitItem

// RunItem describes one indexing run (aliased from the domain layer).
type RunItem = history.RunItem

// RunDetail is a run plus its errors (aliased from the domain layer).
type RunDetail = history.RunDetail

// StatsResponse is the aggregate store summary.
type StatsResponse = history.Stats

// VisitsResponse wraps the visits of one URL.
type VisitsResponse struct {
	URL    string      `json:"url" example:"https://example.org" validate:"required"`
	Visits []VisitItem `json:"visits" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []VisitItem `json:"results" validate:"required"`
}

// RunListResponse wraps run listings.
type RunListResponse struct {
	Runs []RunItem `json:"runs" validate:"required"`
}

// ReindexResponse reports a finished on-demand indexing pass.
type ReindexResponse struct {
	Sources []SourceSummary `json:"sources" validate:"required"`
	Visits  int             `json:"visits" example:"1200" validate:"required"`
	Errors  int             `json:"errors" example:"3" validate:"required"`
}

// SourceSummary is one source's share of a ReindexResponse.
type SourceSummary struct {
	Source     string `json:"source" example:"orgroam" validate:"required"`
	RunID      string `json:"run_id,omitempty"`
	Visits     int    `json:"visits"`
	Errors     int    `json:"errors"`
	DurationMS int64  `json:"duration_ms"`
	Failure    string `json:"failure,omitempty"`
}

func reindexResponse(sum indexer.Summary) ReindexResponse {
	resp := ReindexResponse{
		Sources: make([]SourceSummary, len(sum.Sources)),
		Visits:  sum.Visits,
		Errors:  sum.Errors,
	}
	for i, s := range sum.Sources {
		resp.Sources[i] = SourceSummary{
			Source:     s.Source,
			RunID:      s.RunID,
			Visits:     s.Visits,
			Errors:     s.Errors,
			DurationMS: s.Duration.Milliseconds(),
		}
		if s.Err != nil {
			resp.Sources[i].Failure = s.Err.Error()
		}
	}
	return resp
}
