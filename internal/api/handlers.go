package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/waypoint/internal/apperr"
	"github.com/starford/waypoint/internal/history"
)

// Handler holds API route handlers.
type Handler struct {
	svc *history.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *history.Service) *Handler {
	return &Handler{svc: svc}
}

// VisitsForURL handles GET /visits.
//
//	@Summary		List every visit of a URL
//	@Tags			visits
//	@Produce		json
//	@Param			url	query		string	true	"Exact URL"
//	@Success		200	{object}	VisitsResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/visits [get]
func (h *Handler) VisitsForURL(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'url' is required"))
		return
	}
	visits, err := h.svc.VisitsForURL(r.Context(), u)
	if err != nil {
		slog.Error("api: visits for url failed", slog.String("url", u), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, VisitsResponse{URL: u, Visits: visits})
}

// Search handles GET /search.
//
//	@Summary		Full-text search across visit URLs and contexts
//	@Tags			visits
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("api: search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// ListRuns handles GET /runs.
//
//	@Summary		List recent indexing runs
//	@Tags			runs
//	@Produce		json
//	@Param			limit	query		int	false	"Max runs"
//	@Success		200		{object}	RunListResponse
//	@Security		BearerAuth
//	@Router			/runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.svc.Runs(r.Context(), limit)
	if err != nil {
		slog.Error("api: list runs failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

// GetRun handles GET /runs/{id}.
//
//	@Summary		Get a run and the errors it recorded
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Run ID"
//	@Success		200	{object}	RunDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.svc.Run(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("api: get run failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Reindex handles POST /index.
//
//	@Summary		Run a full indexing pass
//	@Tags			runs
//	@Produce		json
//	@Success		200	{object}	ReindexResponse
//	@Failure		409	{object}	errResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/index [post]
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Reindex(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrBusy):
			writeJSON(w, http.StatusConflict, errorBody(err.Error()))
		case errors.Is(err, apperr.ErrUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, errorBody("indexing not configured"))
		default:
			slog.Error("api: reindex failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, reindexResponse(sum))
}

// Stats handles GET /stats.
//
//	@Summary		Aggregate store counts
//	@Tags			stats
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		slog.Error("api: stats failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
