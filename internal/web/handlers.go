package web

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/lineage/internal/config"
	"github.com/hpungsan/lineage/internal/errors"
	"github.com/hpungsan/lineage/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	logger   *zap.SugaredLogger
	renderer *Renderer
}

// HandleRuns handles GET /runs: list stored runs.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListRuns(r.Context(), h.db, ops.ListRunsInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "runs", RunsPageData{
		PageData: PageData{
			Title:   "Runs",
			Version: h.renderer.version,
			Nav:     "runs",
		},
		Items:      result.Items,
		Pagination: result.Pagination,
	})
}

// HandleRun handles GET /runs/{id}: the rendered report plus file scores.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("run ID is required"))
		return
	}

	run, err := ops.GetRun(r.Context(), h.db, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	report, err := ops.Report(r.Context(), h.db, ops.ReportInput{
		RunID: run.ID,
		Top:   parseIntParam(r, "top", ops.DefaultReportTop),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	author := r.URL.Query().Get("author")
	scores, err := ops.Scores(r.Context(), h.db, ops.ScoresInput{
		RunID:  run.ID,
		Author: author,
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"run":      run,
			"markdown": report.Markdown,
			"scores":   scores,
		})
		return
	}

	h.renderer.renderPage(w, r, "run", RunPageData{
		PageData: PageData{
			Title:   "Run " + run.ID,
			Version: h.renderer.version,
			Nav:     "runs",
		},
		Run:          run,
		ReportHTML:   h.renderer.renderMarkdown(report.Markdown),
		Scores:       scores.Items,
		Pagination:   scores.Pagination,
		AuthorFilter: author,
	})
}

// HandleFile handles GET /runs/{id}/file?path=: stored results for one file.
func (h *Handlers) HandleFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path := r.URL.Query().Get("path")
	if path == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("path is required"))
		return
	}

	run, err := ops.GetRun(r.Context(), h.db, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	detail, err := ops.FileDetail(r.Context(), h.db, ops.FileDetailInput{RunID: run.ID, File: path})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, detail)
		return
	}

	h.renderer.renderPage(w, r, "file", FilePageData{
		PageData: PageData{
			Title:   detail.File,
			Version: h.renderer.version,
			Nav:     "runs",
		},
		Run:    run,
		Detail: detail,
	})
}

// HandleAttribution handles GET /runs/{id}/attribution?path=: replays the
// file at the run's head and shows who wrote every character.
func (h *Handlers) HandleAttribution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path := r.URL.Query().Get("path")
	if path == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("path is required"))
		return
	}

	run, err := ops.GetRun(r.Context(), h.db, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// Replay with the parameters the run was computed with.
	cfg := *h.cfg
	cfg.LogBase = run.LogBase
	cfg.SimilarityThreshold = run.Threshold

	out, err := ops.Attribute(r.Context(), &cfg, ops.AttributeInput{
		RepoPath: run.RepoPath,
		File:     path,
		Head:     run.Head,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}

	legend, spans := attributionView(out)
	h.renderer.renderPage(w, r, "attribution", AttributionPageData{
		PageData: PageData{
			Title:   out.File,
			Version: h.renderer.version,
			Nav:     "runs",
		},
		Run:         run,
		Attribution: out,
		Legend:      legend,
		Spans:       spans,
	})
}

// HandleDelete handles DELETE /runs/{id}: remove a run and its results.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("run ID is required"))
		return
	}

	result, err := ops.DeleteRun(r.Context(), h.db, ops.DeleteRunInput{RunID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.logger.Infow("run deleted", "run_id", result.RunID)

	// HTMX request: redirect via HX-Redirect header
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/runs")
		w.WriteHeader(http.StatusOK)
		return
	}

	// JSON request
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	// Default: redirect
	http.Redirect(w, r, "/runs", http.StatusFound)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
