package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/hpungsan/lineage/internal/db"
	"github.com/hpungsan/lineage/internal/errors"
	"github.com/hpungsan/lineage/internal/ops"
)

// paletteSize is the number of author colors defined in style.css (a0..a15).
const paletteSize = 16

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "runs"
}

// RunsPageData is the template data for the run list page.
type RunsPageData struct {
	PageData
	Items      []db.Run
	Pagination ops.Pagination
}

// RunPageData is the template data for the run detail page.
type RunPageData struct {
	PageData
	Run          *db.Run
	ReportHTML   template.HTML
	Scores       []db.FileScore
	Pagination   ops.Pagination
	AuthorFilter string
}

// FilePageData is the template data for the file detail page.
type FilePageData struct {
	PageData
	Run    *db.Run
	Detail *ops.FileDetailOutput
}

// AttributionPageData is the template data for the attribution view.
type AttributionPageData struct {
	PageData
	Run         *db.Run
	Attribution *ops.AttributeOutput
	Legend      []LegendEntry
	Spans       []SpanView
	InlineCSS   template.CSS
}

// LegendEntry is one author of an attribution view.
type LegendEntry struct {
	Author string
	Class  string
	Chars  int
	Score  float64
}

// SpanView is a span of the attribution view with its presentation.
type SpanView struct {
	Text  string
	Class string
	Title string
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	logger    *zap.SugaredLogger
	markdown  goldmark.Markdown
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, logger *zap.SugaredLogger) *Renderer {
	funcMap := template.FuncMap{
		"add":         func(a, b int) int { return a + b },
		"sub":         func(a, b int) int { return a - b },
		"formatTime":  formatTime,
		"formatChars": formatChars,
		"shortHash":   shortHash,
		"deref":       deref,
		"hasValue":    hasValue,
	}

	// Parse layout as the base template
	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"runs":        "runs.html",
		"run":         "run.html",
		"file":        "file.html",
		"attribution": "attribution.html",
		"error":       "error.html",
	}

	templates := make(map[string]*template.Template, len(pages)+1)
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	// The standalone page carries its own document and styles.
	templates["standalone"] = template.Must(template.New("standalone").Funcs(funcMap).ParseFS(templateFS, "standalone.html", "attribution.html"))

	return &Renderer{
		templates: templates,
		version:   version,
		logger:    logger,
		markdown:  goldmark.New(goldmark.WithExtensions(extension.Table)),
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.renderPageStatus(w, req, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
// For HTMX requests, only the "content" block is rendered to avoid duplicating the layout.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.logger.Errorw("template not found", "template", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	block := "layout"
	if req != nil && req.Header.Get("HX-Request") == "true" {
		block = "content"
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		r.logger.Errorw("template execution error", "template", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	lErr, ok := errors.As(err)
	if !ok {
		lErr = errors.NewInternal(err)
	}
	if lErr.Status >= http.StatusInternalServerError {
		r.logger.Errorw("request failed", "method", req.Method, "path", req.URL.Path,
			"code", lErr.Code, "details", lErr.Details)
	}

	status := lErr.Status
	message := lErr.Message

	// HTMX request: return HTML fragment
	if req.Header.Get("HX-Request") == "true" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, `<div class="error-message">%s</div>`, template.HTMLEscapeString(message))
		return
	}

	// JSON request
	if wantsJSON(req) {
		renderJSON(w, status, map[string]any{
			"error": map[string]any{
				"code":    string(lErr.Code),
				"message": message,
				"status":  status,
			},
		})
		return
	}

	// Full error page
	r.renderPageStatus(w, req, status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", status),
			Version: r.version,
		},
		StatusCode: status,
		Message:    message,
	})
}

func wantsJSON(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "application/json")
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark with GFM tables.
func (r *Renderer) renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// authorClass maps an author to one of the palette classes. The same author
// gets the same color on every page.
func authorClass(author string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(author))
	return fmt.Sprintf("a%d", h.Sum32()%paletteSize)
}

// attributionView prepares the legend and spans of an attribution.
func attributionView(out *ops.AttributeOutput) ([]LegendEntry, []SpanView) {
	legend := make([]LegendEntry, 0, len(out.Authors))
	for _, author := range out.Authors {
		legend = append(legend, LegendEntry{
			Author: author,
			Class:  authorClass(author),
			Chars:  out.Counts[author],
			Score:  out.Scores[author],
		})
	}

	hashes := make(map[int]string, len(out.Revisions))
	for _, rev := range out.Revisions {
		hashes[rev.Revision] = rev.Hash
	}

	spans := make([]SpanView, 0, len(out.Spans))
	for _, s := range out.Spans {
		spans = append(spans, SpanView{
			Text:  s.Text,
			Class: authorClass(s.Author),
			Title: fmt.Sprintf("%s, revision %d (%s)", s.Author, s.Revision, shortHash(hashes[s.Revision])),
		})
	}
	return legend, spans
}

// RenderAttributionHTML writes a self-contained HTML page showing the
// attribution of one file.
func RenderAttributionHTML(w io.Writer, out *ops.AttributeOutput) error {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return err
	}
	css, err := fs.ReadFile(staticFS, "static/style.css")
	if err != nil {
		return err
	}
	r := NewRenderer(templateSub, "", zap.NewNop().Sugar())

	legend, spans := attributionView(out)
	return r.templates["standalone"].ExecuteTemplate(w, "standalone", AttributionPageData{
		PageData:    PageData{Title: out.File},
		Attribution: out,
		Legend:      legend,
		Spans:       spans,
		InlineCSS:   template.CSS(css),
	})
}

// formatTime formats a Unix timestamp as "2006-01-02 15:04" UTC.
func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}

// formatChars formats an integer with comma thousands separators.
func formatChars(n int) string {
	if n < 0 {
		return "-" + formatChars(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// deref dereferences a pointer, returning the zero value if nil.
// Supports *int64 (the pointer type used in templates).
func deref(v any) any {
	if v == nil {
		return ""
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Zero(rv.Type().Elem()).Interface()
		}
		return rv.Elem().Interface()
	}
	return v
}

// hasValue checks if a pointer value is non-nil.
func hasValue(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		return !rv.IsNil()
	}
	return true
}
