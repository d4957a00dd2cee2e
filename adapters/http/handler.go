// Package http exposes the rendering engine and the schema injector over HTTP.
package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/docforge/adapters/metrics"
	"github.com/artpar/docforge/app"
	"github.com/artpar/docforge/core/injector"
	"github.com/artpar/docforge/domain/execution"
	"github.com/artpar/docforge/domain/failure"
	"github.com/artpar/docforge/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 10 << 20

// RouterConfig configures NewRouter. Only Engine is required.
type RouterConfig struct {
	Engine  *app.Engine
	Results ports.ResultStore
	Metrics *metrics.Collector

	// Gatherer backs the metrics endpoint. Defaults to the global registry.
	Gatherer prometheus.Gatherer

	// FileSystem lets render requests name input and output paths. Without it
	// documents must be sent inline and output is only returned.
	FileSystem ports.FileSystem

	MetricsPath    string
	RequestTimeout time.Duration
	Logger         zerolog.Logger
}

// Handler serves the API routes.
type Handler struct {
	engine  *app.Engine
	schemas *injector.Injector
	results ports.ResultStore
	fs      ports.FileSystem
	logger  zerolog.Logger
}

// NewHandler creates a handler over cfg.
func NewHandler(cfg RouterConfig) *Handler {
	return &Handler{
		engine:  cfg.Engine,
		schemas: cfg.Engine.Injector(),
		results: cfg.Results,
		fs:      cfg.FileSystem,
		logger:  cfg.Logger,
	}
}

// NewRouter builds the chi router with middleware and all routes mounted.
func NewRouter(cfg RouterConfig) chi.Router {
	h := NewHandler(cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		gatherer := cfg.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		r.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/schemas", h.ListSchemas)
		r.Delete("/schemas", h.ClearAll)
		r.Get("/schemas/current", h.CurrentSchema)
		r.Post("/schemas/{name}/activate", h.ActivateSchema)
		r.Delete("/schemas/{name}", h.ClearSchema)

		r.Post("/render", h.Render)
		r.Post("/render/batch", h.RenderBatch)
		r.Post("/render/aggregate", h.Aggregate)

		r.Get("/executions", h.ListExecutions)
		r.Get("/executions/{id}", h.GetExecution)
	})
	return r
}

// Health reports liveness and the active bundle.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	cur := h.schemas.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"schema": cur.Kind(),
		"bundle": cur.BundleName(),
	})
}

// ListSchemas lists staged bundles.
func (h *Handler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	cur := h.schemas.Current()
	writeData(w, http.StatusOK, h.schemas.Bundles(), map[string]any{
		"active": cur.BundleName(),
		"state":  cur.Kind(),
	})
}

// CurrentSchema describes the activation state.
func (h *Handler) CurrentSchema(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, describeState(h.schemas.Current()), nil)
}

func describeState(s injector.ActiveSchema) map[string]any {
	out := map[string]any{"kind": s.Kind()}
	switch st := s.(type) {
	case injector.Loading:
		out["name"] = st.Name
		out["startedAt"] = st.StartedAt
	case injector.Loaded:
		out["name"] = st.Name
		out["activatedAt"] = st.ActivatedAt
		out["properties"] = len(st.Schema.Resolved.Properties)
		out["template"] = string(st.Template.Template.Format)
	case injector.Failed:
		out["name"] = st.Name
		out["failedAt"] = st.FailedAt
		out["error"] = st.Err.Error()
		if kind, ok := failure.KindOf(st.Err); ok {
			out["code"] = string(kind)
		}
	}
	return out
}

// ActivateSchema activates the named bundle.
func (h *Handler) ActivateSchema(w http.ResponseWriter, r *http.Request) {
	loaded, err := h.schemas.Activate(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, describeState(loaded), nil)
}

// ClearSchema removes the named bundle.
func (h *Handler) ClearSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.staged(name) {
		writeError(w, failure.NotFound("bundle", name))
		return
	}
	h.schemas.ClearSchema(r.Context(), name)
	w.WriteHeader(http.StatusNoContent)
}

// ClearAll removes every bundle.
func (h *Handler) ClearAll(w http.ResponseWriter, r *http.Request) {
	h.schemas.ClearAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) staged(name string) bool {
	for _, n := range h.schemas.ListAvailableSchemas() {
		if n == name {
			return true
		}
	}
	return false
}

// Render runs one pipeline. The request body is the document; format and
// output come from the query string.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		writeError(w, failure.ParseError("request body", err))
		return
	}
	if strings.TrimSpace(string(body)) == "" {
		writeError(w, failure.EmptyInput("body"))
		return
	}

	q := r.URL.Query()
	cfg := app.ExecutionConfiguration{
		InputContent: string(body),
		OutputFormat: q.Get("format"),
		OutputPath:   q.Get("output"),
		FileSystem:   h.fs,
	}
	res, err := h.engine.Execute(r.Context(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, res, nil)
}

// BatchRequest is the body of the batch and aggregate routes.
type BatchRequest struct {
	Format     string         `json:"format"`
	OutputPath string         `json:"outputPath,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Inputs     []BatchInput   `json:"inputs"`
}

// BatchInput is one document of a BatchRequest.
type BatchInput struct {
	Path       string         `json:"path,omitempty"`
	Content    string         `json:"content,omitempty"`
	OutputPath string         `json:"outputPath,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type batchItem struct {
	Index    int            `json:"index"`
	Context  map[string]any `json:"context"`
	Metadata map[string]any `json:"metadata"`
	Result   *app.Result    `json:"result,omitempty"`
	Error    *Error         `json:"error,omitempty"`
}

func (h *Handler) decodeBatch(w http.ResponseWriter, r *http.Request) (BatchRequest, []app.Input, bool) {
	var req BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&req); err != nil {
		writeError(w, failure.ParseError("request body", err))
		return req, nil, false
	}
	if len(req.Inputs) == 0 {
		writeError(w, failure.EmptyInput("inputs"))
		return req, nil, false
	}
	inputs := make([]app.Input, len(req.Inputs))
	for i, in := range req.Inputs {
		inputs[i] = app.Input{Path: in.Path, Content: in.Content, OutputPath: in.OutputPath, Metadata: in.Metadata}
	}
	return req, inputs, true
}

// RenderBatch processes each input independently and in order.
func (h *Handler) RenderBatch(w http.ResponseWriter, r *http.Request) {
	req, inputs, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}
	base := app.ExecutionConfiguration{OutputFormat: req.Format, FileSystem: h.fs}

	items := h.engine.ProcessMany(r.Context(), inputs, base, req.Context)
	out := make([]batchItem, len(items))
	failed := 0
	for i, it := range items {
		out[i] = batchItem{Index: it.Index, Context: it.Context, Metadata: it.Metadata, Result: it.Result}
		if it.Err != nil {
			failed++
			e := errorObject(it.Err)
			out[i].Error = &e
		}
	}
	writeData(w, http.StatusOK, out, map[string]any{
		"total":  len(items),
		"failed": failed,
	})
}

// Aggregate merges all inputs into one rendered result.
func (h *Handler) Aggregate(w http.ResponseWriter, r *http.Request) {
	req, inputs, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}
	cfg := app.ExecutionConfiguration{
		OutputFormat: req.Format,
		OutputPath:   req.OutputPath,
		FileSystem:   h.fs,
		Context:      req.Context,
	}
	res, err := h.engine.Aggregate(r.Context(), inputs, cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, res, map[string]any{"inputs": len(inputs)})
}

type executionView struct {
	ID         string    `json:"id"`
	Bundle     string    `json:"bundle"`
	InputPath  string    `json:"inputPath,omitempty"`
	OutputPath string    `json:"outputPath,omitempty"`
	Format     string    `json:"format"`
	Status     string    `json:"status"`
	ErrorKind  string    `json:"errorKind,omitempty"`
	Error      string    `json:"error,omitempty"`
	Warnings   []string  `json:"warnings"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMS int64     `json:"durationMs"`
}

func viewOf(rec execution.Record) executionView {
	ws := rec.Warnings
	if ws == nil {
		ws = []string{}
	}
	return executionView{
		ID:         rec.ID,
		Bundle:     rec.Bundle,
		InputPath:  rec.InputPath,
		OutputPath: rec.OutputPath,
		Format:     rec.Format,
		Status:     string(rec.Status),
		ErrorKind:  rec.ErrorKind,
		Error:      rec.Error,
		Warnings:   ws,
		StartedAt:  rec.StartedAt,
		DurationMS: rec.Duration.Milliseconds(),
	}
}

// ListExecutions lists ledger records, newest first.
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		writeError(w, failure.NotConfigured("result store"))
		return
	}
	q := r.URL.Query()
	filter := execution.Filter{
		Bundle: q.Get("bundle"),
		Status: execution.Status(q.Get("status")),
		Limit:  50,
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, failure.InvalidFormat(s, "positive integer"))
			return
		}
		filter.Limit = n
	}

	recs, err := h.results.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]executionView, len(recs))
	for i, rec := range recs {
		out[i] = viewOf(rec)
	}
	writeData(w, http.StatusOK, out, map[string]any{"count": len(out)})
}

// GetExecution returns one ledger record.
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		writeError(w, failure.NotConfigured("result store"))
		return
	}
	rec, err := h.results.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, viewOf(rec), nil)
}

// NewMetricsMiddleware records request counts and latency by route pattern.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.RequestsTotal.WithLabelValues(r.Method, route, statusLabel(ww.Status())).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

// NewLoggingMiddleware logs every request except health checks and scrapes.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
