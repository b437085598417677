// Package httpapi serves the diet insights views, search and pipeline
// triggers over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"dietinsights/internal/core"
	"dietinsights/internal/dataset"
	"dietinsights/internal/pipeline"
	"dietinsights/internal/query"
	"dietinsights/internal/render"
	"dietinsights/internal/resolver"
	"dietinsights/pkg/domain"
)

const (
	defaultPageSize = 10
	maxUploadBytes  = 64 << 20
)

// Service is the subset of core.Service the handler depends on.
type Service interface {
	View(ctx context.Context, kind domain.ViewKind) (core.ViewResult, error)
	PieChartView(ctx context.Context, diet string) (core.PieResult, error)
	Search(ctx context.Context, p query.Params) (core.SearchResult, error)
	Highlights(ctx context.Context, n int) (core.HighlightsResult, error)
	RunPipeline(ctx context.Context) (pipeline.Report, error)
	Ingest(ctx context.Context, raw []byte) (pipeline.Report, error)
	Status(ctx context.Context) (core.StatusReport, error)
	ClearCache(ctx context.Context) (bool, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithRateLimit enables a token bucket over the /api routes. A non-positive
// limit disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(h *Handler) {
		if perSecond > 0 {
			h.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithDefaultPageSize sets the page size used when the query omits one.
func WithDefaultPageSize(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.pageSize = n
		}
	}
}

// Handler routes requests to the service.
type Handler struct {
	Service  Service
	limiter  *rate.Limiter
	metrics  http.Handler
	pageSize int
}

// NewHandler constructs the HTTP handler.
func NewHandler(svc Service, opts ...Option) *Handler {
	h := &Handler{Service: svc, pageSize: defaultPageSize}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/healthz":
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	case path == "/metrics":
		if h.metrics == nil {
			http.NotFound(w, r)
			return
		}
		h.metrics.ServeHTTP(w, r)
		return
	case strings.HasPrefix(path, "/api/v1/"):
		if h.limiter != nil && !h.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	default:
		http.NotFound(w, r)
		return
	}

	route := strings.TrimPrefix(path, "/api/v1/")
	switch {
	case strings.HasPrefix(route, "charts/"):
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.handleChart(w, r, strings.TrimPrefix(route, "charts/"))
	case strings.HasPrefix(route, "views/"):
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.handleView(w, r, strings.TrimPrefix(route, "views/"))
	case route == "insights":
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.handleView(w, r, string(domain.ViewInsights))
	case route == "search":
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.handleSearch(w, r)
	case route == "highlights":
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.handleHighlights(w, r)
	case route == "pipeline/runs":
		if !allow(w, r, http.MethodPost) {
			return
		}
		h.handleRun(w, r)
	case route == "cache":
		h.handleCache(w, r)
	default:
		http.NotFound(w, r)
	}
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func setTiming(w http.ResponseWriter, elapsed time.Duration, path resolver.Path) {
	w.Header().Set("X-Elapsed-Seconds", strconv.FormatFloat(elapsed.Seconds(), 'f', 6, 64))
	if path != "" {
		w.Header().Set("X-Cache-Path", string(path))
	}
}

func (h *Handler) handleChart(w http.ResponseWriter, r *http.Request, name string) {
	var (
		img  []byte
		err  error
		res  core.ViewResult
		diet string
	)
	switch name {
	case "bar":
		if res, err = h.Service.View(r.Context(), domain.ViewBar); err == nil {
			img, err = render.RenderBar(res.View.Bar)
		}
	case "line":
		if res, err = h.Service.View(r.Context(), domain.ViewLine); err == nil {
			img, err = render.RenderLine(res.View.Macros)
		}
	case "pie":
		var pie core.PieResult
		if pie, err = h.Service.PieChartView(r.Context(), r.URL.Query().Get("diet")); err == nil {
			diet = pie.Diet
			res = core.ViewResult{Path: pie.Path, Elapsed: pie.Elapsed}
			img, err = render.RenderPie(render.MacroSlices(pie.Macros))
		}
	default:
		writeError(w, http.StatusNotFound, "chart not found")
		return
	}
	if errors.Is(err, render.ErrNoData) {
		writeError(w, http.StatusNotFound, "no data to chart")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	setTiming(w, res.Elapsed, res.Path)
	if diet != "" {
		w.Header().Set("X-Diet", diet)
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

type viewResponse struct {
	View           domain.ViewKind `json:"view"`
	ElapsedSeconds float64         `json:"elapsed_seconds"`
	CachePath      resolver.Path   `json:"cache_path"`
	MissReason     string          `json:"miss_reason,omitempty"`
	Diet           string          `json:"diet,omitempty"`
	Data           any             `json:"data,omitempty"`
	DietInsights   any             `json:"diet_insights,omitempty"`
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request, name string) {
	kind, err := domain.ParseViewKind(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if kind == domain.ViewPie {
		pie, err := h.Service.PieChartView(r.Context(), r.URL.Query().Get("diet"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		setTiming(w, pie.Elapsed, pie.Path)
		writeJSON(w, http.StatusOK, viewResponse{
			View:           kind,
			ElapsedSeconds: pie.Elapsed.Seconds(),
			CachePath:      pie.Path,
			Diet:           pie.Diet,
			Data:           pie.Macros,
		})
		return
	}

	res, err := h.Service.View(r.Context(), kind)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	setTiming(w, res.Elapsed, res.Path)
	resp := viewResponse{
		View:           kind,
		ElapsedSeconds: res.Elapsed.Seconds(),
		CachePath:      res.Path,
		MissReason:     res.MissReason,
	}
	switch kind {
	case domain.ViewBar:
		resp.Data = nonNilMap(res.View.Bar)
	case domain.ViewLine:
		resp.Data = nonNilMap(res.View.Macros)
	case domain.ViewInsights:
		insights := res.View.Insights
		if insights == nil {
			insights = []domain.DietInsight{}
		}
		resp.DietInsights = insights
	}
	writeJSON(w, http.StatusOK, resp)
}

func nonNilMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}

type searchResponse struct {
	ElapsedSeconds float64          `json:"elapsed_seconds"`
	Records        []domain.Record  `json:"records"`
	Pagination     query.Pagination `json:"pagination"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	size, err := intParam(q.Get("page_size"), h.pageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "page_size must be an integer")
		return
	}
	format := strings.ToLower(q.Get("format"))
	if format != "" && format != "json" && format != "csv" {
		writeError(w, http.StatusNotAcceptable, "requested format not supported")
		return
	}

	res, err := h.Service.Search(r.Context(), query.Params{
		Diet:     q.Get("diet"),
		Keyword:  q.Get("keyword"),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	setTiming(w, res.Elapsed, "")
	if format == "csv" {
		streamCSV(w, res)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{
		ElapsedSeconds: res.Elapsed.Seconds(),
		Records:        res.Records,
		Pagination:     res.Pagination,
	})
}

func streamCSV(w http.ResponseWriter, res core.SearchResult) {
	p := res.Pagination
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"search-page-%d.csv\"", p.Page))
	w.Header().Set("X-Total", strconv.Itoa(p.Total))
	w.Header().Set("X-Total-Pages", strconv.Itoa(p.TotalPages))
	extra := []string(nil)
	if len(res.Columns) > len(domain.RequiredColumns) {
		extra = res.Columns[len(domain.RequiredColumns):]
	}
	_ = dataset.WriteCSV(w, domain.Dataset{ExtraColumns: extra, Records: res.Records})
}

func intParam(raw string, fallback int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return strconv.Atoi(strings.TrimSpace(raw))
}

func (h *Handler) handleHighlights(w http.ResponseWriter, r *http.Request) {
	top, err := intParam(r.URL.Query().Get("top"), core.DefaultHighlightsTop)
	if err != nil || top < 1 {
		writeError(w, http.StatusBadRequest, "top must be a positive integer")
		return
	}
	res, err := h.Service.Highlights(r.Context(), top)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	setTiming(w, res.Elapsed, "")
	writeJSON(w, http.StatusOK, map[string]any{
		"elapsed_seconds": res.Elapsed.Seconds(),
		"highlights":      res.Highlights,
	})
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	var (
		report pipeline.Report
		runErr error
	)
	if len(strings.TrimSpace(string(body))) > 0 {
		report, runErr = h.Service.Ingest(r.Context(), body)
	} else {
		report, runErr = h.Service.RunPipeline(r.Context())
	}
	if runErr != nil {
		writeJSON(w, statusFor(runErr), map[string]any{"error": runErr.Error(), "run": report})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"run": report})
}

func (h *Handler) handleCache(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		status, err := h.Service.Status(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	case http.MethodDelete:
		removed, err := h.Service.ClearCache(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
	default:
		w.Header().Set("Allow", "GET, DELETE")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func statusFor(err error) int {
	var (
		diet   domain.InvalidDietError
		page   domain.InvalidPaginationError
		schema domain.SchemaError
	)
	switch {
	case errors.As(err, &diet), errors.As(err, &page):
		return http.StatusBadRequest
	case errors.As(err, &schema):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDietNotFound),
		errors.Is(err, resolver.ErrNoDataset),
		errors.Is(err, pipeline.ErrNoRawDataset):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	var diet domain.InvalidDietError
	if errors.As(err, &diet) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "allowed_diets": diet.Allowed})
		return
	}
	writeError(w, statusFor(err), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
