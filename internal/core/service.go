// Package core exposes the query-facing diet insights service. It composes
// the resolver, query engine and pipeline and adds logging, metrics and
// tracing around every operation.
package core

import (
	"context"
	"errors"
	"time"

	"dietinsights/internal/aggregate"
	"dietinsights/internal/blob"
	"dietinsights/internal/cache"
	"dietinsights/internal/pipeline"
	"dietinsights/internal/query"
	"dietinsights/internal/resolver"
	"dietinsights/pkg/domain"
)

// DefaultHighlightsTop is the number of recipes listed per diet when the
// caller does not ask for a specific count.
const DefaultHighlightsTop = 5

// ViewResult is a resolved view with the path that produced it.
type ViewResult struct {
	View       domain.AggregateView
	Path       resolver.Path
	MissReason string
	Elapsed    time.Duration
}

// PieResult holds the macro split for a single diet.
type PieResult struct {
	Diet    string
	Macros  domain.MacroMeans
	Path    resolver.Path
	Elapsed time.Duration
}

// SearchResult is one page of records.
type SearchResult struct {
	query.Result
	Elapsed time.Duration
}

// HighlightsResult wraps the recipe-level highlights.
type HighlightsResult struct {
	aggregate.Highlights
	Elapsed time.Duration
}

// StatusReport describes what the cache currently holds.
type StatusReport struct {
	Driver         blob.Driver `json:"driver"`
	Blobs          []blob.Info `json:"blobs"`
	CleanedDigest  string      `json:"cleaned_digest,omitempty"`
	ArtifactDigest string      `json:"artifact_digest,omitempty"`
	ArtifactFresh  bool        `json:"artifact_fresh"`
}

// Service is the entry point used by the HTTP and CLI adapters.
type Service struct {
	store      *cache.Store
	whitelist  domain.Whitelist
	resolver   *resolver.Resolver
	pipeline   *pipeline.Orchestrator
	engine     *query.Engine
	aggregator *aggregate.Aggregator

	logger  Logger
	clock   Clock
	metrics MetricsRecorder
	tracer  Tracer
}

// NewService builds a Service over store. The whitelist is shared by every
// component.
func NewService(store *cache.Store, w domain.Whitelist, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Service{
		store:      store,
		whitelist:  w,
		engine:     query.New(w),
		aggregator: aggregate.New(w),
		logger:     o.logger,
		clock:      o.clock,
		metrics:    o.metrics,
		tracer:     o.tracer,
	}
	s.resolver = resolver.New(store, w,
		resolver.WithFreshnessCheck(o.checkFreshness),
		resolver.WithClock(o.clock.Now),
	)
	s.pipeline = pipeline.New(store, w,
		pipeline.WithClock(o.clock.Now),
		pipeline.WithObserver(func(runID string, stage domain.Stage) {
			s.logger.Debug("pipeline stage", "run_id", runID, "stage", stage)
		}),
	)
	return s
}

// Whitelist returns the configured diet whitelist.
func (s *Service) Whitelist() domain.Whitelist { return s.whitelist }

// Store returns the underlying cache store.
func (s *Service) Store() *cache.Store { return s.store }

func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	elapsed := s.clock.Now().Sub(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	switch {
	case err == nil:
		s.logger.Debug("operation complete", "op", op, "duration", elapsed)
	case domain.IsRejectedInput(err), errors.Is(err, domain.ErrDietNotFound):
		s.logger.Warn("operation rejected", "op", op, "error", err)
	default:
		s.logger.Error("operation failed", "op", op, "error", err, "duration", elapsed)
	}
	return err
}

func (s *Service) resolve(ctx context.Context, kind domain.ViewKind) (ViewResult, error) {
	res, err := s.resolver.Resolve(ctx, kind)
	switch {
	case errors.Is(err, domain.ErrEmptyDataset):
		// a dataset with no whitelisted rows yields an empty view
		res.View = domain.AggregateView{Kind: kind}
	case err != nil:
		return ViewResult{}, err
	}
	if res.Path.Fallback() {
		s.logger.Info("cache miss", "view", kind, "path", res.Path, "reason", res.MissReason)
	}
	if obs, ok := s.metrics.(ResolutionObserver); ok {
		obs.ObserveResolution(string(kind), string(res.Path))
	}
	return ViewResult{View: res.View, Path: res.Path, MissReason: res.MissReason, Elapsed: res.Elapsed}, nil
}

// View resolves any view kind.
func (s *Service) View(ctx context.Context, kind domain.ViewKind) (ViewResult, error) {
	var out ViewResult
	err := s.run(ctx, "view_"+string(kind), func(ctx context.Context) error {
		var err error
		out, err = s.resolve(ctx, kind)
		return err
	})
	return out, err
}

// BarChartView returns mean protein per diet.
func (s *Service) BarChartView(ctx context.Context) (ViewResult, error) {
	return s.View(ctx, domain.ViewBar)
}

// LineChartView returns mean protein, carbs and fat per diet.
func (s *Service) LineChartView(ctx context.Context) (ViewResult, error) {
	return s.View(ctx, domain.ViewLine)
}

// Insights returns the per-diet insight records.
func (s *Service) Insights(ctx context.Context) (ViewResult, error) {
	return s.View(ctx, domain.ViewInsights)
}

// PieChartView returns the macro split for diet (Keto when empty). An unknown
// diet is an InvalidDietError; a whitelisted diet without rows is
// domain.ErrDietNotFound.
func (s *Service) PieChartView(ctx context.Context, diet string) (PieResult, error) {
	var out PieResult
	err := s.run(ctx, "view_pie", func(ctx context.Context) error {
		if diet == "" {
			diet = domain.DefaultDiet
		}
		canonical := domain.CanonicalLabel(diet)
		if !s.whitelist.Contains(canonical) {
			return domain.InvalidDietError{Diet: diet, Allowed: s.whitelist.Diets()}
		}
		res, err := s.resolve(ctx, domain.ViewPie)
		if err != nil {
			return err
		}
		m, ok := res.View.Macros[canonical]
		if !ok {
			return domain.ErrDietNotFound
		}
		out = PieResult{Diet: canonical, Macros: m, Path: res.Path, Elapsed: res.Elapsed}
		return nil
	})
	return out, err
}

// Search pages through the live dataset. It never reads the cache artifact.
func (s *Service) Search(ctx context.Context, p query.Params) (SearchResult, error) {
	var out SearchResult
	err := s.run(ctx, "search", func(ctx context.Context) error {
		start := s.clock.Now()
		if err := s.engine.Validate(p); err != nil {
			return err
		}
		ds, _, err := s.resolver.LoadDataset(ctx)
		if err != nil {
			return err
		}
		res, err := s.engine.Search(ds, p)
		if err != nil {
			return err
		}
		out = SearchResult{Result: res, Elapsed: s.clock.Now().Sub(start)}
		return nil
	})
	return out, err
}

// Highlights computes top-protein recipes and ratios per diet from the live
// dataset. n below one falls back to DefaultHighlightsTop.
func (s *Service) Highlights(ctx context.Context, n int) (HighlightsResult, error) {
	if n < 1 {
		n = DefaultHighlightsTop
	}
	var out HighlightsResult
	err := s.run(ctx, "highlights", func(ctx context.Context) error {
		start := s.clock.Now()
		ds, _, err := s.resolver.LoadDataset(ctx)
		if err != nil {
			return err
		}
		h, err := s.aggregator.Highlights(ds, n)
		if errors.Is(err, domain.ErrEmptyDataset) {
			h, err = aggregate.Highlights{Diets: []aggregate.DietHighlight{}}, nil
		}
		if err != nil {
			return err
		}
		out = HighlightsResult{Highlights: h, Elapsed: s.clock.Now().Sub(start)}
		return nil
	})
	return out, err
}

// RunPipeline rebuilds the cleaned dataset and cache artifact from the raw dataset.
func (s *Service) RunPipeline(ctx context.Context) (pipeline.Report, error) {
	var out pipeline.Report
	err := s.run(ctx, "pipeline_run", func(ctx context.Context) error {
		var err error
		out, err = s.pipeline.Run(ctx)
		s.logRun(out, err)
		return err
	})
	return out, err
}

// Ingest uploads raw as the new raw dataset and runs the pipeline.
func (s *Service) Ingest(ctx context.Context, raw []byte) (pipeline.Report, error) {
	var out pipeline.Report
	err := s.run(ctx, "pipeline_ingest", func(ctx context.Context) error {
		var err error
		out, err = s.pipeline.Ingest(ctx, raw)
		s.logRun(out, err)
		return err
	})
	return out, err
}

func (s *Service) logRun(rep pipeline.Report, err error) {
	if err != nil {
		s.logger.Error("pipeline run failed", "run_id", rep.RunID, "stage", rep.FailedStage, "error", err)
		return
	}
	s.logger.Info("pipeline run complete",
		"run_id", rep.RunID,
		"rows", rep.Rows,
		"duplicates_removed", rep.Normalize.DuplicatesRemoved,
		"invalid_diet_removed", rep.Normalize.InvalidDietRemoved,
		"coercion_failures", rep.Normalize.CoercionFailures,
		"duration", rep.Duration,
	)
}

// Status lists the stored datasets and reports whether the artifact matches
// the cleaned dataset.
func (s *Service) Status(ctx context.Context) (StatusReport, error) {
	var out StatusReport
	err := s.run(ctx, "status", func(ctx context.Context) error {
		infos, err := s.store.Status(ctx)
		if err != nil {
			return err
		}
		out = StatusReport{Driver: s.store.Blobs().Driver(), Blobs: infos}
		digest, err := s.store.CleanedDigest(ctx)
		if err != nil && !errors.Is(err, blob.ErrNotFound) {
			return err
		}
		out.CleanedDigest = digest
		data, err := s.store.ReadArtifact(ctx)
		if errors.Is(err, blob.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		art, err := cache.Decode(data)
		if err != nil {
			s.logger.Warn("artifact unparseable", "error", err)
			return nil
		}
		out.ArtifactDigest = art.Freshness.SourceDigest
		out.ArtifactFresh = out.ArtifactDigest != "" && out.ArtifactDigest == out.CleanedDigest
		return nil
	})
	return out, err
}

// ClearCache deletes the cache artifact. Reads fall back to recomputation
// until the next pipeline run.
func (s *Service) ClearCache(ctx context.Context) (bool, error) {
	var removed bool
	err := s.run(ctx, "cache_clear", func(ctx context.Context) error {
		var err error
		removed, err = s.store.ClearArtifact(ctx)
		return err
	})
	return removed, err
}
