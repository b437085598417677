// Package resolver implements the cache-or-compute read path. It prefers the
// cache artifact and falls back to recomputing from the cleaned (or raw)
// dataset. It never writes to storage.
package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"dietinsights/internal/aggregate"
	"dietinsights/internal/blob"
	"dietinsights/internal/cache"
	"dietinsights/internal/normalize"
	"dietinsights/pkg/domain"
)

// Path names the route a Resolve call took.
type Path string

const (
	PathCacheHit        Path = "cache_hit"
	PathFallbackCleaned Path = "fallback_cleaned"
	PathFallbackRaw     Path = "fallback_raw"
)

// Fallback reports whether the path recomputed the view.
func (p Path) Fallback() bool { return p != PathCacheHit }

// ErrNoDataset is returned when neither the cleaned nor the raw dataset exists.
var ErrNoDataset = errors.New("no dataset available: upload a raw dataset and run the pipeline")

// Resolution is the result of one Resolve call.
type Resolution struct {
	View       domain.AggregateView
	Path       Path
	MissReason string
	Elapsed    time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFreshnessCheck toggles comparing the artifact digest against the
// cleaned dataset's digest. Enabled by default.
func WithFreshnessCheck(enabled bool) Option {
	return func(r *Resolver) { r.checkFreshness = enabled }
}

// WithClock overrides the time source used for elapsed measurements.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// Resolver serves views from the cache store.
type Resolver struct {
	store          *cache.Store
	normalizer     *normalize.Normalizer
	aggregator     *aggregate.Aggregator
	whitelist      domain.Whitelist
	checkFreshness bool
	now            func() time.Time
}

// New builds a Resolver. The whitelist is shared by validation, the
// normalizer and the aggregator.
func New(store *cache.Store, w domain.Whitelist, opts ...Option) *Resolver {
	r := &Resolver{
		store:          store,
		normalizer:     normalize.New(w),
		aggregator:     aggregate.New(w),
		whitelist:      w,
		checkFreshness: true,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the requested view. Cache misses are recovered internally;
// only storage outages, ErrNoDataset, schema errors and empty datasets
// reach the caller.
func (r *Resolver) Resolve(ctx context.Context, kind domain.ViewKind) (Resolution, error) {
	start := r.now()
	if _, ok := (domain.Bundle{}).View(kind); !ok {
		return Resolution{}, fmt.Errorf("unknown view kind %q", kind)
	}
	view, err := r.fromCache(ctx, kind)
	if err == nil {
		return Resolution{View: view, Path: PathCacheHit, Elapsed: r.now().Sub(start)}, nil
	}
	var miss domain.CacheMissError
	if !errors.As(err, &miss) {
		return Resolution{}, err
	}

	ds, path, err := r.LoadDataset(ctx)
	if err != nil {
		return Resolution{}, err
	}
	view, err = r.aggregator.View(ds, kind)
	if err != nil {
		return Resolution{Path: path, MissReason: miss.Error(), Elapsed: r.now().Sub(start)}, err
	}
	return Resolution{View: view, Path: path, MissReason: miss.Error(), Elapsed: r.now().Sub(start)}, nil
}

// fromCache returns a CacheMissError for anything recoverable. A storage
// outage on the artifact read is also recoverable: the datasets may live
// elsewhere or the outage may be partial.
func (r *Resolver) fromCache(ctx context.Context, kind domain.ViewKind) (domain.AggregateView, error) {
	data, err := r.store.ReadArtifact(ctx)
	if err != nil {
		reason := "artifact unreadable"
		if errors.Is(err, blob.ErrNotFound) {
			reason = "artifact absent"
		}
		return domain.AggregateView{}, domain.CacheMissError{View: kind, Reason: reason, Err: err}
	}
	art, err := cache.Decode(data)
	if err != nil {
		return domain.AggregateView{}, domain.CacheMissError{View: kind, Reason: "artifact unparseable", Err: err}
	}
	if err := r.fresh(ctx, kind, art.Freshness); err != nil {
		return domain.AggregateView{}, err
	}
	return art.View(kind, r.whitelist)
}

func (r *Resolver) fresh(ctx context.Context, kind domain.ViewKind, f cache.Freshness) error {
	if f.SchemaVersion != 0 && f.SchemaVersion != cache.SchemaVersion {
		return domain.CacheMissError{View: kind, Reason: fmt.Sprintf("schema version %d", f.SchemaVersion)}
	}
	if !r.checkFreshness || f.SourceDigest == "" {
		return nil
	}
	digest, err := r.store.CleanedDigest(ctx)
	if errors.Is(err, blob.ErrNotFound) {
		return nil
	}
	if err != nil {
		return domain.CacheMissError{View: kind, Reason: "cleaned dataset digest unreadable", Err: err}
	}
	if digest != "" && digest != f.SourceDigest {
		return domain.CacheMissError{View: kind, Reason: "stale artifact: source digest mismatch"}
	}
	return nil
}

// LoadDataset reads and normalizes (mean fill) the cleaned dataset, or the
// raw dataset when no cleaned one exists.
func (r *Resolver) LoadDataset(ctx context.Context) (domain.Dataset, Path, error) {
	path := PathFallbackCleaned
	data, err := r.store.ReadCleaned(ctx)
	if errors.Is(err, blob.ErrNotFound) {
		path = PathFallbackRaw
		data, err = r.store.ReadRaw(ctx)
		if errors.Is(err, blob.ErrNotFound) {
			return domain.Dataset{}, path, ErrNoDataset
		}
	}
	if err != nil {
		return domain.Dataset{}, path, err
	}
	ds, _, err := r.normalizer.NormalizeCSV(bytes.NewReader(data), normalize.FillMean)
	if err != nil {
		return domain.Dataset{}, path, err
	}
	return ds, path, nil
}
