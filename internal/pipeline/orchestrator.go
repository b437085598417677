// Package pipeline runs the end-to-end ingestion flow: raw dataset →
// normalize → persist cleaned → aggregate → persist cache artifact.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dietinsights/internal/aggregate"
	"dietinsights/internal/blob"
	"dietinsights/internal/cache"
	"dietinsights/internal/dataset"
	"dietinsights/internal/normalize"
	"dietinsights/pkg/domain"
)

// ErrNoRawDataset is returned when a run starts without a raw dataset.
var ErrNoRawDataset = errors.New("raw dataset not found")

// Transition records entering a stage.
type Transition struct {
	Stage domain.Stage `json:"stage"`
	At    time.Time    `json:"at"`
}

// Report describes one run. On failure it is returned alongside the
// StageError with the stages reached so far.
type Report struct {
	RunID       string           `json:"run_id"`
	StartedAt   time.Time        `json:"started_at"`
	Duration    time.Duration    `json:"duration_ns"`
	Transitions []Transition     `json:"transitions"`
	Normalize   normalize.Report `json:"normalize"`
	Rows        int              `json:"rows"`
	Digest      string           `json:"source_digest,omitempty"`
	FailedStage domain.Stage     `json:"failed_stage,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(gen func() string) Option { return func(o *Orchestrator) { o.newID = gen } }

// WithObserver registers a callback invoked on every stage transition.
func WithObserver(fn func(runID string, stage domain.Stage)) Option {
	return func(o *Orchestrator) { o.observe = fn }
}

// Orchestrator owns the only write path to the cleaned dataset and the cache
// artifact. Runs are not serialized against each other; concurrent runs are
// last-writer-wins per key.
type Orchestrator struct {
	store      *cache.Store
	normalizer *normalize.Normalizer
	aggregator *aggregate.Aggregator
	now        func() time.Time
	newID      func() string
	observe    func(runID string, stage domain.Stage)
}

// New builds an Orchestrator over store.
func New(store *cache.Store, w domain.Whitelist, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		normalizer: normalize.New(w),
		aggregator: aggregate.New(w),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type run struct {
	o      *Orchestrator
	report Report
}

func (r *run) enter(stage domain.Stage) {
	r.report.Transitions = append(r.report.Transitions, Transition{Stage: stage, At: r.o.now()})
	if r.o.observe != nil {
		r.o.observe(r.report.RunID, stage)
	}
}

func (r *run) fail(stage domain.Stage, err error) (Report, error) {
	r.report.FailedStage = stage
	r.report.Error = err.Error()
	r.enter(domain.StageFailed)
	r.enter(domain.StageIdle)
	r.report.Duration = r.o.now().Sub(r.report.StartedAt)
	return r.report, domain.StageError{Stage: stage, Err: err}
}

// Ingest stores raw as the new raw dataset and runs the pipeline.
func (o *Orchestrator) Ingest(ctx context.Context, raw []byte) (Report, error) {
	if err := o.store.WriteRaw(ctx, raw); err != nil {
		r := &run{o: o, report: Report{RunID: o.newID(), StartedAt: o.now()}}
		r.enter(domain.StageIdle)
		return r.fail(domain.StageIdle, err)
	}
	return o.Run(ctx)
}

// Run executes one pipeline pass. Any failure aborts the run before the cache
// artifact is written, so the previous artifact stays in place.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	r := &run{o: o, report: Report{RunID: o.newID(), StartedAt: o.now()}}
	r.enter(domain.StageIdle)

	r.enter(domain.StageNormalizing)
	raw, err := o.store.ReadRaw(ctx)
	if errors.Is(err, blob.ErrNotFound) {
		return r.fail(domain.StageNormalizing, fmt.Errorf("%w: %v", ErrNoRawDataset, err))
	}
	if err != nil {
		return r.fail(domain.StageNormalizing, err)
	}
	ds, rep, err := o.normalizer.NormalizeCSV(bytes.NewReader(raw), normalize.FillMean)
	if err != nil {
		return r.fail(domain.StageNormalizing, err)
	}
	r.report.Normalize = rep
	r.report.Rows = ds.Len()
	var cleaned bytes.Buffer
	if err := dataset.WriteCSV(&cleaned, ds); err != nil {
		return r.fail(domain.StageNormalizing, err)
	}
	digest, err := o.store.WriteCleaned(ctx, cleaned.Bytes(), ds.Len())
	if err != nil {
		return r.fail(domain.StageNormalizing, err)
	}
	r.report.Digest = digest

	r.enter(domain.StageAggregating)
	bundle, err := o.aggregator.Build(ds)
	if err != nil {
		return r.fail(domain.StageAggregating, err)
	}
	artifact, err := cache.Encode(bundle, cache.Freshness{
		SchemaVersion: cache.SchemaVersion,
		SourceDigest:  digest,
		RowCount:      ds.Len(),
		GeneratedAt:   o.now(),
	})
	if err != nil {
		return r.fail(domain.StageAggregating, err)
	}
	if err := o.store.WriteArtifact(ctx, artifact); err != nil {
		return r.fail(domain.StageAggregating, err)
	}

	r.enter(domain.StagePersisted)
	r.enter(domain.StageIdle)
	r.report.Duration = o.now().Sub(r.report.StartedAt)
	return r.report, nil
}
