// Package engine runs a batch: load extracts, resolve records into the
// canonical set, score it and write the export views.
package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/icp-resolver/internal/export"
	"github.com/sells-group/icp-resolver/internal/fetcher"
	"github.com/sells-group/icp-resolver/internal/ingest"
	"github.com/sells-group/icp-resolver/internal/model"
	"github.com/sells-group/icp-resolver/internal/resolve"
	"github.com/sells-group/icp-resolver/internal/scorer"
	"github.com/sells-group/icp-resolver/internal/store"
)

// Loader fetches and parses one extract locator. *fetcher.Loader
// satisfies it.
type Loader interface {
	Load(ctx context.Context, locator string) ([]fetcher.Extract, error)
}

// Result is the audit summary of one batch.
type Result struct {
	RunID string `json:"run_id,omitempty"`

	FilesLoaded     int `json:"files_loaded"`
	FilesFailed     int `json:"files_failed"`
	RecordsLoaded   int `json:"records_loaded"`
	RecordsResolved int `json:"records_resolved"`
	Created         int `json:"created"`
	ConflictMerges  int `json:"conflict_merges"`
	Unresolved      int `json:"unresolved"`
	Canonical       int `json:"canonical"`
	MultiCertified  int `json:"multi_certified"`

	Tiers      model.TierCounts  `json:"tiers"`
	FileErrors []model.FileError `json:"file_errors,omitempty"`
	RowErrors  []model.RowError  `json:"row_errors,omitempty"`
	Exports    *export.Report    `json:"exports,omitempty"`
	Duration   time.Duration     `json:"duration_ns"`

	// Contractors is the scored canonical set in id order.
	Contractors []*model.Contractor `json:"-"`
}

// Counts returns the ledger counters of r.
func (r *Result) Counts() *model.RunCounts {
	return &model.RunCounts{
		FilesLoaded:     r.FilesLoaded,
		FilesFailed:     r.FilesFailed,
		RecordsLoaded:   r.RecordsLoaded,
		RecordsResolved: r.RecordsResolved,
		Created:         r.Created,
		ConflictMerges:  r.ConflictMerges,
		Unresolved:      r.Unresolved,
		Canonical:       r.Canonical,
		MultiCertified:  r.MultiCertified,
	}
}

// Engine wires the batch stages together. The exporter and ledger are
// optional.
type Engine struct {
	loader   Loader
	mapper   *ingest.Mapper
	scorer   *scorer.Scorer
	exporter *export.Exporter
	store    store.Store
	workers  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithExporter writes the export views at the end of each run.
func WithExporter(x *export.Exporter) Option {
	return func(e *Engine) { e.exporter = x }
}

// WithStore records each run in the ledger.
func WithStore(st store.Store) Option {
	return func(e *Engine) { e.store = st }
}

// WithScoreWorkers sets the scoring shard count.
func WithScoreWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// New creates an Engine. loader may be nil when only ResolveRecords is used.
func New(loader Loader, mapper *ingest.Mapper, sc *scorer.Scorer, opts ...Option) *Engine {
	e := &Engine{
		loader:  loader,
		mapper:  mapper,
		scorer:  sc,
		workers: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// batch is the per-run state handed between stages.
type batch struct {
	result   *Result
	resolver *resolve.Resolver
	log      *zap.Logger
}

// Run loads every locator in order, resolves all records, scores the
// canonical set and writes the exports. A locator that fails to load is
// recorded in the result and the batch continues.
func (e *Engine) Run(ctx context.Context, locators []string) (*Result, error) {
	if e.loader == nil {
		return nil, eris.New("engine: no loader configured")
	}
	return e.execute(ctx, locators, func(b *batch) error {
		for _, loc := range locators {
			if err := ctx.Err(); err != nil {
				return eris.Wrap(err, "engine: run cancelled")
			}
			extracts, err := e.loader.Load(ctx, loc)
			if err != nil {
				b.result.FilesFailed++
				b.result.FileErrors = append(b.result.FileErrors, model.FileError{Source: loc, Error: err.Error()})
				b.log.Warn("engine: extract failed", zap.String("source", loc), zap.Error(err))
				continue
			}
			b.result.FilesLoaded++
			for _, x := range extracts {
				e.applyAll(b, e.mapper.Records(x))
			}
		}
		return nil
	})
}

// ResolveRecords runs an in-memory batch over already-mapped records.
func (e *Engine) ResolveRecords(ctx context.Context, label string, recs []model.RawRecord) (*Result, error) {
	return e.execute(ctx, []string{label}, func(b *batch) error {
		b.result.FilesLoaded++
		e.applyAll(b, recs)
		return nil
	})
}

func (e *Engine) execute(ctx context.Context, inputs []string, load func(*batch) error) (*Result, error) {
	start := time.Now()
	b := &batch{
		result:   &Result{Tiers: model.TierCounts{}},
		resolver: resolve.NewResolver(nil),
		log:      zap.L().With(zap.Int("inputs", len(inputs))),
	}
	b.log.Info("engine: starting batch")

	var run *model.Run
	if e.store != nil {
		var err error
		run, err = e.store.CreateRun(ctx, inputs)
		if err != nil {
			return nil, eris.Wrap(err, "engine: create run")
		}
		b.result.RunID = run.ID
		b.log = b.log.With(zap.String("run_id", run.ID))
	}
	setStatus := func(status model.RunStatus) {
		if run == nil {
			return
		}
		if err := e.store.UpdateRunStatus(ctx, run.ID, status); err != nil {
			b.log.Warn("engine: failed to update run status", zap.Error(err))
		}
	}
	fail := func(err error) (*Result, error) {
		if run != nil {
			if ferr := e.store.FailRun(ctx, run.ID, err.Error()); ferr != nil {
				b.log.Warn("engine: failed to record failure", zap.Error(ferr))
			}
		}
		return b.result, err
	}

	setStatus(model.RunStatusResolving)
	if err := load(b); err != nil {
		return fail(err)
	}
	e.collectStats(b)

	setStatus(model.RunStatusScoring)
	cs := b.resolver.Contractors()
	if err := e.scorer.ScoreAll(ctx, cs, e.workers); err != nil {
		return fail(eris.Wrap(err, "engine: score"))
	}
	b.result.Contractors = cs
	b.result.Canonical = len(cs)
	for _, c := range cs {
		b.result.Tiers[c.Tier]++
		if c.IsMultiCertified() {
			b.result.MultiCertified++
		}
	}

	if e.exporter != nil {
		setStatus(model.RunStatusExporting)
		rep := e.exporter.Export(cs)
		b.result.Exports = &rep
	}

	if run != nil {
		if _, err := e.store.SaveContractors(ctx, run.ID, cs); err != nil {
			return fail(eris.Wrap(err, "engine: save contractors"))
		}
		if err := e.store.CompleteRun(ctx, run.ID, b.result.Counts()); err != nil {
			b.log.Warn("engine: failed to complete run", zap.Error(err))
		}
	}

	b.result.Duration = time.Since(start)
	b.log.Info("engine: batch complete",
		zap.Int("files_loaded", b.result.FilesLoaded),
		zap.Int("files_failed", b.result.FilesFailed),
		zap.Int("records_loaded", b.result.RecordsLoaded),
		zap.Int("records_resolved", b.result.RecordsResolved),
		zap.Int("created", b.result.Created),
		zap.Int("conflict_merges", b.result.ConflictMerges),
		zap.Int("unresolved", b.result.Unresolved),
		zap.Int("canonical", b.result.Canonical),
		zap.Duration("duration", b.result.Duration),
	)
	return b.result, nil
}

// applyAll feeds records through the resolver in order.
func (e *Engine) applyAll(b *batch, recs []model.RawRecord) {
	for _, rec := range recs {
		b.result.RecordsLoaded++
		out := b.resolver.Apply(rec)
		if out.Unresolved {
			b.result.RowErrors = append(b.result.RowErrors, model.RowError{
				SourceFile: rec.SourceFile,
				Row:        rec.Row,
				Origin:     rec.Origin,
				Name:       rec.Name,
				Reason:     "no usable phone, domain or name",
			})
		}
	}
}

func (e *Engine) collectStats(b *batch) {
	st := b.resolver.Stats()
	b.result.RecordsResolved = st.Resolved
	b.result.Created = st.Created
	b.result.ConflictMerges = st.ConflictMerges
	b.result.Unresolved = st.Unresolved
}
