// Package planner turns a content query into a deduplicated batch of card jobs
// and hands it to the capture phase through a JobCache.
package planner

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/socialcards/internal/cards"
	"github.com/JakeFAU/socialcards/internal/metrics"
)

// Options configures a single planning pass.
type Options struct {
	Query      string
	Component  string
	Specs      []cards.CardSpec
	OutputRoot string
}

// Validate fails fast on configuration that makes planning impossible.
func (o Options) Validate() error {
	if o.Query == "" {
		return cards.ErrMissingQuery
	}
	if o.Component == "" {
		return cards.ErrMissingComponent
	}
	for i, spec := range o.Specs {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("dimensions[%d]: %w", i, err)
		}
	}
	return nil
}

// Planner wires the collaborators of the planning phase.
type Planner struct {
	query     cards.ContentQuery
	extract   cards.Extractor
	inventory cards.Inventory
	registrar cards.PageRegistrar
	cache     cards.JobCache
	logger    *zap.Logger
}

// New constructs a Planner.
func New(
	query cards.ContentQuery,
	extract cards.Extractor,
	inventory cards.Inventory,
	registrar cards.PageRegistrar,
	cache cards.JobCache,
	logger *zap.Logger,
) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		query:     query,
		extract:   extract,
		inventory: inventory,
		registrar: registrar,
		cache:     cache,
		logger:    logger,
	}
}

// Plan runs the content query, drops jobs whose PNG already exists, registers a
// card page for every remaining job and overwrites the cached batch.
func (p *Planner) Plan(ctx context.Context, opts Options) (cards.JobBatch, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if p.extract == nil {
		return nil, cards.ErrMissingExtractor
	}

	result, err := p.query.Run(ctx, opts.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cards.ErrPlanning, err)
	}
	records, err := p.extract(result)
	if err != nil {
		return nil, fmt.Errorf("%w: extract pages: %w", cards.ErrPlanning, err)
	}

	outputRoot, err := filepath.Abs(opts.OutputRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve output root: %w", err)
	}
	existing, err := p.inventory.Existing(ctx, opts.Specs)
	if err != nil {
		return nil, fmt.Errorf("scan existing cards: %w", err)
	}

	planned := compute(records, opts.Specs, outputRoot, existing)
	batch := make(cards.JobBatch, 0, len(planned))
	for _, pj := range planned {
		p.register(ctx, opts.Component, pj)
		batch = append(batch, pj.job)
	}

	if err := p.cache.Set(ctx, cards.CacheKey, batch); err != nil {
		return nil, fmt.Errorf("store job batch: %w", err)
	}
	metrics.ObservePlan(len(batch))

	if len(batch) == 0 {
		p.logger.Info("no social cards were created")
	} else {
		p.logger.Info(fmt.Sprintf("created %d social card pages, first is %s", len(batch), batch[0].Path),
			zap.Int("jobs", len(batch)),
		)
	}
	return batch, nil
}

// register is fire-and-forget: a failed registration is logged and the job stays planned.
func (p *Planner) register(ctx context.Context, component string, pj plannedJob) {
	if p.registrar == nil {
		return
	}
	page := cards.PageRequest{
		Path:      pj.job.Path,
		Component: component,
		Context:   pageContext(pj.context, pj.job),
	}
	if err := p.registrar.CreatePage(ctx, page); err != nil {
		p.logger.Warn("register card page", zap.String("path", pj.job.Path), zap.Error(err))
	}
}

type plannedJob struct {
	job     cards.Job
	context map[string]any
}

// Compute is the pure core of planning. For every record (extractor order) and
// card spec (configured order) it yields a job unless outputRoot/slug+suffix.png is
// already in existing. outputRoot must be absolute.
func Compute(records []cards.PageRecord, specs []cards.CardSpec, outputRoot string, existing cards.ExistingOutputSet) cards.JobBatch {
	planned := compute(records, specs, outputRoot, existing)
	batch := make(cards.JobBatch, 0, len(planned))
	for _, pj := range planned {
		batch = append(batch, pj.job)
	}
	return batch
}

func compute(records []cards.PageRecord, specs []cards.CardSpec, outputRoot string, existing cards.ExistingOutputSet) []plannedJob {
	planned := make([]plannedJob, 0, len(records)*len(specs))
	for _, record := range records {
		for _, spec := range specs {
			path := record.Slug + spec.Suffix
			if existing.Has(cards.ImagePath(outputRoot, path)) {
				continue
			}
			planned = append(planned, plannedJob{
				job:     cards.Job{Path: path, Width: spec.Width, Height: spec.Height},
				context: record.Context,
			})
		}
	}
	return planned
}

// pageContext copies base and adds the job dimensions; base is never mutated.
func pageContext(base map[string]any, job cards.Job) map[string]any {
	ctx := make(map[string]any, len(base)+2)
	for k, v := range base {
		ctx[k] = v
	}
	ctx["width"] = job.Width
	ctx["height"] = job.Height
	return ctx
}
