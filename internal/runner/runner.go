// Package runner drains a planned JobBatch through a Capturer, one job at a time.
package runner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/socialcards/internal/cards"
	"github.com/JakeFAU/socialcards/internal/metrics"
)

// Unlimited disables the card limit.
const Unlimited = -1

// Resolver maps a job path to its PNG destination.
type Resolver func(path string) string

// OutputResolver resolves destinations under outputRoot.
func OutputResolver(outputRoot string) Resolver {
	return func(path string) string {
		return cards.ImagePath(outputRoot, path)
	}
}

// Options configures one run.
type Options struct {
	BaseURL string
	// Limit caps the number of captures. Zero disables capture, Unlimited (or any
	// negative value) captures the whole batch.
	Limit int
	// Quiescence is the fixed post-navigation wait passed to the capturer.
	Quiescence time.Duration
}

// Runner executes capture runs. Captures are strictly sequential so at most one
// browser is alive at a time.
type Runner struct {
	capturer cards.Capturer
	resolve  Resolver
	logger   *zap.Logger
	now      func() time.Time
}

// New constructs a Runner.
func New(capturer cards.Capturer, resolve Resolver, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		capturer: capturer,
		resolve:  resolve,
		logger:   logger,
		now:      time.Now,
	}
}

// Run captures the jobs of batch in stored order. A failed job is recorded and
// the run moves on; only context cancellation ends a run early.
func (r *Runner) Run(ctx context.Context, batch cards.JobBatch, opts Options) cards.RunReport {
	report := cards.RunReport{
		RunID:   uuid.NewString(),
		Planned: len(batch),
	}
	logger := r.logger.With(zap.String("run_id", report.RunID))

	if opts.Limit == 0 {
		report.Skipped = true
		metrics.ObserveRunSkipped()
		logger.Info("card limit is zero, skipping social card screenshots")
		return report
	}

	jobs := batch.Limit(opts.Limit)
	logger.Info("starting social card screenshots",
		zap.Int("planned", len(batch)),
		zap.Int("selected", len(jobs)),
	)

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			logger.Warn("capture run canceled",
				zap.Int("remaining", len(jobs)-i),
				zap.Error(err),
			)
			break
		}
		report.Record(r.captureOne(ctx, logger, job, opts))
	}

	metrics.ObserveRunFinished()
	logger.Info(report.Summary(),
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Strings("failed_paths", report.FailedPaths),
	)
	return report
}

func (r *Runner) captureOne(ctx context.Context, logger *zap.Logger, job cards.Job, opts Options) cards.Outcome {
	outcome := cards.Outcome{
		Job:         job,
		URL:         cards.JoinURL(opts.BaseURL, job.Path),
		Destination: r.resolve(job.Path),
	}
	logger.Info("taking screenshot", zap.String("url", outcome.URL))

	start := r.now()
	outcome.Err = r.capturer.Capture(ctx, cards.CaptureRequest{
		URL:         outcome.URL,
		Width:       job.Width,
		Height:      job.Height,
		Destination: outcome.Destination,
		Quiescence:  opts.Quiescence,
	})
	outcome.Duration = r.now().Sub(start)

	if outcome.Err != nil {
		metrics.ObserveCapture(outcome.URL, metrics.StatusFailure, outcome.Duration)
		logger.Error("taking screenshot failed",
			zap.String("url", outcome.URL),
			zap.String("destination", outcome.Destination),
			zap.Error(outcome.Err),
		)
		return outcome
	}
	metrics.ObserveCapture(outcome.URL, metrics.StatusSuccess, outcome.Duration)
	logger.Info("took screenshot",
		zap.String("url", outcome.URL),
		zap.String("destination", outcome.Destination),
		zap.Duration("duration", outcome.Duration),
	)
	return outcome
}
