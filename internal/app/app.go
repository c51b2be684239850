// Package app initializes and holds the long-lived services shared by every
// command, acting as the dependency injection container for the plan and
// capture phases.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/socialcards/internal/cache"
	"github.com/JakeFAU/socialcards/internal/capture"
	"github.com/JakeFAU/socialcards/internal/cards"
	"github.com/JakeFAU/socialcards/internal/config"
	"github.com/JakeFAU/socialcards/internal/content"
	"github.com/JakeFAU/socialcards/internal/inventory"
	"github.com/JakeFAU/socialcards/internal/metrics"
	"github.com/JakeFAU/socialcards/internal/notify"
	"github.com/JakeFAU/socialcards/internal/planner"
	"github.com/JakeFAU/socialcards/internal/runner"
	"github.com/JakeFAU/socialcards/internal/site"
)

// Deps are the collaborators an App is assembled from.
type Deps struct {
	Logger   *zap.Logger
	Fs       afero.Fs
	Cache    cards.JobCache
	Capturer cards.Capturer
	Notifier notify.Notifier
	// Getenv is consulted by the activation gate. Defaults to os.Getenv.
	Getenv func(string) string
}

// App holds the shared services for one invocation.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	fs        afero.Fs
	cache     cards.JobCache
	capturer  cards.Capturer
	notifier  notify.Notifier
	registrar *site.ManifestRegistrar
	getenv    func(string) string
	now       func() time.Time
}

// New assembles an App from already-built dependencies.
func New(cfg config.Config, deps Deps) *App {
	a := &App{
		cfg:      cfg,
		logger:   deps.Logger,
		fs:       deps.Fs,
		cache:    deps.Cache,
		capturer: deps.Capturer,
		notifier: deps.Notifier,
		getenv:   deps.Getenv,
		now:      time.Now,
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	if a.cache == nil {
		a.cache = cache.NewMemory()
	}
	if a.capturer == nil {
		a.capturer = capture.NewNoop()
	}
	if a.notifier == nil {
		a.notifier = notify.Nop{}
	}
	if a.getenv == nil {
		a.getenv = os.Getenv
	}
	a.registrar = site.NewManifestRegistrar(a.fs, cfg.Pages.Manifest)
	return a
}

// NewApp builds every service named by cfg and fails fast if one cannot start.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	logger.Info("initializing application services")
	metrics.Init()
	fs := afero.NewOsFs()

	jobCache, err := cache.New(ctx, cfg.Cache, fs, logger.Named("cache"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize job cache: %w", err)
	}

	capturer, err := capture.NewChromedp(capture.Config{
		NavigationTimeout: cfg.NavigationTimeout(),
		ReadySelector:     cfg.ReadySelector,
		ExecPath:          cfg.ChromePath,
		Fs:                fs,
	}, logger.Named("capture"))
	if err != nil {
		_ = jobCache.Close()
		return nil, fmt.Errorf("failed to initialize capturer: %w", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.Topic != "" {
		logger.Info("publishing run reports to pubsub", zap.String("topic", cfg.Notify.Topic))
		notifier, err = notify.NewPubSub(ctx, cfg.Notify.ProjectID, cfg.Notify.Topic)
		if err != nil {
			_ = jobCache.Close()
			return nil, fmt.Errorf("failed to initialize notifier: %w", err)
		}
	}

	return New(cfg, Deps{
		Logger:   logger,
		Fs:       fs,
		Cache:    jobCache,
		Capturer: capturer,
		Notifier: notifier,
	}), nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Active reports whether the activation gate lets the plugin run.
func (a *App) Active() bool {
	return a.cfg.Activation.Active(a.getenv)
}

// Plan runs the planning phase and flushes the page manifest for the host build.
// When the gate is closed it does nothing and returns a nil batch.
func (a *App) Plan(ctx context.Context) (cards.JobBatch, error) {
	if !a.Active() {
		a.logger.Info("social cards inactive for this command, skipping planning",
			zap.String("env_var", a.cfg.Activation.EnvVar))
		return nil, nil
	}
	if err := a.cfg.ValidatePlan(); err != nil {
		return nil, err
	}
	query, extract, err := a.contentSource()
	if err != nil {
		return nil, err
	}
	outputDir, err := a.cfg.OutputDir()
	if err != nil {
		return nil, err
	}

	p := planner.New(query, extract, inventory.New(a.fs, outputDir), a.registrar, a.cache, a.logger.Named("planner"))
	batch, err := p.Plan(ctx, planner.Options{
		Query:      a.cfg.Query,
		Component:  a.cfg.Component,
		Specs:      a.cfg.Dimensions,
		OutputRoot: outputDir,
	})
	if err != nil {
		return nil, err
	}
	if a.cfg.Pages.Manifest != "" {
		if err := a.registrar.Flush(ctx); err != nil {
			return nil, fmt.Errorf("write page manifest: %w", err)
		}
	}
	return batch, nil
}

// Capture reads the planned batch once and captures it. A drained batch is
// cleared so the next capture does not repeat it.
func (a *App) Capture(ctx context.Context) (cards.RunReport, error) {
	if !a.Active() {
		a.logger.Info("social cards inactive for this command, skipping capture",
			zap.String("env_var", a.cfg.Activation.EnvVar))
		return cards.RunReport{Skipped: true}, nil
	}
	outputDir, err := a.cfg.OutputDir()
	if err != nil {
		return cards.RunReport{}, err
	}
	batch, err := a.cache.Get(ctx, cards.CacheKey)
	if err != nil {
		return cards.RunReport{}, fmt.Errorf("read job batch: %w", err)
	}

	r := runner.New(a.capturer, runner.OutputResolver(outputDir), a.logger.Named("runner"))
	report := r.Run(ctx, batch, runner.Options{
		BaseURL:    a.cfg.BaseURL,
		Limit:      a.cfg.CardLimit,
		Quiescence: a.cfg.Quiescence(),
	})

	if !report.Skipped && len(batch) > 0 {
		if err := a.cache.Set(ctx, cards.CacheKey, cards.JobBatch{}); err != nil {
			a.logger.Warn("failed to clear job batch", zap.Error(err))
		}
	}
	a.publish(ctx, report)
	return report, nil
}

func (a *App) publish(ctx context.Context, report cards.RunReport) {
	if id, err := a.notifier.Notify(ctx, notify.NewReportMessage(report, a.now())); err != nil {
		a.logger.Warn("failed to publish run report", zap.Error(err))
	} else if id != "" {
		a.logger.Debug("published run report", zap.String("message_id", id))
	}
	if err := metrics.Push(ctx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job); err != nil {
		a.logger.Warn("failed to push metrics", zap.Error(err))
	}
}

// WatchTarget returns the file the planned batch is written to, when the cache
// is file backed.
func (a *App) WatchTarget() (string, bool) {
	fc, ok := a.cache.(*cache.File)
	if !ok {
		return "", false
	}
	return fc.PathFor(cards.CacheKey), true
}

// SharedCache reports whether a batch planned by one invocation is visible to another.
func (a *App) SharedCache() bool {
	_, inProcess := a.cache.(*cache.Memory)
	return !inProcess
}

func (a *App) contentSource() (cards.ContentQuery, cards.Extractor, error) {
	switch a.cfg.Extractor {
	case config.ExtractorFrontmatter:
		return content.NewFrontmatterQuery(a.fs, a.cfg.Content.Dir), content.DocumentsToPages(a.cfg.Content.Root), nil
	case config.ExtractorManifest:
		return content.NewJSONQuery(a.fs, a.cfg.Content.Manifest), content.ManifestToPages(a.cfg.Content.Root), nil
	default:
		return nil, nil, fmt.Errorf("unknown extractor %q: %w", a.cfg.Extractor, cards.ErrMissingExtractor)
	}
}

// Close shuts down the services in reverse order of construction.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	if err := a.notifier.Close(); err != nil {
		a.logger.Warn("error closing notifier", zap.Error(err))
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("error closing job cache", zap.Error(err))
	}
	_ = a.logger.Sync()
}
