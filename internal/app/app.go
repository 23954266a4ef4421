package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"ReviewGuard/internal/annotate"
	"ReviewGuard/internal/api"
	"ReviewGuard/internal/config"
	"ReviewGuard/internal/infrastructure/fetch"
	"ReviewGuard/internal/infrastructure/llm"
	"ReviewGuard/internal/infrastructure/ml"
	"ReviewGuard/internal/infrastructure/parser"
	"ReviewGuard/internal/infrastructure/scheduler"
	"ReviewGuard/internal/infrastructure/storage"
	"ReviewGuard/internal/infrastructure/telegram"
	"ReviewGuard/internal/logging"
	"ReviewGuard/internal/ports"
	"ReviewGuard/internal/tracker"
	"ReviewGuard/internal/usecase"
)

// Options select the page and platform of a session.
type Options struct {
	// Source is an http(s) URL or a path to a saved page.
	Source string
	// Platform names the locator; empty infers it from the Source host.
	Platform string
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	opts    Options
	logger  *slog.Logger
	fetcher *fetch.Fetcher
	session *usecase.Session
	reports *storage.ReportStore
}

// New loads the source document and builds a ready scan session.
func New(ctx context.Context, cfg config.Config, opts Options, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	loc, err := parser.SelectLocator(parser.DefaultRegistry(), opts.Platform, opts.Source)
	if err != nil {
		return nil, err
	}

	fetcher := fetch.NewFetcher(cfg.Fetch, logging.Component(baseLogger, "fetch"))
	doc, err := fetcher.Load(ctx, opts.Source)
	if err != nil {
		return nil, err
	}

	classifier := NewClassifier(cfg, baseLogger)
	explainer, err := NewExplainer(cfg, classifier, baseLogger)
	if err != nil {
		return nil, err
	}

	a := &Application{cfg: cfg, opts: opts, logger: baseLogger, fetcher: fetcher}

	var reports ports.ReportSink
	if cfg.Report.Path != "" {
		store, err := storage.Open(cfg.Report.Path)
		if err != nil {
			return nil, err
		}
		a.reports = store
		reports = store
	}

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.Enabled() {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram,
			telegram.WithLogger(logging.Component(baseLogger, "telegram")))
	}

	session, err := usecase.NewSession(usecase.SessionDeps{
		Document:   doc,
		Locator:    loc,
		Tracker:    tracker.New(tracker.RetryPolicy{Enabled: cfg.Pipeline.RetryErrors, MaxAttempts: cfg.Pipeline.MaxAttempts}),
		Classifier: classifier,
		Renderer:   annotate.New(doc, explainer, logging.Component(baseLogger, "renderer")),
		Batch:      usecase.BatchScheduler{Size: cfg.Pipeline.BatchSize, Delay: cfg.Pipeline.InterItemDelay.Std()},
		Reports:    reports,
		Notifier:   notifier,
		Logger:     logging.Component(baseLogger, "session").With("platform", loc.Name()),
		MinRunes:   cfg.Pipeline.MinTextLength,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.session = session
	return a, nil
}

// NewClassifier builds the classification service client.
func NewClassifier(cfg config.Config, logger *slog.Logger) *ml.Client {
	return ml.NewClient(cfg.Classifier.BaseURL, cfg.Classifier.APIKey, cfg.Classifier.Timeout.Std(),
		ml.WithLogger(logging.Component(logger, "classifier")))
}

// NewExplainer returns the explanation backend selected by explainer.mode.
func NewExplainer(cfg config.Config, service *ml.Client, logger *slog.Logger) (ports.Explainer, error) {
	switch cfg.Explainer.Mode {
	case config.ExplainerLLM:
		if cfg.Explainer.APIKey == "" {
			return nil, fmt.Errorf("explainer mode %q requires an API key", config.ExplainerLLM)
		}
		return llm.NewExplainer(cfg.Explainer, logging.Component(logger, "explainer")), nil
	case config.ExplainerService, "":
		return service, nil
	default:
		return nil, fmt.Errorf("unknown explainer mode %q", cfg.Explainer.Mode)
	}
}

// Session exposes the scan session.
func (a *Application) Session() *usecase.Session { return a.session }

// Reports returns the report store, or nil when reporting is disabled.
func (a *Application) Reports() *storage.ReportStore { return a.reports }

// Scan runs a single scan cycle.
func (a *Application) Scan(ctx context.Context) (usecase.CycleReport, error) {
	return a.session.RunCycle(ctx)
}

// Watch scans once, then keeps the document live until ctx is done: the
// observer reacts to host mutations, the cron driver re-fetches remote pages
// and the HTTP API serves the session when an address is configured.
func (a *Application) Watch(ctx context.Context) error {
	observer := usecase.NewObserver(a.session, logging.Component(a.logger, "observer"))
	if err := observer.Start(ctx); err != nil {
		return fmt.Errorf("start observer: %w", err)
	}
	defer observer.Stop()

	if _, err := a.session.RunCycle(ctx); err != nil && !errors.Is(err, usecase.ErrCycleInFlight) {
		return err
	}

	if fetch.IsRemote(a.opts.Source) {
		refresher := fetch.NewRefresher(a.fetcher, a.opts.Source, a.session.Document(),
			a.session.Locator(), logging.Component(a.logger, "refresher"))
		driver := scheduler.NewCronScheduler(a.cfg.Watch.Schedule, logging.Component(a.logger, "scheduler"))
		refreshes := usecase.NewScheduler(driver, refresher, logging.Component(a.logger, "refresh"))
		if err := refreshes.Start(ctx); err != nil {
			return fmt.Errorf("start refresh schedule: %w", err)
		}
		defer func() {
			if err := refreshes.Stop(context.Background()); err != nil {
				a.logger.Warn("stop refresh schedule", "error", err)
			}
		}()
	} else {
		a.logger.Info("local source, refresh schedule disabled", "source", a.opts.Source)
	}

	if a.cfg.Server.Addr != "" {
		var lister api.ReportLister
		if a.reports != nil {
			lister = a.reports
		}
		server := api.New(a.session, lister, logging.Component(a.logger, "api"))
		return server.ListenAndServe(ctx, a.cfg.Server.Addr)
	}

	<-ctx.Done()
	return nil
}

// WriteDocument renders the annotated document to path.
func (a *Application) WriteDocument(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := a.session.Document().Render(file); err != nil {
		_ = file.Close()
		return fmt.Errorf("render document: %w", err)
	}
	return file.Close()
}

// Close releases the report store.
func (a *Application) Close() error {
	if a.reports == nil {
		return nil
	}
	return a.reports.Close()
}
