package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"NewsBot/internal/config"
	"NewsBot/internal/domain"
	"NewsBot/internal/infrastructure/fetcher"
	"NewsBot/internal/infrastructure/parser"
	"NewsBot/internal/infrastructure/scheduler"
	"NewsBot/internal/infrastructure/storage"
	"NewsBot/internal/infrastructure/telegram"
	"NewsBot/internal/logging"
	"NewsBot/internal/ports"
	"NewsBot/internal/usecase"
	"NewsBot/pkg/logger"
)

const connectTimeout = 10 * time.Second

// Options alter how the application is assembled.
type Options struct {
	// DryRun keeps records in memory instead of the configured database.
	DryRun bool
	// RunOnStart triggers one crawl immediately when scheduling.
	RunOnStart bool
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg          config.Config
	logger       *slog.Logger
	sources      []domain.SourceConfig
	repository   ports.ArticleRepository
	orchestrator *usecase.Orchestrator
	runOnStart   bool
	closers      []func(context.Context) error
}

// New builds a runnable application instance. Database connections are
// opened here; call Close to release them.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts Options) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	sources, err := cfg.Sources()
	if err != nil {
		return nil, fmt.Errorf("resolve sources: %w", err)
	}

	a := &Application{cfg: cfg, logger: baseLogger, sources: sources, runOnStart: opts.RunOnStart}

	httpFetcher := fetcher.New(&http.Client{}, fetcher.Options{
		Timeout: cfg.Crawler.Timeout,
		Retry: fetcher.RetryPolicy{
			MaxAttempts: cfg.Crawler.MaxAttempts,
			BaseDelay:   cfg.Crawler.BaseDelay,
			MaxDelay:    cfg.Crawler.MaxDelay,
			Jitter:      fetcher.DefaultRetryPolicy().Jitter,
		},
		UserAgent: cfg.Crawler.UserAgent,
		RateLimit: cfg.Crawler.RateLimit,
		Burst:     cfg.Crawler.Burst,
		Logger:    baseLogger.With("component", "fetcher"),
	})

	repo, err := a.openRepository(ctx, opts.DryRun)
	if err != nil {
		return nil, err
	}
	a.repository = repo

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.Enabled() {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	orchestrator, err := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Registry:   parser.NewRegistry(httpFetcher, baseLogger, time.Now),
		Fetcher:    httpFetcher,
		Extractor:  parser.NewHTMLExtractor(time.Now),
		Repository: repo,
		Notifier:   notifier,
		Logger:     baseLogger,
	}, usecase.OrchestratorOptions{
		Strategy:          usecase.Strategy(cfg.Crawler.Strategy),
		Workers:           cfg.Crawler.Workers,
		SourceConcurrency: cfg.Crawler.SourceConcurrency,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.orchestrator = orchestrator

	return a, nil
}

func (a *Application) openRepository(ctx context.Context, dryRun bool) (ports.ArticleRepository, error) {
	driver := a.cfg.Database.Driver
	if dryRun {
		driver = config.DriverMemory
	}
	a.logger.Info("storage selected", "driver", driver)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch driver {
	case config.DriverMemory:
		return storage.NewMemoryRepository(), nil
	case config.DriverMongo:
		client, err := storage.ConnectMongo(connectCtx, a.cfg.Database.MongoURI)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Disconnect)
		coll := client.Database(a.cfg.Database.Database).Collection(a.cfg.Database.Collection)
		return storage.NewMongoRepository(coll), nil
	case config.DriverPostgres:
		db, err := storage.OpenPostgres(connectCtx, a.cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		return storage.NewPostgresRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// Sources returns the resolved crawl sources.
func (a *Application) Sources() []domain.SourceConfig {
	return a.sources
}

// Repository returns the persistence gateway in use.
func (a *Application) Repository() ports.ArticleRepository {
	return a.repository
}

// EnsureIndexes prepares the storage schema. Crawls never call it; run the
// indexes command once per database instead.
func (a *Application) EnsureIndexes(ctx context.Context) error {
	return a.repository.EnsureIndexes(ctx)
}

// Crawl performs a single run over all sources.
func (a *Application) Crawl(ctx context.Context) (domain.RunSummary, error) {
	if len(a.sources) == 0 {
		return domain.RunSummary{}, errors.New("no sources configured")
	}
	return a.orchestrator.Run(ctx, a.sources), nil
}

// Schedule runs crawls on the configured cron expression until ctx ends.
func (a *Application) Schedule(ctx context.Context) error {
	if len(a.sources) == 0 {
		return errors.New("no sources configured")
	}

	driver := scheduler.NewCronScheduler(
		a.cfg.Scheduler.CronExpression,
		a.cfg.Scheduler.Location(),
		logger.New("cron"),
		a.runOnStart,
	)
	sched := usecase.NewScheduler(driver, a.orchestrator, a.sources, a.logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("scheduler started",
		"cron", a.cfg.Scheduler.CronExpression,
		"timezone", a.cfg.Scheduler.Location().String(),
		"sources", len(a.sources))

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	return sched.Stop(stopCtx)
}

// Close releases database connections.
func (a *Application) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
