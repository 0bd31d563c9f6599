package usecase

import (
	"context"
	"log/slog"
	"time"

	"NewsBot/internal/domain"
	"NewsBot/internal/ports"
)

// Scheduler wires the cron-like driver with the crawl orchestrator.
type Scheduler struct {
	driver       ports.Scheduler
	orchestrator *Orchestrator
	sources      []domain.SourceConfig
	logger       *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring crawl runs.
func NewScheduler(driver ports.Scheduler, orchestrator *Orchestrator, sources []domain.SourceConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		driver:       driver,
		orchestrator: orchestrator,
		sources:      sources,
		logger:       logger.With("component", "scheduler"),
	}
}

// Start registers the crawl run with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.orchestrator == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.logger.Info("scheduled crawl triggered", "trigger", trigger.Format(time.RFC3339))
		run := s.orchestrator.Run(ctx, s.sources)
		s.logger.Info("scheduled crawl done", "run_id", run.RunID, "persisted", run.Totals.Persisted)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
