package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"NewsBot/internal/domain"
	"NewsBot/internal/ports"
	"NewsBot/internal/scanner"
)

const defaultSourceConcurrency = 2

// OrchestratorDeps wires all driven adapters into the crawl orchestrator.
type OrchestratorDeps struct {
	Registry   *scanner.Registry
	Fetcher    ports.Fetcher
	Extractor  ports.Extractor
	Repository ports.ArticleRepository
	Notifier   ports.Notifier
	Logger     *slog.Logger
	Now        func() time.Time
}

// OrchestratorOptions tunes execution. Zero values select defaults.
type OrchestratorOptions struct {
	Strategy          Strategy
	Workers           int
	SourceConcurrency int
}

// Orchestrator drives discovery, fetching, extraction and persistence for a
// set of sources and reports per-source summaries.
type Orchestrator struct {
	registry          *scanner.Registry
	fetcher           ports.Fetcher
	extractor         ports.Extractor
	repository        ports.ArticleRepository
	notifier          ports.Notifier
	logger            *slog.Logger
	now               func() time.Time
	executor          executor
	sourceConcurrency int
}

// NewOrchestrator validates the wiring and picks the execution strategy.
func NewOrchestrator(deps OrchestratorDeps, opts OrchestratorOptions) (*Orchestrator, error) {
	if deps.Registry == nil || deps.Fetcher == nil || deps.Extractor == nil {
		return nil, fmt.Errorf("orchestrator requires registry, fetcher and extractor")
	}
	exec, err := newExecutor(opts.Strategy, opts.Workers)
	if err != nil {
		return nil, err
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.SourceConcurrency <= 0 {
		opts.SourceConcurrency = defaultSourceConcurrency
	}

	return &Orchestrator{
		registry:          deps.Registry,
		fetcher:           deps.Fetcher,
		extractor:         deps.Extractor,
		repository:        deps.Repository,
		notifier:          deps.Notifier,
		logger:            deps.Logger.With("component", "orchestrator"),
		now:               deps.Now,
		executor:          exec,
		sourceConcurrency: opts.SourceConcurrency,
	}, nil
}

// Run crawls every source, at most SourceConcurrency at a time. Cancelling
// ctx stops dispatch; tasks already running finish and the summary is
// marked interrupted.
func (o *Orchestrator) Run(ctx context.Context, sources []domain.SourceConfig) domain.RunSummary {
	started := o.now()
	run := domain.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: started.UTC(),
		Sources:   make([]domain.SourceSummary, len(sources)),
	}
	log := o.logger.With("run_id", run.RunID)
	log.Info("crawl run started", "sources", len(sources), "workers", o.executor.workers())

	var g errgroup.Group
	g.SetLimit(o.sourceConcurrency)
	for i := range sources {
		src := &sources[i]
		g.Go(func() error {
			run.Sources[i] = o.CrawlSource(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	run.Duration = o.now().Sub(started)
	run.Interrupted = ctx.Err() != nil
	run.Aggregate()

	t := run.Totals
	log.Info("crawl run finished",
		"duration", run.Duration,
		"interrupted", run.Interrupted,
		"discovered", t.Discovered,
		"succeeded", t.Succeeded,
		"failed", t.Failed(),
		"persisted", t.Persisted,
		"persist_failed", t.PersistFailed,
		"not_dispatched", t.NotDispatched)

	if o.notifier != nil {
		// The digest is sent even when ctx is cancelled.
		if err := o.notifier.PublishDigest(context.WithoutCancel(ctx), buildDigestMessage(run)); err != nil {
			log.Warn("publish digest failed", "error", err)
		}
	}
	return run
}

// CrawlSource runs one source through discovery, dispatch and draining.
// Invalid configurations are skipped with a reason and never fetched.
func (o *Orchestrator) CrawlSource(ctx context.Context, src *domain.SourceConfig) (summary domain.SourceSummary) {
	started := o.now()
	summary = domain.SourceSummary{Source: src.Name, State: domain.StateIdle}
	log := o.logger.With("source", src.Name)

	defer func() {
		summary.Duration = o.now().Sub(started)
	}()

	if err := src.Validate(); err != nil {
		return o.skip(log, summary, err)
	}
	discoverers, err := o.registry.ForSource(src)
	if err != nil {
		return o.skip(log, summary, domain.NewConfigFailure(domain.KindInvalidSourceConfig, err))
	}
	if ctx.Err() != nil {
		summary.Interrupted = true
		o.advance(log, &summary, domain.StateSummarized)
		return summary
	}

	o.advance(log, &summary, domain.StateDiscovering)

	tasks := make(chan domain.CrawlTask, o.executor.workers())
	tallyCh := make(chan domain.SourceSummary, 1)
	go func() {
		tallyCh <- o.executor.execute(ctx, tasks, o.processor(ctx, log))
	}()

	o.discover(ctx, log, src, discoverers, tasks, &summary)
	close(tasks)

	if summary.Discovered > 0 {
		o.advance(log, &summary, domain.StateDraining)
	}
	addTaskCounts(&summary, <-tallyCh)

	if ctx.Err() != nil {
		summary.Interrupted = true
	}
	o.advance(log, &summary, domain.StateSummarized)

	log.Info("source summarized",
		"discovered", summary.Discovered,
		"succeeded", summary.Succeeded,
		"failed_retryable_exhausted", summary.FailedRetryExhausted,
		"failed_terminal", summary.FailedTerminal,
		"persisted", summary.Persisted,
		"merged", summary.Merged,
		"duplicate_skipped", summary.DuplicateSkipped,
		"persist_failed", summary.PersistFailed,
		"not_dispatched", summary.NotDispatched,
		"discovery_issues", len(summary.DiscoveryIssues),
		"interrupted", summary.Interrupted)
	return summary
}

// discover streams tasks from every enabled discoverer into the pool,
// dropping URLs already dispatched for this source.
func (o *Orchestrator) discover(
	ctx context.Context,
	log *slog.Logger,
	src *domain.SourceConfig,
	discoverers []scanner.Discoverer,
	tasks chan<- domain.CrawlTask,
	summary *domain.SourceSummary,
) {
	seen := map[string]struct{}{}
	yield := func(task domain.CrawlTask) bool {
		if ctx.Err() != nil {
			return false
		}
		if _, dup := seen[task.URL]; dup {
			summary.DuplicateSkipped++
			return true
		}
		task.Source = src
		select {
		case tasks <- task:
		case <-ctx.Done():
			return false
		}
		seen[task.URL] = struct{}{}
		summary.Discovered++
		if summary.State == domain.StateDiscovering {
			o.advance(log, summary, domain.StateDispatching)
		}
		return true
	}

	for _, d := range discoverers {
		if ctx.Err() != nil {
			return
		}
		err := d.Discover(ctx, src, yield)
		for _, issue := range flattenErrors(err) {
			log.Warn("discovery issue", "discoverer", d.Name(), "error", issue)
			summary.DiscoveryIssues = append(summary.DiscoveryIssues, fmt.Sprintf("%s: %v", d.Name(), issue))
		}
	}
}

// processor returns the per-task pipeline. Tasks run on a context detached
// from cancellation so in-flight fetches and writes complete.
func (o *Orchestrator) processor(ctx context.Context, log *slog.Logger) processFunc {
	taskCtx := context.WithoutCancel(ctx)
	return func(task domain.CrawlTask) (result taskResult) {
		result.url = task.URL
		defer func() {
			if r := recover(); r != nil {
				result = taskResult{url: task.URL, failure: &domain.Failure{
					Kind: domain.KindMalformedHTML,
					URL:  task.URL,
					Err:  fmt.Errorf("panic while processing: %v", r),
				}}
			}
			if result.failure != nil {
				log.Warn("task failed",
					"url", task.URL,
					"kind", result.failure.Kind,
					"attempts", result.failure.Attempts,
					"retryable", result.failure.Retryable,
					"error", result.failure)
			}
		}()

		page, err := o.fetcher.Fetch(taskCtx, task.URL)
		if err != nil {
			result.failure = asFailure(err, domain.KindConnectionError, task.URL)
			return result
		}
		task.Attempt = page.Attempts

		record, err := o.extractor.Extract(page, task)
		if err != nil {
			result.failure = asFailure(err, domain.KindMalformedHTML, task.URL)
			return result
		}
		if err := record.Validate(); err != nil {
			result.failure = domain.NewParseFailure(domain.KindMalformedHTML, task.URL, err)
			return result
		}

		if o.repository == nil {
			return result
		}
		result.ack, result.persistErr = o.persist(taskCtx, record)
		if result.persistErr != nil {
			log.Error("record dropped", "url", task.URL, "error", result.persistErr)
			return result
		}
		result.persisted = true
		return result
	}
}

// persist upserts record with one immediate retry.
func (o *Orchestrator) persist(ctx context.Context, record domain.NormalizedRecord) (domain.UpsertAck, error) {
	ack, err := o.repository.Upsert(ctx, record.URL, record)
	if err == nil {
		return ack, nil
	}
	o.logger.Warn("upsert failed, retrying", "url", record.URL, "error", err)
	return o.repository.Upsert(ctx, record.URL, record)
}

func (o *Orchestrator) skip(log *slog.Logger, summary domain.SourceSummary, err error) domain.SourceSummary {
	summary.Skipped = true
	summary.SkipReason = err.Error()
	if f, ok := domain.AsFailure(err); ok {
		summary.FailuresByKind = map[domain.FailureKind]int{f.Kind: 1}
	}
	log.Warn("source skipped", "reason", summary.SkipReason)
	o.advance(log, &summary, domain.StateSummarized)
	return summary
}

func (o *Orchestrator) advance(log *slog.Logger, summary *domain.SourceSummary, next domain.SourceState) {
	state, err := summary.State.Transition(next)
	if err != nil {
		log.Error("source state", "error", err)
		return
	}
	log.Debug("source state", "from", summary.State, "to", state)
	summary.State = state
}

func asFailure(err error, fallback domain.FailureKind, url string) *domain.Failure {
	if f, ok := domain.AsFailure(err); ok {
		return f
	}
	return &domain.Failure{Kind: fallback, URL: url, Err: err}
}

// flattenErrors expands errors.Join trees into their leaves.
func flattenErrors(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flattenErrors(e)...)
		}
		return out
	}
	return []error{err}
}
