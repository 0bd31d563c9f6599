package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsBot/internal/domain"
	"NewsBot/internal/ports"
	"NewsBot/internal/scanner"
)

type fixture struct {
	fetcher   *stubFetcher
	extractor stubExtractor
	repo      ports.ArticleRepository
	notifier  ports.Notifier
	registry  *scanner.Registry
}

func (f fixture) orchestrator(t *testing.T, opts OrchestratorOptions) *Orchestrator {
	t.Helper()
	if f.fetcher == nil {
		f.fetcher = &stubFetcher{}
	}
	o, err := NewOrchestrator(OrchestratorDeps{
		Registry:   f.registry,
		Fetcher:    f.fetcher,
		Extractor:  f.extractor,
		Repository: f.repo,
		Notifier:   f.notifier,
		Logger:     slog.New(slog.DiscardHandler),
	}, opts)
	require.NoError(t, err)
	return o
}

var strategies = []Strategy{StrategyShared, StrategyMessage}

func TestPartialFailureIsolation(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			urls := articleURLs("site.example", 10)
			fetcher := &stubFetcher{fail: map[string]error{
				urls[4]: &domain.Failure{Kind: domain.KindHTTPStatus, StatusCode: 404, URL: urls[4]},
			}}
			repo := newFlakyRepository(nil)
			o := fixture{
				fetcher:  fetcher,
				repo:     repo,
				registry: scanner.NewRegistry(stubDiscoverer{name: scanner.Sitemap, urls: urls}),
			}.orchestrator(t, OrchestratorOptions{Strategy: strategy, Workers: 3})

			src := testSource("site")
			summary := o.CrawlSource(context.Background(), &src)

			assert.Equal(t, domain.StateSummarized, summary.State)
			assert.Equal(t, 10, summary.Discovered)
			assert.Equal(t, 9, summary.Succeeded)
			assert.Equal(t, 1, summary.FailedTerminal)
			assert.Equal(t, 0, summary.FailedRetryExhausted)
			assert.Equal(t, 9, summary.Persisted)
			assert.Equal(t, map[domain.FailureKind]int{domain.KindHTTPStatus: 1}, summary.FailuresByKind)
			assert.Equal(t, 10, fetcher.callCount())
			assert.Equal(t, 9, repo.Len())
		})
	}
}

func TestExhaustedRetriesCountedSeparately(t *testing.T) {
	urls := articleURLs("slow.example", 3)
	fetcher := &stubFetcher{fail: map[string]error{
		urls[0]: &domain.Failure{Kind: domain.KindTimeout, URL: urls[0], Retryable: true, Exhausted: true, Attempts: 3},
	}}
	o := fixture{
		fetcher:  fetcher,
		registry: scanner.NewRegistry(stubDiscoverer{name: scanner.Sitemap, urls: urls}),
	}.orchestrator(t, OrchestratorOptions{})

	src := testSource("slow")
	summary := o.CrawlSource(context.Background(), &src)

	assert.Equal(t, 1, summary.FailedRetryExhausted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Persisted, "no repository configured")
}

func TestZeroTaskSource(t *testing.T) {
	fetcher := &stubFetcher{}
	o := fixture{
		fetcher:  fetcher,
		repo:     newFlakyRepository(nil),
		registry: scanner.NewRegistry(stubDiscoverer{name: scanner.Sitemap}),
	}.orchestrator(t, OrchestratorOptions{})

	src := testSource("empty")
	summary := o.CrawlSource(context.Background(), &src)

	assert.Equal(t, domain.StateSummarized, summary.State)
	assert.Zero(t, summary.Discovered)
	assert.Zero(t, summary.Failed())
	assert.False(t, summary.Skipped)
	assert.Zero(t, fetcher.callCount())
}

func TestInvalidSourceSkippedOthersRun(t *testing.T) {
	fetcher := &stubFetcher{}
	notifier := &recordingNotifier{}
	o := fixture{
		fetcher:  fetcher,
		repo:     newFlakyRepository(nil),
		notifier: notifier,
		registry: scanner.NewRegistry(stubDiscoverer{name: scanner.Sitemap, urls: articleURLs("good.example", 2)}),
	}.orchestrator(t, OrchestratorOptions{Strategy: StrategyMessage})

	broken := testSource("broken")
	broken.Selectors = domain.Selectors{domain.FieldTitle: {"h1"}}

	run := o.Run(context.Background(), []domain.SourceConfig{broken, testSource("good")})

	require.Len(t, run.Sources, 2)
	skipped := run.Sources[0]
	assert.True(t, skipped.Skipped)
	assert.Contains(t, skipped.SkipReason, "content")
	assert.Equal(t, 1, skipped.FailuresByKind[domain.KindMissingSelectors])
	assert.Equal(t, domain.StateSummarized, skipped.State)

	assert.Equal(t, 2, run.Sources[1].Persisted)
	assert.Equal(t, 2, run.Totals.Persisted)
	assert.Equal(t, 2, fetcher.callCount())
	assert.NotEmpty(t, run.RunID)

	require.Len(t, notifier.digests, 1)
	assert.Contains(t, notifier.digests[0], "broken: skipped")
}

func TestMissingDiscovererSkipsSource(t *testing.T) {
	o := fixture{registry: scanner.NewRegistry()}.orchestrator(t, OrchestratorOptions{})

	src := testSource("nodisc")
	summary := o.CrawlSource(context.Background(), &src)

	assert.True(t, summary.Skipped)
	assert.Equal(t, 1, summary.FailuresByKind[domain.KindInvalidSourceConfig])
}

func TestDuplicateURLsAcrossDiscoverers(t *testing.T) {
	urls := articleURLs("dup.example", 3)
	repo := newFlakyRepository(nil)
	o := fixture{
		repo: repo,
		registry: scanner.NewRegistry(
			stubDiscoverer{name: scanner.Sitemap, urls: []string{urls[0], urls[1], urls[1]}},
			stubDiscoverer{name: scanner.HTML, urls: []string{urls[1], urls[2]}},
		),
	}.orchestrator(t, OrchestratorOptions{})

	src := testSource("dup")
	src.CrawlHTML = true
	summary := o.CrawlSource(context.Background(), &src)

	assert.Equal(t, 3, summary.Discovered)
	assert.Equal(t, 2, summary.DuplicateSkipped)
	assert.Equal(t, 3, summary.Persisted)
}

func TestRerunMergesIntoExistingRecords(t *testing.T) {
	repo := newFlakyRepository(nil)
	o := fixture{
		repo:     repo,
		registry: scanner.NewRegistry(stubDiscoverer{name: scanner.Sitemap, urls: articleURLs("again.example", 4)}),
	}.orchestrator(t, OrchestratorOptions{})

	src := testSource("again")
	first := o.CrawlSource(context.Background(), &src)
	second := o.CrawlSource(context.Background(), &src)

	assert.Equal(t, 0, first.Merged)
	assert.Equal(t, 4, second.Persisted)
	assert.Equal(t, 4, second.Merged)
	assert.Equal(t, 4, repo.Len())
}

func TestPersistRetriedOnce(t *testing.T) {
	urls := articleURLs("db.example", 3)
	repo := newFlakyRepository(map[string]int{urls[0]: 1, urls[1]: 2})
	o := fixture{
		repo:     repo,
		registry: scanner.NewRegistry(stubDiscoverer{name: scanner.Sitemap, urls: urls}),
	}.orchestrator(t, OrchestratorOptions{})

	src := testSource("db")
	summary := o.CrawlSource(context.Background(), &src)

	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 2, summary.Persisted)
	assert.Equal(t, 1, summary.PersistFailed)
	assert.Zero(t, summary.Failed(), "persistence failures are not task failures")
	assert.Equal(t, 2, repo.attemptsFor(urls[0]))
	assert.Equal(t, 2, repo.attemptsFor(urls[1]))
	assert.Equal(t, 1, repo.attemptsFor(urls[2]))
}

func TestExtractorErrorsAndPanicsStayTaskLocal(t *testing.T) {
	urls := articleURLs("bad.example", 3)
	o := fixture{
		extractor: stubExtractor{
			fail:  map[string]error{urls[0]: errors.New("no body")},
			panic: map[string]bool{urls[1]: true},
		},
		registry: scanner.NewRegistry(stubDiscoverer{name: scanner.Sitemap, urls: urls}),
	}.orchestrator(t, OrchestratorOptions{Strategy: StrategyMessage, Workers: 1})

	src := testSource("bad")
	summary := o.CrawlSource(context.Background(), &src)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.FailedTerminal)
	assert.Equal(t, 2, summary.FailuresByKind[domain.KindMalformedHTML])
}

func TestDiscoveryIssuesReported(t *testing.T) {
	issues := errors.Join(
		domain.NewParseFailure(domain.KindMalformedXML, "https://x.example/a.xml", errors.New("eof")),
		errors.New("sitemap https://x.example/b.xml: http_status 404"),
	)
	o := fixture{
		registry: scanner.NewRegistry(stubDiscoverer{name: scanner.Sitemap, urls: articleURLs("x.example", 1), err: issues}),
	}.orchestrator(t, OrchestratorOptions{})

	src := testSource("x")
	summary := o.CrawlSource(context.Background(), &src)

	assert.Equal(t, 1, summary.Succeeded)
	require.Len(t, summary.DiscoveryIssues, 2)
	assert.Contains(t, summary.DiscoveryIssues[0], "malformed_xml")
}

func TestCancelledBeforeStart(t *testing.T) {
	fetcher := &stubFetcher{}
	o := fixture{
		fetcher:  fetcher,
		registry: scanner.NewRegistry(stubDiscoverer{name: scanner.Sitemap, urls: articleURLs("c.example", 3)}),
	}.orchestrator(t, OrchestratorOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := o.Run(ctx, []domain.SourceConfig{testSource("c")})
	assert.True(t, run.Interrupted)
	assert.True(t, run.Sources[0].Interrupted)
	assert.Equal(t, domain.StateSummarized, run.Sources[0].State)
	assert.Zero(t, fetcher.callCount())
}

func TestCancelMidRunFinishesInFlightTasks(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var once sync.Once
			fetcher := &stubFetcher{onFetch: func(string) { once.Do(cancel) }}
			repo := newFlakyRepository(nil)
			o := fixture{
				fetcher:  fetcher,
				repo:     repo,
				registry: scanner.NewRegistry(stubDiscoverer{name: scanner.Sitemap, urls: articleURLs("m.example", 20)}),
			}.orchestrator(t, OrchestratorOptions{Strategy: strategy, Workers: 1})

			src := testSource("m")
			summary := o.CrawlSource(ctx, &src)

			assert.True(t, summary.Interrupted)
			assert.Equal(t, domain.StateSummarized, summary.State)
			assert.GreaterOrEqual(t, summary.Succeeded, 1, "the in-flight task completes")
			assert.Less(t, summary.Succeeded, 20)
			assert.Equal(t, summary.Succeeded, summary.Persisted)
			assert.Equal(t, repo.Len(), summary.Persisted)
			assert.Equal(t, summary.Discovered, summary.Succeeded+summary.Failed()+summary.NotDispatched,
				"every discovered task is accounted for")
		})
	}
}

func TestExecutorCountsDroppedTasks(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			exec, err := newExecutor(strategy, 2)
			require.NoError(t, err)

			tasks := make(chan domain.CrawlTask, 5)
			for _, u := range articleURLs("d.example", 5) {
				tasks <- domain.CrawlTask{URL: u}
			}
			close(tasks)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			var processed atomic.Int32
			tally := exec.execute(ctx, tasks, func(domain.CrawlTask) taskResult {
				processed.Add(1)
				return taskResult{}
			})

			assert.Equal(t, 5, tally.NotDispatched)
			assert.Zero(t, tally.Succeeded)
			assert.Zero(t, tally.Failed())
			assert.Zero(t, processed.Load())
		})
	}
}

func TestNewOrchestratorValidates(t *testing.T) {
	_, err := NewOrchestrator(OrchestratorDeps{}, OrchestratorOptions{})
	assert.Error(t, err)

	_, err = NewOrchestrator(OrchestratorDeps{
		Registry:  scanner.NewRegistry(),
		Fetcher:   &stubFetcher{},
		Extractor: stubExtractor{},
	}, OrchestratorOptions{Strategy: "actors"})
	assert.Error(t, err)
}

func TestExecutorDefaults(t *testing.T) {
	shared, err := newExecutor("", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultSharedWorkers, shared.workers())

	message, err := newExecutor(StrategyMessage, 0)
	require.NoError(t, err)
	assert.Equal(t, defaultMessageWorkers, message.workers())
}
