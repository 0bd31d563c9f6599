package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"NewsBot/internal/domain"
	"NewsBot/internal/infrastructure/storage"
	"NewsBot/internal/scanner"
)

type stubDiscoverer struct {
	name string
	urls []string
	err  error
}

func (d stubDiscoverer) Name() string { return d.name }

func (d stubDiscoverer) Discover(_ context.Context, _ *domain.SourceConfig, yield scanner.Yield) error {
	for _, u := range d.urls {
		if !yield(domain.CrawlTask{URL: u, SourceType: domain.SourceSitemapNews}) {
			break
		}
	}
	return d.err
}

type stubFetcher struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error
	onFetch func(url string)
}

func (f *stubFetcher) Fetch(_ context.Context, rawURL string) (domain.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(rawURL)
	}
	if err, ok := f.fail[rawURL]; ok {
		return domain.Page{}, err
	}
	return domain.Page{URL: rawURL, StatusCode: 200, ContentType: "text/html", Body: []byte("<h1>x</h1>"), Attempts: 1}, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type stubExtractor struct {
	fail  map[string]error
	panic map[string]bool
}

func (e stubExtractor) Extract(page domain.Page, task domain.CrawlTask) (domain.NormalizedRecord, error) {
	if e.panic[page.URL] {
		panic("selector engine exploded")
	}
	if err, ok := e.fail[page.URL]; ok {
		return domain.NormalizedRecord{}, err
	}
	return domain.NormalizedRecord{
		URL:        page.URL,
		Title:      "Title of " + page.URL,
		SourceType: task.SourceType,
		SourceName: task.Source.Name,
		CrawledAt:  time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC),
	}, nil
}

// flakyRepository fails the first failures[url] upserts of a URL.
type flakyRepository struct {
	*storage.MemoryRepository
	mu       sync.Mutex
	failures map[string]int
	attempts map[string]int
}

func newFlakyRepository(failures map[string]int) *flakyRepository {
	return &flakyRepository{
		MemoryRepository: storage.NewMemoryRepository(),
		failures:         failures,
		attempts:         map[string]int{},
	}
}

func (r *flakyRepository) Upsert(ctx context.Context, url string, record domain.NormalizedRecord) (domain.UpsertAck, error) {
	r.mu.Lock()
	r.attempts[url]++
	failing := r.failures[url] > 0
	if failing {
		r.failures[url]--
	}
	r.mu.Unlock()

	if failing {
		return domain.UpsertAck{}, &domain.Failure{Kind: domain.KindConnectionLost, URL: url, Retryable: true, Err: errors.New("socket closed")}
	}
	return r.MemoryRepository.Upsert(ctx, url, record)
}

func (r *flakyRepository) attemptsFor(url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[url]
}

type recordingNotifier struct {
	mu      sync.Mutex
	digests []string
}

func (n *recordingNotifier) PublishDigest(_ context.Context, digest string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.digests = append(n.digests, digest)
	return nil
}

func articleURLs(host string, n int) []string {
	out := make([]string, n)
	for i := range n {
		out[i] = fmt.Sprintf("https://%s/news/%d", host, i+1)
	}
	return out
}

func testSource(name string) domain.SourceConfig {
	return domain.SourceConfig{
		Name:         name,
		BaseURL:      "https://" + name + ".example",
		CrawlSitemap: true,
		Selectors: domain.Selectors{
			domain.FieldTitle:   {"h1"},
			domain.FieldContent: {".body"},
		},
	}
}
