package parser

import (
	"context"
	"net/http"
	"sync"

	"NewsBot/internal/domain"
)

// fakeFetcher serves canned bodies by URL; unknown URLs are 404s.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]domain.Page
	calls []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]domain.Page{}}
}

func (f *fakeFetcher) add(url, contentType, body string) *fakeFetcher {
	f.pages[url] = domain.Page{URL: url, StatusCode: http.StatusOK, ContentType: contentType, Body: []byte(body), Attempts: 1}
	return f
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (domain.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if page, ok := f.pages[url]; ok {
		return page, nil
	}
	return domain.Page{}, &domain.Failure{Kind: domain.KindHTTPStatus, URL: url, StatusCode: http.StatusNotFound, Attempts: 1}
}

func collectTasks(tasks *[]domain.CrawlTask) func(domain.CrawlTask) bool {
	return func(t domain.CrawlTask) bool {
		*tasks = append(*tasks, t)
		return true
	}
}
