package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/temoto/robotstxt"

	"NewsBot/internal/domain"
	"NewsBot/internal/ports"
	"NewsBot/internal/scanner"
)

// maxIndexDepth bounds sitemap index recursion: an index may list urlsets,
// but an index found inside an index is skipped.
const maxIndexDepth = 1

// SitemapDiscoverer turns a source's sitemaps into crawl tasks.
type SitemapDiscoverer struct {
	fetcher ports.Fetcher
	logger  *slog.Logger
	now     func() time.Time
}

var _ scanner.Discoverer = (*SitemapDiscoverer)(nil)

// NewSitemapDiscoverer builds a discoverer on top of fetcher.
func NewSitemapDiscoverer(fetcher ports.Fetcher, logger *slog.Logger, now func() time.Time) *SitemapDiscoverer {
	if now == nil {
		now = time.Now
	}
	return &SitemapDiscoverer{fetcher: fetcher, logger: logger, now: now}
}

func (d *SitemapDiscoverer) Name() string {
	return scanner.Sitemap
}

// Discover walks every candidate sitemap. Unreadable or malformed documents
// contribute no tasks and are reported together in the returned error.
func (d *SitemapDiscoverer) Discover(ctx context.Context, src *domain.SourceConfig, yield scanner.Yield) error {
	visited := map[string]struct{}{}
	var issues []error

	for _, loc := range d.candidates(ctx, src) {
		if ctx.Err() != nil {
			break
		}
		stop, err := d.walk(ctx, src, loc, 0, visited, yield)
		if err != nil {
			issues = append(issues, err...)
		}
		if stop {
			break
		}
	}
	return errors.Join(issues...)
}

// candidates picks explicit sitemaps, then robots.txt Sitemap lines, then
// the conventional /sitemap.xml location.
func (d *SitemapDiscoverer) candidates(ctx context.Context, src *domain.SourceConfig) []string {
	base, _ := url.Parse(src.BaseURL)

	if len(src.Sitemaps) > 0 {
		out := make([]string, 0, len(src.Sitemaps))
		for _, raw := range src.Sitemaps {
			if abs := resolveURL(base, raw); abs != "" {
				out = append(out, abs)
			}
		}
		return out
	}

	if base != nil {
		robotsURL := (&url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/robots.txt"}).String()
		if sitemaps := d.robotsSitemaps(ctx, robotsURL); len(sitemaps) > 0 {
			return sitemaps
		}
	}
	return []string{src.SitemapURL()}
}

func (d *SitemapDiscoverer) robotsSitemaps(ctx context.Context, robotsURL string) []string {
	page, err := d.fetcher.Fetch(ctx, robotsURL)
	if err != nil {
		d.debug("robots.txt unavailable", "url", robotsURL, "error", err)
		return nil
	}
	robots, err := robotstxt.FromBytes(page.Body)
	if err != nil {
		d.debug("robots.txt unparsable", "url", robotsURL, "error", err)
		return nil
	}

	out := make([]string, 0, len(robots.Sitemaps))
	for _, loc := range robots.Sitemaps {
		if loc = strings.TrimSpace(loc); domain.IsAbsoluteURL(loc) {
			out = append(out, loc)
		}
	}
	return out
}

func (d *SitemapDiscoverer) walk(
	ctx context.Context,
	src *domain.SourceConfig,
	loc string,
	depth int,
	visited map[string]struct{},
	yield scanner.Yield,
) (bool, []error) {
	if _, seen := visited[loc]; seen {
		return false, nil
	}
	visited[loc] = struct{}{}

	page, err := d.fetcher.Fetch(ctx, loc)
	if err != nil {
		return false, []error{fmt.Errorf("sitemap %s: %w", loc, err)}
	}

	doc, err := parseSitemap(page.Body)
	if err != nil {
		return false, []error{domain.NewParseFailure(domain.KindMalformedXML, loc, err)}
	}

	if len(doc.Index) > 0 {
		if depth >= maxIndexDepth {
			d.info("nested sitemap index skipped", "source", src.Name, "url", loc)
			return false, nil
		}
		var issues []error
		for _, child := range doc.Index {
			if ctx.Err() != nil {
				return true, issues
			}
			stop, errs := d.walk(ctx, src, child, depth+1, visited, yield)
			issues = append(issues, errs...)
			if stop {
				return true, issues
			}
		}
		return false, issues
	}

	now := d.now()
	emitted := 0
	for i := range doc.Entries {
		entry := doc.Entries[i]
		if !domain.IsAbsoluteURL(entry.Loc) || isFuture(entry, now) {
			continue
		}
		task := domain.CrawlTask{
			URL:        entry.Loc,
			SourceType: domain.SourceSitemapNews,
			Source:     src,
			Sitemap:    &entry,
		}
		emitted++
		if !yield(task) {
			return true, nil
		}
	}
	d.debug("sitemap parsed", "source", src.Name, "url", loc, "entries", len(doc.Entries), "tasks", emitted)
	return false, nil
}

func isFuture(entry domain.SitemapEntry, now time.Time) bool {
	normalized, ok := NormalizeDate(firstNonEmpty(entry.PublicationDate, entry.LastMod))
	if !ok {
		return false
	}
	t, ok := parseISOInstant(normalized)
	return ok && t.After(now)
}

func (d *SitemapDiscoverer) debug(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}

func (d *SitemapDiscoverer) info(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Info(msg, args...)
	}
}
