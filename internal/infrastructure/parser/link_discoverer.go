package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"NewsBot/internal/domain"
	"NewsBot/internal/ports"
	"NewsBot/internal/scanner"
)

const defaultMaxLinks = 50

var defaultLinkSelectors = []string{"a[href]"}

// Links to these resources are never articles.
var assetExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".svg": {},
	".pdf": {}, ".zip": {}, ".mp3": {}, ".mp4": {}, ".css": {}, ".js": {},
	".xml": {}, ".rss": {}, ".ico": {},
}

// LinkDiscoverer produces HTML tasks for a source: the base URL alone, or the
// same-host links found on its listing pages when DiscoverLinks is set.
type LinkDiscoverer struct {
	fetcher ports.Fetcher
	logger  *slog.Logger
}

var _ scanner.Discoverer = (*LinkDiscoverer)(nil)

// NewLinkDiscoverer builds a discoverer on top of fetcher.
func NewLinkDiscoverer(fetcher ports.Fetcher, logger *slog.Logger) *LinkDiscoverer {
	return &LinkDiscoverer{fetcher: fetcher, logger: logger}
}

func (d *LinkDiscoverer) Name() string {
	return scanner.HTML
}

// Discover yields at most MaxLinks tasks. When no article link is found the
// base URL itself is crawled.
func (d *LinkDiscoverer) Discover(ctx context.Context, src *domain.SourceConfig, yield scanner.Yield) error {
	sourceType := src.HTMLSourceType()
	if !src.DiscoverLinks {
		yield(domain.CrawlTask{URL: src.BaseURL, SourceType: sourceType, Source: src})
		return nil
	}

	limit := src.MaxLinks
	if limit <= 0 {
		limit = defaultMaxLinks
	}
	selectors := src.Selectors[domain.FieldLink]
	if len(selectors) == 0 {
		selectors = defaultLinkSelectors
	}

	base, err := url.Parse(src.BaseURL)
	if err != nil {
		return domain.NewConfigFailure(domain.KindInvalidSourceConfig, fmt.Errorf("parse base url: %w", err))
	}

	seen := map[string]struct{}{}
	emitted := 0
	var issues []error

	for _, listing := range d.listingPages(base, src) {
		if ctx.Err() != nil || emitted >= limit {
			break
		}
		seen[listing] = struct{}{}

		links, err := d.collect(ctx, listing, selectors)
		if err != nil {
			issues = append(issues, err)
			continue
		}
		for _, link := range links {
			if emitted >= limit {
				break
			}
			if _, dup := seen[link]; dup || !sameHost(base, link) {
				continue
			}
			seen[link] = struct{}{}
			emitted++
			if !yield(domain.CrawlTask{URL: link, SourceType: sourceType, Source: src}) {
				return errors.Join(issues...)
			}
		}
	}

	if emitted == 0 && ctx.Err() == nil {
		d.debug("no article links found, crawling base url", "source", src.Name)
		yield(domain.CrawlTask{URL: src.BaseURL, SourceType: sourceType, Source: src})
	}
	return errors.Join(issues...)
}

func (d *LinkDiscoverer) listingPages(base *url.URL, src *domain.SourceConfig) []string {
	pages := []string{base.String()}
	for _, raw := range src.ListingPages {
		if abs := resolveURL(base, raw); abs != "" {
			pages = append(pages, abs)
		}
	}
	return pages
}

// collect returns the absolute, fragment-free links matched on one page.
func (d *LinkDiscoverer) collect(ctx context.Context, pageURL string, selectors []string) ([]string, error) {
	page, err := d.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("listing page %s: %w", pageURL, err)
	}
	if !isHTML(page.ContentType, page.Body) {
		return nil, domain.NewParseFailure(domain.KindMalformedHTML, pageURL,
			fmt.Errorf("unsupported content type %q", page.ContentType))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, domain.NewParseFailure(domain.KindMalformedHTML, pageURL, fmt.Errorf("parse document: %w", err))
	}

	base := documentBase(doc, pageURL, pageURL)
	var links []string
	for _, expr := range selectors {
		for _, node := range matchNodes(doc.Selection, expr) {
			href := firstAttr(node, linkAttrs)
			if href == "" {
				href = descendantAttr(node, linkAttrs)
			}
			if link := articleLink(base, href); link != "" {
				links = append(links, link)
			}
		}
	}
	d.debug("listing page scanned", "url", pageURL, "links", len(links))
	return links, nil
}

func articleLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "tel:") {
		return ""
	}

	abs := resolveURL(base, href)
	if abs == "" {
		return ""
	}
	u, err := url.Parse(abs)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	u.Fragment = ""
	if _, asset := assetExtensions[strings.ToLower(path.Ext(u.Path))]; asset {
		return ""
	}
	if u.Path == "" || u.Path == "/" {
		return ""
	}
	return u.String()
}

func sameHost(base *url.URL, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimPrefix(u.Hostname(), "www."), strings.TrimPrefix(base.Hostname(), "www."))
}

func (d *LinkDiscoverer) debug(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}
