package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Field names understood by the extractor.
const (
	FieldTitle   = "title"
	FieldContent = "content"
	FieldDate    = "date"
	FieldAuthor  = "author"
	FieldImage   = "image"
	FieldLink    = "link"
)

// RequiredFields must resolve to at least one selector for every source.
var RequiredFields = []string{FieldTitle, FieldContent}

// KnownFields lists every field a selector map may carry.
var KnownFields = []string{FieldTitle, FieldContent, FieldDate, FieldAuthor, FieldImage, FieldLink}

// ErrInvalidSource marks source configurations rejected at setup time.
var ErrInvalidSource = errors.New("invalid source config")

// Selectors maps a field to an ordered list of CSS selectors; first match wins.
type Selectors map[string][]string

// Clone returns a deep copy so callers can share the original read-only.
func (s Selectors) Clone() Selectors {
	out := make(Selectors, len(s))
	for field, list := range s {
		out[field] = append([]string(nil), list...)
	}
	return out
}

// SourceConfig is the immutable per-site crawl description.
type SourceConfig struct {
	Name               string
	BaseURL            string
	Selectors          Selectors
	CrawlSitemap       bool
	CrawlHTML          bool
	UseCustomSelectors bool
	DiscoverLinks      bool
	MaxLinks           int
	Sitemaps           []string
	ListingPages       []string
}

// HTMLSourceType is the tag given to records produced by the HTML path.
func (s *SourceConfig) HTMLSourceType() SourceType {
	if s.UseCustomSelectors {
		return SourceCustomCrawl
	}
	return SourceHTMLContent
}

// SitemapURL is the conventional sitemap location under BaseURL.
func (s *SourceConfig) SitemapURL() string {
	return strings.TrimSuffix(s.BaseURL, "/") + "/sitemap.xml"
}

// Validate rejects configurations that cannot be crawled. The returned error
// is a *Failure in the config category.
func (s *SourceConfig) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return NewConfigFailure(KindInvalidSourceConfig, fmt.Errorf("%w: name is empty", ErrInvalidSource))
	}
	if !IsAbsoluteURL(s.BaseURL) {
		return NewConfigFailure(KindInvalidSourceConfig,
			fmt.Errorf("%w: source %s: base url %q is not absolute", ErrInvalidSource, s.Name, s.BaseURL))
	}
	if !s.CrawlSitemap && !s.CrawlHTML {
		return NewConfigFailure(KindInvalidSourceConfig,
			fmt.Errorf("%w: source %s: no crawl mode enabled", ErrInvalidSource, s.Name))
	}

	var missing []string
	for _, field := range RequiredFields {
		if len(nonBlank(s.Selectors[field])) == 0 {
			missing = append(missing, field)
		}
	}
	for field, list := range s.Selectors {
		if len(nonBlank(list)) == 0 && !slices.Contains(missing, field) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return NewConfigFailure(KindMissingSelectors,
			fmt.Errorf("%w: source %s: empty selectors for %s", ErrInvalidSource, s.Name, strings.Join(missing, ", ")))
	}

	return nil
}

func nonBlank(list []string) []string {
	out := list[:0:0]
	for _, v := range list {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
