package domain

import (
	"fmt"
	"net/url"
	"time"
)

// SourceType records which extraction path produced a record.
type SourceType string

const (
	SourceSitemapNews SourceType = "sitemap_news"
	SourceHTMLContent SourceType = "html_content"
	SourceCustomCrawl SourceType = "custom_crawl"
)

// Valid reports whether the value is one of the known source types.
func (s SourceType) Valid() bool {
	switch s {
	case SourceSitemapNews, SourceHTMLContent, SourceCustomCrawl:
		return true
	default:
		return false
	}
}

// SitemapEntry carries per-URL metadata announced by a sitemap.
type SitemapEntry struct {
	Loc             string
	LastMod         string
	PublicationDate string
	Title           string
	PublicationName string
	Language        string
	Keywords        string
	ImageURL        string
}

// CrawlTask is a single unit of work consumed exactly once by a worker.
type CrawlTask struct {
	URL        string
	SourceType SourceType
	Source     *SourceConfig
	Attempt    int
	Sitemap    *SitemapEntry
}

// Page is a successfully fetched HTTP response body.
type Page struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Attempts    int
}

// NormalizedRecord is the canonical representation of one article.
// Empty string fields mean the value was not found.
type NormalizedRecord struct {
	URL             string     `json:"url" bson:"url"`
	Title           string     `json:"title,omitempty" bson:"title,omitempty"`
	Content         string     `json:"content,omitempty" bson:"content,omitempty"`
	Author          string     `json:"author,omitempty" bson:"author,omitempty"`
	Date            string     `json:"date,omitempty" bson:"date,omitempty"`
	DateParsed      bool       `json:"date_parsed,omitempty" bson:"date_parsed,omitempty"`
	ImageURL        string     `json:"image_url,omitempty" bson:"image_url,omitempty"`
	SourceType      SourceType `json:"source_type" bson:"source_type"`
	SourceName      string     `json:"source_name,omitempty" bson:"source_name,omitempty"`
	Keywords        string     `json:"keywords,omitempty" bson:"keywords,omitempty"`
	PublicationName string     `json:"publication_name,omitempty" bson:"publication_name,omitempty"`
	Language        string     `json:"language,omitempty" bson:"language,omitempty"`
	CrawledAt       time.Time  `json:"crawled_at" bson:"crawled_at"`
}

// Validate checks the invariants every persisted record must hold.
func (r NormalizedRecord) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("record url is empty")
	}
	if !IsAbsoluteURL(r.URL) {
		return fmt.Errorf("record url %q is not absolute", r.URL)
	}
	if !r.SourceType.Valid() {
		return fmt.Errorf("record %s has unknown source type %q", r.URL, r.SourceType)
	}
	return nil
}

// Merge overlays the non-empty fields of next onto r. URL never changes.
func (r NormalizedRecord) Merge(next NormalizedRecord) NormalizedRecord {
	out := r
	overlay := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	overlay(&out.Title, next.Title)
	overlay(&out.Content, next.Content)
	overlay(&out.Author, next.Author)
	if next.Date != "" {
		out.Date = next.Date
		out.DateParsed = next.DateParsed
	}
	overlay(&out.ImageURL, next.ImageURL)
	overlay(&out.SourceName, next.SourceName)
	overlay(&out.Keywords, next.Keywords)
	overlay(&out.PublicationName, next.PublicationName)
	overlay(&out.Language, next.Language)
	if next.SourceType != "" {
		out.SourceType = next.SourceType
	}
	if !next.CrawledAt.IsZero() {
		out.CrawledAt = next.CrawledAt
	}
	return out
}

// IsAbsoluteURL reports whether raw is an http(s) URL with a host.
func IsAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// UpsertAck acknowledges a persisted record.
type UpsertAck struct {
	URL string
	// Inserted is false when an existing document with the same URL was merged.
	Inserted bool
}

// ArticleQuery filters stored records. Zero values match everything.
type ArticleQuery struct {
	SourceType SourceType
	URLPattern string
	HasField   string
	Limit      int
}
