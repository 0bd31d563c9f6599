package parser

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsBot/internal/domain"
	"NewsBot/internal/ports"
)

// HTMLExtractor builds normalized records from article pages using the
// per-source selector chains.
type HTMLExtractor struct {
	now func() time.Time
}

var _ ports.Extractor = (*HTMLExtractor)(nil)

// NewHTMLExtractor uses time.Now when now is nil.
func NewHTMLExtractor(now func() time.Time) *HTMLExtractor {
	if now == nil {
		now = time.Now
	}
	return &HTMLExtractor{now: now}
}

// Extract parses the page and runs every field chain independently. Missing
// fields are left empty; only unreadable or non-HTML bodies fail.
func (e *HTMLExtractor) Extract(page domain.Page, task domain.CrawlTask) (domain.NormalizedRecord, error) {
	if task.Source == nil {
		return domain.NormalizedRecord{}, domain.NewParseFailure(domain.KindMalformedHTML, task.URL,
			fmt.Errorf("task has no source"))
	}
	if !isHTML(page.ContentType, page.Body) {
		return domain.NormalizedRecord{}, domain.NewParseFailure(domain.KindMalformedHTML, task.URL,
			fmt.Errorf("unsupported content type %q", page.ContentType))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return domain.NormalizedRecord{}, domain.NewParseFailure(domain.KindMalformedHTML, task.URL,
			fmt.Errorf("parse document: %w", err))
	}

	src := task.Source
	root := doc.Selection
	base := documentBase(doc, firstNonEmpty(page.URL, task.URL), src.BaseURL)

	record := domain.NormalizedRecord{
		URL:        task.URL,
		SourceType: task.SourceType,
		SourceName: src.Name,
		CrawledAt:  e.now().UTC(),
	}
	if !record.SourceType.Valid() {
		record.SourceType = src.HTMLSourceType()
	}

	record.Title, _ = Chain(src.Selectors[domain.FieldTitle]).Text(root)
	record.Content, _ = Chain(src.Selectors[domain.FieldContent]).Text(root)
	record.Author, _ = Chain(src.Selectors[domain.FieldAuthor]).Text(root)
	rawDate, _ := Chain(src.Selectors[domain.FieldDate]).Attr(root, dateAttrs, true)
	image, _ := Chain(src.Selectors[domain.FieldImage]).Attr(root, imageAttrs, false)

	record.Date, record.DateParsed = NormalizeDate(rawDate)

	if entry := task.Sitemap; entry != nil {
		if record.Title == "" {
			record.Title = entry.Title
		}
		if !record.DateParsed {
			if v, ok := NormalizeDate(firstNonEmpty(entry.PublicationDate, entry.LastMod)); ok {
				record.Date, record.DateParsed = v, true
			}
		}
		if image == "" {
			image = entry.ImageURL
		}
		record.Keywords = entry.Keywords
		record.PublicationName = entry.PublicationName
		record.Language = entry.Language
	}

	if image == "" {
		image = fallbackImage(root)
	}
	record.ImageURL = resolveURL(base, image)

	return record, nil
}

// fallbackImage prefers the OpenGraph image, then the first <img>.
func fallbackImage(root *goquery.Selection) string {
	if v, ok := (Chain{`meta[property="og:image"]`, `meta[name="twitter:image"]`}).Attr(root, linkAttrsContent, false); ok {
		return v
	}
	v, _ := (Chain{"img"}).Attr(root, imageAttrs, false)
	return v
}

var linkAttrsContent = []string{"content"}

func documentBase(doc *goquery.Document, pageURL, baseURL string) *url.URL {
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		base, err = url.Parse(baseURL)
		if err != nil {
			return nil
		}
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, refErr := url.Parse(strings.TrimSpace(href)); refErr == nil {
			base = base.ResolveReference(ref)
		}
	}
	return base
}

// resolveURL makes ref absolute against base; unresolvable refs are dropped.
func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if parsed.IsAbs() {
		return parsed.String()
	}
	if base == nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}

func isHTML(contentType string, body []byte) bool {
	if strings.TrimSpace(contentType) == "" {
		contentType = http.DetectContentType(body)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
