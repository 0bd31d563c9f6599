package parser

import (
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"

	"NewsBot/internal/domain"
)

// sitemapDocument is either an index (child sitemap locations) or a urlset.
type sitemapDocument struct {
	Index   []string
	Entries []domain.SitemapEntry
}

// Element names match by local name so news: and image: prefixes bound to any
// namespace URI are accepted.
type xmlURLSet struct {
	URLs []xmlURL `xml:"url"`
}

type xmlURL struct {
	Loc     string     `xml:"loc"`
	LastMod string     `xml:"lastmod"`
	News    *xmlNews   `xml:"news"`
	Images  []xmlImage `xml:"image"`
}

type xmlNews struct {
	Publication struct {
		Name     string `xml:"name"`
		Language string `xml:"language"`
	} `xml:"publication"`
	PublicationDate string `xml:"publication_date"`
	Title           string `xml:"title"`
	Keywords        string `xml:"keywords"`
}

type xmlImage struct {
	Loc string `xml:"loc"`
}

type xmlSitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

var errEmptySitemap = errors.New("empty document")

// parseSitemap decodes a sitemap or sitemap index, dispatching on the root
// element. Gzipped bodies are inflated first.
func parseSitemap(body []byte) (sitemapDocument, error) {
	body, err := maybeGunzip(body)
	if err != nil {
		return sitemapDocument{}, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return sitemapDocument{}, errEmptySitemap
	}

	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sitemapDocument{}, errEmptySitemap
			}
			return sitemapDocument{}, fmt.Errorf("decode sitemap: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "sitemapindex":
			var index xmlSitemapIndex
			if err := dec.DecodeElement(&index, &start); err != nil {
				return sitemapDocument{}, fmt.Errorf("decode sitemap index: %w", err)
			}
			doc := sitemapDocument{}
			for _, s := range index.Sitemaps {
				if loc := strings.TrimSpace(s.Loc); loc != "" {
					doc.Index = append(doc.Index, loc)
				}
			}
			return doc, nil
		case "urlset":
			var set xmlURLSet
			if err := dec.DecodeElement(&set, &start); err != nil {
				return sitemapDocument{}, fmt.Errorf("decode urlset: %w", err)
			}
			doc := sitemapDocument{Entries: make([]domain.SitemapEntry, 0, len(set.URLs))}
			for i := range set.URLs {
				doc.Entries = append(doc.Entries, set.URLs[i].entry())
			}
			return doc, nil
		default:
			return sitemapDocument{}, fmt.Errorf("unexpected root element <%s>", start.Name.Local)
		}
	}
}

func (u *xmlURL) entry() domain.SitemapEntry {
	e := domain.SitemapEntry{
		Loc:     strings.TrimSpace(u.Loc),
		LastMod: strings.TrimSpace(u.LastMod),
	}
	if u.News != nil {
		e.PublicationDate = strings.TrimSpace(u.News.PublicationDate)
		e.Title = collapseSpace(u.News.Title)
		e.PublicationName = strings.TrimSpace(u.News.Publication.Name)
		e.Language = strings.TrimSpace(u.News.Publication.Language)
		e.Keywords = collapseSpace(u.News.Keywords)
	}
	for _, img := range u.Images {
		if loc := strings.TrimSpace(img.Loc); loc != "" {
			e.ImageURL = loc
			break
		}
	}
	return e
}

func maybeGunzip(body []byte) ([]byte, error) {
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("open gzip sitemap: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxSitemapBytes))
	if err != nil {
		return nil, fmt.Errorf("inflate sitemap: %w", err)
	}
	return out, nil
}

const maxSitemapBytes = 50 * 1024 * 1024
