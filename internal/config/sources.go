package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"NewsBot/internal/domain"
)

// Sources resolves the configured sites and the URL file into crawl sources.
// Site names must be unique; URL-file entries that collide are dropped.
func (c Config) Sources() ([]domain.SourceConfig, error) {
	out := make([]domain.SourceConfig, 0, len(c.Sites))
	names := map[string]struct{}{}

	for _, site := range c.Sites {
		src, err := SiteSource(site)
		if err != nil {
			return nil, err
		}
		if _, dup := names[src.Name]; dup {
			return nil, fmt.Errorf("duplicate site name %q", src.Name)
		}
		names[src.Name] = struct{}{}
		out = append(out, src)
	}

	if c.URLFile == "" {
		return out, nil
	}
	urls, err := ReadURLs(c.URLFile)
	if err != nil {
		return nil, err
	}
	for _, raw := range urls {
		src, _, err := c.ResolveURL(raw)
		if err != nil {
			log.Printf("skipping %s: %v", raw, err)
			continue
		}
		if _, dup := names[src.Name]; dup {
			log.Printf("skipping %s: source %s already configured", raw, src.Name)
			continue
		}
		names[src.Name] = struct{}{}
		out = append(out, src)
	}
	return out, nil
}

// SiteSource converts a YAML site into an immutable source config.
func SiteSource(site SiteConfig) (domain.SourceConfig, error) {
	selectors, err := EffectiveSelectors(site)
	if err != nil {
		return domain.SourceConfig{}, fmt.Errorf("site %s: %w", site.Name, err)
	}

	name := strings.TrimSpace(site.Name)
	if name == "" {
		name = sourceName(site.URL)
	}

	return domain.SourceConfig{
		Name:               name,
		BaseURL:            strings.TrimSpace(site.URL),
		Selectors:          selectors,
		CrawlSitemap:       boolOr(site.CrawlSitemap, true),
		CrawlHTML:          boolOr(site.CrawlHTML, site.UseCustomSelectors || site.DiscoverLinks),
		UseCustomSelectors: site.UseCustomSelectors,
		DiscoverLinks:      site.DiscoverLinks,
		MaxLinks:           site.MaxLinks,
		Sitemaps:           append([]string(nil), site.Sitemaps...),
		ListingPages:       append([]string(nil), site.ListingPages...),
	}, nil
}

// EffectiveSelectors returns the selectors a site is extracted with. Without
// custom selectors the preset is used as is; with them, fields the site does
// not mention fall back to the preset. Link selectors are always the site's.
func EffectiveSelectors(site SiteConfig) (domain.Selectors, error) {
	presetName := site.Preset
	if presetName == "" {
		presetName = DefaultPreset
	}
	preset, ok := Preset(presetName)
	if !ok {
		return nil, fmt.Errorf("unknown preset %q", presetName)
	}

	if !site.UseCustomSelectors {
		if links, ok := site.Selectors[domain.FieldLink]; ok {
			preset[domain.FieldLink] = append([]string(nil), links...)
		}
		return preset, nil
	}

	out := domain.Selectors(site.Selectors).Clone()
	for field, list := range preset {
		if _, set := out[field]; !set {
			out[field] = list
		}
	}
	return out, nil
}

// ResolveURL builds a source for a bare URL. A configured site whose name
// occurs in the host lends its selectors; otherwise a preset is picked by
// substring. The second result names what was matched.
func (c Config) ResolveURL(rawURL string) (domain.SourceConfig, string, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || !domain.IsAbsoluteURL(rawURL) {
		return domain.SourceConfig{}, "", fmt.Errorf("%q is not an absolute http(s) url", rawURL)
	}
	host := strings.ToLower(u.Hostname())

	src := domain.SourceConfig{
		Name:         sourceName(rawURL),
		BaseURL:      rawURL,
		CrawlSitemap: boolOr(c.Crawler.CrawlSitemap, true),
		CrawlHTML:    boolOr(c.Crawler.CrawlHTML, false),
	}

	for _, site := range c.Sites {
		name := strings.ToLower(strings.TrimSpace(site.Name))
		if name == "" || !strings.Contains(host, name) {
			continue
		}
		selectors, err := EffectiveSelectors(site)
		if err != nil {
			return domain.SourceConfig{}, "", fmt.Errorf("site %s: %w", site.Name, err)
		}
		src.Selectors = selectors
		src.UseCustomSelectors = site.UseCustomSelectors
		return src, "site:" + site.Name, nil
	}

	presetName := presetForURL(rawURL)
	src.Selectors, _ = Preset(presetName)
	return src, "preset:" + presetName, nil
}

// ReadURLs reads one URL per line, skipping blank lines and # comments.
func ReadURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}
	return urls, nil
}

func sourceName(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return rawURL
	}
	name := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if p := strings.Trim(u.Path, "/"); p != "" {
		name += "/" + p
	}
	return name
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
