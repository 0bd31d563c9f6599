package config

import (
	"sort"
	"strings"

	"NewsBot/internal/domain"
)

// DefaultPreset is used for sources that do not name one.
const DefaultPreset = "general"

var presets = map[string]domain.Selectors{
	"news": {
		domain.FieldTitle:   {"h1", "h2", ".title", ".headline", `[class*="title"]`, `[class*="headline"]`},
		domain.FieldContent: {".content", ".article", ".post", ".article-body", ".entry-content", `[class*="content"]`, `[class*="article"]`},
		domain.FieldDate:    {".date", ".publish-date", ".timestamp", `[class*="date"]`, "time"},
		domain.FieldAuthor:  {".author", ".byline", `[class*="author"]`, `[rel="author"]`},
		domain.FieldImage:   {".article-image img", ".img-responsive", `img[alt*="article"]`, `[class*="image"] img`},
	},
	"blog": {
		domain.FieldTitle:   {"h1", ".post-title", ".entry-title", `[class*="title"]`},
		domain.FieldContent: {".post-content", ".entry-content", ".blog-content", `[class*="content"]`},
		domain.FieldDate:    {".date", ".post-date", ".entry-date", "time"},
		domain.FieldAuthor:  {".author", ".byline", ".vcard", `[rel="author"]`},
		domain.FieldImage:   {".wp-post-image", ".post-image img", `[class*="image"] img`},
	},
	"general": {
		domain.FieldTitle:   {"h1", "h2", ".title", ".headline", `[class*="title"]`, `[class*="headline"]`},
		domain.FieldContent: {".content", ".main", ".post", ".article", ".entry-content", `[id*="content"]`, `[class*="content"]`},
		domain.FieldDate:    {".date", ".time", `[class*="date"]`, `[class*="time"]`, "time"},
		domain.FieldAuthor:  {".author", ".byline", `[class*="author"]`, `[rel="author"]`},
		domain.FieldImage:   {`img[alt*="main"]`, ".main-image img", `img[alt*="article"]`, `[class*="image"] img`, ".featured-image img"},
	},
}

// Preset returns a copy of the named selector preset.
func Preset(name string) (domain.Selectors, bool) {
	sel, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}
	return sel.Clone(), true
}

// PresetNames lists the built-in presets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// presetForURL picks the first preset whose name occurs in the URL, falling
// back to DefaultPreset.
func presetForURL(rawURL string) string {
	lower := strings.ToLower(rawURL)
	for _, name := range []string{"news", "blog", "general"} {
		if strings.Contains(lower, name) {
			return name
		}
	}
	return DefaultPreset
}
