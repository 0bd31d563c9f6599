package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSource() SourceConfig {
	return SourceConfig{
		Name:         "ndtv",
		BaseURL:      "https://www.ndtv.com",
		CrawlSitemap: true,
		Selectors: Selectors{
			FieldTitle:   {"h1"},
			FieldContent: {".sp-cn"},
		},
	}
}

func TestSourceValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SourceConfig)
		kind   FailureKind
	}{
		{name: "valid", mutate: func(*SourceConfig) {}},
		{name: "empty name", mutate: func(s *SourceConfig) { s.Name = " " }, kind: KindInvalidSourceConfig},
		{name: "relative url", mutate: func(s *SourceConfig) { s.BaseURL = "/news" }, kind: KindInvalidSourceConfig},
		{name: "no mode", mutate: func(s *SourceConfig) { s.CrawlSitemap = false }, kind: KindInvalidSourceConfig},
		{name: "missing title", mutate: func(s *SourceConfig) { delete(s.Selectors, FieldTitle) }, kind: KindMissingSelectors},
		{name: "blank optional", mutate: func(s *SourceConfig) { s.Selectors[FieldAuthor] = []string{" "} }, kind: KindMissingSelectors},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := validSource()
			tc.mutate(&src)
			err := src.Validate()
			if tc.kind == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSource))
			f, ok := AsFailure(err)
			require.True(t, ok)
			assert.Equal(t, tc.kind, f.Kind)
			assert.Equal(t, CategoryConfig, f.Category())
		})
	}
}

func TestSourceHelpers(t *testing.T) {
	src := validSource()
	assert.Equal(t, SourceHTMLContent, src.HTMLSourceType())
	src.UseCustomSelectors = true
	assert.Equal(t, SourceCustomCrawl, src.HTMLSourceType())

	src.BaseURL = "https://www.ndtv.com/"
	assert.Equal(t, "https://www.ndtv.com/sitemap.xml", src.SitemapURL())
}

func TestSelectorsClone(t *testing.T) {
	orig := Selectors{FieldTitle: {"h1"}}
	clone := orig.Clone()
	clone[FieldTitle][0] = "h2"
	assert.Equal(t, "h1", orig[FieldTitle][0])
}
