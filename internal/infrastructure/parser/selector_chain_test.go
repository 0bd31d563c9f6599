package parser

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func mustDoc(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	return doc.Selection
}

func TestChainSkipsEmptyMatches(t *testing.T) {
	t.Parallel()

	root := mustDoc(t, `<div class="headline"></div><h1>Real Title</h1>`)

	got, ok := Chain{".headline", "h1"}.Text(root)
	if !ok || got != "Real Title" {
		t.Fatalf("expected Real Title, got %q (ok=%v)", got, ok)
	}
}

func TestChainFirstMatchWins(t *testing.T) {
	t.Parallel()

	root := mustDoc(t, `<h1 class="entry-title">Entry</h1><h1>Plain</h1>`)

	got, _ := Chain{".entry-title", "h1"}.Text(root)
	if got != "Entry" {
		t.Fatalf("expected first selector to win, got %q", got)
	}
}

func TestChainInvalidSelectorIsNonMatch(t *testing.T) {
	t.Parallel()

	root := mustDoc(t, `<h1>  Spaced
	   Title </h1>`)

	got, ok := Chain{"div[", ">>>", "h1"}.Text(root)
	if !ok || got != "Spaced Title" {
		t.Fatalf("unexpected result %q (ok=%v)", got, ok)
	}
}

func TestChainAllMiss(t *testing.T) {
	t.Parallel()

	root := mustDoc(t, `<p>body</p>`)

	got, ok := Chain{".missing", "article h2"}.Text(root)
	if ok || got != "" {
		t.Fatalf("expected miss, got %q", got)
	}
	if _, ok := (Chain{}).Text(root); ok {
		t.Fatal("empty chain must miss")
	}
}

func TestChainIgnoresScriptText(t *testing.T) {
	t.Parallel()

	root := mustDoc(t, `<article><script>var x = 1;</script><style>p{}</style><p>Visible</p></article>`)

	got, _ := Chain{"article"}.Text(root)
	if got != "Visible" {
		t.Fatalf("expected script and style to be ignored, got %q", got)
	}
}

func TestChainAttr(t *testing.T) {
	t.Parallel()

	root := mustDoc(t, `
	<html><head><meta property="og:image" content="https://cdn.example.com/og.jpg"></head>
	<body>
	  <time datetime="2024-05-01T10:00:00Z">May 1</time>
	  <span class="date">3 May 2024</span>
	  <figure class="hero"><img data-src="/lazy.jpg"></figure>
	</body></html>`)

	if got, _ := (Chain{"time"}).Attr(root, dateAttrs, true); got != "2024-05-01T10:00:00Z" {
		t.Fatalf("unexpected datetime attr %q", got)
	}
	if got, _ := (Chain{".date"}).Attr(root, dateAttrs, true); got != "3 May 2024" {
		t.Fatalf("expected text fallback, got %q", got)
	}
	if got, _ := (Chain{".date"}).Attr(root, dateAttrs, false); got != "" {
		t.Fatalf("expected no value without text fallback, got %q", got)
	}
	if got, _ := (Chain{"figure.hero"}).Attr(root, imageAttrs, false); got != "/lazy.jpg" {
		t.Fatalf("expected descendant lazy src, got %q", got)
	}
	if got, _ := (Chain{`meta[property="og:image"]`}).Attr(root, imageAttrs, false); got != "https://cdn.example.com/og.jpg" {
		t.Fatalf("unexpected og image %q", got)
	}
}
