package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

var (
	imageAttrs = []string{"src", "data-src", "data-lazy-src", "data-original", "content"}
	dateAttrs  = []string{"datetime", "content"}
	linkAttrs  = []string{"href"}
)

// Chain is an ordered list of candidate CSS selectors for a single field.
// The first selector that yields a non-blank value wins; selectors that do not
// compile are skipped like selectors that do not match.
type Chain []string

// Text returns the first non-blank text matched by the chain.
func (c Chain) Text(root *goquery.Selection) (string, bool) {
	for _, expr := range c {
		for _, node := range matchNodes(root, expr) {
			if text := nodeText(node); text != "" {
				return text, true
			}
		}
	}
	return "", false
}

// Attr returns the first non-blank attribute among attrs. When an element
// carries none of them its first descendant that does is used, and with
// textFallback the element text is accepted as a last resort.
func (c Chain) Attr(root *goquery.Selection, attrs []string, textFallback bool) (string, bool) {
	for _, expr := range c {
		for _, node := range matchNodes(root, expr) {
			if v := firstAttr(node, attrs); v != "" {
				return v, true
			}
			if v := descendantAttr(node, attrs); v != "" {
				return v, true
			}
			if textFallback {
				if text := nodeText(node); text != "" {
					return text, true
				}
			}
		}
	}
	return "", false
}

func matchNodes(root *goquery.Selection, expr string) (nodes []*html.Node) {
	expr = strings.TrimSpace(expr)
	if root == nil || expr == "" {
		return nil
	}

	defer func() {
		if recover() != nil {
			nodes = nil
		}
	}()

	sel, err := cascadia.Compile(expr)
	if err != nil {
		return nil
	}
	return root.FindMatcher(sel).Nodes
}

func firstAttr(node *html.Node, attrs []string) string {
	for _, name := range attrs {
		for _, a := range node.Attr {
			if strings.EqualFold(a.Key, name) {
				if v := strings.TrimSpace(a.Val); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

func descendantAttr(node *html.Node, attrs []string) string {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}
		if v := firstAttr(child, attrs); v != "" {
			return v
		}
		if v := descendantAttr(child, attrs); v != "" {
			return v
		}
	}
	return ""
}

// nodeText joins the text nodes under node with single spaces, ignoring
// script and style content.
func nodeText(node *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(node)
	return collapseSpace(b.String())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
