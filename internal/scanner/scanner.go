package scanner

import (
	"context"
	"fmt"
	"sort"

	"NewsBot/internal/domain"
)

// Registered discoverer names.
const (
	Sitemap = "sitemap"
	HTML    = "html"
)

// Yield receives discovered tasks; returning false stops discovery early.
type Yield func(domain.CrawlTask) bool

// Discoverer produces crawl tasks for a source lazily. A returned error is a
// discovery issue: tasks already yielded remain valid.
type Discoverer interface {
	Name() string
	Discover(ctx context.Context, src *domain.SourceConfig, yield Yield) error
}

// Registry keeps a mapping from discoverer names to their implementations.
type Registry struct {
	discoverers map[string]Discoverer
}

// NewRegistry builds a registry pre-filled with the given discoverers.
func NewRegistry(discoverers ...Discoverer) *Registry {
	r := &Registry{discoverers: map[string]Discoverer{}}
	for _, d := range discoverers {
		r.Register(d)
	}
	return r
}

// Register adds or replaces a discoverer implementation.
func (r *Registry) Register(d Discoverer) {
	if r.discoverers == nil {
		r.discoverers = map[string]Discoverer{}
	}
	r.discoverers[d.Name()] = d
}

// Resolve returns a discoverer by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Discoverer, error) {
	if d, ok := r.discoverers[name]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("discoverer %s is not registered", name)
}

// Names lists registered discoverers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.discoverers))
	for name := range r.discoverers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForSource resolves the discoverers enabled by the source's crawl modes,
// sitemap first.
func (r *Registry) ForSource(src *domain.SourceConfig) ([]Discoverer, error) {
	var names []string
	if src.CrawlSitemap {
		names = append(names, Sitemap)
	}
	if src.CrawlHTML {
		names = append(names, HTML)
	}

	out := make([]Discoverer, 0, len(names))
	for _, name := range names {
		d, err := r.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		out = append(out, d)
	}
	return out, nil
}
