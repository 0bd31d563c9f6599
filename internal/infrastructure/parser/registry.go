package parser

import (
	"log/slog"
	"time"

	"NewsBot/internal/ports"
	"NewsBot/internal/scanner"
)

// NewRegistry wires the sitemap and HTML discoverers over a shared fetcher.
func NewRegistry(fetcher ports.Fetcher, log *slog.Logger, now func() time.Time) *scanner.Registry {
	if log != nil {
		log = log.With("component", "discovery")
	}
	return scanner.NewRegistry(
		NewSitemapDiscoverer(fetcher, log, now),
		NewLinkDiscoverer(fetcher, log),
	)
}
