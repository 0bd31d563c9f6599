package ports

import (
	"context"
	"time"

	"NewsBot/internal/domain"
)

// Fetcher performs a single logical GET, retries included.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (domain.Page, error)
}

// Extractor turns a fetched page into a normalized record.
type Extractor interface {
	Extract(page domain.Page, task domain.CrawlTask) (domain.NormalizedRecord, error)
}

// ArticleRepository is the persistence gateway. Upsert must be idempotent on url.
type ArticleRepository interface {
	Upsert(ctx context.Context, url string, record domain.NormalizedRecord) (domain.UpsertAck, error)
	Find(ctx context.Context, query domain.ArticleQuery) ([]domain.NormalizedRecord, error)
	EnsureIndexes(ctx context.Context) error
}

// Notifier streams run digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when crawl runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
