package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"NewsBot/internal/domain"
	"NewsBot/internal/ports"
)

const articlesTable = "articles"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var articleColumns = []string{
	"url", "title", "content", "author", "date", "date_parsed", "image_url",
	"source_type", "source_name", "keywords", "publication_name", "language", "crawled_at",
}

// Empty incoming text keeps the stored value; xmax = 0 only for fresh rows.
const upsertSuffix = `ON CONFLICT (url) DO UPDATE SET
    title = COALESCE(NULLIF(EXCLUDED.title, ''), articles.title),
    content = COALESCE(NULLIF(EXCLUDED.content, ''), articles.content),
    author = COALESCE(NULLIF(EXCLUDED.author, ''), articles.author),
    date_parsed = CASE WHEN EXCLUDED.date <> '' THEN EXCLUDED.date_parsed ELSE articles.date_parsed END,
    date = COALESCE(NULLIF(EXCLUDED.date, ''), articles.date),
    image_url = COALESCE(NULLIF(EXCLUDED.image_url, ''), articles.image_url),
    source_type = EXCLUDED.source_type,
    source_name = COALESCE(NULLIF(EXCLUDED.source_name, ''), articles.source_name),
    keywords = COALESCE(NULLIF(EXCLUDED.keywords, ''), articles.keywords),
    publication_name = COALESCE(NULLIF(EXCLUDED.publication_name, ''), articles.publication_name),
    language = COALESCE(NULLIF(EXCLUDED.language, ''), articles.language),
    crawled_at = EXCLUDED.crawled_at
RETURNING (xmax = 0) AS inserted`

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS articles (
    url TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    author TEXT NOT NULL DEFAULT '',
    date TEXT NOT NULL DEFAULT '',
    date_parsed BOOLEAN NOT NULL DEFAULT FALSE,
    image_url TEXT NOT NULL DEFAULT '',
    source_type TEXT NOT NULL,
    source_name TEXT NOT NULL DEFAULT '',
    keywords TEXT NOT NULL DEFAULT '',
    publication_name TEXT NOT NULL DEFAULT '',
    language TEXT NOT NULL DEFAULT '',
    crawled_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS articles_url_unique ON articles (url)`,
	`CREATE INDEX IF NOT EXISTS articles_source_type ON articles (source_type)`,
	`CREATE INDEX IF NOT EXISTS articles_crawled_at ON articles (crawled_at DESC)`,
}

// PostgresRepository persists normalized records into Postgres.
type PostgresRepository struct {
	db *sql.DB
}

var _ ports.ArticleRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Upsert inserts the record or merges its non-empty fields into the row.
func (r *PostgresRepository) Upsert(ctx context.Context, url string, record domain.NormalizedRecord) (domain.UpsertAck, error) {
	record.URL = url
	if err := record.Validate(); err != nil {
		return domain.UpsertAck{}, &domain.Failure{Kind: domain.KindWriteRejected, URL: url, Err: err}
	}

	query, args, err := psql.Insert(articlesTable).
		Columns(articleColumns...).
		Values(
			record.URL,
			record.Title,
			record.Content,
			record.Author,
			record.Date,
			record.DateParsed,
			record.ImageURL,
			string(record.SourceType),
			record.SourceName,
			record.Keywords,
			record.PublicationName,
			record.Language,
			record.CrawledAt,
		).
		Suffix(upsertSuffix).
		ToSql()
	if err != nil {
		return domain.UpsertAck{}, fmt.Errorf("build upsert: %w", err)
	}

	var inserted bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&inserted); err != nil {
		return domain.UpsertAck{}, classifySQL(url, err)
	}
	return domain.UpsertAck{URL: url, Inserted: inserted}, nil
}

// Find filters by source type, URL regex and field presence, ordered by URL.
func (r *PostgresRepository) Find(ctx context.Context, query domain.ArticleQuery) ([]domain.NormalizedRecord, error) {
	builder := psql.Select(articleColumns...).From(articlesTable).OrderBy("url")
	if query.SourceType != "" {
		builder = builder.Where(sq.Eq{"source_type": string(query.SourceType)})
	}
	if query.URLPattern != "" {
		builder = builder.Where(sq.Expr("url ~ ?", query.URLPattern))
	}
	if query.HasField != "" {
		column, ok := queryableFields[query.HasField]
		if !ok {
			return nil, fmt.Errorf("unknown field %q", query.HasField)
		}
		builder = builder.Where(sq.NotEq{column: ""})
	}
	if query.Limit > 0 {
		builder = builder.Limit(uint64(query.Limit))
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", classifySQL("", err))
	}

	out := make([]domain.NormalizedRecord, 0)
	for rows.Next() {
		var (
			rec        domain.NormalizedRecord
			sourceType string
		)
		if err := rows.Scan(
			&rec.URL, &rec.Title, &rec.Content, &rec.Author, &rec.Date, &rec.DateParsed, &rec.ImageURL,
			&sourceType, &rec.SourceName, &rec.Keywords, &rec.PublicationName, &rec.Language, &rec.CrawledAt,
		); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan article: %w", err)
		}
		rec.SourceType = domain.SourceType(sourceType)
		out = append(out, rec)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return out, nil
}

// EnsureIndexes creates the table and its indexes if they are missing.
func (r *PostgresRepository) EnsureIndexes(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func classifySQL(url string, err error) *domain.Failure {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "57":
			return &domain.Failure{Kind: domain.KindConnectionLost, URL: url, Retryable: true, Err: err}
		default:
			return &domain.Failure{Kind: domain.KindWriteRejected, URL: url, Err: err}
		}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.Failure{Kind: domain.KindConnectionLost, URL: url, Retryable: true, Err: err}
	}
	return &domain.Failure{Kind: domain.KindWriteRejected, URL: url, Err: err}
}
