package storage

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"NewsBot/internal/domain"
	"NewsBot/internal/ports"
)

// MemoryRepository keeps records in process; used for dry runs and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]domain.NormalizedRecord
}

var _ ports.ArticleRepository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: map[string]domain.NormalizedRecord{}}
}

// Upsert inserts record or merges it into the stored one.
func (r *MemoryRepository) Upsert(_ context.Context, url string, record domain.NormalizedRecord) (domain.UpsertAck, error) {
	record.URL = url
	if err := record.Validate(); err != nil {
		return domain.UpsertAck{}, &domain.Failure{Kind: domain.KindWriteRejected, URL: url, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, found := r.records[url]
	if !found {
		r.records[url] = record
		return domain.UpsertAck{URL: url, Inserted: true}, nil
	}
	r.records[url] = existing.Merge(record)
	return domain.UpsertAck{URL: url}, nil
}

// Find returns matching records ordered by URL.
func (r *MemoryRepository) Find(_ context.Context, query domain.ArticleQuery) ([]domain.NormalizedRecord, error) {
	var pattern *regexp.Regexp
	if query.URLPattern != "" {
		var err error
		if pattern, err = regexp.Compile(query.URLPattern); err != nil {
			return nil, fmt.Errorf("compile url pattern: %w", err)
		}
	}
	if query.HasField != "" && !isQueryableField(query.HasField) {
		return nil, fmt.Errorf("unknown field %q", query.HasField)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.NormalizedRecord, 0)
	for _, rec := range r.records {
		if query.SourceType != "" && rec.SourceType != query.SourceType {
			continue
		}
		if pattern != nil && !pattern.MatchString(rec.URL) {
			continue
		}
		if query.HasField != "" && fieldValue(rec, query.HasField) == "" {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

// EnsureIndexes is a no-op; the map is keyed by URL.
func (r *MemoryRepository) EnsureIndexes(context.Context) error {
	return nil
}

// Len reports the number of stored records.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// queryableFields maps record field names to their column/document keys.
var queryableFields = map[string]string{
	"title":            "title",
	"content":          "content",
	"author":           "author",
	"date":             "date",
	"image_url":        "image_url",
	"image":            "image_url",
	"keywords":         "keywords",
	"publication_name": "publication_name",
	"language":         "language",
	"source_name":      "source_name",
}

func isQueryableField(name string) bool {
	_, ok := queryableFields[name]
	return ok
}

func fieldValue(rec domain.NormalizedRecord, name string) string {
	switch queryableFields[name] {
	case "title":
		return rec.Title
	case "content":
		return rec.Content
	case "author":
		return rec.Author
	case "date":
		return rec.Date
	case "image_url":
		return rec.ImageURL
	case "keywords":
		return rec.Keywords
	case "publication_name":
		return rec.PublicationName
	case "language":
		return rec.Language
	case "source_name":
		return rec.SourceName
	default:
		return ""
	}
}
