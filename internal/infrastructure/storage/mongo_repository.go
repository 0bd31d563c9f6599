package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"NewsBot/internal/domain"
	"NewsBot/internal/ports"
)

// MongoRepository stores one document per article URL.
type MongoRepository struct {
	collection *mongo.Collection
}

var _ ports.ArticleRepository = (*MongoRepository)(nil)

// NewMongoRepository wires an existing collection.
func NewMongoRepository(collection *mongo.Collection) *MongoRepository {
	return &MongoRepository{collection: collection}
}

// ConnectMongo dials uri and verifies the primary is reachable.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// Upsert sets the non-empty fields of record on the document keyed by url,
// creating it when absent. Empty fields never overwrite stored values.
func (r *MongoRepository) Upsert(ctx context.Context, url string, record domain.NormalizedRecord) (domain.UpsertAck, error) {
	record.URL = url
	if err := record.Validate(); err != nil {
		return domain.UpsertAck{}, &domain.Failure{Kind: domain.KindWriteRejected, URL: url, Err: err}
	}

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"url": url},
		bson.M{"$set": setDocument(record)},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return domain.UpsertAck{}, classifyMongo(url, err)
	}
	return domain.UpsertAck{URL: url, Inserted: res.UpsertedCount > 0}, nil
}

func setDocument(rec domain.NormalizedRecord) bson.M {
	doc := bson.M{
		"url":         rec.URL,
		"source_type": string(rec.SourceType),
		"crawled_at":  rec.CrawledAt,
	}
	optional := map[string]string{
		"title":            rec.Title,
		"content":          rec.Content,
		"author":           rec.Author,
		"image_url":        rec.ImageURL,
		"source_name":      rec.SourceName,
		"keywords":         rec.Keywords,
		"publication_name": rec.PublicationName,
		"language":         rec.Language,
	}
	for key, v := range optional {
		if v != "" {
			doc[key] = v
		}
	}
	if rec.Date != "" {
		doc["date"] = rec.Date
		doc["date_parsed"] = rec.DateParsed
	}
	return doc
}

// Find filters by source type, URL regex and field presence, ordered by URL.
func (r *MongoRepository) Find(ctx context.Context, query domain.ArticleQuery) ([]domain.NormalizedRecord, error) {
	filter := bson.D{}
	if query.SourceType != "" {
		filter = append(filter, bson.E{Key: "source_type", Value: string(query.SourceType)})
	}
	if query.URLPattern != "" {
		filter = append(filter, bson.E{Key: "url", Value: bson.M{"$regex": query.URLPattern}})
	}
	if query.HasField != "" {
		key, ok := queryableFields[query.HasField]
		if !ok {
			return nil, fmt.Errorf("unknown field %q", query.HasField)
		}
		filter = append(filter, bson.E{Key: key, Value: bson.M{"$exists": true, "$ne": ""}})
	}

	opts := options.Find().SetSort(bson.D{{Key: "url", Value: 1}})
	if query.Limit > 0 {
		opts.SetLimit(int64(query.Limit))
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find articles: %w", classifyMongo("", err))
	}
	out := make([]domain.NormalizedRecord, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode articles: %w", err)
	}
	return out, nil
}

// EnsureIndexes creates the url (unique), source_type and crawled_at indexes.
// Re-running it with identical definitions is a no-op on the server.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "url", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("url_unique"),
		},
		{
			Keys:    bson.D{{Key: "source_type", Value: 1}},
			Options: options.Index().SetName("source_type"),
		},
		{
			Keys:    bson.D{{Key: "crawled_at", Value: -1}},
			Options: options.Index().SetName("crawled_at_desc"),
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func classifyMongo(url string, err error) *domain.Failure {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.Failure{Kind: domain.KindConnectionLost, URL: url, Retryable: true, Err: err}
	}
	if mongo.IsDuplicateKeyError(err) {
		// Concurrent first write of the same URL; a repeat lands as a merge.
		return &domain.Failure{Kind: domain.KindWriteRejected, URL: url, Retryable: true, Err: err}
	}
	return &domain.Failure{Kind: domain.KindWriteRejected, URL: url, Err: err}
}
