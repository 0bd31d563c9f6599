package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"NewsBot/internal/domain"
)

func sampleRecord(url string) domain.NormalizedRecord {
	return domain.NormalizedRecord{
		URL:        url,
		Title:      "Headline",
		Content:    "Body text",
		SourceType: domain.SourceHTMLContent,
		SourceName: "example",
		CrawledAt:  time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC),
	}
}

func TestMongoRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upsert inserts new document", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll)
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "n", Value: 1},
			{Key: "nModified", Value: 0},
			{Key: "upserted", Value: bson.A{bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: primitive.NewObjectID()}}}},
		})

		ack, err := repo.Upsert(context.Background(), "https://example.com/a", sampleRecord("https://example.com/a"))
		require.NoError(mt, err)
		assert.True(mt, ack.Inserted)
		assert.Equal(mt, "https://example.com/a", ack.URL)
	})

	mt.Run("upsert merges existing document", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		ack, err := repo.Upsert(context.Background(), "https://example.com/a", sampleRecord("https://example.com/a"))
		require.NoError(mt, err)
		assert.False(mt, ack.Inserted)
	})

	mt.Run("write error is rejected", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    121,
			Message: "Document failed validation",
		}))

		_, err := repo.Upsert(context.Background(), "https://example.com/a", sampleRecord("https://example.com/a"))
		failure, ok := domain.AsFailure(err)
		require.True(mt, ok)
		assert.Equal(mt, domain.KindWriteRejected, failure.Kind)
		assert.Equal(mt, domain.CategoryPersistence, failure.Category())
	})

	mt.Run("invalid record never reaches the server", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll)

		_, err := repo.Upsert(context.Background(), "relative/path", sampleRecord("relative/path"))
		failure, ok := domain.AsFailure(err)
		require.True(mt, ok)
		assert.Equal(mt, domain.KindWriteRejected, failure.Kind)
	})

	mt.Run("find decodes documents", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
				bson.D{
					{Key: "_id", Value: primitive.NewObjectID()},
					{Key: "url", Value: "https://example.com/a"},
					{Key: "title", Value: "Headline"},
					{Key: "source_type", Value: "sitemap_news"},
				},
				bson.D{
					{Key: "_id", Value: primitive.NewObjectID()},
					{Key: "url", Value: "https://example.com/b"},
					{Key: "source_type", Value: "sitemap_news"},
				},
			),
		)

		records, err := repo.Find(context.Background(), domain.ArticleQuery{
			SourceType: domain.SourceSitemapNews,
			URLPattern: "^https://example\\.com/",
		})
		require.NoError(mt, err)
		require.Len(mt, records, 2)
		assert.Equal(mt, "Headline", records[0].Title)
		assert.Equal(mt, domain.SourceSitemapNews, records[1].SourceType)
	})

	mt.Run("find rejects unknown field", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll)

		_, err := repo.Find(context.Background(), domain.ArticleQuery{HasField: "nope"})
		assert.Error(mt, err)
	})

	mt.Run("ensure indexes", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		assert.NoError(mt, repo.EnsureIndexes(context.Background()))
	})
}

func TestSetDocumentSkipsEmptyFields(t *testing.T) {
	rec := sampleRecord("https://example.com/a")
	rec.Content = ""

	doc := setDocument(rec)
	assert.Equal(t, "Headline", doc["title"])
	assert.NotContains(t, doc, "content")
	assert.NotContains(t, doc, "date")
	assert.NotContains(t, doc, "date_parsed")

	rec.Date, rec.DateParsed = "2024-05-01", true
	doc = setDocument(rec)
	assert.Equal(t, "2024-05-01", doc["date"])
	assert.Equal(t, true, doc["date_parsed"])
}
