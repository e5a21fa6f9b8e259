package newsfeed

import (
	"context"
	"fmt"
	"time"

	"github.com/pevans/waybackfed/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoMirror copies article records into a MongoDB collection, one document
// per URL.
type MongoMirror struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoMirror connects to cfg.URI and ensures the URL index exists.
func NewMongoMirror(ctx context.Context, cfg config.MongoConfig) (*MongoMirror, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	collection := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "url", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "site", Value: 1}}},
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create mongo indexes: %w", err)
	}

	return &MongoMirror{client: client, collection: collection}, nil
}

// Upsert inserts or replaces the document for rec.URL.
func (m *MongoMirror) Upsert(ctx context.Context, site string, rec ArticleRecord) error {
	filter := bson.M{"url": rec.URL}
	update := bson.M{"$set": document(site, rec, time.Now().UTC())}

	_, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert article %s: %w", rec.URL, err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (m *MongoMirror) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func document(site string, rec ArticleRecord, now time.Time) bson.M {
	doc := bson.M{
		"site":         site,
		"title":        rec.Title,
		"authors":      rec.Authors,
		"url":          rec.URL,
		"date_publish": rec.DatePublish,
		"description":  rec.Description,
		"maintext":     rec.Maintext,
		"text_len":     rec.TextLen,
		"wayback_time": nil,
		"updated_at":   now,
	}
	if rec.WaybackTime != nil {
		doc["wayback_time"] = rec.WaybackTime.Format(DateLayout)
	}
	return doc
}
