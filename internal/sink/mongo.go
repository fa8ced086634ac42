package sink

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/vpntrail/vpntrail/pkg/types"
)

// MongoConfig contains MongoDB-specific configuration.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database,omitempty"`
	Collection string `yaml:"collection,omitempty"`
}

// DefaultMongoConfig returns default MongoDB configuration.
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		Database:   "openvpn_logs",
		Collection: "connection_logs",
	}
}

// MongoSink stores records as documents in a single collection,
// discriminated by a record_type field. Connection events use their dedup
// identifier as _id, which makes re-inserts after a lost dedup cache
// idempotent at the database level.
type MongoSink struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoSink connects to MongoDB and verifies the connection.
func NewMongoSink(ctx context.Context, cfg MongoConfig) (*MongoSink, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("no MongoDB URI specified")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultMongoConfig().Database
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultMongoConfig().Collection
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to create MongoDB client: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to reach MongoDB: %w", err)
	}

	return &MongoSink{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Write inserts one record. A duplicate-key error counts as success: the
// document is already there from an earlier delivery.
func (m *MongoSink) Write(ctx context.Context, rec types.Record) error {
	doc, err := buildDocument(rec)
	if err != nil {
		return err
	}

	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to insert %s: %w", rec.Kind(), err)
	}
	return nil
}

// Ping implements Sink.
func (m *MongoSink) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close implements Sink.
func (m *MongoSink) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Name implements Sink.
func (m *MongoSink) Name() string { return "mongodb" }

// buildDocument marshals a record through its bson tags and attaches the
// envelope fields. Nil optional fields are dropped by omitempty so absent
// data is not stored as zero.
func buildDocument(rec types.Record) (bson.M, error) {
	raw, err := bson.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", rec.Kind(), err)
	}

	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to rebuild %s document: %w", rec.Kind(), err)
	}

	doc["record_type"] = rec.Kind()
	doc["created_at"] = time.Now().UTC()
	if ev, ok := rec.(*types.ConnectionEvent); ok {
		doc["_id"] = ev.DedupID()
	}
	return doc, nil
}
