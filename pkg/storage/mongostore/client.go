package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptostats/config"
	"cryptostats/internal/market"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// snapshotDocument keeps the field names of the crypto_stats collection.
type snapshotDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Coin      string             `bson:"coin"`
	Price     float64            `bson:"price"`
	MarketCap float64            `bson:"marketCap"`
	Change24h float64            `bson:"change24h"`
	Timestamp time.Time          `bson:"timestamp"`
}

func (d snapshotDocument) snapshot() market.Snapshot {
	return market.Snapshot{
		ID:        d.ID.Hex(),
		Asset:     d.Coin,
		Price:     d.Price,
		MarketCap: d.MarketCap,
		Change24h: d.Change24h,
		Timestamp: d.Timestamp,
	}
}

// MongoClient stores snapshots as documents in a single collection.
type MongoClient struct {
	client     *mongo.Client
	collection *mongo.Collection
	catalog    market.Catalog
}

// Connect opens the client, verifies it with a ping and ensures the query indexes exist.
func Connect(ctx context.Context, cfg config.MongoConfig, catalog market.Catalog) (*MongoClient, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(10).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	m := &MongoClient{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		catalog:    catalog,
	}
	if err := m.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *MongoClient) createIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "coin", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Append validates s and inserts it as a new document.
func (m *MongoClient) Append(ctx context.Context, s market.Snapshot) (market.Snapshot, error) {
	s, err := m.catalog.Prepare(s, time.Now().UTC())
	if err != nil {
		return market.Snapshot{}, err
	}

	doc := snapshotDocument{
		Coin:      s.Asset,
		Price:     s.Price,
		MarketCap: s.MarketCap,
		Change24h: s.Change24h,
		// mongo stores milliseconds
		Timestamp: s.Timestamp.Truncate(time.Millisecond),
	}
	res, err := m.collection.InsertOne(ctx, doc)
	if err != nil {
		return market.Snapshot{}, &market.StorageError{Op: "append", Err: err}
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = id
	}
	return doc.snapshot(), nil
}

// Latest returns the newest document for asset; ok is false when none exists.
func (m *MongoClient) Latest(ctx context.Context, asset string) (market.Snapshot, bool, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})

	var doc snapshotDocument
	err := m.collection.FindOne(ctx, bson.M{"coin": asset}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return market.Snapshot{}, false, nil
	}
	if err != nil {
		return market.Snapshot{}, false, &market.StorageError{Op: "latest", Err: err}
	}
	return doc.snapshot(), true, nil
}

// Recent returns up to limit documents for asset, newest first.
func (m *MongoClient) Recent(ctx context.Context, asset string, limit int) ([]market.Snapshot, error) {
	if limit <= 0 {
		return []market.Snapshot{}, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := m.collection.Find(ctx, bson.M{"coin": asset}, opts)
	if err != nil {
		return nil, &market.StorageError{Op: "recent", Err: err}
	}
	defer cursor.Close(ctx)

	var docs []snapshotDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, &market.StorageError{Op: "recent", Err: err}
	}

	out := make([]market.Snapshot, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.snapshot())
	}
	return out, nil
}

func (m *MongoClient) IsHealthy(ctx context.Context) bool {
	return m.client.Ping(ctx, nil) == nil
}

func (m *MongoClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
