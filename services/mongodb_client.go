package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoLatestPriceCollection holds one document per ticker, replaced every round.
const MongoLatestPriceCollection = "latest_prices"

// MongoLatestPrice is the document stored per ticker
type MongoLatestPrice struct {
	Ticker    string    `bson:"_id"`
	Price     float64   `bson:"price"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoPriceStore mirrors the latest refreshed prices into MongoDB.
type MongoPriceStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

var _ PriceSink = (*MongoPriceStore)(nil)

// ConnectMongoPriceStore connects, pings and prepares the collection.
func ConnectMongoPriceStore(ctx context.Context, uri, database string) (*MongoPriceStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetMinPoolSize(1).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Verify connection with ping
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collection := client.Database(database).Collection(MongoLatestPriceCollection)
	if _, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "updated_at", Value: -1}},
	}); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &MongoPriceStore{client: client, collection: collection, now: time.Now}, nil
}

// Publish upserts one document per ticker in a single bulk write.
func (m *MongoPriceStore) Publish(ctx context.Context, prices map[string]decimal.Decimal) error {
	operations := latestPriceModels(prices, m.now())
	if len(operations) == 0 {
		return nil
	}

	if _, err := m.collection.BulkWrite(ctx, operations, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to bulk save latest prices to MongoDB: %w", err)
	}
	return nil
}

// Latest loads the stored document for ticker, or false when none was stored.
func (m *MongoPriceStore) Latest(ctx context.Context, ticker string) (*MongoLatestPrice, bool, error) {
	var doc MongoLatestPrice
	err := m.collection.FindOne(ctx, bson.M{"_id": ticker}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load latest price for %s from MongoDB: %w", ticker, err)
	}
	return &doc, true, nil
}

// Close closes the MongoDB connection
func (m *MongoPriceStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func latestPriceModels(prices map[string]decimal.Decimal, now time.Time) []mongo.WriteModel {
	operations := make([]mongo.WriteModel, 0, len(prices))
	for ticker, price := range prices {
		doc := MongoLatestPrice{
			Ticker:    ticker,
			Price:     price.InexactFloat64(),
			UpdatedAt: now,
		}
		operations = append(operations, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": ticker}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	return operations
}
