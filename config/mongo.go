package config

import (
	"context"
	"fmt"
	"time"

	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// mongoSelectionTimeout gives hosted clusters time to answer the first ping.
const mongoSelectionTimeout = 20 * time.Second

// ConnectMongo connects to MongoDB and verifies the connection. The caller
// disconnects the returned client.
func ConnectMongo(ctx context.Context, cfg StoreConfig) (*mongod.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetServerSelectionTimeout(mongoSelectionTimeout)

	client, err := mongod.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}
