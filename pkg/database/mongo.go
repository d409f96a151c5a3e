package database

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig holds MongoDB connection configuration.
type MongoConfig struct {
	URI                    string
	Database               string
	ServerSelectionTimeout time.Duration
}

// DefaultMongoConfig returns the local development settings.
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:                    "mongodb://localhost:27017",
		Database:               "philanzel",
		ServerSelectionTimeout: 5 * time.Second,
	}
}

// NewMongoDatabase connects to MongoDB, pings the primary and returns the
// configured database handle. Disconnect through db.Client().
func NewMongoDatabase(ctx context.Context, cfg MongoConfig, logger *slog.Logger) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout)

	var client *mongo.Client
	err := connectWithRetry(ctx, "mongodb", logger, func(ctx context.Context) error {
		c, err := mongo.Connect(ctx, clientOpts)
		if err != nil {
			return err
		}
		if err := c.Ping(ctx, readpref.Primary()); err != nil {
			_ = c.Disconnect(context.Background())
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client.Database(cfg.Database), nil
}
