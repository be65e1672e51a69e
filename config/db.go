package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ErrNoMongoURI is returned when MONGODB_URI is not set.
var ErrNoMongoURI = errors.New("MONGODB_URI is not set")

// ConnectDB connects to MongoDB and returns the named database. The caller
// owns the client and disconnects it on shutdown.
func ConnectDB(ctx context.Context, uri, name string) (*mongo.Client, *mongo.Database, error) {
	if uri == "" {
		return nil, nil, ErrNoMongoURI
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	return client, client.Database(name), nil
}
