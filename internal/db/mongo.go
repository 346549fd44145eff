package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectMongo dials uri and pings the primary, retrying retries times.
func ConnectMongo(ctx context.Context, uri string, retries int, interval time.Duration, log *zap.Logger) (*mongo.Client, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err == nil {
			if err = client.Ping(ctx, readpref.Primary()); err == nil {
				log.Info("mongo connected", zap.Int("attempt", attempt+1))
				return client, nil
			}
			_ = client.Disconnect(ctx)
		}
		lastErr = err
		log.Warn("mongo connect failed", zap.Int("attempt", attempt+1), zap.Error(err))

		if attempt < retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return nil, fmt.Errorf("connect mongo after %d attempts: %w", retries+1, lastErr)
}
