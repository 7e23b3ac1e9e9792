package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const mongoMaxRetry = 3

// ConnectMongo dials MongoDB, retrying briefly, and returns the named database.
func ConnectMongo(ctx context.Context, uri, database string, logger *zap.Logger) (*mongo.Database, error) {
	opts := options.Client().ApplyURI(uri).SetMaxPoolSize(50)

	var (
		cli *mongo.Client
		err error
	)
	for i := 0; i < mongoMaxRetry; i++ {
		cli, err = connectMongo(ctx, opts)
		if err == nil {
			break
		}
		logger.Warn("mongo connect failed, retrying", zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second / 2):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return cli.Database(database), nil
}

func connectMongo(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return cli, nil
}
