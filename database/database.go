package database

import (
	"context"
	"fmt"
	"time"

	"agora/repository"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	connectTimeout = 15 * time.Second
	retryDelay     = 2 * time.Second
)

// ConnectMongo dials and pings MongoDB, trying up to attempts times.
func ConnectMongo(ctx context.Context, uri string, attempts int, logger *zap.Logger) (*mongo.Client, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		client, err := dial(ctx, uri)
		if err == nil {
			logger.Info("connected to MongoDB", zap.Int("attempt", i))
			return client, nil
		}
		lastErr = err
		logger.Warn("MongoDB connection attempt failed", zap.Int("attempt", i), zap.Error(err))

		if i < attempts {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("connect to MongoDB after %d attempts: %w", attempts, lastErr)
}

func dial(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

func DisconnectMongo(client *mongo.Client, logger *zap.Logger) {
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		logger.Sugar().Errorf("Failed to disconnect from MongoDB: %v", err)
		return
	}
	logger.Info("disconnected from MongoDB")
}

// EnsureIndexes creates the indexes the stores rely on. A unique index on
// the retired messages.messageId field makes every insert after the first
// collide, so it is dropped when found.
func EnsureIndexes(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	messages := db.Collection(repository.MessagesCollection)
	if err := dropStaleMessageIndex(ctx, messages, logger); err != nil {
		return err
	}

	if _, err := db.Collection(repository.UsersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "favorites", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create users.favorites index: %w", err)
	}

	if _, err := messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("create messages.createdAt index: %w", err)
	}

	logger.Info("MongoDB indexes ensured")
	return nil
}

func dropStaleMessageIndex(ctx context.Context, coll *mongo.Collection, logger *zap.Logger) error {
	cursor, err := coll.Indexes().List(ctx)
	if err != nil {
		return fmt.Errorf("list message indexes: %w", err)
	}
	var indexes []bson.M
	if err := cursor.All(ctx, &indexes); err != nil {
		return fmt.Errorf("decode message indexes: %w", err)
	}

	for _, idx := range indexes {
		if !hasKey(idx["key"], "messageId") {
			continue
		}
		name, _ := idx["name"].(string)
		if _, err := coll.Indexes().DropOne(ctx, name); err != nil {
			return fmt.Errorf("drop index %s: %w", name, err)
		}
		logger.Warn("dropped stale messages index", zap.String("index", name))
	}
	return nil
}

func hasKey(doc interface{}, key string) bool {
	switch d := doc.(type) {
	case bson.M:
		_, ok := d[key]
		return ok
	case bson.D:
		for _, e := range d {
			if e.Key == key {
				return true
			}
		}
	}
	return false
}

// ConnectRedis returns a client once the server answers a ping.
func ConnectRedis(ctx context.Context, addr string, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pong, err := rdb.Ping(ctx).Result()
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	logger.Sugar().Infof("Successfully connected to Redis: %s", pong)
	return rdb, nil
}
