package repository

import (
	"context"
	"fmt"
	"time"

	"agora/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepo struct {
	coll *mongo.Collection
}

func NewMessageRepo(coll *mongo.Collection) *MessageRepo {
	return &MessageRepo{coll: coll}
}

// Insert stores msg, assigning an id and timestamp when they are unset.
// A unique index collision is reported as ErrDuplicateKey.
func (r *MessageRepo) Insert(ctx context.Context, msg *models.Message) (primitive.ObjectID, error) {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if _, err := r.coll.InsertOne(ctx, msg); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, fmt.Errorf("insert message %s: %w", msg.ID.Hex(), ErrDuplicateKey)
		}
		return primitive.NilObjectID, fmt.Errorf("insert message %s: %w", msg.ID.Hex(), err)
	}
	return msg.ID, nil
}

// ListRecent returns the newest limit messages in chronological order.
func (r *MessageRepo) ListRecent(ctx context.Context, limit int64) ([]models.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find recent messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := []models.Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("decode recent messages: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
