package activity

import (
	"context"
	"errors"

	"agora/models"
	"agora/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrUserNotFound = errors.New("user not found")

type LogReader interface {
	ActivityLog(ctx context.Context, userID primitive.ObjectID) ([]models.ActivityEntry, error)
}

// Log returns the user's activity entries, newest first.
func Log(ctx context.Context, store LogReader, userID primitive.ObjectID) ([]models.ActivityEntry, error) {
	entries, err := store.ActivityLog(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.ActivityEntry{}
	}
	return entries, nil
}
