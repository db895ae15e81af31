package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"agora/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type UserRepo struct {
	coll *mongo.Collection
}

func NewUserRepo(coll *mongo.Collection) *UserRepo {
	return &UserRepo{coll: coll}
}

func (r *UserRepo) AppendActivity(ctx context.Context, userID primitive.ObjectID, entry models.ActivityEntry) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$push": bson.M{"activityLog": entry}})
	if err != nil {
		return fmt.Errorf("append activity for user %s: %w", userID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ActivityLog returns the user's audit entries, newest first.
func (r *UserRepo) ActivityLog(ctx context.Context, userID primitive.ObjectID) ([]models.ActivityEntry, error) {
	var user models.User
	opts := options.FindOne().SetProjection(bson.M{"activityLog": 1})
	err := r.coll.FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find activity for user %s: %w", userID.Hex(), err)
	}
	entries := user.ActivityLog
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

func (r *UserRepo) AddFavorite(ctx context.Context, userID, postID primitive.ObjectID) ([]primitive.ObjectID, error) {
	return r.updateFavorites(ctx, userID, bson.M{"$addToSet": bson.M{"favorites": postID}})
}

func (r *UserRepo) RemoveFavorite(ctx context.Context, userID, postID primitive.ObjectID) ([]primitive.ObjectID, error) {
	return r.updateFavorites(ctx, userID, bson.M{"$pull": bson.M{"favorites": postID}})
}

func (r *UserRepo) Favorites(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error) {
	var user models.User
	opts := options.FindOne().SetProjection(bson.M{"favorites": 1})
	err := r.coll.FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find favorites for user %s: %w", userID.Hex(), err)
	}
	return nonNil(user.Favorites), nil
}

func (r *UserRepo) IsFavorite(ctx context.Context, userID, postID primitive.ObjectID) (bool, error) {
	count, err := r.coll.CountDocuments(ctx, bson.M{"_id": userID, "favorites": postID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check favorite for user %s: %w", userID.Hex(), err)
	}
	return count > 0, nil
}

// PullFavoriteEverywhere removes postID from every user's favorites and
// reports how many users were changed.
func (r *UserRepo) PullFavoriteEverywhere(ctx context.Context, postID primitive.ObjectID) (int64, error) {
	res, err := r.coll.UpdateMany(ctx, bson.M{"favorites": postID}, bson.M{"$pull": bson.M{"favorites": postID}})
	if err != nil {
		return 0, fmt.Errorf("pull favorite %s: %w", postID.Hex(), err)
	}
	return res.ModifiedCount, nil
}

func (r *UserRepo) updateFavorites(ctx context.Context, userID primitive.ObjectID, update bson.M) ([]primitive.ObjectID, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"favorites": 1})

	var user models.User
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": userID}, update, opts).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update favorites for user %s: %w", userID.Hex(), err)
	}
	return nonNil(user.Favorites), nil
}

func nonNil(ids []primitive.ObjectID) []primitive.ObjectID {
	if ids == nil {
		return []primitive.ObjectID{}
	}
	return ids
}
