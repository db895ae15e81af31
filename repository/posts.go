package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agora/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type PostRepo struct {
	coll *mongo.Collection
}

func NewPostRepo(coll *mongo.Collection) *PostRepo {
	return &PostRepo{coll: coll}
}

func (r *PostRepo) FindRaw(ctx context.Context, id primitive.ObjectID) (*models.RawPost, error) {
	var post models.RawPost
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find post %s: %w", id.Hex(), err)
	}
	return &post, nil
}

func (r *PostRepo) Exists(ctx context.Context, id primitive.ObjectID) (bool, error) {
	count, err := r.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count post %s: %w", id.Hex(), err)
	}
	return count > 0, nil
}

// SaveNormalized writes the canonical reaction fields back, but only while the
// stored fields still hold what was read in raw.
func (r *PostRepo) SaveNormalized(ctx context.Context, raw *models.RawPost, likes, dislikes models.ReactionSet) error {
	filter := bson.D{
		{Key: "_id", Value: raw.ID},
		matchRaw("likes", raw.Likes),
		matchRaw("dislikes", raw.Dislikes),
	}
	update := bson.M{"$set": bson.M{
		"likes":    withUsers(likes),
		"dislikes": withUsers(dislikes),
	}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("save normalized post %s: %w", raw.ID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return r.missingOrConflict(ctx, raw.ID)
	}
	return nil
}

// ApplyReaction performs change as one single-document update. The filter
// requires userID to be in change.Remove's set and absent from change.Add's
// set, so a concurrent writer that got there first makes this a conflict.
func (r *PostRepo) ApplyReaction(ctx context.Context, postID, userID primitive.ObjectID, change models.ReactionChange) (models.Counts, error) {
	filter := bson.D{{Key: "_id", Value: postID}}
	inc := bson.M{}
	update := bson.M{}

	if f := change.Remove.Field(); f != "" {
		filter = append(filter, bson.E{Key: f + ".users", Value: userID})
		update["$pull"] = bson.M{f + ".users": userID}
		inc[f+".count"] = -1
	}
	if f := change.Add.Field(); f != "" {
		filter = append(filter, bson.E{Key: f + ".users", Value: bson.M{"$ne": userID}})
		update["$addToSet"] = bson.M{f + ".users": userID}
		inc[f+".count"] = 1
	}
	if len(inc) == 0 {
		return models.Counts{}, fmt.Errorf("apply reaction: empty change")
	}
	update["$inc"] = inc
	update["$set"] = bson.M{"updatedAt": time.Now()}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"likes.count": 1, "dislikes.count": 1})

	var doc struct {
		Likes    models.ReactionSet `bson:"likes"`
		Dislikes models.ReactionSet `bson:"dislikes"`
	}
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Counts{}, r.missingOrConflict(ctx, postID)
	}
	if err != nil {
		return models.Counts{}, fmt.Errorf("apply reaction to post %s: %w", postID.Hex(), err)
	}
	return models.Counts{Likes: doc.Likes.Count, Dislikes: doc.Dislikes.Count}, nil
}

func (r *PostRepo) IncrementViews(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"viewsCount": 1}})
	if err != nil {
		return fmt.Errorf("increment views of post %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostRepo) Delete(ctx context.Context, id primitive.ObjectID) (*models.RawPost, error) {
	var post models.RawPost
	err := r.coll.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete post %s: %w", id.Hex(), err)
	}
	return &post, nil
}

func (r *PostRepo) missingOrConflict(ctx context.Context, id primitive.ObjectID) error {
	ok, err := r.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return ErrConflict
}

func matchRaw(field string, v bson.RawValue) bson.E {
	if v.Type == 0 {
		return bson.E{Key: field, Value: bson.M{"$exists": false}}
	}
	return bson.E{Key: field, Value: v}
}

func withUsers(s models.ReactionSet) models.ReactionSet {
	if s.Users == nil {
		s.Users = []primitive.ObjectID{}
	}
	return s
}
