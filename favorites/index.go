// Package favorites maintains each user's set of favorite posts. Membership
// is idempotent in both directions and a deleted post is pulled from every
// set that holds it.
package favorites

import (
	"context"
	"errors"
	"fmt"

	"agora/metrics"
	"agora/models"
	"agora/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	ErrPostNotFound = models.ErrPostNotFound
	ErrUserNotFound = errors.New("user not found")
)

type UserStore interface {
	AddFavorite(ctx context.Context, userID, postID primitive.ObjectID) ([]primitive.ObjectID, error)
	RemoveFavorite(ctx context.Context, userID, postID primitive.ObjectID) ([]primitive.ObjectID, error)
	Favorites(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error)
	IsFavorite(ctx context.Context, userID, postID primitive.ObjectID) (bool, error)
	PullFavoriteEverywhere(ctx context.Context, postID primitive.ObjectID) (int64, error)
}

type PostLookup interface {
	Exists(ctx context.Context, id primitive.ObjectID) (bool, error)
}

type ActivitySink interface {
	Record(userID primitive.ObjectID, action string, details map[string]interface{})
}

type Index struct {
	users    UserStore
	posts    PostLookup
	activity ActivitySink
	logger   *zap.Logger
}

func NewIndex(users UserStore, posts PostLookup, activity ActivitySink, logger *zap.Logger) *Index {
	return &Index{users: users, posts: posts, activity: activity, logger: logger}
}

// Add puts postID into the user's favorites and returns the resulting set.
// Adding a member again is a no-op and leaves no audit entry.
func (x *Index) Add(ctx context.Context, userID, postID primitive.ObjectID) ([]primitive.ObjectID, error) {
	if err := x.requirePost(ctx, postID); err != nil {
		return nil, err
	}
	member, err := x.users.IsFavorite(ctx, userID, postID)
	if err != nil {
		return nil, x.userErr("check favorite", err)
	}

	favs, err := x.users.AddFavorite(ctx, userID, postID)
	if err != nil {
		return nil, x.userErr("add favorite", err)
	}

	// The post may have been deleted between the check and the insert, after
	// its cascade already ran. Take the entry back out so no dangling id stays.
	if err := x.requirePost(ctx, postID); err != nil {
		if errors.Is(err, ErrPostNotFound) {
			if _, rerr := x.users.RemoveFavorite(ctx, userID, postID); rerr != nil {
				x.logger.Sugar().Errorf("Failed to undo favorite of deleted post %s: %v", postID.Hex(), rerr)
			}
		}
		return nil, err
	}

	if member {
		return favs, nil
	}
	metrics.FavoritesTotal.WithLabelValues("add").Inc()
	x.activity.Record(userID, "add_to_favorites", map[string]interface{}{"postId": postID.Hex()})
	return favs, nil
}

// Remove takes postID out of the user's favorites. Removing a non-member
// succeeds without an audit entry.
func (x *Index) Remove(ctx context.Context, userID, postID primitive.ObjectID) ([]primitive.ObjectID, error) {
	member, err := x.users.IsFavorite(ctx, userID, postID)
	if err != nil {
		return nil, x.userErr("check favorite", err)
	}
	favs, err := x.users.RemoveFavorite(ctx, userID, postID)
	if err != nil {
		return nil, x.userErr("remove favorite", err)
	}
	if !member {
		return favs, nil
	}
	metrics.FavoritesTotal.WithLabelValues("remove").Inc()
	x.activity.Record(userID, "remove_from_favorites", map[string]interface{}{"postId": postID.Hex()})
	return favs, nil
}

func (x *Index) List(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error) {
	favs, err := x.users.Favorites(ctx, userID)
	if err != nil {
		return nil, x.userErr("list favorites", err)
	}
	if favs == nil {
		favs = []primitive.ObjectID{}
	}
	return favs, nil
}

func (x *Index) IsFavorite(ctx context.Context, userID, postID primitive.ObjectID) (bool, error) {
	return x.users.IsFavorite(ctx, userID, postID)
}

// CascadeDeletePost removes postID from every user's favorites and reports
// how many users were touched.
func (x *Index) CascadeDeletePost(ctx context.Context, postID primitive.ObjectID) (int64, error) {
	n, err := x.users.PullFavoriteEverywhere(ctx, postID)
	if err != nil {
		return 0, fmt.Errorf("cascade favorites of post %s: %w", postID.Hex(), err)
	}
	if n > 0 {
		metrics.FavoritesTotal.WithLabelValues("cascade").Add(float64(n))
		x.logger.Info("removed deleted post from favorites",
			zap.String("postId", postID.Hex()), zap.Int64("users", n))
	}
	return n, nil
}

func (x *Index) requirePost(ctx context.Context, postID primitive.ObjectID) error {
	ok, err := x.posts.Exists(ctx, postID)
	if err != nil {
		return fmt.Errorf("check post %s: %w", postID.Hex(), err)
	}
	if !ok {
		return ErrPostNotFound
	}
	return nil
}

func (x *Index) userErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
