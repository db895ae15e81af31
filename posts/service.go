// Package posts serves single-post reads and the delete workflow that keeps
// favorites consistent with the post collection.
package posts

import (
	"context"
	"errors"
	"fmt"

	"agora/models"
	"agora/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	ErrPostNotFound = models.ErrPostNotFound
	ErrForbidden    = errors.New("only the author can delete this post")
)

type Store interface {
	FindRaw(ctx context.Context, id primitive.ObjectID) (*models.RawPost, error)
	IncrementViews(ctx context.Context, id primitive.ObjectID) error
	Delete(ctx context.Context, id primitive.ObjectID) (*models.RawPost, error)
}

// Loader yields a post in canonical shape.
type Loader interface {
	Load(ctx context.Context, postID primitive.ObjectID) (*models.Post, error)
}

type Favorites interface {
	IsFavorite(ctx context.Context, userID, postID primitive.ObjectID) (bool, error)
	CascadeDeletePost(ctx context.Context, postID primitive.ObjectID) (int64, error)
}

type ActivitySink interface {
	Record(userID primitive.ObjectID, action string, details map[string]interface{})
}

// View is a post as shown to one viewer.
type View struct {
	models.Post
	LikesCount    int64           `json:"likesCount"`
	DislikesCount int64           `json:"dislikesCount"`
	UserReaction  models.Reaction `json:"userReaction"`
	IsFavorite    bool            `json:"isFavorite"`
}

type Service struct {
	store     Store
	loader    Loader
	favorites Favorites
	activity  ActivitySink
	logger    *zap.Logger
}

func NewService(store Store, loader Loader, favorites Favorites, activity ActivitySink, logger *zap.Logger) *Service {
	return &Service{store: store, loader: loader, favorites: favorites, activity: activity, logger: logger}
}

// View loads the post, counts the view and reports the viewer's reaction and
// favorite state. viewer may be nil for anonymous reads.
func (s *Service) View(ctx context.Context, postID primitive.ObjectID, viewer *primitive.ObjectID) (*View, error) {
	post, err := s.loader.Load(ctx, postID)
	if err != nil {
		return nil, err
	}

	if err := s.store.IncrementViews(ctx, postID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("count view: %w", err)
	}
	post.ViewsCount++

	v := &View{
		Post:          *post,
		LikesCount:    post.Likes.Count,
		DislikesCount: post.Dislikes.Count,
		UserReaction:  models.ReactionNone,
	}
	if viewer != nil {
		v.UserReaction = post.ReactionOf(*viewer)
		fav, err := s.favorites.IsFavorite(ctx, *viewer, postID)
		if err != nil {
			// A missing favorite flag is not worth failing the read.
			s.logger.Sugar().Errorf("Failed to read favorite state for post %s: %v", postID.Hex(), err)
		}
		v.IsFavorite = fav
	}
	return v, nil
}

// Delete removes a post owned by userID and pulls it from every user's
// favorites. When the post is already gone the cascade still runs, so
// repeating a delete repairs a cleanup that failed part way.
func (s *Service) Delete(ctx context.Context, postID, userID primitive.ObjectID) error {
	raw, err := s.store.FindRaw(ctx, postID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.cascadeMissing(ctx, postID)
	}
	if err != nil {
		return fmt.Errorf("load post %s: %w", postID.Hex(), err)
	}
	if raw.UserID != userID {
		return ErrForbidden
	}

	if _, err := s.store.Delete(ctx, postID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.cascadeMissing(ctx, postID)
		}
		return fmt.Errorf("delete post %s: %w", postID.Hex(), err)
	}

	if _, err := s.favorites.CascadeDeletePost(ctx, postID); err != nil {
		s.logger.Sugar().Errorf("Post %s deleted but favorites cleanup failed: %v", postID.Hex(), err)
		return err
	}

	title := raw.Title
	if title == "" {
		title = "Untitled Post"
	}
	s.activity.Record(userID, "post_deleted", map[string]interface{}{
		"postId": postID.Hex(),
		"title":  title,
	})
	s.logger.Info("post deleted", zap.String("postId", postID.Hex()), zap.String("userId", userID.Hex()))
	return nil
}

func (s *Service) cascadeMissing(ctx context.Context, postID primitive.ObjectID) error {
	if _, err := s.favorites.CascadeDeletePost(ctx, postID); err != nil {
		return err
	}
	return ErrPostNotFound
}
