// Package reactions keeps each post's likes and dislikes mutually exclusive
// per user. Every mutation on a post runs under that post's lock and lands as
// a single guarded document update, so concurrent callers on the same post
// serialize and a lost race surfaces as a conflict rather than a bad count.
package reactions

import (
	"context"
	"errors"
	"fmt"

	"agora/keylock"
	"agora/metrics"
	"agora/models"
	"agora/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// maxAttempts bounds how often a mutation reloads after losing a race with a
// writer outside this process.
const maxAttempts = 3

const untitled = "Untitled Post"

type PostStore interface {
	FindRaw(ctx context.Context, id primitive.ObjectID) (*models.RawPost, error)
	SaveNormalized(ctx context.Context, raw *models.RawPost, likes, dislikes models.ReactionSet) error
	ApplyReaction(ctx context.Context, postID, userID primitive.ObjectID, change models.ReactionChange) (models.Counts, error)
}

// ActivitySink receives audit entries. Record must not block.
type ActivitySink interface {
	Record(userID primitive.ObjectID, action string, details map[string]interface{})
}

type Store struct {
	posts    PostStore
	activity ActivitySink
	locks    *keylock.Map
	logger   *zap.Logger
}

func NewStore(posts PostStore, activity ActivitySink, logger *zap.Logger) *Store {
	return &Store{
		posts:    posts,
		activity: activity,
		locks:    keylock.New(),
		logger:   logger,
	}
}

// Like puts userID into the post's likes, moving it out of dislikes if it
// was there.
func (s *Store) Like(ctx context.Context, postID, userID primitive.ObjectID) (models.Counts, error) {
	return s.mutate(ctx, "like", postID, userID, func(current models.Reaction) (models.ReactionChange, error) {
		if current == models.ReactionLike {
			return models.ReactionChange{}, ErrAlreadyLiked
		}
		return models.ReactionChange{Add: models.ReactionLike, Remove: current}, nil
	})
}

// Dislike is the mirror of Like.
func (s *Store) Dislike(ctx context.Context, postID, userID primitive.ObjectID) (models.Counts, error) {
	return s.mutate(ctx, "dislike", postID, userID, func(current models.Reaction) (models.ReactionChange, error) {
		if current == models.ReactionDislike {
			return models.ReactionChange{}, ErrAlreadyDisliked
		}
		return models.ReactionChange{Add: models.ReactionDislike, Remove: current}, nil
	})
}

// RemoveReaction takes userID out of whichever set holds it.
func (s *Store) RemoveReaction(ctx context.Context, postID, userID primitive.ObjectID) (models.Counts, error) {
	return s.mutate(ctx, "remove", postID, userID, func(current models.Reaction) (models.ReactionChange, error) {
		if current == models.ReactionNone {
			return models.ReactionChange{}, ErrNoReaction
		}
		return models.ReactionChange{Add: models.ReactionNone, Remove: current}, nil
	})
}

// CurrentReaction reports userID's reaction and the post's counts. It may
// persist a legacy-shape repair but never changes reaction state.
func (s *Store) CurrentReaction(ctx context.Context, postID, userID primitive.ObjectID) (models.Reaction, models.Counts, error) {
	post, err := s.Load(ctx, postID)
	if err != nil {
		return models.ReactionNone, models.Counts{}, err
	}
	return post.ReactionOf(userID), post.Counts(), nil
}

// Load reads a post in canonical shape. When the stored shape needed repair
// the repaired fields are written back, guarded on the stored value being
// unchanged; if another writer got there first the post is read again.
func (s *Store) Load(ctx context.Context, postID primitive.ObjectID) (*models.Post, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		raw, err := s.posts.FindRaw(ctx, postID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("load post %s: %w", postID.Hex(), err)
		}

		post, changed := Normalize(*raw)
		if !changed {
			return &post, nil
		}

		err = s.posts.SaveNormalized(ctx, raw, post.Likes, post.Dislikes)
		switch {
		case err == nil:
			metrics.NormalizedPostsTotal.Inc()
			s.logger.Info("normalized post reactions", zap.String("postId", postID.Hex()))
			return &post, nil
		case errors.Is(err, repository.ErrConflict):
			continue
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrPostNotFound
		default:
			return nil, fmt.Errorf("normalize post %s: %w", postID.Hex(), err)
		}
	}
	return nil, fmt.Errorf("normalize post %s: %w", postID.Hex(), repository.ErrConflict)
}

func (s *Store) mutate(
	ctx context.Context,
	action string,
	postID, userID primitive.ObjectID,
	plan func(current models.Reaction) (models.ReactionChange, error),
) (models.Counts, error) {
	unlock := s.locks.Lock(postID.Hex())
	defer unlock()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		post, err := s.Load(ctx, postID)
		if err != nil {
			s.observe(action, err)
			return models.Counts{}, err
		}

		change, err := plan(post.ReactionOf(userID))
		if err != nil {
			s.observe(action, err)
			return models.Counts{}, err
		}

		counts, err := s.posts.ApplyReaction(ctx, postID, userID, change)
		if errors.Is(err, repository.ErrConflict) {
			s.logger.Debug("reaction lost race, reloading",
				zap.String("postId", postID.Hex()), zap.Int("attempt", attempt+1))
			continue
		}
		if errors.Is(err, repository.ErrNotFound) {
			s.observe(action, ErrPostNotFound)
			return models.Counts{}, ErrPostNotFound
		}
		if err != nil {
			s.observe(action, err)
			s.logger.Sugar().Errorf("Failed to apply %s on post %s: %v", action, postID.Hex(), err)
			return models.Counts{}, fmt.Errorf("apply %s: %w", action, err)
		}

		s.observe(action, nil)
		s.activity.Record(userID, auditAction(change), map[string]interface{}{
			"postId": postID.Hex(),
			"title":  titleOf(post),
		})
		return counts, nil
	}

	err := fmt.Errorf("apply %s on post %s: %w", action, postID.Hex(), repository.ErrConflict)
	s.observe(action, err)
	return models.Counts{}, err
}

func (s *Store) observe(action string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyLiked), errors.Is(err, ErrAlreadyDisliked):
		outcome = "already"
	case errors.Is(err, ErrNoReaction):
		outcome = "none"
	case errors.Is(err, ErrPostNotFound):
		outcome = "not_found"
	case errors.Is(err, repository.ErrConflict):
		outcome = "conflict"
	default:
		outcome = "error"
	}
	metrics.ReactionsTotal.WithLabelValues(action, outcome).Inc()
}

func auditAction(change models.ReactionChange) string {
	switch {
	case change.Add == models.ReactionLike:
		return "post_liked"
	case change.Add == models.ReactionDislike:
		return "post_disliked"
	case change.Remove == models.ReactionLike:
		return "post_like_removed"
	default:
		return "post_dislike_removed"
	}
}

func titleOf(p *models.Post) string {
	if p.Title == "" {
		return untitled
	}
	return p.Title
}
