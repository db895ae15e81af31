// Package memory provides in-process stores with the same behavior as the
// Mongo repository. They back the "memory" store driver and the tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"agora/models"
	"agora/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PostStore struct {
	mu    sync.Mutex
	posts map[primitive.ObjectID]*models.RawPost
	saves int
}

func NewPostStore() *PostStore {
	return &PostStore{posts: make(map[primitive.ObjectID]*models.RawPost)}
}

// Put stores a canonical post, assigning an id when it has none.
func (s *PostStore) Put(p models.Post) (primitive.ObjectID, error) {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	likes, err := p.Likes.RawValue()
	if err != nil {
		return primitive.NilObjectID, err
	}
	dislikes, err := p.Dislikes.RawValue()
	if err != nil {
		return primitive.NilObjectID, err
	}
	s.PutRaw(models.RawPost{
		ID:         p.ID,
		UserID:     p.UserID,
		Title:      p.Title,
		Text:       p.Text,
		Tags:       p.Tags,
		ImageURL:   p.ImageURL,
		ViewsCount: p.ViewsCount,
		Likes:      likes,
		Dislikes:   dislikes,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	})
	return p.ID, nil
}

// PutRaw stores a post exactly as given, legacy shapes included.
func (s *PostStore) PutRaw(raw models.RawPost) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := raw
	s.posts[raw.ID] = &cp
}

// Saves reports how many normalization writes were performed.
func (s *PostStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *PostStore) FindRaw(_ context.Context, id primitive.ObjectID) (*models.RawPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *PostStore) Exists(_ context.Context, id primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.posts[id]
	return ok, nil
}

func (s *PostStore) SaveNormalized(_ context.Context, raw *models.RawPost, likes, dislikes models.ReactionSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[raw.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if !sameRaw(p.Likes, raw.Likes) || !sameRaw(p.Dislikes, raw.Dislikes) {
		return repository.ErrConflict
	}
	l, err := likes.RawValue()
	if err != nil {
		return err
	}
	d, err := dislikes.RawValue()
	if err != nil {
		return err
	}
	p.Likes, p.Dislikes = l, d
	s.saves++
	return nil
}

func (s *PostStore) ApplyReaction(_ context.Context, postID, userID primitive.ObjectID, change models.ReactionChange) (models.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return models.Counts{}, repository.ErrNotFound
	}
	if change.Add == models.ReactionNone && change.Remove == models.ReactionNone {
		return models.Counts{}, fmt.Errorf("apply reaction: empty change")
	}

	sets := map[models.Reaction]*models.ReactionSet{}
	var likes, dislikes models.ReactionSet
	if err := decodeSet(p.Likes, &likes); err != nil {
		return models.Counts{}, err
	}
	if err := decodeSet(p.Dislikes, &dislikes); err != nil {
		return models.Counts{}, err
	}
	sets[models.ReactionLike] = &likes
	sets[models.ReactionDislike] = &dislikes

	if change.Remove != models.ReactionNone && !sets[change.Remove].Has(userID) {
		return models.Counts{}, repository.ErrConflict
	}
	if change.Add != models.ReactionNone && sets[change.Add].Has(userID) {
		return models.Counts{}, repository.ErrConflict
	}
	if change.Remove != models.ReactionNone {
		set := sets[change.Remove]
		set.Users = without(set.Users, userID)
		set.Count--
	}
	if change.Add != models.ReactionNone {
		set := sets[change.Add]
		set.Users = append(set.Users, userID)
		set.Count++
	}

	l, err := likes.RawValue()
	if err != nil {
		return models.Counts{}, err
	}
	d, err := dislikes.RawValue()
	if err != nil {
		return models.Counts{}, err
	}
	p.Likes, p.Dislikes = l, d
	p.UpdatedAt = time.Now()
	return models.Counts{Likes: likes.Count, Dislikes: dislikes.Count}, nil
}

func (s *PostStore) IncrementViews(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.ViewsCount++
	return nil
}

func (s *PostStore) Delete(_ context.Context, id primitive.ObjectID) (*models.RawPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(s.posts, id)
	return p, nil
}

func sameRaw(a, b bson.RawValue) bool {
	return a.Type == b.Type && bytes.Equal(a.Value, b.Value)
}

func decodeSet(v bson.RawValue, set *models.ReactionSet) error {
	if v.Type != bson.TypeEmbeddedDocument {
		return fmt.Errorf("reaction field is not in canonical shape (bson type %v)", v.Type)
	}
	return v.Unmarshal(set)
}

func without(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, u := range ids {
		if u != id {
			out = append(out, u)
		}
	}
	return out
}
