package memory

import (
	"context"
	"sort"
	"sync"

	"agora/models"
	"agora/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserStore struct {
	mu          sync.Mutex
	users       map[primitive.ObjectID]*models.User
	activityErr error
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[primitive.ObjectID]*models.User)}
}

func (s *UserStore) Put(u models.User) primitive.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	s.users[u.ID] = &u
	return u.ID
}

// FailActivity makes every following AppendActivity return err. nil restores
// normal behavior.
func (s *UserStore) FailActivity(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activityErr = err
}

func (s *UserStore) AppendActivity(_ context.Context, userID primitive.ObjectID, entry models.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activityErr != nil {
		return s.activityErr
	}
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.ActivityLog = append(u.ActivityLog, entry)
	return nil
}

func (s *UserStore) ActivityLog(_ context.Context, userID primitive.ObjectID) ([]models.ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	entries := append([]models.ActivityEntry(nil), u.ActivityLog...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

func (s *UserStore) AddFavorite(_ context.Context, userID, postID primitive.ObjectID) ([]primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !contains(u.Favorites, postID) {
		u.Favorites = append(u.Favorites, postID)
	}
	return copyIDs(u.Favorites), nil
}

func (s *UserStore) RemoveFavorite(_ context.Context, userID, postID primitive.ObjectID) ([]primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u.Favorites = without(u.Favorites, postID)
	return copyIDs(u.Favorites), nil
}

func (s *UserStore) Favorites(_ context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyIDs(u.Favorites), nil
}

func (s *UserStore) IsFavorite(_ context.Context, userID, postID primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return false, nil
	}
	return contains(u.Favorites, postID), nil
}

func (s *UserStore) PullFavoriteEverywhere(_ context.Context, postID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if contains(u.Favorites, postID) {
			u.Favorites = without(u.Favorites, postID)
			n++
		}
	}
	return n, nil
}

func contains(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, u := range ids {
		if u == id {
			return true
		}
	}
	return false
}

func copyIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	return append([]primitive.ObjectID{}, ids...)
}
