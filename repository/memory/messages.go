package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agora/models"
	"agora/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageStore struct {
	mu       sync.Mutex
	messages []models.Message
	ids      map[primitive.ObjectID]struct{}
	failures []error
	attempts int
}

func NewMessageStore() *MessageStore {
	return &MessageStore{ids: make(map[primitive.ObjectID]struct{})}
}

// FailNext queues errors returned, in order, by the next Insert calls.
func (s *MessageStore) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Attempts reports how many times Insert was called.
func (s *MessageStore) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *MessageStore) Insert(_ context.Context, msg *models.Message) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return primitive.NilObjectID, fmt.Errorf("insert message: %w", err)
	}
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if _, dup := s.ids[msg.ID]; dup {
		return primitive.NilObjectID, fmt.Errorf("insert message %s: %w", msg.ID.Hex(), repository.ErrDuplicateKey)
	}
	s.ids[msg.ID] = struct{}{}
	s.messages = append(s.messages, *msg)
	return msg.ID, nil
}

func (s *MessageStore) ListRecent(_ context.Context, limit int64) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := append([]models.Message(nil), s.messages...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	if limit >= 0 && int64(len(all)) > limit {
		all = all[int64(len(all))-limit:]
	}
	return append([]models.Message{}, all...), nil
}
