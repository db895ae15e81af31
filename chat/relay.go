// Package chat relays a single public chat room. A connection first receives
// the recent history, then every message persisted after it, in the order
// the messages were stored.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"agora/metrics"
	"agora/models"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const DefaultHistoryLimit = 50

type MessageStore interface {
	Insert(ctx context.Context, msg *models.Message) (primitive.ObjectID, error)
	ListRecent(ctx context.Context, limit int64) ([]models.Message, error)
}

type Relay struct {
	store        MessageStore
	hub          *Hub
	bus          Bus
	retry        RetryPolicy
	historyLimit int64
	validate     *validator.Validate
	logger       *zap.Logger

	// sendMu keeps publishes in insert order. mu orders history snapshots
	// against publishes, so a joining client sees each message exactly once:
	// either replayed or live. A snapshot taken between an insert and its
	// publish holds the message and marks it replayed.
	sendMu sync.Mutex
	mu     sync.Mutex
}

func NewRelay(store MessageStore, hub *Hub, bus Bus, historyLimit int, logger *zap.Logger) *Relay {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Relay{
		store:        store,
		hub:          hub,
		bus:          bus,
		retry:        DuplicateKeyRetry,
		historyLimit: int64(historyLimit),
		validate:     validator.New(),
		logger:       logger,
	}
}

// Join replays history to c and then registers it for live messages.
func (r *Relay) Join(ctx context.Context, c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	history, err := r.store.ListRecent(ctx, r.historyLimit)
	if err != nil {
		return fmt.Errorf("load chat history: %w", err)
	}
	data, err := encodeHistory(history)
	if err != nil {
		return fmt.Errorf("encode chat history: %w", err)
	}

	c.replayed = make(map[string]struct{}, len(history))
	for _, m := range history {
		c.replayed[m.ID.Hex()] = struct{}{}
	}
	c.send <- data

	return r.hub.Register(c)
}

func (r *Relay) Leave(c *Client) {
	r.hub.Unregister(c)
}

// Handle processes one inbound frame. Unknown event types are ignored and
// failures are logged, never reported back to the sender.
func (r *Relay) Handle(ctx context.Context, c *Client, frame []byte) {
	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		r.logger.Debug("ignoring malformed chat frame", zap.String("client", c.ID), zap.Error(err))
		return
	}
	if ev.Type != EventSendMessage {
		return
	}

	var in SendMessage
	if err := json.Unmarshal(ev.Payload, &in); err != nil {
		metrics.ChatMessagesTotal.WithLabelValues("rejected").Inc()
		r.logger.Debug("ignoring malformed sendMessage", zap.String("client", c.ID), zap.Error(err))
		return
	}
	if _, err := r.Send(ctx, in); err != nil {
		r.logger.Sugar().Errorf("Chat message from %s not delivered: %v", c.ID, err)
	}
}

// Send persists a message and publishes it. A duplicate-key failure is
// retried with a fresh id; if the retry fails too the message is dropped.
func (r *Relay) Send(ctx context.Context, in SendMessage) (*models.Message, error) {
	in.trim()
	if err := r.validate.Struct(in); err != nil {
		metrics.ChatMessagesTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	var msg models.Message
	err := r.retry.Do(func(attempt int) error {
		if attempt > 0 {
			metrics.ChatMessagesTotal.WithLabelValues("retried").Inc()
			r.logger.Warn("retrying chat message insert", zap.Int("attempt", attempt))
		}
		msg = models.Message{
			ID:          primitive.NewObjectID(),
			User:        in.UserName,
			Text:        in.Text,
			AvatarColor: in.AvatarColor,
		}
		_, err := r.store.Insert(ctx, &msg)
		return err
	})
	if err != nil {
		metrics.ChatMessagesTotal.WithLabelValues("dropped").Inc()
		return nil, fmt.Errorf("persist chat message: %w", err)
	}
	metrics.ChatMessagesTotal.WithLabelValues("persisted").Inc()

	r.mu.Lock()
	err = r.bus.Publish(ctx, msg)
	r.mu.Unlock()
	if err != nil {
		return &msg, err
	}
	return &msg, nil
}

// Recent returns the newest limit messages, oldest first.
func (r *Relay) Recent(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	msgs, err := r.store.ListRecent(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

func (r *Relay) Clients() int {
	return r.hub.Clients()
}
