package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"agora/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Bus carries persisted messages to every hub that should broadcast them.
type Bus interface {
	Publish(ctx context.Context, msg models.Message) error
	// Run delivers messages until ctx is cancelled.
	Run(ctx context.Context) error
}

func deliver(hub *Hub, msg models.Message) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", msg.ID.Hex(), err)
	}
	hub.Broadcast(msg.ID.Hex(), data)
	return nil
}

// LocalBus broadcasts straight to the in-process hub.
type LocalBus struct {
	hub *Hub
}

func NewLocalBus(hub *Hub) *LocalBus {
	return &LocalBus{hub: hub}
}

func (b *LocalBus) Publish(_ context.Context, msg models.Message) error {
	return deliver(b.hub, msg)
}

func (b *LocalBus) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// RedisBus fans messages out over a Redis pub/sub channel so every instance
// sharing the channel broadcasts them to its own clients.
type RedisBus struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger
}

func NewRedisBus(client *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisBus {
	return &RedisBus{client: client, channel: channel, hub: hub, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, msg models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", msg.ID.Hex(), err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish message %s: %w", msg.ID.Hex(), err)
	}
	return nil
}

func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("chat bus subscribed", zap.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg models.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.logger.Sugar().Errorf("Dropping undecodable chat bus payload: %v", err)
				continue
			}
			if err := deliver(b.hub, msg); err != nil {
				b.logger.Sugar().Errorf("Failed to deliver chat message: %v", err)
			}
		}
	}
}
