package chat

import (
	"context"
	"errors"
	"sync"

	"agora/metrics"

	"go.uber.org/zap"
)

var ErrHubClosed = errors.New("chat hub is not running")

// Client is one chat connection as the hub sees it. The hub closes the
// channel returned by Send when the client is dropped.
type Client struct {
	ID   string
	send chan []byte

	// replayed holds ids delivered in the history replay. Live copies of
	// them are skipped. Only the hub goroutine touches it after Register.
	replayed map[string]struct{}
}

func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{ID: id, send: make(chan []byte, buffer)}
}

func (c *Client) Send() <-chan []byte {
	return c.send
}

type outbound struct {
	id   string
	data []byte
}

// Hub owns the set of connected clients and fans broadcasts out to them.
// Registration, removal and broadcast are all serialized through Run.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes hub traffic until ctx is cancelled, then drops every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ChatClients.Set(float64(n))
			h.logger.Debug("chat client registered", zap.String("client", client.ID), zap.Int("clients", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ChatClients.Set(float64(n))
			h.logger.Debug("chat client unregistered", zap.String("client", client.ID), zap.Int("clients", n))

		case msg := <-h.broadcast:
			h.fanOut(msg)

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			metrics.ChatClients.Set(0)
			return
		}
	}
}

func (h *Hub) fanOut(msg outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if _, ok := client.replayed[msg.id]; ok && msg.id != "" {
			delete(client.replayed, msg.id)
			continue
		}
		select {
		case client.send <- msg.data:
		default:
			// A client that cannot keep up is treated as disconnected.
			close(client.send)
			delete(h.clients, client)
			metrics.ChatSlowClientsTotal.Inc()
			h.logger.Warn("dropping slow chat client", zap.String("client", client.ID))
		}
	}
	metrics.ChatClients.Set(float64(len(h.clients)))
}

// Register adds c to the broadcast set. It returns once the hub has taken it.
func (h *Hub) Register(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast hands data to the hub. id, when set, lets clients that already
// received the message in their history skip it.
func (h *Hub) Broadcast(id string, data []byte) {
	select {
	case h.broadcast <- outbound{id: id, data: data}:
	case <-h.done:
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
