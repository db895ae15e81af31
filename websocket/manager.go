// Package websocket carries chat traffic over gorilla websocket connections.
package websocket

import (
	"context"
	"net/http"
	"time"

	"agora/chat"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 8 << 10
	sendBuffer     = 256
)

type Server struct {
	relay    *chat.Relay
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewServer(relay *chat.Relay, allowedOrigins []string, logger *zap.Logger) *Server {
	return &Server{
		relay: relay,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := chat.NewClient(uuid.NewString(), sendBuffer)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.relay.Join(ctx, client); err != nil {
		s.logger.Sugar().Errorf("Failed to join chat client %s: %v", client.ID, err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "chat unavailable"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	s.logger.Info("chat client connected", zap.String("client", client.ID), zap.String("remote", r.RemoteAddr))

	go s.writePump(conn, client)
	s.readPump(ctx, conn, client)
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, client *chat.Client) {
	defer func() {
		s.relay.Leave(client)
		conn.Close()
		s.logger.Info("chat client disconnected", zap.String("client", client.ID))
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read error", zap.String("client", client.ID), zap.Error(err))
			}
			return
		}
		s.relay.Handle(ctx, client, frame)
	}
}

func (s *Server) writePump(conn *websocket.Conn, client *chat.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.Send():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
