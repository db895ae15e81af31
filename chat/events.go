package chat

import (
	"encoding/json"
	"errors"
	"strings"

	"agora/models"
)

// Event types on the wire.
const (
	EventMessageHistory = "messageHistory"
	EventReceiveMessage = "receiveMessage"
	EventSendMessage    = "sendMessage"
)

var ErrInvalidMessage = errors.New("invalid chat message")

// Event is the envelope of every frame in both directions.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SendMessage is the payload of an inbound sendMessage event.
type SendMessage struct {
	UserName    string `json:"userName" validate:"required,max=64"`
	Text        string `json:"text" validate:"required,max=2000"`
	AvatarColor string `json:"avatarColor" validate:"omitempty,max=32"`
}

func (m *SendMessage) trim() {
	m.UserName = strings.TrimSpace(m.UserName)
	m.Text = strings.TrimSpace(m.Text)
	m.AvatarColor = strings.TrimSpace(m.AvatarColor)
}

func encode(eventType string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Type: eventType, Payload: body})
}

func encodeHistory(messages []models.Message) ([]byte, error) {
	if messages == nil {
		messages = []models.Message{}
	}
	return encode(EventMessageHistory, messages)
}

func encodeMessage(msg models.Message) ([]byte, error) {
	return encode(EventReceiveMessage, msg)
}
