package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is a persisted chat message. User is the author's display name.
type Message struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	User        string             `bson:"user" json:"user"`
	Text        string             `bson:"text" json:"text"`
	AvatarColor string             `bson:"avatarColor" json:"avatarColor"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
}
