package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	FullName    string               `bson:"fullName" json:"fullName"`
	Email       string               `bson:"email" json:"email"`
	AvatarURL   string               `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
	Favorites   []primitive.ObjectID `bson:"favorites" json:"favorites"`
	ActivityLog []ActivityEntry      `bson:"activityLog" json:"-"`
	CreatedAt   time.Time            `bson:"createdAt" json:"createdAt"`
}

// ActivityEntry is one audit record in a user's activity log.
type ActivityEntry struct {
	Action    string                 `bson:"action" json:"action"`
	Details   map[string]interface{} `bson:"details,omitempty" json:"details,omitempty"`
	Timestamp time.Time              `bson:"timestamp" json:"timestamp"`
}
