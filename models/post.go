package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post is a post whose reaction fields are in canonical shape.
type Post struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     primitive.ObjectID `bson:"user" json:"user"`
	Title      string             `bson:"title" json:"title"`
	Text       string             `bson:"text" json:"text"`
	Tags       []string           `bson:"tags" json:"tags"`
	ImageURL   string             `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	ViewsCount int64              `bson:"viewsCount" json:"viewsCount"`
	Likes      ReactionSet        `bson:"likes" json:"likes"`
	Dislikes   ReactionSet        `bson:"dislikes" json:"dislikes"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// RawPost is a post as stored. Likes and Dislikes may be a {count, users}
// document, a bare array of user ids (legacy schema), or missing.
type RawPost struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	UserID     primitive.ObjectID `bson:"user"`
	Title      string             `bson:"title"`
	Text       string             `bson:"text"`
	Tags       []string           `bson:"tags"`
	ImageURL   string             `bson:"imageUrl,omitempty"`
	ViewsCount int64              `bson:"viewsCount"`
	Likes      bson.RawValue      `bson:"likes,omitempty"`
	Dislikes   bson.RawValue      `bson:"dislikes,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt"`
}

// ReactionSet is the canonical shape of a post's likes or dislikes.
type ReactionSet struct {
	Count int64                `bson:"count" json:"count"`
	Users []primitive.ObjectID `bson:"users" json:"users"`
}

// EmptyReactionSet returns {count: 0, users: []}. Users is never nil so the
// stored value is an empty array rather than null.
func EmptyReactionSet() ReactionSet {
	return ReactionSet{Count: 0, Users: []primitive.ObjectID{}}
}

func (s ReactionSet) Has(userID primitive.ObjectID) bool {
	for _, u := range s.Users {
		if u == userID {
			return true
		}
	}
	return false
}

// RawValue encodes the set the way it is stored.
func (s ReactionSet) RawValue() (bson.RawValue, error) {
	if s.Users == nil {
		s.Users = []primitive.ObjectID{}
	}
	t, data, err := bson.MarshalValue(s)
	if err != nil {
		return bson.RawValue{}, err
	}
	return bson.RawValue{Type: t, Value: data}, nil
}

// ReactionOf reports which set, if any, holds userID.
func (p *Post) ReactionOf(userID primitive.ObjectID) Reaction {
	switch {
	case p.Likes.Has(userID):
		return ReactionLike
	case p.Dislikes.Has(userID):
		return ReactionDislike
	}
	return ReactionNone
}

func (p *Post) Counts() Counts {
	return Counts{Likes: p.Likes.Count, Dislikes: p.Dislikes.Count}
}
