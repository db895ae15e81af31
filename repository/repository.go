// Package repository holds the Mongo-backed stores for posts, users and chat
// messages, and the storage error classes the core reacts to.
package repository

import (
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a guarded update found the document but its
	// precondition no longer held.
	ErrConflict = errors.New("document changed concurrently")
	// ErrDuplicateKey is returned when an insert collides on a unique index.
	ErrDuplicateKey = errors.New("duplicate key")
)

const (
	PostsCollection    = "posts"
	UsersCollection    = "users"
	MessagesCollection = "messages"
)

type Repository struct {
	Posts    *PostRepo
	Users    *UserRepo
	Messages *MessageRepo
}

func New(db *mongo.Database) *Repository {
	return &Repository{
		Posts:    NewPostRepo(db.Collection(PostsCollection)),
		Users:    NewUserRepo(db.Collection(UsersCollection)),
		Messages: NewMessageRepo(db.Collection(MessagesCollection)),
	}
}
