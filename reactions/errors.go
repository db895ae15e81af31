package reactions

import (
	"errors"

	"agora/models"
)

var (
	ErrPostNotFound    = models.ErrPostNotFound
	ErrAlreadyLiked    = errors.New("you already liked this post")
	ErrAlreadyDisliked = errors.New("you already disliked this post")
	ErrNoReaction      = errors.New("no reaction to remove")
)
