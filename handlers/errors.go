package handlers

import (
	"errors"
	"net/http"

	"agora/activity"
	"agora/chat"
	"agora/favorites"
	"agora/models"
	"agora/posts"
	"agora/reactions"
	"agora/repository"

	"github.com/gin-gonic/gin"
)

var errInvalidPostID = errors.New("invalid post ID")

func statusOf(err error) int {
	switch {
	case errors.Is(err, reactions.ErrAlreadyLiked),
		errors.Is(err, reactions.ErrAlreadyDisliked),
		errors.Is(err, reactions.ErrNoReaction),
		errors.Is(err, chat.ErrInvalidMessage),
		errors.Is(err, errInvalidPostID):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrPostNotFound),
		errors.Is(err, favorites.ErrUserNotFound),
		errors.Is(err, activity.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, posts.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes err with its mapped status. Unexpected errors are
// logged and hidden behind a generic message.
func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Sugar().Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
