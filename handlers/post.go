package handlers

import (
	"net/http"

	"agora/middleware"
	"agora/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type reactionFunc func(c *gin.Context, postID, userID primitive.ObjectID) (models.Counts, error)

func (h *Handler) react(fn reactionFunc, fallback string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		postID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}

		counts, err := fn(c, postID, userID)
		if err != nil {
			h.respondError(c, err, fallback)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"likesCount":    counts.Likes,
			"dislikesCount": counts.Dislikes,
		})
	}
}

func (h *Handler) LikePost() gin.HandlerFunc {
	return h.react(func(c *gin.Context, postID, userID primitive.ObjectID) (models.Counts, error) {
		ctx, cancel := requestContext(c)
		defer cancel()
		return h.reactions.Like(ctx, postID, userID)
	}, "Failed to like post")
}

func (h *Handler) DislikePost() gin.HandlerFunc {
	return h.react(func(c *gin.Context, postID, userID primitive.ObjectID) (models.Counts, error) {
		ctx, cancel := requestContext(c)
		defer cancel()
		return h.reactions.Dislike(ctx, postID, userID)
	}, "Failed to dislike post")
}

func (h *Handler) RemoveReaction() gin.HandlerFunc {
	return h.react(func(c *gin.Context, postID, userID primitive.ObjectID) (models.Counts, error) {
		ctx, cancel := requestContext(c)
		defer cancel()
		return h.reactions.RemoveReaction(ctx, postID, userID)
	}, "Failed to remove reaction")
}

func (h *Handler) GetReaction(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	postID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	reaction, counts, err := h.reactions.CurrentReaction(ctx, postID, userID)
	if err != nil {
		h.respondError(c, err, "Failed to check user reaction")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reaction":      reaction,
		"likesCount":    counts.Likes,
		"dislikesCount": counts.Dislikes,
	})
}

func (h *Handler) GetPost(c *gin.Context) {
	postID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	var viewer *primitive.ObjectID
	if id, ok := middleware.UserID(c); ok {
		viewer = &id
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	view, err := h.posts.View(ctx, postID, viewer)
	if err != nil {
		h.respondError(c, err, "Failed to load post")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) DeletePost(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	postID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.posts.Delete(ctx, postID, userID); err != nil {
		h.respondError(c, err, "Failed to delete post")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
