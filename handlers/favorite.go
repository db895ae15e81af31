package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (h *Handler) AddFavorite(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		PostID string `json:"postId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	postID, err := primitive.ObjectIDFromHex(req.PostID)
	if err != nil {
		h.respondError(c, errInvalidPostID, "")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	favs, err := h.favorites.Add(ctx, userID, postID)
	if err != nil {
		h.respondError(c, err, "Failed to add to favorites")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "favorites": favs})
}

func (h *Handler) RemoveFavorite(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	postID, ok := objectIDParam(c, "postId")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	favs, err := h.favorites.Remove(ctx, userID, postID)
	if err != nil {
		h.respondError(c, err, "Failed to remove from favorites")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "favorites": favs})
}

func (h *Handler) GetFavorites(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	favs, err := h.favorites.List(ctx, userID)
	if err != nil {
		h.respondError(c, err, "Failed to load favorites")
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorites": favs})
}
