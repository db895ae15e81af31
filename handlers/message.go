package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultMessagesLimit = 100
	maxMessagesLimit     = 500
)

// GetMessages returns the most recent messages, oldest first.
func (h *Handler) GetMessages(c *gin.Context) {
	limit := defaultMessagesLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxMessagesLimit)
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	msgs, err := h.chat.Recent(ctx, limit)
	if err != nil {
		h.respondError(c, err, "Failed to load messages")
		return
	}
	c.JSON(http.StatusOK, msgs)
}
