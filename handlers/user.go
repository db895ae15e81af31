package handlers

import (
	"net/http"

	"agora/activity"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetActivity(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	entries, err := activity.Log(ctx, h.activity, userID)
	if err != nil {
		h.respondError(c, err, "Failed to load activity")
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": entries})
}
