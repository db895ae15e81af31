package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Health(c *gin.Context) {
	clients := h.chat.Clients()
	socket := "disconnected"
	if clients > 0 {
		socket = "connected"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"socket":      socket,
		"chatClients": clients,
	})
}
