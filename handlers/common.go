package handlers

import (
	"context"
	"net/http"
	"time"

	"agora/activity"
	"agora/chat"
	"agora/favorites"
	"agora/middleware"
	"agora/posts"
	"agora/reactions"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

type Handler struct {
	reactions *reactions.Store
	favorites *favorites.Index
	posts     *posts.Service
	activity  activity.LogReader
	chat      *chat.Relay
	logger    *zap.Logger
}

type Deps struct {
	Reactions *reactions.Store
	Favorites *favorites.Index
	Posts     *posts.Service
	Activity  activity.LogReader
	Chat      *chat.Relay
	Logger    *zap.Logger
}

func New(d Deps) *Handler {
	return &Handler{
		reactions: d.Reactions,
		favorites: d.Favorites,
		posts:     d.Posts,
		activity:  d.Activity,
		chat:      d.Chat,
		logger:    d.Logger,
	}
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// objectIDParam reads a hex object id from the named path parameter and
// answers 400 when it is malformed.
func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return primitive.NilObjectID, false
	}
	return id, true
}

// currentUser returns the authenticated caller or answers 401.
func currentUser(c *gin.Context) (primitive.ObjectID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	}
	return id, ok
}
