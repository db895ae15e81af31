package routes

import (
	"net/http"
	"strings"
	"time"

	"agora/handlers"
	"agora/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Options struct {
	Handler     *handlers.Handler
	Auth        *middleware.Auth
	Chat        http.Handler
	Limiter     *middleware.IPRateLimiter
	CORSOrigins []string
	Logger      *zap.Logger
}

func SetupRouter(o Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(o.Logger))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     o.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	h := o.Handler
	limit := middleware.RateLimit(o.Limiter)

	router.GET("/health", h.Health)
	router.GET("/api/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", limit, gin.WrapH(o.Chat))

	api := router.Group("/api")
	api.GET("/messages", h.GetMessages)
	api.GET("/posts/:id", o.Auth.Optional(), h.GetPost)

	protected := api.Group("")
	protected.Use(o.Auth.Required())

	// Reactions
	protected.POST("/posts/like/:id", limit, h.LikePost())
	protected.POST("/posts/dislike/:id", limit, h.DislikePost())
	protected.DELETE("/posts/reaction/:id", limit, h.RemoveReaction())
	protected.GET("/posts/reaction/:id", h.GetReaction)

	// Posts
	protected.DELETE("/posts/:id", h.DeletePost)

	// Favorites
	protected.POST("/users/favorites", limit, h.AddFavorite)
	protected.DELETE("/users/favorites/:postId", limit, h.RemoveFavorite)
	protected.GET("/users/favorites", h.GetFavorites)

	// Activity
	protected.GET("/users/activity", h.GetActivity)

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Endpoint not found",
				"path":  c.Request.URL.Path,
			})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return router
}
