package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"agora/activity"
	"agora/chat"
	"agora/config"
	"agora/database"
	"agora/favorites"
	"agora/handlers"
	"agora/middleware"
	"agora/posts"
	"agora/reactions"
	"agora/repository"
	"agora/repository/memory"
	"agora/routes"
	"agora/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type postStore interface {
	reactions.PostStore
	posts.Store
	favorites.PostLookup
}

type userStore interface {
	favorites.UserStore
	activity.Store
	activity.LogReader
}

type stores struct {
	posts    postStore
	users    userStore
	messages chat.MessageStore
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory stores; data is lost on restart")
		return &stores{
			posts:    memory.NewPostStore(),
			users:    memory.NewUserStore(),
			messages: memory.NewMessageStore(),
			close:    func() {},
		}, nil
	}

	client, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.ConnectRetries, logger)
	if err != nil {
		return nil, err
	}
	db := client.Database(cfg.MongoDatabase)
	if err := database.EnsureIndexes(ctx, db, logger); err != nil {
		database.DisconnectMongo(client, logger)
		return nil, err
	}
	repo := repository.New(db)
	return &stores{
		posts:    repo.Posts,
		users:    repo.Users,
		messages: repo.Messages,
		close:    func() { database.DisconnectMongo(client, logger) },
	}, nil
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Sugar().Fatalf("failed to load configuration: %s", err.Error())
	}

	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
		if dev, err := zap.NewDevelopment(); err == nil {
			logger = dev
			defer logger.Sync()
		}
	}
	logger.Info("🚀 starting agora backend", zap.String("mode", gin.Mode()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Sugar().Fatalf("failed to open stores: %s", err.Error())
	}
	defer st.close()

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	recorder := activity.NewRecorder(st.users, logger, cfg.ActivityQueue)
	go recorder.Run(runCtx)

	hub := chat.NewHub(logger)
	go hub.Run(runCtx)

	var bus chat.Bus = chat.NewLocalBus(hub)
	if cfg.ChatBus == config.BusRedis {
		rdb, err := database.ConnectRedis(ctx, cfg.RedisAddr, logger)
		if err != nil {
			logger.Sugar().Fatalf("failed to connect to redis: %s", err.Error())
		}
		defer rdb.Close()
		bus = chat.NewRedisBus(rdb, cfg.RedisChannel, hub, logger)
	}
	go func() {
		if err := bus.Run(runCtx); err != nil {
			logger.Sugar().Errorf("Chat bus stopped: %v", err)
		}
	}()

	reactionStore := reactions.NewStore(st.posts, recorder, logger)
	favoriteIndex := favorites.NewIndex(st.users, st.posts, recorder, logger)
	postService := posts.NewService(st.posts, reactionStore, favoriteIndex, recorder, logger)
	relay := chat.NewRelay(st.messages, hub, bus, cfg.ChatHistory, logger)

	router := routes.SetupRouter(routes.Options{
		Handler: handlers.New(handlers.Deps{
			Reactions: reactionStore,
			Favorites: favoriteIndex,
			Posts:     postService,
			Activity:  st.users,
			Chat:      relay,
			Logger:    logger,
		}),
		Auth:        middleware.NewAuth(cfg.JWTSecret, logger),
		Chat:        websocket.NewServer(relay, cfg.CORSOrigins, logger),
		Limiter:     middleware.NewIPRateLimiter(cfg.RateLimit, time.Minute),
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("🌐 server listening", zap.String("addr", server.Addr), zap.String("store", cfg.StoreDriver), zap.String("chatBus", cfg.ChatBus))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar().Fatalf("server error: %s", err.Error())
		}
	}()

	<-ctx.Done()
	logger.Info("🛑 shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Errorf("Forced shutdown: %v", err)
	}

	cancelRun()
	recorder.Wait()
	logger.Info("👋 server stopped")
}
