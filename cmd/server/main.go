// Package main runs the session platform HTTP server with WebSocket signaling and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	webrtc "github.com/pion/webrtc/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lingopeer/backend/config"
	"github.com/lingopeer/backend/internal/auth"
	"github.com/lingopeer/backend/internal/invitations"
	"github.com/lingopeer/backend/internal/middleware"
	"github.com/lingopeer/backend/internal/notify"
	"github.com/lingopeer/backend/internal/sessions"
	"github.com/lingopeer/backend/internal/signaling"
	"github.com/lingopeer/backend/pkg/database"
	"github.com/lingopeer/backend/pkg/queue"
	"github.com/lingopeer/backend/pkg/redis"
	"github.com/lingopeer/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret)

	iceServers := make([]webrtc.ICEServer, 0, len(cfg.WebRTC.ICEUrls))
	for _, u := range cfg.WebRTC.ICEUrls {
		if u != "" {
			iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
		}
	}

	presence := signaling.NewRedisPresence(rdb.Client, 0)
	relay := signaling.NewRelay(iceServers, presence, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	dispatcher := notify.NewQueueDispatcher(jobQueue, logger)
	inviteStore := invitations.NewRedisStore(rdb.Client, cfg.Session.InvitationTTL)

	sessionRepo := sessions.NewRepository(pool)
	sessionCache := sessions.NewRedisCache(rdb.Client, cfg.Session.CacheTTL, logger)
	orch := sessions.NewOrchestrator(sessionRepo, sessionCache, relay, dispatcher, inviteStore, sessions.Limits{
		MinScheduleLead: cfg.Session.MinScheduleLead,
		MaxHosted:       cfg.Session.MaxHosted,
		MaxMemberships:  cfg.Session.MaxMemberships,
	}, logger)
	sessionHandler := sessions.NewHandler(orch, relay)

	jwtValidate := func(token string) (userID string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", err
		}
		return claims.UserID.String(), nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/sessions", sessionHandler.ListAvailable)
		api.POST("/sessions", sessionHandler.Create)
		api.GET("/sessions/search", sessionHandler.Search)
		api.GET("/sessions/recommended", sessionHandler.Recommend)
		api.GET("/sessions/mine", sessionHandler.ListMine)
		api.GET("/sessions/hosted", sessionHandler.ListHosted)
		api.POST("/sessions/join-by-code", sessionHandler.JoinByCode)
		api.GET("/sessions/:id", sessionHandler.Get)
		api.PATCH("/sessions/:id", sessionHandler.Update)
		api.GET("/sessions/:id/participants", sessionHandler.Participants)
		api.GET("/sessions/:id/room", sessionHandler.Room)
		api.GET("/sessions/:id/room/participants", sessionHandler.RoomParticipants)
		api.POST("/sessions/:id/join", sessionHandler.Join)
		api.POST("/sessions/:id/leave", sessionHandler.Leave)
		api.POST("/sessions/:id/start", sessionHandler.Start)
		api.POST("/sessions/:id/end", sessionHandler.End)
		api.POST("/sessions/:id/cancel", sessionHandler.Cancel)
		api.POST("/sessions/:id/kick", sessionHandler.Kick)
		api.POST("/sessions/:id/rate", sessionHandler.Rate)
		api.POST("/sessions/:id/invite", sessionHandler.Invite)
		api.POST("/sessions/:id/invitation/respond", sessionHandler.RespondToInvite)
	}

	// WebSocket signaling (token in query; no Authorization header required)
	router.GET("/ws", signaling.ServeWs(relay, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
