package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gabrielkumagai/beezy-api/internal/cache"
	"github.com/gabrielkumagai/beezy-api/internal/config"
	"github.com/gabrielkumagai/beezy-api/internal/directory"
	"github.com/gabrielkumagai/beezy-api/internal/domain"
	"github.com/gabrielkumagai/beezy-api/internal/handler"
	"github.com/gabrielkumagai/beezy-api/internal/hub"
	"github.com/gabrielkumagai/beezy-api/internal/kafka"
	"github.com/gabrielkumagai/beezy-api/internal/repository"
	"github.com/gabrielkumagai/beezy-api/internal/service"
	"github.com/gabrielkumagai/beezy-api/pkg/database"
	pkgjwt "github.com/gabrielkumagai/beezy-api/pkg/jwt"
	pkglog "github.com/gabrielkumagai/beezy-api/pkg/log"
	"github.com/gabrielkumagai/beezy-api/pkg/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Level == "debug",
		ServiceName: "chat-api",
	})
	logger := pkglog.L()

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal().Msg("auth.jwt_secret is required")
	}

	// Durable store
	db, err := database.New(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := database.AutoMigrate(db,
		&domain.UserModel{},
		&domain.ChatModel{},
		&domain.ChatParticipantModel{},
		&domain.MessageModel{},
	); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	chatRepo := repository.NewGormChatRepository(db)
	users := directory.NewGormUserDirectory(db)

	// Optional history cache
	opts := service.Options{
		CacheTTL:       cfg.Cache.TTL,
		PublishTimeout: cfg.Broadcast.PublishTimeout,
	}
	if cfg.Cache.Enabled {
		msgCache, err := cache.NewRedisMessageCache(cfg.Redis, cfg.Cache.Prefix)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		opts.Cache = msgCache
		logger.Info().Msg("redis history cache connected")
	}

	// Optional downstream event stream
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize kafka producer")
		}
		opts.Producer = producer
		logger.Info().Str("topic", cfg.Kafka.Topic).Msg("kafka producer connected")
	}

	// Live fan-out
	wsHub := hub.NewHub(cfg.WebSocket)

	chatSvc := service.NewChatService(chatRepo, users, wsHub, opts)
	defer chatSvc.Close()

	tokens := pkgjwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.AccessDuration, cfg.Auth.Issuer)
	authMiddleware := middleware.NewAuthMiddleware(tokens)

	httpHandler := handler.NewHTTPHandler(chatSvc, authMiddleware)
	wsHandler := handler.NewWSHandler(wsHub, chatSvc, authMiddleware, cfg.WebSocket)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(pkglog.GinMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	httpHandler.RegisterRoutes(router)
	wsHandler.RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Str("driver", cfg.Database.Driver).Msg("chat-api starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
}
