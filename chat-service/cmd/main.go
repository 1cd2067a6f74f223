package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-community/chat-service/internal/cache"
	"github.com/weiawesome/wes-io-community/chat-service/internal/config"
	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-community/chat-service/internal/handler"
	"github.com/weiawesome/wes-io-community/chat-service/internal/hub"
	"github.com/weiawesome/wes-io-community/chat-service/internal/kafka"
	"github.com/weiawesome/wes-io-community/chat-service/internal/presence"
	"github.com/weiawesome/wes-io-community/chat-service/internal/repository"
	"github.com/weiawesome/wes-io-community/chat-service/internal/service"
	"github.com/weiawesome/wes-io-community/pkg/database"
	"github.com/weiawesome/wes-io-community/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-community/pkg/log"
	"github.com/weiawesome/wes-io-community/pkg/middleware"
	"github.com/weiawesome/wes-io-community/pkg/pubsub"
	"github.com/weiawesome/wes-io-community/pkg/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	cfg.Log.ServiceName = "chat-service"
	if cfg.Log.Level == "debug" {
		cfg.Log.Pretty = true
	}
	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = pkglog.WithLogger(ctx, logger)

	// Connect to database using GORM
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db, domain.Models()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	membershipRepo := repository.NewGormMembershipRepository(db)
	messageRepo := repository.NewGormMessageRepository(db)
	reactionRepo := repository.NewGormReactionRepository(db)
	presenceRepo := repository.NewGormPresenceRepository(db)

	// Token verification
	tokens, err := jwt.NewManager(cfg.Auth)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create JWT manager")
	}

	// Optional latest-messages cache
	var latestCache cache.LatestCache
	if cfg.Cache.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Address).Msg("redis unavailable, cache disabled")
			rdb.Close()
		} else {
			c := cache.NewRedisLatestCache(rdb, cfg.Cache.Prefix)
			defer c.Close()
			latestCache = c
			logger.Info().Str("addr", cfg.Redis.Address).Msg("redis cache connected")
		}
	}

	// Attachment storage
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// Event stream
	var producer kafka.EventProducer
	if cfg.Kafka.Enabled {
		p, err := kafka.NewConfluentProducer(cfg.Kafka)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize kafka producer")
		}
		defer p.Close()
		producer = p
		logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka producer connected")
	}

	// Initialize Hub
	wsHub := hub.NewHub()
	go wsHub.Run(ctx)

	var broadcaster service.Broadcaster = wsHub
	if cfg.Bus.Enabled() {
		instanceID := uuid.New().String()
		// Every gateway must see every room event.
		cfg.Bus.Kafka.GroupID = cfg.Bus.Kafka.GroupID + "-" + instanceID
		bus, err := pubsub.NewPubSub(cfg.Bus)
		if err != nil {
			logger.Fatal().Err(err).Str("driver", cfg.Bus.Driver).Msg("failed to initialize bus")
		}
		busBroadcaster := hub.NewBusBroadcaster(wsHub, bus, instanceID)
		defer busBroadcaster.Close()
		if err := busBroadcaster.Relay(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start bus relay")
		}
		broadcaster = busBroadcaster
		logger.Info().Str("driver", cfg.Bus.Driver).Str("instance", instanceID).Msg("room bus connected")
	}

	// Initialize services
	guard := service.NewMembershipGuard(membershipRepo, cfg.Store.Timeout)
	tracker := presence.NewTracker(presenceRepo, cfg.Store.Timeout)
	messageSvc := service.NewMessageService(service.MessageDeps{
		Guard:        guard,
		Messages:     messageRepo,
		Reactions:    reactionRepo,
		Presence:     tracker,
		Broadcaster:  broadcaster,
		Cache:        latestCache,
		CacheTTL:     cfg.Cache.TTL,
		Producer:     producer,
		Storage:      store,
		MaxFileSize:  cfg.Attachments.MaxSize,
		URLExpiry:    cfg.Attachments.URLExpiry,
		StoreTimeout: cfg.Store.Timeout,
	})
	chatSvc := service.NewChatService(tokens, wsHub, broadcaster, guard, tracker, messageSvc)

	sweeper := presence.NewSweeper(tracker, wsHub, cfg.Presence.SweepInterval, cfg.Presence.StaleAfter)
	go sweeper.Run(ctx)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger, "/health", "/metrics"))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if local, ok := store.(*storage.LocalStorage); ok {
		r.Static(local.URLPrefix(), local.BasePath())
	}

	handler.NewHandler(messageSvc, middleware.NewAuthMiddleware(tokens), cfg.Attachments.MaxSize).RegisterRoutes(r)

	// WebSocket upgrades bypass gin so the hijacked connection is not
	// wrapped by its writer.
	wsMux := http.NewServeMux()
	handler.NewWSHandler(wsHub, chatSvc, cfg.WebSocket).RegisterRoutes(wsMux)

	mux := http.NewServeMux()
	mux.Handle("/chat/", pkglog.HTTPMiddleware(logger)(wsMux))
	mux.Handle("/", r)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("storage", cfg.Storage.Driver).
			Str("bus", cfg.Bus.Driver).
			Bool("cache", latestCache != nil).
			Bool("events", producer != nil).
			Msg("chat-service starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat-service")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Closing the hub ends every open connection.
	cancel()
	select {
	case <-wsHub.Done():
	case <-shutdownCtx.Done():
	}

	logger.Info().Msg("chat-service stopped")
}
