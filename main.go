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
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"roomchat/internal/chat"
	"roomchat/internal/config"
	"roomchat/internal/db"
	"roomchat/internal/handlers"
	"roomchat/internal/logger"
	"roomchat/internal/middleware"
	"roomchat/internal/observability"
	"roomchat/internal/rabbitmq"
	"roomchat/internal/repositories"
	"roomchat/internal/telemetry"
	"roomchat/internal/ws"
)

const serviceName = "roomchat"

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, !cfg.IsProduction())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		log.Fatal("failed to init tracer", zap.Error(err))
	}

	stores, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open stores", zap.Error(err))
	}
	defer stores.close(context.Background())

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)),
	)
	auditor := telemetry.NewAuditEmitter(publisher, "audit.chat", serviceName, cfg.Env, log)

	registry := chat.NewRegistry()
	reconciler := chat.NewReconciler(registry, stores.messages, stores.rooms, auditor, log.Named("reconciler"))
	chatRouter := chat.NewRouter(registry, reconciler, stores.messages, stores.rooms, cfg.HistoryLimit, log.Named("router"))

	hub := ws.NewHub(log.Named("hub"))
	wsHandler := ws.NewHandler(hub, chatRouter, ws.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		SendBuffer:     cfg.WSSendBuffer,
		MaxMessageSize: cfg.WSMaxMessageSize,
	}, log.Named("ws"))

	roomHandler := handlers.NewRoomHandler(stores.rooms, cfg.RoomRetention, log)
	messageHandler := handlers.NewMessageHandler(stores.messages, log)
	fileHandler := handlers.NewFileHandler(reconciler, hub, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", wsHandler.Handle)

	api := router.Group("/api")
	api.GET("/rooms", roomHandler.ListRooms)
	api.DELETE("/cleanup-rooms", roomHandler.CleanupRooms)
	api.GET("/messages", messageHandler.ListMessages)
	api.POST("/files", fileHandler.ShareFile)

	handlers.RegisterDebugRoutes(router, auditor, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}
	hub.CloseAll()
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", zap.Error(err))
	}
}

type stores struct {
	messages repositories.MessageRepository
	rooms    repositories.RoomRepository
	closers  []func(context.Context) error
}

func (s *stores) close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i](ctx)
	}
}

// openStores picks the message store by STORE_DRIVER, the room store by
// DB_DSN (Postgres when set) and wraps rooms in the redis cache when
// REDIS_ADDR is set.
func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*stores, error) {
	s := &stores{}

	switch cfg.StoreDriver {
	case config.StoreMemory:
		s.messages = repositories.NewMemoryMessageRepo()
		s.rooms = repositories.NewMemoryRoomRepo()
	default:
		client, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoRetries, 2*time.Second, log)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, client.Disconnect)
		database := client.Database(cfg.MongoDatabase)
		messages := repositories.NewMongoMessageRepo(database)
		if err := messages.EnsureIndexes(ctx); err != nil {
			log.Warn("failed to ensure message indexes", zap.Error(err))
		}
		s.messages = messages
		s.rooms = repositories.NewMongoRoomRepo(database)
	}

	if cfg.DBDSN != "" {
		database, err := db.Connect(cfg.DBDSN, log)
		if err != nil {
			s.close(ctx)
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error { return database.Close() })
		s.rooms = repositories.NewRoomRepo(database)
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, room cache disabled", zap.Error(err))
			_ = client.Close()
		} else {
			s.closers = append(s.closers, func(context.Context) error { return client.Close() })
			s.rooms = repositories.NewCachedRoomRepo(s.rooms, client, cfg.RoomCacheTTL, log.Named("room_cache"))
		}
	}

	return s, nil
}
