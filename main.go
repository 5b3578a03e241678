package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chatline/internal/auth"
	"chatline/internal/broker"
	"chatline/internal/config"
	"chatline/internal/db"
	"chatline/internal/grpcserver"
	"chatline/internal/handlers"
	"chatline/internal/idempotency"
	"chatline/internal/logging"
	"chatline/internal/media"
	"chatline/internal/middleware"
	"chatline/internal/observability"
	"chatline/internal/repositories"
	"chatline/internal/services"
	"chatline/internal/telemetry"
	"chatline/internal/ws"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Env)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
		shutdownTracing = func(context.Context) error { return nil }
	}

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	publisher := broker.New(broker.Options{
		Kind:         cfg.EventsBroker,
		AMQPURL:      cfg.AMQPURL,
		AMQPExchange: cfg.AMQPExchange,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaTopic:   cfg.KafkaTopic,
	})
	defer publisher.Close()
	log.Info().Str("mode", broker.Mode(publisher)).Str("reason", broker.NoopReason(publisher)).Msg("event broker configured")
	audit := telemetry.NewAuditEmitter(publisher, cfg.ServiceName, cfg.Env)

	var idem idempotency.Store
	if cfg.RedisAddr != "" {
		client, err := idempotency.Open(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, send deduplication disabled")
		} else {
			defer client.Close()
			idem = idempotency.NewRedisStore(client, cfg.IdempotencyTTL)
		}
	}

	store, err := media.New(media.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure attachment storage")
	}
	if ms, ok := store.(*media.MinioStorage); ok {
		if err := ms.EnsureBucket(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure attachment bucket")
		}
	}

	hub := ws.NewHub(publisher)
	composer := services.NewComposer(messageRepo, chatRepo, store, idem, hub)
	pager := services.NewPager(messageRepo, chatRepo, store)
	chatService := services.NewChatService(chatRepo, userRepo, messageRepo, composer, hub, store)

	tokens := auth.NewJWTValidator(cfg.JWTSecret)
	chatHandler := handlers.NewChatHandler(chatService, audit)
	messageHandler := handlers.NewMessageHandler(composer, pager, chatService, audit)
	chatWS := ws.NewChatWebSocketHandler(hub, chatService, tokens)
	sendLimiter := middleware.NewSendLimiter(cfg.SendRatePerSec, cfg.SendBurst)

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.ServiceName),
		middleware.RequestID(),
		logging.RequestLogger(),
		observability.HTTPMetricsMiddleware(),
	)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	api := router.Group("/", middleware.AuthMiddleware(tokens))
	api.GET("/chats", chatHandler.ListChats)
	api.POST("/chats/direct", chatHandler.StartDirectChat)
	api.GET("/chats/:chat_id", chatHandler.GetChat)
	api.GET("/chats/:chat_id/available-members", chatHandler.AvailableMembers)
	api.POST("/chats/:chat_id/group", chatHandler.CreateGroupChat)
	api.POST("/chats/:chat_id/members", chatHandler.AddMembers)
	api.DELETE("/chats/:chat_id/members/me", chatHandler.LeaveChat)
	api.PUT("/chats/:chat_id/members/:user_id", chatHandler.UpdateMember)

	api.GET("/chats/:chat_id/messages", messageHandler.ListMessages)
	api.POST("/chats/:chat_id/messages", sendLimiter.Middleware(), messageHandler.SendMessage)
	api.PATCH("/chats/:chat_id/messages/:message_id", messageHandler.EditMessage)
	api.DELETE("/chats/:chat_id/messages/:message_id", messageHandler.DeleteMessage)
	api.POST("/chats/:chat_id/receipts", messageHandler.MarkReceipt)

	router.GET("/ws/chats/:chat_id", chatWS.Handle)

	grpcSrv := grpcserver.New(database)
	go grpcSrv.Watch(ctx, 15*time.Second)
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.GRPCPort).Msg("failed to listen for grpc")
	}
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil {
			log.Error().Err(err).Msg("grpc server error")
		}
	}()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	grpcSrv.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
}
