package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"reporting-service/internal/api"
	"reporting-service/internal/config"
	"reporting-service/internal/db"
	"reporting-service/internal/kafka"
	"reporting-service/internal/logging"
	"reporting-service/internal/notification"
	"reporting-service/internal/providers"
	"reporting-service/internal/reporting"
	"reporting-service/internal/sharing"
)

type pushSender interface {
	notification.Sender
	notification.TopicPublisher
}

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	dbConn, err := db.New(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()
	if err := dbConn.Migrate(ctx); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}

	// Push transport
	var push pushSender
	fcm, err := providers.NewFCM(ctx, providers.FCMConfig{
		CredentialsFile: cfg.Firebase.CredentialsFile,
		CredentialsJSON: cfg.Firebase.CredentialsJSON,
		ProjectID:       cfg.Firebase.ProjectID,
	}, logger)
	switch {
	case errors.Is(err, providers.ErrNoCredentials):
		logger.Warn("Firebase credentials not configured, push notifications are logged only")
		push = providers.LogSender{Logger: logger}
	case err != nil:
		log.Fatalf("Firebase initialization failed: %v", err)
	default:
		push = fcm
	}

	hub := providers.NewHub(logger)
	defer hub.Close()

	regulators := notification.Channels{
		notification.Topic{Publisher: push, Name: cfg.Firebase.RegulatorTopic},
		hub,
	}
	if cfg.Telegram.BotToken != "" {
		tg, err := providers.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.RatePerSec, logger)
		if err != nil {
			logger.Errorf("Telegram disabled: %v", err)
		} else {
			regulators = append(regulators, tg)
		}
	}
	broadcast := notification.Channels{
		notification.Topic{Publisher: push, Name: cfg.Firebase.BroadcastTopic},
		hub,
	}

	// Location share tokens
	var shares sharing.Store
	if cfg.Redis.Addr != "" {
		shares, err = sharing.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Sharing.TokenTTL)
		if err != nil {
			log.Fatalf("Redis connection failed: %v", err)
		}
	} else {
		shares = sharing.NewMemoryStore(cfg.Sharing.TokenTTL, time.Minute)
	}
	defer shares.Close()

	// Reporting pipeline
	policy, err := notification.PolicyFromName(cfg.Notification.AudiencePolicy, cfg.Notification.RadiusKm)
	if err != nil {
		log.Fatalf("Invalid audience policy: %v", err)
	}
	pipeline := reporting.NewPipeline(reporting.Deps{
		Store:      dbConn,
		Corridors:  dbConn,
		Audience:   notification.NewResolver(dbConn, dbConn, policy, logger),
		Dispatcher: notification.NewDispatcher(push, cfg.Notification.MaxWorkers, cfg.Notification.SendTimeout, logger),
		Regulators: regulators,
		Broadcast:  broadcast,
		Logger:     logger,
	})

	// Initialize Kafka consumer
	var wg sync.WaitGroup
	if cfg.Kafka.Broker != "" {
		consumer := kafka.NewConsumer([]string{cfg.Kafka.Broker}, cfg.Kafka.Topic, cfg.Kafka.GroupID, pipeline, logger)
		defer consumer.Close()
		consumer.Start(ctx, &wg)
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.Topic)
	}

	// Start API server
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	auth := api.AuthConfig{Verifier: api.NewJWTVerifier(cfg.Auth.JWTSecret)}
	if !cfg.IsProduction() {
		auth.DevHeader = cfg.Auth.DevAuthHeader
	}
	handler := api.NewHandler(api.HandlerDeps{
		Reports:       pipeline,
		Users:         dbConn,
		Shares:        shares,
		Hub:           hub,
		Health:        dbConn.Ping,
		Logger:        logger,
		PublicBaseURL: cfg.API.PublicBaseURL,
		BasePath:      cfg.API.BasePath,
	})
	srv := &http.Server{
		Addr:              cfg.API.Port,
		Handler:           api.NewRouter(handler, auth, logger, cfg.API.BasePath),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API server shutdown failed: %v", err)
	}
	wg.Wait()
}
