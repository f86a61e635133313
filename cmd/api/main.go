package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/uniboxhq/inbox-sync/internal/config"
	"github.com/uniboxhq/inbox-sync/internal/connector"
	connectionHandler "github.com/uniboxhq/inbox-sync/internal/handler/connection"
	"github.com/uniboxhq/inbox-sync/internal/handler/health"
	notificationHandler "github.com/uniboxhq/inbox-sync/internal/handler/notification"
	prometheusHandler "github.com/uniboxhq/inbox-sync/internal/handler/prometheus"
	syncHandler "github.com/uniboxhq/inbox-sync/internal/handler/sync"
	taskHandler "github.com/uniboxhq/inbox-sync/internal/handler/task"
	webhookHandler "github.com/uniboxhq/inbox-sync/internal/handler/webhook"
	"github.com/uniboxhq/inbox-sync/internal/middleware"
	"github.com/uniboxhq/inbox-sync/internal/normalize"
	"github.com/uniboxhq/inbox-sync/internal/repository/postgres"
	"github.com/uniboxhq/inbox-sync/internal/router"
	inboxService "github.com/uniboxhq/inbox-sync/internal/service/inbox"
	syncengine "github.com/uniboxhq/inbox-sync/internal/sync"
	"github.com/uniboxhq/inbox-sync/pkg/auth"
	"github.com/uniboxhq/inbox-sync/pkg/logger"
	brokerredis "github.com/uniboxhq/inbox-sync/pkg/messaging/redis"
	"github.com/uniboxhq/inbox-sync/pkg/metrics"
	queueredis "github.com/uniboxhq/inbox-sync/pkg/queue/redis"
	"github.com/uniboxhq/inbox-sync/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      parseLevel(cfg.Logger.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Logger.Pretty,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	redisQueue, err := queueredis.NewRedisQueue(cfg.Redis.ToQueueConfig(), &appLogger.ZL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redisQueue.Close()

	encryptor, err := security.NewAESEncryptor([]byte(cfg.Security.EncryptionKey))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid encryption key")
	}

	m := metrics.New("inbox_sync")

	base := postgres.NewBaseRepository(db, m)
	itemRepo := postgres.NewThirdPartyItemRepository(base)
	notificationRepo := postgres.NewNotificationRepository(base)
	taskRepo := postgres.NewTaskRepository(base)
	connectionRepo := postgres.NewConnectionRepository(base)
	jobRepo := postgres.NewSyncJobRepository(base)

	registry := connector.NewDefaultRegistry(cfg.Connectors, cfg.Sync.FetchTimeout, cfg.Sync.CalendarLookAhead)
	pipeline := normalize.NewPipeline(cfg.Sync.CalendarLookAhead)

	coordinator := syncengine.NewCoordinator(
		&base, itemRepo, notificationRepo, taskRepo, connectionRepo,
		registry, pipeline, encryptor, m, appLogger,
		syncengine.CoordinatorOptions{
			FetchTimeout:       cfg.Sync.FetchTimeout,
			ConnectionCacheTTL: cfg.Sync.ConnectionCache,
		},
	)

	broker := brokerredis.NewRedisBroker(redisQueue.Client(), &appLogger.ZL)

	service := inboxService.NewService(
		notificationRepo, taskRepo, connectionRepo, jobRepo,
		redisQueue, registry, coordinator, broker, cfg.Sync.MaxAttempts, appLogger,
	)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	authMiddleware := middleware.NewAuthMiddleware(jwtService)

	r := router.NewRouter(
		authMiddleware,
		notificationHandler.NewHandler(service),
		taskHandler.NewHandler(service),
		connectionHandler.NewHandler(service),
		syncHandler.NewHandler(service),
		webhookHandler.NewHandler(service, cfg.Connectors, appLogger),
		health.NewHandler(db, redisQueue.Client()),
		prometheusHandler.New(),
		router.Config{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			MetricsEnabled:   cfg.Monitoring.PrometheusEnabled,
			MetricsPath:      cfg.Monitoring.MetricsPath,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("starting API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "forced shutdown")
	}
}

func parseLevel(level string) logger.Level {
	switch level {
	case "debug":
		return logger.DebugLevel
	case "warn":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}
