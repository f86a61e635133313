package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/uniboxhq/inbox-sync/internal/config"
	"github.com/uniboxhq/inbox-sync/internal/connector"
	"github.com/uniboxhq/inbox-sync/internal/email"
	"github.com/uniboxhq/inbox-sync/internal/normalize"
	"github.com/uniboxhq/inbox-sync/internal/repository/postgres"
	syncengine "github.com/uniboxhq/inbox-sync/internal/sync"
	jobworker "github.com/uniboxhq/inbox-sync/internal/worker"
	"github.com/uniboxhq/inbox-sync/pkg/logger"
	brokerredis "github.com/uniboxhq/inbox-sync/pkg/messaging/redis"
	"github.com/uniboxhq/inbox-sync/pkg/metrics"
	queueredis "github.com/uniboxhq/inbox-sync/pkg/queue/redis"
	"github.com/uniboxhq/inbox-sync/pkg/security"
	"github.com/uniboxhq/inbox-sync/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.InfoLevel,
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

	m := metrics.New("inbox_sync_worker")

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

	var mailer email.Service
	if cfg.SMTP.Host != "" {
		mailer = email.NewSMTPService(cfg.SMTP)
	} else {
		mailer = email.NewNoopService()
	}
	broker := brokerredis.NewRedisBroker(redisQueue.Client(), &appLogger.ZL)
	notifier := syncengine.NewDeadLetterNotifier(mailer, broker, appLogger)

	orchestrator := worker.NewOrchestrator(
		redisQueue, jobRepo, coordinator, notifier,
		worker.OrchestratorConfig{
			Workers:        cfg.Sync.Workers,
			MaxAttempts:    cfg.Sync.MaxAttempts,
			RetryBaseDelay: cfg.Sync.RetryBaseDelay,
			DequeueTimeout: cfg.Sync.PollInterval,
		},
		appLogger, m,
	)
	scheduler := worker.NewScheduler(
		connectionRepo, jobRepo, redisQueue,
		worker.SchedulerConfig{
			Interval:    cfg.Sync.ScheduleInterval,
			MaxAttempts: cfg.Sync.MaxAttempts,
		},
		appLogger, m,
	)
	cleanup := jobworker.NewJobCleanupWorker(jobRepo, cfg.Sync.JobRetention, time.Hour, appLogger)

	setupHealthAndMetrics(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		orchestrator.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		scheduler.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()

	<-ctx.Done()
	appLogger.Info("shutting down worker")
	wg.Wait()
}

func setupHealthAndMetrics(appLogger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			appLogger.ZL.Error().Err(err).Msg("health server failed")
			os.Exit(1)
		}
	}()
}
