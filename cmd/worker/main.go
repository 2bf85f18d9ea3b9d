package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/facturio/facturio/internal/accounting"
	"github.com/facturio/facturio/internal/app"
	"github.com/facturio/facturio/internal/clients"
	"github.com/facturio/facturio/internal/documents"
	"github.com/facturio/facturio/internal/platform/cache"
	"github.com/facturio/facturio/internal/platform/db"
	"github.com/facturio/facturio/internal/syncer"
	"github.com/facturio/facturio/internal/tenant"
	"github.com/facturio/facturio/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	tenantRepo := tenant.NewRepository(pool)
	accountingRepo := accounting.NewRepository(pool)
	accountingService := accounting.NewService(accountingRepo)
	clientService := clients.NewService(clients.NewRepository(pool))
	documentRepo := documents.NewRepository(pool)
	documentService := documents.NewService(documentRepo, accountingService, clientService)

	syncRepo := syncer.NewRepository(pool)
	syncLock := syncer.NewRunLock(redisClient, cfg.SyncLockTTL)
	syncTransport := &syncer.HTTPTransport{
		Endpoint: cfg.SyncEndpoint,
		Client:   &http.Client{Timeout: cfg.SyncItemTimeout},
	}
	syncService := syncer.NewService(syncRepo, documentRepo, accountingRepo, syncTransport, syncLock, logger,
		syncer.WithItemTimeout(cfg.SyncItemTimeout),
		syncer.WithFanOut(cfg.SyncFanOut),
		syncer.WithStaleThreshold(cfg.SyncStaleThreshold),
	)

	queueClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSyncRun, Handler: jobs.NewSyncRunHandler(logger, syncService)},
			{Type: jobs.TaskSyncDispatch, Handler: jobs.NewSyncDispatchHandler(logger, accountingRepo, queueClient)},
			{Type: jobs.TaskSyncReclaim, Handler: jobs.NewSyncReclaimHandler(syncService)},
			{Type: jobs.TaskQuoteExpiry, Handler: jobs.NewQuoteExpiryHandler(logger, tenantRepo, documentService)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 * * * *", Task: jobs.NewSyncDispatchTask(), Options: []asynq.Option{asynq.MaxRetry(2)}},
			{Spec: "*/5 * * * *", Task: jobs.NewSyncReclaimTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: "15 0 * * *", Task: jobs.NewQuoteExpiryTask(), Options: []asynq.Option{asynq.MaxRetry(2)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
