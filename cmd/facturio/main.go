package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/facturio/facturio/internal/accounting"
	"github.com/facturio/facturio/internal/app"
	"github.com/facturio/facturio/internal/clients"
	"github.com/facturio/facturio/internal/documents"
	"github.com/facturio/facturio/internal/export"
	"github.com/facturio/facturio/internal/platform/cache"
	"github.com/facturio/facturio/internal/platform/db"
	"github.com/facturio/facturio/internal/syncer"
	"github.com/facturio/facturio/internal/tenant"
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

	validate := validator.New()

	tenantRepo := tenant.NewRepository(pool)

	clientRepo := clients.NewRepository(pool)
	clientService := clients.NewService(clientRepo)
	clientHandler := clients.NewHandler(logger, clientService, validate)

	accountingRepo := accounting.NewRepository(pool)
	accountingService := accounting.NewService(accountingRepo)
	accountingHandler := accounting.NewHandler(logger, accountingService, validate)

	documentRepo := documents.NewRepository(pool)
	documentService := documents.NewService(documentRepo, accountingService, clientService)
	documentHandler := documents.NewHandler(logger, documentService, validate)

	exportService := export.NewService(documentRepo, accountingRepo)
	exportHandler := export.NewHandler(logger, exportService)

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
	syncHandler := syncer.NewHandler(logger, syncService)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		TenantRepo:        tenantRepo,
		ClientsHandler:    clientHandler,
		DocumentsHandler:  documentHandler,
		AccountingHandler: accountingHandler,
		ExportHandler:     exportHandler,
		SyncHandler:       syncHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
