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

	"github.com/hibiken/asynq"

	"github.com/fieldbill/fieldbill/internal/app"
	"github.com/fieldbill/fieldbill/internal/billing"
	"github.com/fieldbill/fieldbill/internal/catalog"
	"github.com/fieldbill/fieldbill/internal/observability"
	"github.com/fieldbill/fieldbill/internal/platform/cache"
	"github.com/fieldbill/fieldbill/internal/platform/db"
	"github.com/fieldbill/fieldbill/internal/reports"
	"github.com/fieldbill/fieldbill/internal/shared"
	"github.com/fieldbill/fieldbill/internal/stock"
	"github.com/fieldbill/fieldbill/internal/work"
	"github.com/fieldbill/fieldbill/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

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
		logger.Warn("redis unavailable, report cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(stockRepo, auditLogger, idempotencyStore, metrics)
	stockHandler := stock.NewHandler(logger, stockService, catalogService)

	workRepo := work.NewRepository(pool)
	workService := work.NewService(workRepo, stockService, catalogService, auditLogger)
	workHandler := work.NewHandler(logger, workService)

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, auditLogger)
	billingHandler := billing.NewHandler(logger, billingService)

	reportsRepo := reports.NewRepository(pool)
	reportsService := reports.NewService(logger, reportsRepo, redisClient, cfg.ReportCacheTTL)
	reportsHandler := reports.NewHandler(logger, reportsService)

	jobInspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	jobHandler := jobs.NewHandler(jobInspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		StockHandler:   stockHandler,
		BillingHandler: billingHandler,
		CatalogHandler: catalogHandler,
		WorkHandler:    workHandler,
		ReportsHandler: reportsHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
