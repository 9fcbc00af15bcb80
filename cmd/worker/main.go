package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/fieldbill/fieldbill/internal/app"
	jobmetrics "github.com/fieldbill/fieldbill/internal/jobs"
	"github.com/fieldbill/fieldbill/internal/platform/cache"
	"github.com/fieldbill/fieldbill/internal/platform/db"
	"github.com/fieldbill/fieldbill/internal/reports"
	"github.com/fieldbill/fieldbill/internal/stock"
	"github.com/fieldbill/fieldbill/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)

	stockRepo := stock.NewRepository(pool)
	integrityJob := jobs.NewStockIntegrityJob(stockRepo, logger, metrics)

	reportsRepo := reports.NewRepository(pool)
	reportsService := reports.NewService(logger, reportsRepo, redisClient, cfg.ReportCacheTTL)
	warmupJob := jobs.NewReportWarmupJob(reportsService, logger, metrics)

	integrityTask, err := jobs.NewStockIntegrityTask(jobs.StockIntegrityPayload{})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewReportWarmupTask(jobs.ReportWarmupPayload{Days: 30})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskReportWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every " + cfg.ReconcileInterval.String(), Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(0)}},
			{Spec: "15 1 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
