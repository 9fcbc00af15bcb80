package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/fieldbill/fieldbill/internal/jobs"
	"github.com/fieldbill/fieldbill/internal/reports"
)

// RollupPort computes (and caches) one report window.
type RollupPort interface {
	Rollup(ctx context.Context, q reports.RollupQuery) (reports.Rollup, error)
}

// ReportWarmupJob precomputes the trailing window so the first dashboard
// hit of the day lands on a warm cache.
type ReportWarmupJob struct {
	Reports RollupPort
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReportWarmupJob initialises the warmup handler.
func NewReportWarmupJob(svc RollupPort, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportWarmupJob {
	return &ReportWarmupJob{Reports: svc, Logger: logger, Metrics: metrics}
}

// Handle executes the warmup.
func (j *ReportWarmupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Reports == nil {
		return errors.New("report warmup: handler not configured")
	}
	var payload ReportWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Days <= 0 {
		payload.Days = 30
	}

	tracker := j.Metrics.Track(TaskReportWarmup)
	defer func() {
		err = tracker.End(err)
	}()

	now := time.Now().UTC()
	rollup, err := j.Reports.Rollup(ctx, reports.RollupQuery{
		From: now.AddDate(0, 0, -payload.Days),
		To:   now,
	})
	if err != nil {
		j.logger().Error("report warmup failed", slog.Any("error", err))
		return err
	}
	j.logger().Info("report warmup done",
		slog.Int("days", payload.Days),
		slog.Int64("movements", rollup.Ledger.MovementCount),
		slog.String("revenue", rollup.Invoices.Revenue.String()),
	)
	return nil
}

func (j *ReportWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
