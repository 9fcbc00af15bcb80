package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/fieldbill/fieldbill/internal/jobs"
	"github.com/fieldbill/fieldbill/internal/stock"
)

// Reconciler replays the ledger against lot remainders.
type Reconciler interface {
	ReconcileAll(ctx context.Context) ([]stock.Reconciliation, error)
}

// StockIntegrityJob verifies that every (item, warehouse) pair's ledger
// replay equals the sum of its lot remainders. Drift means a bug, not
// bad input, so a failing run is loud: it errors and counts.
type StockIntegrityJob struct {
	Reconciler Reconciler
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewStockIntegrityJob initialises the integrity check handler.
func NewStockIntegrityJob(reconciler Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockIntegrityJob {
	return &StockIntegrityJob{Reconciler: reconciler, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity check.
func (j *StockIntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Reconciler == nil {
		return errors.New("stock integrity: handler not configured")
	}
	var payload StockIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskStockIntegrity)
	defer func() {
		err = tracker.End(err)
	}()

	pairs, err := j.Reconciler.ReconcileAll(ctx)
	if err != nil {
		j.logger().Error("reconcile failed", slog.Any("error", err))
		return err
	}

	drifted := 0
	for _, p := range pairs {
		if payload.WarehouseID != 0 && p.WarehouseID != payload.WarehouseID {
			continue
		}
		if !p.Drift() {
			continue
		}
		drifted++
		j.Metrics.AddDrift(p.ItemID, p.WarehouseID)
		j.logger().Error("stock drift detected",
			slog.Int64("item_id", p.ItemID),
			slog.Int64("warehouse_id", p.WarehouseID),
			slog.String("ledger_qty", p.LedgerQty.String()),
			slog.String("lot_qty", p.LotQty.String()),
		)
	}
	if drifted > 0 {
		return fmt.Errorf("stock integrity: %d pair(s) drifted", drifted)
	}
	j.logger().Info("stock integrity clean", slog.Int("pairs", len(pairs)))
	return nil
}

func (j *StockIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
