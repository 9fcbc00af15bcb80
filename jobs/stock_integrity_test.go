package jobs

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/fieldbill/fieldbill/internal/jobs"
	"github.com/fieldbill/fieldbill/internal/stock"
)

type fakeReconciler struct {
	pairs []stock.Reconciliation
	err   error
}

func (f *fakeReconciler) ReconcileAll(ctx context.Context) ([]stock.Reconciliation, error) {
	return f.pairs, f.err
}

func integrityTask(t *testing.T, payload StockIntegrityPayload) *asynq.Task {
	t.Helper()
	task, err := NewStockIntegrityTask(payload)
	require.NoError(t, err)
	return task
}

func TestStockIntegrityDetectsDrift(t *testing.T) {
	job := NewStockIntegrityJob(&fakeReconciler{
		pairs: []stock.Reconciliation{
			{ItemID: 1, WarehouseID: 1, LedgerQty: decimal.RequireFromString("5"), LotQty: decimal.RequireFromString("5")},
			{ItemID: 2, WarehouseID: 1, LedgerQty: decimal.RequireFromString("3"), LotQty: decimal.RequireFromString("4")},
		},
	}, nil, nil)

	err := job.Handle(context.Background(), integrityTask(t, StockIntegrityPayload{}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 pair(s) drifted")
}

func TestStockIntegrityCleanRun(t *testing.T) {
	job := NewStockIntegrityJob(&fakeReconciler{
		pairs: []stock.Reconciliation{
			{ItemID: 1, WarehouseID: 1, LedgerQty: decimal.RequireFromString("5"), LotQty: decimal.RequireFromString("5")},
		},
	}, nil, nil)

	require.NoError(t, job.Handle(context.Background(), integrityTask(t, StockIntegrityPayload{})))
}

func TestStockIntegrityRecordsFailureMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := NewStockIntegrityJob(&fakeReconciler{
		pairs: []stock.Reconciliation{
			{ItemID: 2, WarehouseID: 1, LedgerQty: decimal.RequireFromString("3"), LotQty: decimal.RequireFromString("4")},
		},
	}, nil, metrics)

	err := job.Handle(context.Background(), integrityTask(t, StockIntegrityPayload{}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "drifted")

	families, gerr := reg.Gather()
	require.NoError(t, gerr)
	counts := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				counts[mf.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, float64(1), counts["fieldbill_jobs_failures_total"])
	require.Equal(t, float64(1), counts["fieldbill_stock_drift_total"])
}

func TestStockIntegrityWarehouseScope(t *testing.T) {
	job := NewStockIntegrityJob(&fakeReconciler{
		pairs: []stock.Reconciliation{
			{ItemID: 2, WarehouseID: 7, LedgerQty: decimal.RequireFromString("3"), LotQty: decimal.RequireFromString("4")},
		},
	}, nil, nil)

	// Drift in warehouse 7 is invisible when the check is scoped to 1.
	require.NoError(t, job.Handle(context.Background(), integrityTask(t, StockIntegrityPayload{WarehouseID: 1})))
	require.Error(t, job.Handle(context.Background(), integrityTask(t, StockIntegrityPayload{WarehouseID: 7})))
}
