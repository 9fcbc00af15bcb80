package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockIntegrity replays the stock ledger against lot remainders.
	TaskStockIntegrity = "stock:integrity"
	// TaskReportWarmup precomputes the rolling report window into cache.
	TaskReportWarmup = "reports:warmup"
)

// StockIntegrityPayload scopes the integrity check. A zero warehouse
// means every warehouse.
type StockIntegrityPayload struct {
	WarehouseID int64 `json:"warehouse_id"`
}

// NewStockIntegrityTask constructs an Asynq task.
func NewStockIntegrityTask(payload StockIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockIntegrity, data), nil
}

// ReportWarmupPayload sets the trailing window to precompute, in days.
type ReportWarmupPayload struct {
	Days int `json:"days"`
}

// NewReportWarmupTask constructs an Asynq task.
func NewReportWarmupTask(payload ReportWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportWarmup, data), nil
}
