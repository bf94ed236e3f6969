package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan reports stock entries at or below their threshold.
	TaskLowStockScan = "stock:low_scan"
	// TaskOverdueDebtScan reports supplier debts past their due date.
	TaskOverdueDebtScan = "debt:overdue_scan"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// LowStockScanPayload narrows a low-stock scan. Zero WarehouseID scans all
// warehouses.
type LowStockScanPayload struct {
	WarehouseID int64 `json:"warehouse_id,omitempty"`
	Limit       int   `json:"limit,omitempty"`
}

// OverdueDebtScanPayload fixes the reference date of a scan.
type OverdueDebtScanPayload struct {
	AsOf time.Time `json:"as_of,omitempty"`
}

// IdempotencyCleanupPayload sets how long keys are kept.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

// NewLowStockScanTask constructs an Asynq task for the low-stock scan.
func NewLowStockScanTask(payload LowStockScanPayload) (*asynq.Task, error) {
	return newTask(TaskLowStockScan, payload)
}

// NewOverdueDebtScanTask constructs an Asynq task for the overdue-debt scan.
func NewOverdueDebtScanTask(payload OverdueDebtScanPayload) (*asynq.Task, error) {
	return newTask(TaskOverdueDebtScan, payload)
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, payload)
}

func newTask(typename string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typename, body, asynq.Queue(QueueDefault)), nil
}
