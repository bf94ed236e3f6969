package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-wms/internal/jobs"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
)

const defaultLowStockLimit = 1000

// LowStockSource lists stock entries at or below their threshold.
type LowStockSource interface {
	LowStock(ctx context.Context, scope inventory.WarehouseScope, limit int) ([]inventory.SnapshotRow, error)
}

// LowStockScanJob publishes low-stock gauges and logs each entry.
type LowStockScanJob struct {
	Stock   LowStockSource
	Locker  Locker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	LockTTL time.Duration
}

// NewLowStockScanJob initialises the low-stock scan handler.
func NewLowStockScanJob(stock LowStockSource, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Stock: stock, Locker: locker, Logger: logger, Metrics: metrics, LockTTL: 10 * time.Minute}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Stock == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultLowStockLimit
	}
	logger := loggerOrDefault(j.Logger).With(slog.String("task", TaskLowStockScan))

	release, ok, err := acquire(ctx, j.Locker, TaskLowStockScan, j.LockTTL)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("scan already running, skipping")
		return nil
	}
	defer release()

	tracker := j.Metrics.Track(TaskLowStockScan)
	defer func() { err = tracker.End(err) }()

	scope := inventory.AllWarehouses()
	if payload.WarehouseID > 0 {
		scope = inventory.ByWarehouse(payload.WarehouseID)
	}
	rows, err := j.Stock.LowStock(ctx, scope, payload.Limit)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}
	perWarehouse := make(map[int64]int)
	for _, row := range rows {
		perWarehouse[row.WarehouseID]++
		logger.Warn("low stock",
			slog.String("warehouse", row.WarehouseCode),
			slog.String("product", row.ProductName),
			slog.Int64("on_hand", row.OnHand),
			slog.Int64("min_stock", row.Threshold),
		)
	}
	for warehouseID, count := range perWarehouse {
		j.Metrics.SetLowStock(warehouseID, count)
	}
	logger.Info("completed low stock scan", slog.Int("entries", len(rows)), slog.Int("warehouses", len(perWarehouse)))
	return nil
}

func acquire(ctx context.Context, locker Locker, task string, ttl time.Duration) (func(), bool, error) {
	if locker == nil {
		return func() {}, true, nil
	}
	ok, release, err := locker.Acquire(ctx, lockKey(task), ttl)
	return release, ok, err
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
