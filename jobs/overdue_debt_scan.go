package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-wms/internal/debt"
	jobmetrics "github.com/odyssey-erp/odyssey-wms/internal/jobs"
)

// OverdueSource lists outstanding debts past their due date.
type OverdueSource interface {
	Overdue(ctx context.Context, asOf time.Time) ([]debt.Debt, error)
}

// OverdueDebtScanJob logs overdue supplier debts and publishes their count.
type OverdueDebtScanJob struct {
	Debts   OverdueSource
	Locker  Locker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	LockTTL time.Duration
	clock   func() time.Time
}

// NewOverdueDebtScanJob initialises the overdue-debt scan handler.
func NewOverdueDebtScanJob(debts OverdueSource, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueDebtScanJob {
	return &OverdueDebtScanJob{
		Debts:   debts,
		Locker:  locker,
		Logger:  logger,
		Metrics: metrics,
		LockTTL: 10 * time.Minute,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes the scan.
func (j *OverdueDebtScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Debts == nil {
		return errors.New("overdue debt scan: handler not configured")
	}
	var payload OverdueDebtScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.AsOf.IsZero() {
		payload.AsOf = j.now()
	}
	logger := loggerOrDefault(j.Logger).With(slog.String("task", TaskOverdueDebtScan))

	release, ok, err := acquire(ctx, j.Locker, TaskOverdueDebtScan, j.LockTTL)
	if err != nil || !ok {
		return err
	}
	defer release()

	tracker := j.Metrics.Track(TaskOverdueDebtScan)
	defer func() { err = tracker.End(err) }()

	debts, err := j.Debts.Overdue(ctx, payload.AsOf)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}
	for _, d := range debts {
		logger.Warn("overdue debt",
			slog.Int64("debt_id", d.ID),
			slog.String("supplier", d.SupplierName),
			slog.String("note", d.NoteCode),
			slog.String("remaining", d.Remaining.StringFixed(2)),
			slog.Time("due_date", d.DueDate),
		)
	}
	j.Metrics.SetOverdueDebts(len(debts))
	logger.Info("completed overdue debt scan", slog.Int("overdue", len(debts)), slog.String("total", debt.OutstandingTotal(debts).StringFixed(2)))
	return nil
}

func (j *OverdueDebtScanJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}
