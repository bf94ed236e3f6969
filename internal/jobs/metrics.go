package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs         *prometheus.CounterVec
	failures     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	lowStock     *prometheus.GaugeVec
	overdueDebts prometheus.Gauge
	purgedKeys   prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetLowStock publishes how many pairs of a warehouse sit at or below their
// threshold.
func (m *Metrics) SetLowStock(warehouseID int64, count int) {
	if m == nil {
		return
	}
	m.lowStock.WithLabelValues(strconv.FormatInt(warehouseID, 10)).Set(float64(count))
}

// SetOverdueDebts publishes the number of overdue debt records.
func (m *Metrics) SetOverdueDebts(count int) {
	if m == nil {
		return
	}
	m.overdueDebts.Set(float64(count))
}

// AddPurgedKeys counts expired idempotency keys removed.
func (m *Metrics) AddPurgedKeys(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.purgedKeys.Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wms_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wms_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wms_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	lowStock := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wms_low_stock_entries",
		Help: "Stock entries at or below their low-stock threshold, per warehouse.",
	}, []string{"warehouse"})
	overdue := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wms_overdue_debts",
		Help: "Debt records past their due date with an outstanding balance.",
	})
	purged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wms_idempotency_keys_purged_total",
		Help: "Expired idempotency keys deleted by the cleanup job.",
	})
	registerer.MustRegister(runs, failures, duration, lowStock, overdue, purged)
	return &Metrics{runs: runs, failures: failures, duration: duration, lowStock: lowStock, overdueDebts: overdue, purgedKeys: purged}
}
