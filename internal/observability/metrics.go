package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	stockMovements  *prometheus.CounterVec
	stockQuantity   *prometheus.CounterVec
	stockRejections *prometheus.CounterVec
	rejectedLines   *prometheus.CounterVec
	compensations   *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry, metrik HTTP, dan metrik stok.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wms_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wms_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wms_stock_movements_total",
		Help: "Ledger mutations applied, by direction.",
	}, []string{"direction"})
	quantity := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wms_stock_quantity_total",
		Help: "Units moved through the ledger, by direction.",
	}, []string{"direction"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wms_stock_rejections_total",
		Help: "Ledger mutations refused, by reason.",
	}, []string{"reason"})
	rejectedLines := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wms_note_rejected_lines_total",
		Help: "Submitted note lines skipped during resolution.",
	}, []string{"module", "reason"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wms_note_compensations_total",
		Help: "Notes rolled back after a late stock conflict.",
	}, []string{"module"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wms_dashboard_cache_lookups_total",
		Help: "Dashboard cache lookups by result.",
	}, []string{"result"})
	registry.MustRegister(requests, duration, movements, quantity, rejections, rejectedLines, compensations, cache)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		stockMovements:  movements,
		stockQuantity:   quantity,
		stockRejections: rejections,
		rejectedLines:   rejectedLines,
		compensations:   compensations,
		cacheLookups:    cache,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// RecordStockMovement counts one applied ledger mutation.
func (m *Metrics) RecordStockMovement(direction string, qty int64) {
	if m == nil {
		return
	}
	m.stockMovements.WithLabelValues(direction).Inc()
	m.stockQuantity.WithLabelValues(direction).Add(float64(qty))
}

// RecordStockRejection counts a refused ledger mutation.
func (m *Metrics) RecordStockRejection(reason string) {
	if m == nil {
		return
	}
	m.stockRejections.WithLabelValues(reason).Inc()
}

// RecordRejectedLine counts a skipped note line.
func (m *Metrics) RecordRejectedLine(module, reason string) {
	if m == nil {
		return
	}
	m.rejectedLines.WithLabelValues(module, reason).Inc()
}

// RecordCompensation counts a note undone by its compensating rollback.
func (m *Metrics) RecordCompensation(module string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(module).Inc()
}

// RecordCacheLookup counts a dashboard cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
