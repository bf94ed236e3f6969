package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-wms/internal/audit"
	"github.com/odyssey-erp/odyssey-wms/internal/dashboard"
	"github.com/odyssey-erp/odyssey-wms/internal/debt"
	"github.com/odyssey-erp/odyssey-wms/internal/goodsin"
	"github.com/odyssey-erp/odyssey-wms/internal/goodsout"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-wms/internal/observability"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/stockcount"
	"github.com/odyssey-erp/odyssey-wms/jobs"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	InventoryHandler  *inventory.Handler
	GoodsInHandler    *goodsin.Handler
	GoodsOutHandler   *goodsout.Handler
	StockCountHandler *stockcount.Handler
	WarehouseHandler  *warehouses.Handler
	DebtHandler       *debt.Handler
	DashboardHandler  *dashboard.Handler
	AuditHandler      *audit.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
	Database          Pinger
}

// NewRouter constructs the chi.Router with WMS defaults. Nil handlers leave
// their routes unmounted.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if params.Database != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Database.Ping(ctx); err != nil {
				httpx.Problem(w, http.StatusServiceUnavailable, "Database unavailable", err.Error())
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if params.InventoryHandler != nil {
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
	}
	if params.GoodsInHandler != nil {
		r.Route("/goods-in", params.GoodsInHandler.MountRoutes)
	}
	if params.GoodsOutHandler != nil {
		r.Route("/goods-out", params.GoodsOutHandler.MountRoutes)
	}
	if params.StockCountHandler != nil {
		r.Route("/stock-counts", params.StockCountHandler.MountRoutes)
	}
	if params.WarehouseHandler != nil {
		r.Route("/warehouses", params.WarehouseHandler.MountRoutes)
	}
	if params.DebtHandler != nil {
		r.Route("/debts", params.DebtHandler.MountRoutes)
	}
	if params.DashboardHandler != nil {
		r.Route("/dashboard", params.DashboardHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
