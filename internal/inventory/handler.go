package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock", h.handleSnapshot)
	r.Get("/stock/{warehouseID}/{productID}", h.handleInspect)
	r.Get("/warehouses/{warehouseID}/stock", h.handleWarehouseSnapshot)
	r.Get("/low-stock", h.handleLowStock)
	r.Get("/card", h.handleStockCard)
}

func (h *Handler) handleInspect(w http.ResponseWriter, r *http.Request) {
	warehouseID, err1 := strconv.ParseInt(chi.URLParam(r, "warehouseID"), 10, 64)
	productID, err2 := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err1 != nil || err2 != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Stock Key", "warehouse and product ids must be numeric")
		return
	}
	level, err := h.service.Inspect(r.Context(), Key{WarehouseID: warehouseID, ProductID: productID})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	scope, err := ParseScope(r.URL.Query().Get("warehouse"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.snapshot(w, r, scope)
}

func (h *Handler) handleWarehouseSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "warehouseID"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, ErrInvalidScope)
		return
	}
	h.snapshot(w, r, ByWarehouse(id))
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request, scope WarehouseScope) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	productID, _ := strconv.ParseInt(q.Get("product_id"), 10, 64)
	snap, err := h.service.Snapshot(r.Context(), SnapshotQuery{
		Scope:     scope,
		ProductID: productID,
		Search:    q.Get("q"),
		Page:      page,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope, err := ParseScope(q.Get("warehouse"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	rows, err := h.service.LowStock(r.Context(), scope, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"scope":     scope,
		"min_stock": h.service.MinStockDefault(),
		"items":     rows,
	})
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := StockCardFilter{Limit: 500}
	var err error
	if filter.WarehouseID, err = strconv.ParseInt(q.Get("warehouse_id"), 10, 64); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Warehouse", "warehouse_id must be numeric")
		return
	}
	if filter.ProductID, err = strconv.ParseInt(q.Get("product_id"), 10, 64); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Product", "product_id must be numeric")
		return
	}
	if from := q.Get("from"); from != "" {
		if filter.From, err = time.Parse("2006-01-02", from); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "from must be YYYY-MM-DD")
			return
		}
	}
	if to := q.Get("to"); to != "" {
		if filter.To, err = time.Parse("2006-01-02", to); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "to must be YYYY-MM-DD")
			return
		}
		// end of day
		filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
	}
	entries, err := h.service.StockCard(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var shortErr *InsufficientStockError
	switch {
	case errors.As(err, &shortErr):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", shortErr.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidKey), errors.Is(err, ErrInvalidScope), errors.Is(err, ErrInvalidRange):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	default:
		h.logger.Error("inventory request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
