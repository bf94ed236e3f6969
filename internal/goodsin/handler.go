package goodsin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-wms/internal/debt"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Handler exposes goods-in endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	money    *shared.MoneyFormatter
	validate *httpx.Validator
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, money *shared.MoneyFormatter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, money: money, validate: httpx.NewValidator()}
}

// MountRoutes registers goods-in routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Delete("/{id}", h.delete)
}

type createRequest struct {
	WarehouseID     int64              `json:"warehouse_id"`
	SupplierID      int64              `json:"supplier_id" validate:"gte=0"`
	NewSupplierName string             `json:"new_supplier_name" validate:"max=255"`
	Note            string             `json:"note" validate:"max=1000"`
	ProductNames    []httpx.FlexString `json:"product_names" validate:"max=500"`
	Quantities      []httpx.FlexString `json:"quantities" validate:"max=500"`
	UnitPrices      []httpx.FlexString `json:"unit_prices" validate:"max=500"`
}

type createResponse struct {
	Result
	Total        string `json:"total"`
	TotalDisplay string `json:"total_display"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	n := httpx.MaxLen(req.ProductNames, req.Quantities, req.UnitPrices)
	lines := make([]RawLine, 0, n)
	for i := 0; i < n; i++ {
		lines = append(lines, RawLine{
			ProductName: httpx.At(req.ProductNames, i),
			Quantity:    httpx.At(req.Quantities, i),
			UnitPrice:   httpx.At(req.UnitPrices, i),
		})
	}
	result, err := h.service.CreateNote(r.Context(), CreateNoteInput{
		SupplierID:      req.SupplierID,
		NewSupplierName: req.NewSupplierName,
		WarehouseID:     req.WarehouseID,
		Note:            req.Note,
		Lines:           lines,
		ActorID:         shared.ActorFromContext(r.Context()),
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, createResponse{
		Result:       result,
		Total:        result.Note.Total.StringFixed(2),
		TotalDisplay: h.money.Format(result.Note.Total),
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Search: q.Get("q")}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	var err error
	if filter.From, filter.To, err = httpx.ParseDateRange(q.Get("from"), q.Get("to")); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
		return
	}
	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":              result.Items,
		"page_total":         result.PageTotal,
		"page_total_display": h.money.Format(result.PageTotal),
		"pagination":         result.Pagination,
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Note", "note id must be numeric")
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Note", "note id must be numeric")
		return
	}
	if err := h.service.DeleteNote(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var shortErr *inventory.InsufficientStockError
	switch {
	case errors.Is(err, ErrMissingSupplier), errors.Is(err, ErrInvalidWarehouse), errors.Is(err, ErrInvalidRange):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Goods-In Note", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Goods-In Note Not Found", err.Error())
	case errors.Is(err, ErrDuplicateRequest):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.As(err, &shortErr):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", shortErr.Error())
	case errors.Is(err, debt.ErrDebtHasPayments):
		httpx.Problem(w, http.StatusConflict, "Debt Already Paid", err.Error())
	default:
		h.logger.Error("goods-in request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
