package goodsout

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Handler exposes goods-out endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *httpx.Validator
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: httpx.NewValidator()}
}

// MountRoutes registers goods-out routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.createIssue)
	r.Post("/transfers", h.createTransfer)
	r.Get("/{id}", h.show)
	r.Delete("/{id}", h.delete)
}

type createRequest struct {
	SourceWarehouseID      int64              `json:"source_warehouse_id"`
	DestinationWarehouseID int64              `json:"destination_warehouse_id" validate:"gte=0"`
	Note                   string             `json:"note" validate:"max=1000"`
	ProductNames           []httpx.FlexString `json:"product_names" validate:"max=500"`
	Quantities             []httpx.FlexString `json:"quantities" validate:"max=500"`
}

func (h *Handler) decode(r *http.Request) (CreateInput, error) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return CreateInput{}, err
	}
	if err := h.validate.Struct(req); err != nil {
		return CreateInput{}, err
	}
	n := httpx.MaxLen(req.ProductNames, req.Quantities)
	lines := make([]RawLine, 0, n)
	for i := 0; i < n; i++ {
		lines = append(lines, RawLine{
			ProductName: httpx.At(req.ProductNames, i),
			Quantity:    httpx.At(req.Quantities, i),
		})
	}
	return CreateInput{
		SourceWarehouseID:      req.SourceWarehouseID,
		DestinationWarehouseID: req.DestinationWarehouseID,
		Note:                   req.Note,
		Lines:                  lines,
		ActorID:                shared.ActorFromContext(r.Context()),
		IdempotencyKey:         r.Header.Get("Idempotency-Key"),
	}, nil
}

func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request) {
	input, err := h.decode(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.CreateInternalTransfer(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) createIssue(w http.ResponseWriter, r *http.Request) {
	input, err := h.decode(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.CreateIssue(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Kind: Kind(q.Get("kind")), Search: q.Get("q")}
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
	httpx.JSON(w, http.StatusOK, result)
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

type insufficientBody struct {
	httpx.ProblemDetail
	Product   string `json:"product"`
	Available int64  `json:"available"`
	Requested int64  `json:"requested"`
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var shortErr *inventory.InsufficientStockError
	switch {
	case errors.Is(err, ErrSameWarehouse), errors.Is(err, ErrEmptyLineItems),
		errors.Is(err, ErrInvalidWarehouse), errors.Is(err, ErrInvalidRange):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Goods-Out Note", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Goods-Out Note Not Found", err.Error())
	case errors.Is(err, ErrDuplicateRequest):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.As(err, &shortErr):
		httpx.JSON(w, http.StatusConflict, insufficientBody{
			ProblemDetail: httpx.ProblemDetail{
				Title:  "Insufficient Stock",
				Status: http.StatusConflict,
				Detail: shortErr.Error(),
			},
			Product:   shortErr.Product,
			Available: shortErr.Available,
			Requested: shortErr.Requested,
		})
	default:
		h.logger.Error("goods-out request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
