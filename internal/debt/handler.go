package debt

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Handler exposes debt endpoints.
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

// MountRoutes registers debt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/aging", h.aging)
	r.Get("/{id}", h.show)
	r.Post("/{id}/payments", h.pay)
}

type paymentRequest struct {
	Amount string `json:"amount" validate:"required"`
	PaidAt string `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
	Note   string `json:"note" validate:"max=500"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	status := Status(q.Get("status"))
	switch status {
	case "", StatusOpen, StatusPartial, StatusPaid:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Invalid Status", "status must be open, partial or paid")
		return
	}
	result, err := h.service.List(r.Context(), ListFilter{SupplierID: supplierID, Status: status, Page: page})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}
	bucket, err := h.service.Aging(r.Context(), asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"as_of":   asOf.Format("2006-01-02"),
		"buckets": bucket,
		"total":   bucket.Total(),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Debt", "debt id must be numeric")
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Debt", "debt id must be numeric")
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", "amount must be a decimal number")
		return
	}
	input := PaymentInput{DebtID: id, Amount: amount, Note: req.Note, ActorID: shared.ActorFromContext(r.Context())}
	if req.PaidAt != "" {
		input.PaidAt, _ = time.Parse("2006-01-02", req.PaidAt)
	}
	updated, payment, err := h.service.RecordPayment(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"debt": updated, "payment": payment})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Debt Not Found", err.Error())
	case errors.Is(err, ErrInvalidAmount):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
	case errors.Is(err, ErrOverpayment), errors.Is(err, ErrAlreadyPaid), errors.Is(err, ErrDebtHasPayments):
		httpx.Problem(w, http.StatusConflict, "Payment Rejected", err.Error())
	default:
		h.logger.Error("debt request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
