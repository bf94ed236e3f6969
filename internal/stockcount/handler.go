package stockcount

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Handler exposes stock-count endpoints.
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

// MountRoutes registers stock-count routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Post("/{id}/lines", h.submitLine)
	r.Post("/{id}/submit", h.submitBatch)
	r.Post("/{id}/finalize", h.finalize)
}

type createRequest struct {
	Code          string `json:"code" validate:"required,max=50"`
	Name          string `json:"name" validate:"required,max=255"`
	WarehouseID   int64  `json:"warehouse_id" validate:"required,gt=0"`
	ScheduledDate string `json:"scheduled_date" validate:"required"`
	ResponsibleID int64  `json:"responsible_id" validate:"gte=0"`
	Description   string `json:"description" validate:"max=1000"`
}

type batchRequest struct {
	Lines    []Submission `json:"lines" validate:"required,min=1,max=1000,dive"`
	Finalize bool         `json:"finalize"`
}

type finalizeRequest struct {
	RequiredProducts []int64 `json:"required_products" validate:"max=5000"`
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
	scheduled, err := time.Parse(httpx.DateLayout, req.ScheduledDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "scheduled_date must be YYYY-MM-DD")
		return
	}
	campaign, err := h.service.CreateCampaign(r.Context(), CreateInput{
		Code:          req.Code,
		Name:          req.Name,
		WarehouseID:   req.WarehouseID,
		ScheduledDate: scheduled,
		ResponsibleID: req.ResponsibleID,
		Description:   req.Description,
		ActorID:       shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, campaign)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Search: q.Get("q"), Status: Status(q.Get("status"))}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
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
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) submitLine(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	var req Submission
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, err := h.service.SubmitCount(r.Context(), id, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) submitBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	var req batchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	lines, campaign, err := h.service.SubmitBatch(r.Context(), id, req.Lines, req.Finalize, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"campaign": campaign, "lines": lines})
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	var req finalizeRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	campaign, err := h.service.Finalize(r.Context(), id, req.RequiredProducts, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, campaign)
}

func campaignID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Campaign", "campaign id must be numeric")
		return 0, false
	}
	return id, true
}

type incompleteBody struct {
	httpx.ProblemDetail
	Missing []int64 `json:"missing"`
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var incomplete *IncompleteCountError
	switch {
	case errors.As(err, &incomplete):
		httpx.JSON(w, http.StatusConflict, incompleteBody{
			ProblemDetail: httpx.ProblemDetail{
				Title:  "Incomplete Count",
				Status: http.StatusConflict,
				Detail: incomplete.Error(),
			},
			Missing: incomplete.Missing,
		})
	case errors.Is(err, ErrInvalidCampaign), errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrEmptyLineItems), errors.Is(err, ErrInvalidRange):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Stock Count", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Stock Count Not Found", err.Error())
	case errors.Is(err, ErrCampaignCompleted), errors.Is(err, ErrDuplicateCode):
		httpx.Problem(w, http.StatusConflict, "Stock Count Conflict", err.Error())
	default:
		h.logger.Error("stock count request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
