package dashboard

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
)

// Handler exposes the dashboard endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.summary)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	period, err := ParseMonth(r.URL.Query().Get("month"), h.service.Now())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Month", err.Error())
		return
	}
	summary, err := h.service.Summary(r.Context(), period)
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			return
		}
		h.logger.Error("dashboard summary", slog.String("period", period.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
