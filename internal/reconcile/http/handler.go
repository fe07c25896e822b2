package reconcilehttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/platform/httpx"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/reconcile"
)

// DegradedHeader marks a report served empty because storage failed.
const DegradedHeader = "X-Report-Degraded"

// AgingService builds aging reports.
type AgingService interface {
	GetAgingReport(ctx context.Context, q reconcile.AgingQuery) (reconcile.Result, error)
}

// Handler exposes the aging endpoint.
type Handler struct {
	logger  *slog.Logger
	service AgingService
}

// NewHandler constructs the aging handler.
func NewHandler(logger *slog.Logger, service AgingService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/aging", h.aging)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	res, err := h.service.GetAgingReport(r.Context(), reconcile.AgingQuery{
		EndDate: query.Get("end_date"),
		Basis:   query.Get("basis"),
	})
	if err != nil {
		if httpx.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("aging report", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	if res.Degraded {
		w.Header().Set(DegradedHeader, "true")
	}
	httpx.JSON(w, http.StatusOK, res.Report)
}
