package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	ingesthttp "github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/ingest/http"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/observability"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/platform/httpx"
	reconcilehttp "github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/reconcile/http"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	AgingHandler  *reconcilehttp.Handler
	UploadHandler *ingesthttp.Handler
	JobHandler    *jobs.Handler
	Metrics       *observability.Metrics
}

// NewRouter constructs the chi.Router with dashboard defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		if params.AgingHandler != nil {
			params.AgingHandler.MountRoutes(r)
		}
		if params.UploadHandler != nil {
			params.UploadHandler.MountRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Error(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Error(w, http.StatusMethodNotAllowed, "")
	})

	return r
}
