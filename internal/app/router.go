package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldbill/fieldbill/internal/billing"
	"github.com/fieldbill/fieldbill/internal/catalog"
	"github.com/fieldbill/fieldbill/internal/observability"
	"github.com/fieldbill/fieldbill/internal/reports"
	"github.com/fieldbill/fieldbill/internal/stock"
	"github.com/fieldbill/fieldbill/internal/work"
	"github.com/fieldbill/fieldbill/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	StockHandler   *stock.Handler
	BillingHandler *billing.Handler
	CatalogHandler *catalog.Handler
	WorkHandler    *work.Handler
	ReportsHandler *reports.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with fieldbill defaults.
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
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.CatalogHandler != nil {
		r.Route("/catalog", func(r chi.Router) {
			params.CatalogHandler.MountRoutes(r)
		})
	}
	if params.StockHandler != nil {
		r.Route("/stock", func(r chi.Router) {
			params.StockHandler.MountRoutes(r)
		})
	}
	if params.WorkHandler != nil {
		r.Route("/work", func(r chi.Router) {
			params.WorkHandler.MountRoutes(r)
		})
	}
	if params.BillingHandler != nil {
		r.Route("/billing", func(r chi.Router) {
			params.BillingHandler.MountRoutes(r)
		})
	}
	if params.ReportsHandler != nil {
		r.Route("/reports", func(r chi.Router) {
			params.ReportsHandler.MountRoutes(r)
		})
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			params.JobHandler.MountRoutes(r)
		})
	}

	return r
}
