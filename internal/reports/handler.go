package reports

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldbill/fieldbill/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the reports module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/rollup", h.handleRollup)
	r.Get("/rollup.csv", h.handleRollupCSV)
}

func (h *Handler) handleRollup(w http.ResponseWriter, r *http.Request) {
	q, ok := h.parseQuery(w, r)
	if !ok {
		return
	}
	rollup, err := h.service.Rollup(r.Context(), q)
	if err != nil {
		h.logger.Error("rollup failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rollup)
}

func (h *Handler) handleRollupCSV(w http.ResponseWriter, r *http.Request) {
	q, ok := h.parseQuery(w, r)
	if !ok {
		return
	}
	rollup, err := h.service.Rollup(r.Context(), q)
	if err != nil {
		h.logger.Error("rollup failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="rollup.csv"`)
	if err := h.service.WriteCSV(w, rollup); err != nil {
		h.logger.Error("csv export failed", slog.Any("error", err))
	}
}

func (h *Handler) parseQuery(w http.ResponseWriter, r *http.Request) (RollupQuery, bool) {
	values := r.URL.Query()
	from, err := time.Parse(time.RFC3339, values.Get("from"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from timestamp", "validation")
		return RollupQuery{}, false
	}
	to, err := time.Parse(time.RFC3339, values.Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to timestamp", "validation")
		return RollupQuery{}, false
	}
	warehouseID, _ := strconv.ParseInt(values.Get("warehouse_id"), 10, 64)
	return RollupQuery{From: from, To: to, WarehouseID: warehouseID}, true
}
