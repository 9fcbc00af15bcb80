package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fieldbill/fieldbill/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the catalog module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/items", h.handleCreateItem)
	r.Get("/items", h.handleListItems)
	r.Get("/items/{id}", h.handleGetItem)
	r.Get("/items/sku/{sku}", h.handleGetItemBySKU)

	r.Post("/warehouses", h.handleCreateWarehouse)
	r.Get("/warehouses", h.handleListWarehouses)
	r.Put("/warehouses/{id}/activate", h.handleActivateWarehouse)

	r.Post("/labor-roles", h.handleCreateLaborRole)
	r.Get("/labor-roles", h.handleListLaborRoles)
}

type createItemRequest struct {
	SKU              string          `json:"sku" validate:"required"`
	Name             string          `json:"name" validate:"required"`
	UnitKind         string          `json:"unit_kind" validate:"required,oneof=ea hour ft flat"`
	DefaultSellPrice decimal.Decimal `json:"default_sell_price"`
}

type createWarehouseRequest struct {
	Code string `json:"code" validate:"required"`
	Name string `json:"name" validate:"required"`
}

type createLaborRoleRequest struct {
	Code     string          `json:"code" validate:"required"`
	Name     string          `json:"name" validate:"required"`
	BillRate decimal.Decimal `json:"bill_rate"`
	CostRate decimal.Decimal `json:"cost_rate"`
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body", "validation")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), "validation")
		return
	}
	item, err := h.service.CreateItem(r.Context(), Item{
		SKU:              req.SKU,
		Name:             req.Name,
		UnitKind:         UnitKind(req.UnitKind),
		DefaultSellPrice: req.DefaultSellPrice,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListActiveItems(r.Context())
	if err != nil {
		h.logger.Error("list items failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleGetItemBySKU(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItemBySKU(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleCreateWarehouse(w http.ResponseWriter, r *http.Request) {
	var req createWarehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body", "validation")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), "validation")
		return
	}
	wh, err := h.service.CreateWarehouse(r.Context(), Warehouse{Code: req.Code, Name: req.Name})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, wh)
}

func (h *Handler) handleListWarehouses(w http.ResponseWriter, r *http.Request) {
	whs, err := h.service.ListWarehouses(r.Context())
	if err != nil {
		h.logger.Error("list warehouses failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, whs)
}

func (h *Handler) handleActivateWarehouse(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.SetActiveWarehouse(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"activated": id})
}

func (h *Handler) handleCreateLaborRole(w http.ResponseWriter, r *http.Request) {
	var req createLaborRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body", "validation")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), "validation")
		return
	}
	role, err := h.service.CreateLaborRole(r.Context(), LaborRole{
		Code:     req.Code,
		Name:     req.Name,
		BillRate: req.BillRate,
		CostRate: req.CostRate,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) handleListLaborRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListLaborRoles(r.Context())
	if err != nil {
		h.logger.Error("list labor roles failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}
