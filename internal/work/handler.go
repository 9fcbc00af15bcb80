package work

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fieldbill/fieldbill/internal/platform/httpx"
	"github.com/fieldbill/fieldbill/internal/shared"
)

// Handler wires HTTP endpoints for the work module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers work routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/clients", h.handleCreateClient)
	r.Get("/clients", h.handleListClients)

	r.Post("/orders", h.handleCreateWorkOrder)
	r.Get("/orders", h.handleListWorkOrders)
	r.Get("/orders/{id}", h.handleGetWorkOrder)
	r.Put("/orders/{id}/close", h.handleCloseWorkOrder)

	r.Post("/orders/{id}/time", h.handleLogTime)
	r.Post("/orders/{id}/parts", h.handleConsumePart)
	r.Post("/orders/{id}/flat-tasks", h.handleAddFlatTask)
}

type createClientRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

type createWorkOrderRequest struct {
	ClientID int64  `json:"client_id" validate:"required"`
	Title    string `json:"title" validate:"required"`
}

type logTimeRequest struct {
	LaborRoleID int64            `json:"labor_role_id" validate:"required"`
	Minutes     int              `json:"minutes" validate:"required,gt=0"`
	BillRate    *decimal.Decimal `json:"bill_rate,omitempty"`
	CostRate    *decimal.Decimal `json:"cost_rate,omitempty"`
	NonBillable bool             `json:"non_billable"`
	Notes       string           `json:"notes,omitempty"`
	WorkedAt    *time.Time       `json:"worked_at,omitempty"`
}

type consumePartRequest struct {
	ItemID      int64            `json:"item_id" validate:"required"`
	WarehouseID int64            `json:"warehouse_id"`
	Qty         decimal.Decimal  `json:"qty" validate:"required"`
	SellPrice   *decimal.Decimal `json:"sell_price,omitempty"`
	NonBillable bool             `json:"non_billable"`
	UsedAt      *time.Time       `json:"used_at,omitempty"`
	Code        string           `json:"code,omitempty"`
}

type addFlatTaskRequest struct {
	ItemID      int64            `json:"item_id" validate:"required"`
	Description string           `json:"description,omitempty"`
	SellPrice   *decimal.Decimal `json:"sell_price,omitempty"`
	NonBillable bool             `json:"non_billable"`
	DoneAt      *time.Time       `json:"done_at,omitempty"`
}

func (h *Handler) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body", "validation")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), "validation")
		return
	}
	client, err := h.service.CreateClient(r.Context(), Client{Name: req.Name, Email: req.Email})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, client)
}

func (h *Handler) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.ListClients(r.Context())
	if err != nil {
		h.logger.Error("list clients failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, clients)
}

func (h *Handler) handleCreateWorkOrder(w http.ResponseWriter, r *http.Request) {
	var req createWorkOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body", "validation")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), "validation")
		return
	}
	wo, err := h.service.CreateWorkOrder(r.Context(), WorkOrder{ClientID: req.ClientID, Title: req.Title})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, wo)
}

func (h *Handler) handleListWorkOrders(w http.ResponseWriter, r *http.Request) {
	clientID, _ := strconv.ParseInt(r.URL.Query().Get("client_id"), 10, 64)
	orders, err := h.service.ListWorkOrders(r.Context(), clientID)
	if err != nil {
		h.logger.Error("list work orders failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) handleGetWorkOrder(w http.ResponseWriter, r *http.Request) {
	wo, err := h.service.GetWorkOrder(r.Context(), urlID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wo)
}

func (h *Handler) handleCloseWorkOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CloseWorkOrder(r.Context(), urlID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(WorkOrderClosed)})
}

func (h *Handler) handleLogTime(w http.ResponseWriter, r *http.Request) {
	var req logTimeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body", "validation")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), "validation")
		return
	}
	input := LogTimeInput{
		WorkOrderID: urlID(r),
		LaborRoleID: req.LaborRoleID,
		Minutes:     req.Minutes,
		BillRate:    req.BillRate,
		CostRate:    req.CostRate,
		NonBillable: req.NonBillable,
		Notes:       req.Notes,
		Actor:       shared.ActorFromContext(r.Context()),
	}
	if req.WorkedAt != nil {
		input.WorkedAt = *req.WorkedAt
	}
	entry, err := h.service.LogTime(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleConsumePart(w http.ResponseWriter, r *http.Request) {
	var req consumePartRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body", "validation")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), "validation")
		return
	}
	input := ConsumePartInput{
		WorkOrderID: urlID(r),
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Qty:         req.Qty,
		SellPrice:   req.SellPrice,
		NonBillable: req.NonBillable,
		Actor:       shared.ActorFromContext(r.Context()),
		Code:        req.Code,
	}
	if req.UsedAt != nil {
		input.UsedAt = *req.UsedAt
	}
	usage, err := h.service.ConsumePart(r.Context(), input)
	if err != nil {
		h.logError(r, "consume part failed", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, usage)
}

func (h *Handler) handleAddFlatTask(w http.ResponseWriter, r *http.Request) {
	var req addFlatTaskRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body", "validation")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), "validation")
		return
	}
	input := AddFlatTaskInput{
		WorkOrderID: urlID(r),
		ItemID:      req.ItemID,
		Description: req.Description,
		SellPrice:   req.SellPrice,
		NonBillable: req.NonBillable,
		Actor:       shared.ActorFromContext(r.Context()),
	}
	if req.DoneAt != nil {
		input.DoneAt = *req.DoneAt
	}
	task, err := h.service.AddFlatTask(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, task)
}

func (h *Handler) logError(r *http.Request, msg string, err error) {
	if shared.ErrorCode(err) == "internal" || shared.ErrorCode(err) == "insufficient_lot" {
		h.logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func urlID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}
