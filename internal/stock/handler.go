package stock

import (
	"context"
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

// WarehouseResolver supplies the active warehouse when a request omits one.
type WarehouseResolver interface {
	ActiveWarehouseID(ctx context.Context) (int64, error)
}

// Handler wires HTTP endpoints for the stock module.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	warehouses WarehouseResolver
	validate   *validator.Validate
}

// NewHandler constructs stock handler.
func NewHandler(logger *slog.Logger, service *Service, warehouses WarehouseResolver) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		warehouses: warehouses,
		validate:   validator.New(),
	}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receipts", h.handleReceive)
	r.Post("/issues", h.handleIssue)
	r.Post("/adjustments", h.handleAdjust)
	r.Get("/on-hand", h.handleOnHand)
	r.Get("/ledger", h.handleLedger)
}

type receiveRequest struct {
	ItemID      int64           `json:"item_id" validate:"required"`
	WarehouseID int64           `json:"warehouse_id"`
	Qty         decimal.Decimal `json:"qty" validate:"required"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	ReceivedAt  *time.Time      `json:"received_at,omitempty"`
	Supplier    *string         `json:"supplier,omitempty"`
	LotCode     *string         `json:"lot_code,omitempty"`
	RefType     string          `json:"ref_type,omitempty"`
	RefID       string          `json:"ref_id,omitempty"`
	Code        string          `json:"code,omitempty"`
}

type issueRequest struct {
	ItemID      int64           `json:"item_id" validate:"required"`
	WarehouseID int64           `json:"warehouse_id"`
	Qty         decimal.Decimal `json:"qty" validate:"required"`
	MovedAt     *time.Time      `json:"moved_at,omitempty"`
	RefType     string          `json:"ref_type,omitempty"`
	RefID       string          `json:"ref_id,omitempty"`
	Code        string          `json:"code,omitempty"`
}

type adjustRequest struct {
	ItemID      int64           `json:"item_id" validate:"required"`
	WarehouseID int64           `json:"warehouse_id"`
	Delta       decimal.Decimal `json:"delta" validate:"required"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	MovedAt     *time.Time      `json:"moved_at,omitempty"`
	RefType     string          `json:"ref_type,omitempty"`
	RefID       string          `json:"ref_id,omitempty"`
	Code        string          `json:"code,omitempty"`
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body", "validation")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), "validation")
		return
	}
	warehouseID, err := h.resolveWarehouse(r.Context(), req.WarehouseID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	input := ReceiveInput{
		ItemID:      req.ItemID,
		WarehouseID: warehouseID,
		Qty:         req.Qty,
		UnitCost:    req.UnitCost,
		Supplier:    req.Supplier,
		LotCode:     req.LotCode,
		RefType:     ReferenceType(req.RefType),
		RefID:       req.RefID,
		Actor:       shared.ActorFromContext(r.Context()),
		Code:        req.Code,
	}
	if req.ReceivedAt != nil {
		input.ReceivedAt = *req.ReceivedAt
	}
	result, err := h.service.Receive(r.Context(), input)
	if err != nil {
		h.logError(r, "receive failed", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body", "validation")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), "validation")
		return
	}
	warehouseID, err := h.resolveWarehouse(r.Context(), req.WarehouseID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	input := IssueInput{
		ItemID:      req.ItemID,
		WarehouseID: warehouseID,
		Qty:         req.Qty,
		RefType:     ReferenceType(req.RefType),
		RefID:       req.RefID,
		Actor:       shared.ActorFromContext(r.Context()),
		Code:        req.Code,
	}
	if req.MovedAt != nil {
		input.MovedAt = *req.MovedAt
	}
	result, err := h.service.Issue(r.Context(), input)
	if err != nil {
		h.logError(r, "issue failed", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body", "validation")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), "validation")
		return
	}
	warehouseID, err := h.resolveWarehouse(r.Context(), req.WarehouseID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	input := AdjustInput{
		ItemID:      req.ItemID,
		WarehouseID: warehouseID,
		Delta:       req.Delta,
		UnitCost:    req.UnitCost,
		RefType:     ReferenceType(req.RefType),
		RefID:       req.RefID,
		Actor:       shared.ActorFromContext(r.Context()),
		Code:        req.Code,
	}
	if req.MovedAt != nil {
		input.MovedAt = *req.MovedAt
	}
	result, err := h.service.Adjust(r.Context(), input)
	if err != nil {
		h.logError(r, "adjust failed", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleOnHand(w http.ResponseWriter, r *http.Request) {
	itemID := parseID(r.URL.Query().Get("item_id"))
	warehouseID, err := h.resolveWarehouse(r.Context(), parseID(r.URL.Query().Get("warehouse_id")))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.OnHand(r.Context(), itemID, warehouseID)
	if err != nil {
		h.logError(r, "on-hand failed", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := LedgerFilter{
		ItemID:      parseID(q.Get("item_id")),
		WarehouseID: parseID(q.Get("warehouse_id")),
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from timestamp", "validation")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to timestamp", "validation")
			return
		}
		filter.To = t
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}
	entries, err := h.service.Ledger(r.Context(), filter)
	if err != nil {
		h.logError(r, "ledger failed", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) resolveWarehouse(ctx context.Context, warehouseID int64) (int64, error) {
	if warehouseID != 0 {
		return warehouseID, nil
	}
	if h.warehouses == nil {
		return 0, shared.ErrNotFound
	}
	return h.warehouses.ActiveWarehouseID(ctx)
}

func (h *Handler) logError(r *http.Request, msg string, err error) {
	if shared.ErrorCode(err) == "internal" || shared.ErrorCode(err) == "insufficient_lot" {
		h.logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func parseID(s string) int64 {
	id, _ := strconv.ParseInt(s, 10, 64)
	return id
}
