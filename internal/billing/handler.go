package billing

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

// Handler wires HTTP endpoints for the billing module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/unbilled", h.handleUnbilled)
	r.Post("/invoices", h.handleCreateDraft)
	r.Get("/invoices", h.handleListInvoices)
	r.Get("/invoices/{id}", h.handleGetInvoice)
	r.Put("/invoices/{id}/status", h.handleFinalize)
}

type createDraftRequest struct {
	ClientID   int64           `json:"client_id" validate:"required"`
	Selections []Selection     `json:"selections" validate:"required,min=1"`
	TaxRate    decimal.Decimal `json:"tax_rate"`
	Notes      string          `json:"notes,omitempty"`
}

// The target status goes through the service state machine, which
// rejects anything but sent/paid as an invalid transition.
type finalizeRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) handleUnbilled(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID, _ := strconv.ParseInt(q.Get("client_id"), 10, 64)
	var asOf time.Time
	if raw := q.Get("as_of"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid as_of timestamp", "validation")
			return
		}
		asOf = t
	}
	work, err := h.service.FindUnbilled(r.Context(), clientID, asOf)
	if err != nil {
		h.logError(r, "unbilled scan failed", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, work)
}

func (h *Handler) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var req createDraftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body", "validation")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), "validation")
		return
	}
	invoice, err := h.service.CreateDraft(r.Context(), CreateDraftInput{
		ClientID:   req.ClientID,
		Selections: req.Selections,
		TaxRate:    req.TaxRate,
		Notes:      req.Notes,
		Actor:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logError(r, "create draft failed", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	clientID, _ := strconv.ParseInt(r.URL.Query().Get("client_id"), 10, 64)
	invoices, err := h.service.ListInvoices(r.Context(), clientID)
	if err != nil {
		h.logger.Error("list invoices failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	invoice, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body", "validation")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), "validation")
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	invoice, err := h.service.Finalize(r.Context(), id, InvoiceStatus(req.Status))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) logError(r *http.Request, msg string, err error) {
	if shared.ErrorCode(err) == "internal" {
		h.logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}
