package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldbill/fieldbill/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	FindUnbilled(ctx context.Context, clientID int64, asOf time.Time) (UnbilledWork, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, clientID int64) ([]Invoice, error)
}

// TxRepository exposes the assembler's writes inside one transaction.
// LoadSourceForUpdate row-locks the source so the billed check and the
// line insert cannot interleave with a competing draft; the uniqueness
// constraint on (source_type, source_id) closes the remaining race.
type TxRepository interface {
	LoadSourceForUpdate(ctx context.Context, sourceType SourceType, sourceID int64) (SourceLine, error)
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	InsertInvoiceLine(ctx context.Context, line InvoiceLine) (int64, error)
	MarkSourceBilled(ctx context.Context, sourceType SourceType, sourceID, lineID int64) error
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, inv Invoice) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service assembles invoices from unbilled work and drives the
// invoice lifecycle.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// FindUnbilled returns, per client, the billable sources not yet tied
// to an invoice line as of the given cutoff. Pure read.
func (s *Service) FindUnbilled(ctx context.Context, clientID int64, asOf time.Time) (UnbilledWork, error) {
	if clientID <= 0 {
		return UnbilledWork{}, fmt.Errorf("%w: client required", shared.ErrValidation)
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	return s.repo.FindUnbilled(ctx, clientID, asOf)
}

// CreateDraft assembles a draft invoice from the selected sources.
// Lines, the invoice row and the source back-references are written in
// one transaction; an already-billed source fails the whole draft.
func (s *Service) CreateDraft(ctx context.Context, input CreateDraftInput) (Invoice, error) {
	if input.ClientID <= 0 {
		return Invoice{}, fmt.Errorf("%w: client required", shared.ErrValidation)
	}
	if len(input.Selections) == 0 {
		return Invoice{}, fmt.Errorf("%w: at least one selection required", shared.ErrValidation)
	}
	if input.TaxRate.Sign() < 0 {
		return Invoice{}, fmt.Errorf("%w: tax rate must be >= 0", shared.ErrValidation)
	}
	one := decimal.NewFromInt(1)
	for _, sel := range input.Selections {
		if !sel.SourceType.Valid() {
			return Invoice{}, fmt.Errorf("%w: unknown source type %q", shared.ErrValidation, sel.SourceType)
		}
		if sel.SourceID <= 0 {
			return Invoice{}, fmt.Errorf("%w: source id required", shared.ErrValidation)
		}
		if sel.Discount.Sign() < 0 || sel.Discount.Cmp(one) >= 0 {
			return Invoice{}, fmt.Errorf("%w: discount must be in [0, 1)", shared.ErrValidation)
		}
		if sel.Qty != nil && sel.Qty.Sign() <= 0 {
			return Invoice{}, fmt.Errorf("%w: quantity override must be positive", shared.ErrValidation)
		}
		if sel.UnitPrice != nil && sel.UnitPrice.Sign() < 0 {
			return Invoice{}, fmt.Errorf("%w: price override must be >= 0", shared.ErrValidation)
		}
	}

	var invoice Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lines := make([]InvoiceLine, 0, len(input.Selections))
		subtotal := decimal.Zero
		for _, sel := range input.Selections {
			src, err := tx.LoadSourceForUpdate(ctx, sel.SourceType, sel.SourceID)
			if err != nil {
				return err
			}
			if src.ClientID != input.ClientID {
				return fmt.Errorf("%w: %s %d belongs to another client", shared.ErrValidation, sel.SourceType, sel.SourceID)
			}
			if !src.Billable {
				return fmt.Errorf("%w: %s %d is not billable", shared.ErrValidation, sel.SourceType, sel.SourceID)
			}
			if src.Billed {
				return fmt.Errorf("%w: %s %d", shared.ErrAlreadyBilled, sel.SourceType, sel.SourceID)
			}

			qty := src.Qty
			if sel.Qty != nil {
				qty = *sel.Qty
			}
			price := src.UnitPrice
			if sel.UnitPrice != nil {
				price = *sel.UnitPrice
			}
			amount := quantizeMoney(qty.Mul(price).Mul(one.Sub(sel.Discount)))

			lines = append(lines, InvoiceLine{
				SourceType:  sel.SourceType,
				SourceID:    sel.SourceID,
				Description: src.Description,
				Qty:         qty,
				UnitPrice:   price,
				Discount:    sel.Discount,
				Amount:      amount,
			})
			subtotal = subtotal.Add(amount)
		}

		total := quantizeMoney(subtotal.Mul(one.Add(input.TaxRate)))
		invoice = Invoice{
			ClientID: input.ClientID,
			Status:   StatusDraft,
			TaxRate:  input.TaxRate,
			Subtotal: subtotal,
			Tax:      total.Sub(subtotal),
			Total:    total,
			Notes:    input.Notes,
		}
		invoiceID, err := tx.InsertInvoice(ctx, invoice)
		if err != nil {
			return err
		}
		invoice.ID = invoiceID

		for i := range lines {
			lines[i].InvoiceID = invoiceID
			lineID, err := tx.InsertInvoiceLine(ctx, lines[i])
			if err != nil {
				return err
			}
			lines[i].ID = lineID
			if err := tx.MarkSourceBilled(ctx, lines[i].SourceType, lines[i].SourceID, lineID); err != nil {
				return err
			}
		}
		invoice.Lines = lines
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}

	s.recordAudit(ctx, input.Actor, "billing:create_draft", invoice.ID, map[string]any{
		"client_id": input.ClientID,
		"total":     invoice.Total.String(),
		"lines":     len(invoice.Lines),
	})
	return invoice, nil
}

// Finalize moves the invoice to target. Sending stamps issued_at,
// paying stamps paid_at (and issued_at when paying straight from draft).
func (s *Service) Finalize(ctx context.Context, invoiceID int64, target InvoiceStatus) (Invoice, error) {
	if invoiceID <= 0 {
		return Invoice{}, fmt.Errorf("%w: invalid invoice id", shared.ErrValidation)
	}
	if !target.Valid() || target == StatusDraft {
		return Invoice{}, fmt.Errorf("%w: target %q is not reachable", shared.ErrInvalidTransition, target)
	}

	var invoice Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Status.CanTransition(target) {
			return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, inv.Status, target)
		}

		now := time.Now().UTC()
		switch target {
		case StatusSent:
			inv.IssuedAt = &now
		case StatusPaid:
			if inv.IssuedAt == nil {
				inv.IssuedAt = &now
			}
			inv.PaidAt = &now
		}
		inv.Status = target
		if err := tx.UpdateInvoiceStatus(ctx, inv); err != nil {
			return err
		}
		invoice = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}

	s.recordAudit(ctx, shared.ActorFromContext(ctx), "billing:finalize", invoice.ID, map[string]any{
		"status": string(invoice.Status),
	})
	return invoice, nil
}

func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	if id <= 0 {
		return Invoice{}, fmt.Errorf("%w: invalid invoice id", shared.ErrValidation)
	}
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context, clientID int64) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, clientID)
}

func (s *Service) recordAudit(ctx context.Context, actor, action string, invoiceID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if actor == "" {
		actor = shared.ActorFromContext(ctx)
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "invoices",
		EntityID: fmt.Sprintf("%d", invoiceID),
		Meta:     meta,
	})
}
