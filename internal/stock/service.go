package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fieldbill/fieldbill/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	OnHand(ctx context.Context, itemID, warehouseID int64) (OnHand, error)
	Ledger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error)
}

// TxRepository exposes the lot store and ledger inside one transaction.
// Lots come back oldest-first by (received_at, id) and row-locked, so two
// concurrent issues against the same pair serialise on the lot rows.
type TxRepository interface {
	ListAvailableLotsForUpdate(ctx context.Context, itemID, warehouseID int64) ([]Lot, error)
	InsertLot(ctx context.Context, lot Lot) (int64, error)
	DecrementLot(ctx context.Context, lotID int64, amount decimal.Decimal) error
	InsertLedgerEntry(ctx context.Context, entry LedgerEntry) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MovementCounter counts posted movements for metrics.
type MovementCounter interface {
	CountMovement(kind string)
}

// Service is the depletion engine: it owns every mutation of lots and the
// ledger and keeps the two reconciled inside a single transaction.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	counter     MovementCounter
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, counter MovementCounter) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, counter: counter}
}

// Receive creates one new lot and one RECEIPT ledger entry atomically.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (ReceiveResult, error) {
	if input.ItemID == 0 || input.WarehouseID == 0 {
		return ReceiveResult{}, fmt.Errorf("%w: item and warehouse required", shared.ErrValidation)
	}
	qty := quantizeQty(input.Qty)
	if qty.Sign() <= 0 {
		return ReceiveResult{}, fmt.Errorf("%w: receipt quantity must be positive", shared.ErrValidation)
	}
	cost := quantizeQty(input.UnitCost)
	if cost.Sign() < 0 {
		return ReceiveResult{}, fmt.Errorf("%w: unit cost must be >= 0", shared.ErrValidation)
	}
	if err := s.validateRef(input.RefID); err != nil {
		return ReceiveResult{}, err
	}

	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	key, inserted, err := s.claimKey(ctx, MovementReceipt, input.Code, input.WarehouseID, input.ItemID)
	if err != nil {
		return ReceiveResult{}, err
	}

	var result ReceiveResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lot := Lot{
			ItemID:       input.ItemID,
			WarehouseID:  input.WarehouseID,
			ReceivedQty:  qty,
			RemainingQty: qty,
			UnitCost:     cost,
			ReceivedAt:   receivedAt,
			Supplier:     input.Supplier,
			LotCode:      input.LotCode,
		}
		lotID, err := tx.InsertLot(ctx, lot)
		if err != nil {
			return err
		}
		lot.ID = lotID

		entry := LedgerEntry{
			ItemID:      input.ItemID,
			WarehouseID: input.WarehouseID,
			LotID:       &lot.ID,
			Kind:        MovementReceipt,
			QtyDelta:    qty,
			UnitCost:    cost,
			RefType:     refTypeOrDefault(input.RefType, RefPurchaseOrder),
			RefID:       input.RefID,
			MovedAt:     receivedAt,
			Actor:       input.Actor,
		}
		entryID, err := tx.InsertLedgerEntry(ctx, entry)
		if err != nil {
			return err
		}
		entry.ID = entryID
		result = ReceiveResult{Lot: lot, Entry: entry}
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, key, inserted)
		return ReceiveResult{}, err
	}

	s.recordAudit(ctx, input.Actor, MovementReceipt, input.ItemID, input.WarehouseID, qty)
	return result, nil
}

// Issue consumes stock oldest-lot-first. The operation is all-or-nothing:
// if total availability is short, nothing is written and the caller gets
// an insufficient-stock error.
func (s *Service) Issue(ctx context.Context, input IssueInput) (IssueResult, error) {
	if input.ItemID == 0 || input.WarehouseID == 0 {
		return IssueResult{}, fmt.Errorf("%w: item and warehouse required", shared.ErrValidation)
	}
	qty := quantizeQty(input.Qty)
	if qty.Sign() <= 0 {
		return IssueResult{}, fmt.Errorf("%w: issue quantity must be positive", shared.ErrValidation)
	}
	if err := s.validateRef(input.RefID); err != nil {
		return IssueResult{}, err
	}

	movedAt := input.MovedAt
	if movedAt.IsZero() {
		movedAt = time.Now().UTC()
	}

	key, inserted, err := s.claimKey(ctx, MovementIssue, input.Code, input.WarehouseID, input.ItemID)
	if err != nil {
		return IssueResult{}, err
	}

	var result IssueResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entries, totalCost, err := s.depleteFIFO(ctx, tx, depletion{
			ItemID:      input.ItemID,
			WarehouseID: input.WarehouseID,
			Qty:         qty,
			Kind:        MovementIssue,
			RefType:     refTypeOrDefault(input.RefType, RefWorkEntry),
			RefID:       input.RefID,
			Actor:       input.Actor,
			MovedAt:     movedAt,
		})
		if err != nil {
			return err
		}
		result = IssueResult{Entries: entries, TotalQty: qty, TotalCost: totalCost}
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, key, inserted)
		return IssueResult{}, err
	}

	s.recordAudit(ctx, input.Actor, MovementIssue, input.ItemID, input.WarehouseID, qty.Neg())
	return result, nil
}

// Adjust posts a signed correction. Mechanically a positive delta is a
// receipt and a negative delta is an issue; only the recorded kind differs.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (AdjustResult, error) {
	if input.ItemID == 0 || input.WarehouseID == 0 {
		return AdjustResult{}, fmt.Errorf("%w: item and warehouse required", shared.ErrValidation)
	}
	delta := quantizeQty(input.Delta)
	if delta.IsZero() {
		return AdjustResult{}, fmt.Errorf("%w: adjustment delta must be non-zero", shared.ErrValidation)
	}
	if delta.Sign() > 0 && quantizeQty(input.UnitCost).Sign() < 0 {
		return AdjustResult{}, fmt.Errorf("%w: unit cost must be >= 0", shared.ErrValidation)
	}
	if err := s.validateRef(input.RefID); err != nil {
		return AdjustResult{}, err
	}

	movedAt := input.MovedAt
	if movedAt.IsZero() {
		movedAt = time.Now().UTC()
	}

	key, inserted, err := s.claimKey(ctx, MovementAdjust, input.Code, input.WarehouseID, input.ItemID)
	if err != nil {
		return AdjustResult{}, err
	}

	var result AdjustResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		refType := refTypeOrDefault(input.RefType, RefInit)
		if delta.Sign() > 0 {
			lot := Lot{
				ItemID:       input.ItemID,
				WarehouseID:  input.WarehouseID,
				ReceivedQty:  delta,
				RemainingQty: delta,
				UnitCost:     quantizeQty(input.UnitCost),
				ReceivedAt:   movedAt,
			}
			lotID, err := tx.InsertLot(ctx, lot)
			if err != nil {
				return err
			}
			lot.ID = lotID

			entry := LedgerEntry{
				ItemID:      input.ItemID,
				WarehouseID: input.WarehouseID,
				LotID:       &lot.ID,
				Kind:        MovementAdjust,
				QtyDelta:    delta,
				UnitCost:    lot.UnitCost,
				RefType:     refType,
				RefID:       input.RefID,
				MovedAt:     movedAt,
				Actor:       input.Actor,
			}
			entryID, err := tx.InsertLedgerEntry(ctx, entry)
			if err != nil {
				return err
			}
			entry.ID = entryID
			result = AdjustResult{Entries: []LedgerEntry{entry}, Lot: &lot}
			return nil
		}

		entries, _, err := s.depleteFIFO(ctx, tx, depletion{
			ItemID:      input.ItemID,
			WarehouseID: input.WarehouseID,
			Qty:         delta.Neg(),
			Kind:        MovementAdjust,
			RefType:     refType,
			RefID:       input.RefID,
			Actor:       input.Actor,
			MovedAt:     movedAt,
		})
		if err != nil {
			return err
		}
		result = AdjustResult{Entries: entries}
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, key, inserted)
		return AdjustResult{}, err
	}

	s.recordAudit(ctx, input.Actor, MovementAdjust, input.ItemID, input.WarehouseID, delta)
	return result, nil
}

// OnHand returns current quantity and cost basis for the pair. The result
// must always equal a full replay of the ledger; the reconciliation job
// checks exactly that.
func (s *Service) OnHand(ctx context.Context, itemID, warehouseID int64) (OnHand, error) {
	if itemID == 0 || warehouseID == 0 {
		return OnHand{}, fmt.Errorf("%w: item and warehouse required", shared.ErrValidation)
	}
	return s.repo.OnHand(ctx, itemID, warehouseID)
}

// Ledger lists ledger entries for a range; used by the reporting layer.
func (s *Service) Ledger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	if filter.ItemID == 0 {
		return nil, fmt.Errorf("%w: item required", shared.ErrValidation)
	}
	return s.repo.Ledger(ctx, filter)
}

type depletion struct {
	ItemID      int64
	WarehouseID int64
	Qty         decimal.Decimal
	Kind        MovementKind
	RefType     ReferenceType
	RefID       string
	Actor       string
	MovedAt     time.Time
}

// depleteFIFO walks available lots oldest-first and writes one ledger row
// per lot touched. Sufficiency is verified up front so the walk can never
// hit an insufficient-lot condition on a correct repository.
func (s *Service) depleteFIFO(ctx context.Context, tx TxRepository, d depletion) ([]LedgerEntry, decimal.Decimal, error) {
	lots, err := tx.ListAvailableLotsForUpdate(ctx, d.ItemID, d.WarehouseID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	available := decimal.Zero
	for _, lot := range lots {
		available = available.Add(lot.RemainingQty)
	}
	if available.Cmp(d.Qty) < 0 {
		return nil, decimal.Zero, fmt.Errorf("%w: item=%d warehouse=%d short %s",
			shared.ErrInsufficientStock, d.ItemID, d.WarehouseID, d.Qty.Sub(available).String())
	}

	outstanding := d.Qty
	totalCost := decimal.Zero
	entries := make([]LedgerEntry, 0, 1)
	for _, lot := range lots {
		if outstanding.Sign() <= 0 {
			break
		}
		take := decimal.Min(lot.RemainingQty, outstanding)
		if take.Sign() <= 0 {
			continue
		}
		if err := tx.DecrementLot(ctx, lot.ID, take); err != nil {
			return nil, decimal.Zero, err
		}
		lotID := lot.ID
		entry := LedgerEntry{
			ItemID:      d.ItemID,
			WarehouseID: d.WarehouseID,
			LotID:       &lotID,
			Kind:        d.Kind,
			QtyDelta:    take.Neg(),
			UnitCost:    lot.UnitCost,
			RefType:     d.RefType,
			RefID:       d.RefID,
			MovedAt:     d.MovedAt,
			Actor:       d.Actor,
		}
		entryID, err := tx.InsertLedgerEntry(ctx, entry)
		if err != nil {
			return nil, decimal.Zero, err
		}
		entry.ID = entryID
		entries = append(entries, entry)
		totalCost = totalCost.Add(lot.UnitCost.Mul(take))
		outstanding = outstanding.Sub(take)
	}

	return entries, quantizeQty(totalCost), nil
}

func (s *Service) validateRef(refID string) error {
	if refID == "" {
		return nil
	}
	if _, err := uuid.Parse(refID); err != nil {
		return fmt.Errorf("%w: invalid reference id", shared.ErrValidation)
	}
	return nil
}

func (s *Service) claimKey(ctx context.Context, kind MovementKind, code string, warehouseID, itemID int64) (string, bool, error) {
	if s.idempotency == nil || code == "" {
		return "", false, nil
	}
	key := fmt.Sprintf("%s:%s:%d:%d", kind, code, warehouseID, itemID)
	if err := s.idempotency.CheckAndInsert(ctx, key, "stock"); err != nil {
		return "", false, err
	}
	return key, true, nil
}

func (s *Service) releaseKey(ctx context.Context, key string, inserted bool) {
	if inserted {
		_ = s.idempotency.Delete(ctx, key)
	}
}

func (s *Service) recordAudit(ctx context.Context, actor string, kind MovementKind, itemID, warehouseID int64, delta decimal.Decimal) {
	if s.counter != nil {
		s.counter.CountMovement(string(kind))
	}
	if s.audit == nil {
		return
	}
	if actor == "" {
		actor = shared.ActorFromContext(ctx)
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   fmt.Sprintf("stock:%s", kind),
		Entity:   "stock_ledger",
		EntityID: fmt.Sprintf("%d:%d", itemID, warehouseID),
		Meta: map[string]any{
			"item_id":      itemID,
			"warehouse_id": warehouseID,
			"qty_delta":    delta.String(),
		},
	})
}

func refTypeOrDefault(rt ReferenceType, fallback ReferenceType) ReferenceType {
	if rt == "" {
		return fallback
	}
	return rt
}
