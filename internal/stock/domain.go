package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind enumerates supported stock movements.
type MovementKind string

const (
	// MovementReceipt represents an inbound purchase/receipt lot.
	MovementReceipt MovementKind = "RECEIPT"
	// MovementIssue represents consumption against FIFO lots.
	MovementIssue MovementKind = "ISSUE"
	// MovementAdjust indicates manual corrections, either sign.
	MovementAdjust MovementKind = "ADJUST"
)

// ReferenceType tags the business document a movement originated from.
type ReferenceType string

const (
	RefWorkEntry     ReferenceType = "work_entry"
	RefPurchaseOrder ReferenceType = "purchase_order"
	RefInit          ReferenceType = "init"
)

// Lot is a discrete batch of received stock. Remaining quantity only ever
// decreases and never exceeds the received quantity; unit cost is immutable
// once the lot exists.
type Lot struct {
	ID           int64           `json:"id"`
	ItemID       int64           `json:"item_id"`
	WarehouseID  int64           `json:"warehouse_id"`
	ReceivedQty  decimal.Decimal `json:"received_qty"`
	RemainingQty decimal.Decimal `json:"remaining_qty"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	ReceivedAt   time.Time       `json:"received_at"`
	Supplier     *string         `json:"supplier,omitempty"`
	LotCode      *string         `json:"lot_code,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// LedgerEntry is one immutable row in the append-only stock ledger.
// Corrections are new ADJUST entries, never edits.
type LedgerEntry struct {
	ID          int64           `json:"id"`
	ItemID      int64           `json:"item_id"`
	WarehouseID int64           `json:"warehouse_id"`
	LotID       *int64          `json:"lot_id,omitempty"`
	Kind        MovementKind    `json:"kind"`
	QtyDelta    decimal.Decimal `json:"qty_delta"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	RefType     ReferenceType   `json:"ref_type"`
	RefID       string          `json:"ref_id,omitempty"`
	MovedAt     time.Time       `json:"moved_at"`
	Actor       string          `json:"actor,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OnHand summarises current quantity and cost basis for an (item, warehouse) pair.
type OnHand struct {
	ItemID      int64           `json:"item_id"`
	WarehouseID int64           `json:"warehouse_id"`
	Qty         decimal.Decimal `json:"qty"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
}

// IssueResult reports a completed FIFO issue: one ledger entry per lot
// touched, each carrying that lot's unit cost.
type IssueResult struct {
	Entries   []LedgerEntry   `json:"entries"`
	TotalQty  decimal.Decimal `json:"total_qty"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// AverageCost returns the weighted unit cost of the issue at 4 decimal places.
func (r IssueResult) AverageCost() decimal.Decimal {
	if r.TotalQty.IsZero() {
		return decimal.Zero
	}
	return r.TotalCost.DivRound(r.TotalQty, qtyPlaces)
}

// ReceiveInput describes an inbound receipt.
type ReceiveInput struct {
	ItemID      int64
	WarehouseID int64
	Qty         decimal.Decimal
	UnitCost    decimal.Decimal
	ReceivedAt  time.Time
	Supplier    *string
	LotCode     *string
	RefType     ReferenceType
	RefID       string
	Actor       string
	Code        string
}

// ReceiveResult pairs the created lot with its RECEIPT ledger entry.
type ReceiveResult struct {
	Lot   Lot         `json:"lot"`
	Entry LedgerEntry `json:"entry"`
}

// IssueInput describes a FIFO consumption request.
type IssueInput struct {
	ItemID      int64
	WarehouseID int64
	Qty         decimal.Decimal
	MovedAt     time.Time
	RefType     ReferenceType
	RefID       string
	Actor       string
	Code        string
}

// AdjustInput describes a signed correction. Positive deltas create a new
// lot at the given unit cost; negative deltas deplete FIFO like an issue.
type AdjustInput struct {
	ItemID      int64
	WarehouseID int64
	Delta       decimal.Decimal
	UnitCost    decimal.Decimal
	MovedAt     time.Time
	RefType     ReferenceType
	RefID       string
	Actor       string
	Code        string
}

// AdjustResult reports the ledger entries written by an adjustment.
type AdjustResult struct {
	Entries []LedgerEntry `json:"entries"`
	// Lot is set when the adjustment created a new lot (positive delta).
	Lot *Lot `json:"lot,omitempty"`
}

// LedgerFilter restricts ledger-range queries for the reporting layer.
type LedgerFilter struct {
	ItemID      int64
	WarehouseID int64
	From        time.Time
	To          time.Time
	Limit       int
}

const qtyPlaces = 4

// quantizeQty normalises a quantity to 4 decimal places, half up.
func quantizeQty(d decimal.Decimal) decimal.Decimal {
	return d.Round(qtyPlaces)
}
