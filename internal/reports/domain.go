package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

// RollupQuery bounds a rollup by time and, optionally, warehouse.
type RollupQuery struct {
	From        time.Time
	To          time.Time
	WarehouseID int64
}

// LedgerTotals aggregates the stock ledger over a range.
type LedgerTotals struct {
	ReceiptQty    decimal.Decimal `json:"receipt_qty"`
	ReceiptValue  decimal.Decimal `json:"receipt_value"`
	IssueQty      decimal.Decimal `json:"issue_qty"`
	COGS          decimal.Decimal `json:"cogs"`
	AdjustQty     decimal.Decimal `json:"adjust_qty"`
	AdjustValue   decimal.Decimal `json:"adjust_value"`
	MovementCount int64           `json:"movement_count"`
}

// InvoiceTotals aggregates non-draft invoices over a range.
type InvoiceTotals struct {
	Count    int64           `json:"count"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// Rollup is the reporting result for one query window.
type Rollup struct {
	From        time.Time       `json:"from"`
	To          time.Time       `json:"to"`
	WarehouseID int64           `json:"warehouse_id,omitempty"`
	Ledger      LedgerTotals    `json:"ledger"`
	Invoices    InvoiceTotals   `json:"invoices"`
	GrossMargin decimal.Decimal `json:"gross_margin"`
	CachedAt    time.Time       `json:"cached_at"`
}
