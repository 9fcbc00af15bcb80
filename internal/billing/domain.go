package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceType names the kind of billable row a line was assembled from.
type SourceType string

const (
	SourceTimeEntry SourceType = "time_entry"
	SourcePartUsage SourceType = "part_usage"
	SourceFlatTask  SourceType = "flat_task"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceTimeEntry, SourcePartUsage, SourceFlatTask:
		return true
	}
	return false
}

// InvoiceStatus is the lifecycle state. Allowed transitions are
// draft->sent, draft->paid and sent->paid; nothing moves backwards.
type InvoiceStatus string

const (
	StatusDraft InvoiceStatus = "draft"
	StatusSent  InvoiceStatus = "sent"
	StatusPaid  InvoiceStatus = "paid"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle permits moving to target.
func (s InvoiceStatus) CanTransition(target InvoiceStatus) bool {
	switch {
	case s == StatusDraft && target == StatusSent:
		return true
	case s == StatusDraft && target == StatusPaid:
		return true
	case s == StatusSent && target == StatusPaid:
		return true
	}
	return false
}

// Invoice is an assembled bill. Money fields are 2 dp, half-up.
type Invoice struct {
	ID        int64           `json:"id"`
	ClientID  int64           `json:"client_id"`
	Status    InvoiceStatus   `json:"status"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
	Notes     string          `json:"notes,omitempty"`
	IssuedAt  *time.Time      `json:"issued_at,omitempty"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Lines     []InvoiceLine   `json:"lines,omitempty"`
}

// InvoiceLine is one priced line. Qty keeps 4 dp; only the extended
// amount is rounded to money.
type InvoiceLine struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	SourceType  SourceType      `json:"source_type"`
	SourceID    int64           `json:"source_id"`
	Description string          `json:"description"`
	Qty         decimal.Decimal `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	Amount      decimal.Decimal `json:"amount"`
}

// Selection picks one unbilled source for a draft, with optional
// quantity and price overrides and a fractional discount in [0, 1).
type Selection struct {
	SourceType SourceType       `json:"source_type"`
	SourceID   int64            `json:"source_id"`
	Qty        *decimal.Decimal `json:"qty,omitempty"`
	UnitPrice  *decimal.Decimal `json:"unit_price,omitempty"`
	Discount   decimal.Decimal  `json:"discount"`
}

// CreateDraftInput assembles a draft invoice from selections.
type CreateDraftInput struct {
	ClientID   int64
	Selections []Selection
	TaxRate    decimal.Decimal
	Notes      string
	Actor      string
}

// UnbilledTime is one labor entry not yet on an invoice.
type UnbilledTime struct {
	SourceID    int64           `json:"source_id"`
	WorkOrderID int64           `json:"work_order_id"`
	Minutes     int             `json:"minutes"`
	Hours       decimal.Decimal `json:"hours"`
	BillRate    decimal.Decimal `json:"bill_rate"`
	Description string          `json:"description"`
	WorkedAt    time.Time       `json:"worked_at"`
}

// UnbilledPart is one part usage not yet on an invoice.
type UnbilledPart struct {
	SourceID    int64           `json:"source_id"`
	WorkOrderID int64           `json:"work_order_id"`
	ItemID      int64           `json:"item_id"`
	Description string          `json:"description"`
	Qty         decimal.Decimal `json:"qty"`
	SellPrice   decimal.Decimal `json:"sell_price"`
	UsedAt      time.Time       `json:"used_at"`
}

// UnbilledFlat is one flat task not yet on an invoice.
type UnbilledFlat struct {
	SourceID    int64           `json:"source_id"`
	WorkOrderID int64           `json:"work_order_id"`
	Description string          `json:"description"`
	SellPrice   decimal.Decimal `json:"sell_price"`
	DoneAt      time.Time       `json:"done_at"`
}

// UnbilledWork is the aggregator result: three chronological slices.
type UnbilledWork struct {
	ClientID int64          `json:"client_id"`
	AsOf     time.Time      `json:"as_of"`
	Time     []UnbilledTime `json:"time"`
	Parts    []UnbilledPart `json:"parts"`
	Flat     []UnbilledFlat `json:"flat"`
}

// SourceLine is what the assembler reads from a locked source row:
// defaults for quantity, price and description plus ownership.
type SourceLine struct {
	ClientID    int64
	Description string
	Qty         decimal.Decimal
	UnitPrice   decimal.Decimal
	Billable    bool
	Billed      bool
}

const moneyPlaces = 2

// quantizeMoney rounds half-up to cents.
func quantizeMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}
