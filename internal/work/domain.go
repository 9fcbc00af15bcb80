package work

import (
	"time"

	"github.com/shopspring/decimal"
)

// Client is the billed party.
type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type WorkOrderStatus string

const (
	WorkOrderOpen   WorkOrderStatus = "open"
	WorkOrderClosed WorkOrderStatus = "closed"
)

// WorkOrder groups the billable sources recorded for one job.
type WorkOrder struct {
	ID        int64           `json:"id"`
	ClientID  int64           `json:"client_id"`
	Title     string          `json:"title"`
	Status    WorkOrderStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// TimeEntry is billable or non-billable labor in minutes. Rates default
// from the labor role and may be overridden per entry.
type TimeEntry struct {
	ID            int64            `json:"id"`
	WorkOrderID   int64            `json:"work_order_id"`
	ClientID      int64            `json:"client_id"`
	LaborRoleID   int64            `json:"labor_role_id"`
	Minutes       int              `json:"minutes"`
	BillRate      decimal.Decimal  `json:"bill_rate"`
	CostRate      decimal.Decimal  `json:"cost_rate"`
	Billable      bool             `json:"billable"`
	Notes         string           `json:"notes,omitempty"`
	WorkedAt      time.Time        `json:"worked_at"`
	InvoiceLineID *int64           `json:"invoice_line_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Hours converts minutes to fractional hours at ledger precision.
func (t TimeEntry) Hours() decimal.Decimal {
	return decimal.NewFromInt(int64(t.Minutes)).DivRound(decimal.NewFromInt(60), 4)
}

// PartUsage records stock consumed against a work order. UnitCost is the
// weighted FIFO cost snapshotted from the issue that backed it.
type PartUsage struct {
	ID            int64           `json:"id"`
	WorkOrderID   int64           `json:"work_order_id"`
	ClientID      int64           `json:"client_id"`
	ItemID        int64           `json:"item_id"`
	WarehouseID   int64           `json:"warehouse_id"`
	Qty           decimal.Decimal `json:"qty"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	SellPrice     decimal.Decimal `json:"sell_price"`
	Billable      bool            `json:"billable"`
	UsedAt        time.Time       `json:"used_at"`
	InvoiceLineID *int64          `json:"invoice_line_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// FlatTask is a fixed-price line tied to a flat-unit catalog item.
type FlatTask struct {
	ID            int64           `json:"id"`
	WorkOrderID   int64           `json:"work_order_id"`
	ClientID      int64           `json:"client_id"`
	ItemID        int64           `json:"item_id"`
	Description   string          `json:"description"`
	SellPrice     decimal.Decimal `json:"sell_price"`
	Billable      bool            `json:"billable"`
	DoneAt        time.Time       `json:"done_at"`
	InvoiceLineID *int64          `json:"invoice_line_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// LogTimeInput carries one labor recording.
type LogTimeInput struct {
	WorkOrderID  int64
	LaborRoleID  int64
	Minutes      int
	BillRate     *decimal.Decimal
	CostRate     *decimal.Decimal
	NonBillable  bool
	Notes        string
	WorkedAt     time.Time
	Actor        string
}

// ConsumePartInput carries one stock consumption against a work order.
type ConsumePartInput struct {
	WorkOrderID int64
	ItemID      int64
	WarehouseID int64
	Qty         decimal.Decimal
	SellPrice   *decimal.Decimal
	NonBillable bool
	UsedAt      time.Time
	Actor       string
	Code        string
}

// AddFlatTaskInput carries one fixed-price task.
type AddFlatTaskInput struct {
	WorkOrderID int64
	ItemID      int64
	Description string
	SellPrice   *decimal.Decimal
	NonBillable bool
	DoneAt      time.Time
	Actor       string
}
