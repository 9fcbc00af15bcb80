package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UnitKind is how an item is measured and billed.
type UnitKind string

const (
	UnitEach UnitKind = "ea"
	UnitHour UnitKind = "hour"
	UnitFoot UnitKind = "ft"
	UnitFlat UnitKind = "flat"
)

func (u UnitKind) Valid() bool {
	switch u {
	case UnitEach, UnitHour, UnitFoot, UnitFlat:
		return true
	}
	return false
}

// Item is a sellable part, labor line or flat-rate task in the catalog.
type Item struct {
	ID               int64           `json:"id"`
	SKU              string          `json:"sku"`
	Name             string          `json:"name"`
	UnitKind         UnitKind        `json:"unit_kind"`
	DefaultSellPrice decimal.Decimal `json:"default_sell_price"`
	Active           bool            `json:"active"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Warehouse is a stock location. Exactly one warehouse is active at a
// time; movements that omit a warehouse resolve to the active one.
type Warehouse struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// LaborRole carries the default bill and cost rates for time entries.
type LaborRole struct {
	ID        int64           `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	BillRate  decimal.Decimal `json:"bill_rate"`
	CostRate  decimal.Decimal `json:"cost_rate"`
	CreatedAt time.Time       `json:"created_at"`
}

// AliasResolver maps an external alias or barcode to a catalog item.
// Resolution lives outside this module; callers inject an implementation.
type AliasResolver interface {
	ResolveAlias(ctx context.Context, alias string) (int64, error)
}
