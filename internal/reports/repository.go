package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LedgerTotals aggregates ledger rows by kind over the window. COGS is
// the absolute issued value: issue rows carry negative deltas.
func (r *Repository) LedgerTotals(ctx context.Context, q RollupQuery) (LedgerTotals, error) {
	var totals LedgerTotals
	totals.ReceiptQty = decimal.Zero
	totals.ReceiptValue = decimal.Zero
	totals.IssueQty = decimal.Zero
	totals.COGS = decimal.Zero
	totals.AdjustQty = decimal.Zero
	totals.AdjustValue = decimal.Zero

	rows, err := r.pool.Query(ctx, `
		SELECT kind,
		       COALESCE(SUM(qty_delta), 0),
		       COALESCE(SUM(qty_delta * unit_cost), 0),
		       COUNT(*)
		FROM stock_ledger
		WHERE moved_at >= $1 AND moved_at <= $2
		  AND ($3::bigint = 0 OR warehouse_id = $3)
		GROUP BY kind`, q.From, q.To, q.WarehouseID)
	if err != nil {
		return LedgerTotals{}, fmt.Errorf("ledger totals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind  string
			qty   decimal.Decimal
			value decimal.Decimal
			count int64
		)
		if err := rows.Scan(&kind, &qty, &value, &count); err != nil {
			return LedgerTotals{}, fmt.Errorf("scan ledger totals: %w", err)
		}
		totals.MovementCount += count
		switch kind {
		case "RECEIPT":
			totals.ReceiptQty = qty
			totals.ReceiptValue = value
		case "ISSUE":
			totals.IssueQty = qty.Neg()
			totals.COGS = value.Neg()
		case "ADJUST":
			totals.AdjustQty = qty
			totals.AdjustValue = value
		}
	}
	return totals, rows.Err()
}

// InvoiceTotals aggregates sent and paid invoices created in the window.
func (r *Repository) InvoiceTotals(ctx context.Context, from, to time.Time) (InvoiceTotals, error) {
	var totals InvoiceTotals
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(subtotal), 0),
		       COALESCE(SUM(tax), 0),
		       COALESCE(SUM(total), 0)
		FROM invoices
		WHERE status <> 'draft' AND created_at >= $1 AND created_at <= $2`,
		from, to,
	).Scan(&totals.Count, &totals.Subtotal, &totals.Tax, &totals.Revenue)
	if err != nil {
		return InvoiceTotals{}, fmt.Errorf("invoice totals: %w", err)
	}
	return totals, nil
}
