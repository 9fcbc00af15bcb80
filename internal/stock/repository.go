package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fieldbill/fieldbill/internal/platform/db"
	"github.com/fieldbill/fieldbill/internal/shared"
)

// Repository persists lots and the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// OnHand sums remaining lot quantities and cost basis for the pair.
func (r *Repository) OnHand(ctx context.Context, itemID, warehouseID int64) (OnHand, error) {
	if r == nil {
		return OnHand{}, errors.New("stock repository not initialised")
	}
	const query = `
		SELECT COALESCE(SUM(remaining_qty), 0),
		       COALESCE(SUM(remaining_qty * unit_cost), 0)
		FROM inventory_lots
		WHERE item_id = $1 AND warehouse_id = $2`
	out := OnHand{ItemID: itemID, WarehouseID: warehouseID}
	if err := r.pool.QueryRow(ctx, query, itemID, warehouseID).Scan(&out.Qty, &out.CostBasis); err != nil {
		return OnHand{}, fmt.Errorf("stock: on hand: %w", err)
	}
	return out, nil
}

// Ledger lists entries for the pair within the optional time range.
func (r *Repository) Ledger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	const query = `
		SELECT id, item_id, warehouse_id, lot_id, kind, qty_delta, unit_cost,
		       ref_type, ref_id, moved_at, actor, created_at
		FROM stock_ledger
		WHERE item_id = $1
		  AND ($2::bigint = 0 OR warehouse_id = $2)
		  AND ($3::timestamptz IS NULL OR moved_at >= $3)
		  AND ($4::timestamptz IS NULL OR moved_at <= $4)
		ORDER BY id ASC
		LIMIT $5`
	rows, err := r.pool.Query(ctx, query, filter.ItemID, filter.WarehouseID,
		nullableTime(filter.From), nullableTime(filter.To), limit)
	if err != nil {
		return nil, fmt.Errorf("stock: ledger range: %w", err)
	}
	defer rows.Close()
	return scanLedgerEntries(rows)
}

// Reconciliation captures ledger-vs-lots drift for one (item, warehouse) pair.
type Reconciliation struct {
	ItemID      int64
	WarehouseID int64
	LedgerQty   decimal.Decimal
	LotQty      decimal.Decimal
}

// Drift reports whether the pair fails the reconciliation invariant.
func (r Reconciliation) Drift() bool {
	return !r.LedgerQty.Equal(r.LotQty)
}

// ReconcileAll replays ledger deltas against lot remainders per pair.
// Healthy pairs come back too so the integrity job can report coverage.
func (r *Repository) ReconcileAll(ctx context.Context) ([]Reconciliation, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	const query = `
		SELECT l.item_id, l.warehouse_id,
		       COALESCE(SUM(l.qty_delta), 0) AS ledger_qty,
		       COALESCE(lots.remaining, 0) AS lot_qty
		FROM stock_ledger l
		LEFT JOIN (
			SELECT item_id, warehouse_id, SUM(remaining_qty) AS remaining
			FROM inventory_lots
			GROUP BY item_id, warehouse_id
		) lots ON lots.item_id = l.item_id AND lots.warehouse_id = l.warehouse_id
		GROUP BY l.item_id, l.warehouse_id, lots.remaining
		ORDER BY l.item_id, l.warehouse_id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("stock: reconcile: %w", err)
	}
	defer rows.Close()

	var result []Reconciliation
	for rows.Next() {
		var rec Reconciliation
		if err := rows.Scan(&rec.ItemID, &rec.WarehouseID, &rec.LedgerQty, &rec.LotQty); err != nil {
			return nil, fmt.Errorf("stock: reconcile scan: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (t *txRepository) ListAvailableLotsForUpdate(ctx context.Context, itemID, warehouseID int64) ([]Lot, error) {
	const query = `
		SELECT id, item_id, warehouse_id, received_qty, remaining_qty, unit_cost,
		       received_at, supplier, lot_code, created_at
		FROM inventory_lots
		WHERE item_id = $1 AND warehouse_id = $2 AND remaining_qty > 0
		ORDER BY received_at ASC, id ASC
		FOR UPDATE`
	rows, err := t.tx.Query(ctx, query, itemID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("stock: list lots: %w", err)
	}
	defer rows.Close()

	var lots []Lot
	for rows.Next() {
		var lot Lot
		if err := rows.Scan(&lot.ID, &lot.ItemID, &lot.WarehouseID, &lot.ReceivedQty,
			&lot.RemainingQty, &lot.UnitCost, &lot.ReceivedAt, &lot.Supplier,
			&lot.LotCode, &lot.CreatedAt); err != nil {
			return nil, fmt.Errorf("stock: scan lot: %w", err)
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (t *txRepository) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	if lot.ReceivedQty.Sign() <= 0 {
		return 0, fmt.Errorf("%w: lot quantity must be positive", shared.ErrValidation)
	}
	const query = `
		INSERT INTO inventory_lots (item_id, warehouse_id, received_qty, remaining_qty,
			unit_cost, received_at, supplier, lot_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query, lot.ItemID, lot.WarehouseID, lot.ReceivedQty,
		lot.RemainingQty, lot.UnitCost, lot.ReceivedAt, lot.Supplier, lot.LotCode).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("stock: insert lot: %w", err)
	}
	return id, nil
}

func (t *txRepository) DecrementLot(ctx context.Context, lotID int64, amount decimal.Decimal) error {
	const query = `
		UPDATE inventory_lots
		SET remaining_qty = remaining_qty - $2
		WHERE id = $1 AND remaining_qty >= $2`
	tag, err := t.tx.Exec(ctx, query, lotID, amount)
	if err != nil {
		return fmt.Errorf("stock: decrement lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: lot=%d amount=%s", shared.ErrInsufficientLot, lotID, amount.String())
	}
	return nil
}

func (t *txRepository) InsertLedgerEntry(ctx context.Context, entry LedgerEntry) (int64, error) {
	const query = `
		INSERT INTO stock_ledger (item_id, warehouse_id, lot_id, kind, qty_delta,
			unit_cost, ref_type, ref_id, moved_at, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, NOW())
		RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query, entry.ItemID, entry.WarehouseID, entry.LotID,
		entry.Kind, entry.QtyDelta, entry.UnitCost, entry.RefType, entry.RefID,
		entry.MovedAt, entry.Actor).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("stock: insert ledger entry: %w", err)
	}
	return id, nil
}

func scanLedgerEntries(rows pgx.Rows) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var refID *string
		if err := rows.Scan(&e.ID, &e.ItemID, &e.WarehouseID, &e.LotID, &e.Kind,
			&e.QtyDelta, &e.UnitCost, &e.RefType, &refID, &e.MovedAt, &e.Actor,
			&e.CreatedAt); err != nil {
			return nil, fmt.Errorf("stock: scan ledger entry: %w", err)
		}
		if refID != nil {
			e.RefID = *refID
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
