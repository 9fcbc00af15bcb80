package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldbill/fieldbill/internal/platform/db"
	"github.com/fieldbill/fieldbill/internal/shared"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) InsertItem(ctx context.Context, item Item) (Item, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO catalog_items (sku, name, unit_kind, default_sell_price, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		item.SKU, item.Name, string(item.UnitKind), item.DefaultSellPrice, item.Active,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return Item{}, fmt.Errorf("insert item: %w", err)
	}
	return item, nil
}

func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	return r.scanItem(r.pool.QueryRow(ctx, `
		SELECT id, sku, name, unit_kind, default_sell_price, active, created_at
		FROM catalog_items WHERE id = $1`, id))
}

func (r *Repository) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	return r.scanItem(r.pool.QueryRow(ctx, `
		SELECT id, sku, name, unit_kind, default_sell_price, active, created_at
		FROM catalog_items WHERE sku = $1`, sku))
}

func (r *Repository) ListActiveItems(ctx context.Context) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sku, name, unit_kind, default_sell_price, active, created_at
		FROM catalog_items WHERE active ORDER BY sku`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SKU, &it.Name, &it.UnitKind, &it.DefaultSellPrice, &it.Active, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Repository) scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.SKU, &it.Name, &it.UnitKind, &it.DefaultSellPrice, &it.Active, &it.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: item", shared.ErrNotFound)
	}
	if err != nil {
		return Item{}, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

func (r *Repository) InsertWarehouse(ctx context.Context, wh Warehouse) (Warehouse, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO warehouses (code, name, is_active)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		wh.Code, wh.Name, wh.IsActive,
	).Scan(&wh.ID, &wh.CreatedAt)
	if err != nil {
		return Warehouse{}, fmt.Errorf("insert warehouse: %w", err)
	}
	return wh, nil
}

func (r *Repository) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, name, is_active, created_at
		FROM warehouses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list warehouses: %w", err)
	}
	defer rows.Close()

	var whs []Warehouse
	for rows.Next() {
		var wh Warehouse
		if err := rows.Scan(&wh.ID, &wh.Code, &wh.Name, &wh.IsActive, &wh.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan warehouse: %w", err)
		}
		whs = append(whs, wh)
	}
	return whs, rows.Err()
}

func (r *Repository) ActiveWarehouse(ctx context.Context) (Warehouse, error) {
	var wh Warehouse
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, name, is_active, created_at
		FROM warehouses WHERE is_active LIMIT 1`,
	).Scan(&wh.ID, &wh.Code, &wh.Name, &wh.IsActive, &wh.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, fmt.Errorf("%w: no active warehouse", shared.ErrNotFound)
	}
	if err != nil {
		return Warehouse{}, fmt.Errorf("active warehouse: %w", err)
	}
	return wh, nil
}

// ActivateWarehouse makes id the single active warehouse.
func (r *Repository) ActivateWarehouse(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE warehouses SET is_active = false WHERE is_active`); err != nil {
			return fmt.Errorf("deactivate warehouses: %w", err)
		}
		tag, err := tx.Exec(ctx, `UPDATE warehouses SET is_active = true WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("activate warehouse: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: warehouse %d", shared.ErrNotFound, id)
		}
		return nil
	})
}

func (r *Repository) InsertLaborRole(ctx context.Context, role LaborRole) (LaborRole, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO labor_roles (code, name, bill_rate, cost_rate)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		role.Code, role.Name, role.BillRate, role.CostRate,
	).Scan(&role.ID, &role.CreatedAt)
	if err != nil {
		return LaborRole{}, fmt.Errorf("insert labor role: %w", err)
	}
	return role, nil
}

func (r *Repository) GetLaborRole(ctx context.Context, id int64) (LaborRole, error) {
	var role LaborRole
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, name, bill_rate, cost_rate, created_at
		FROM labor_roles WHERE id = $1`, id,
	).Scan(&role.ID, &role.Code, &role.Name, &role.BillRate, &role.CostRate, &role.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return LaborRole{}, fmt.Errorf("%w: labor role %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return LaborRole{}, fmt.Errorf("get labor role: %w", err)
	}
	return role, nil
}

func (r *Repository) ListLaborRoles(ctx context.Context) ([]LaborRole, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, name, bill_rate, cost_rate, created_at
		FROM labor_roles ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list labor roles: %w", err)
	}
	defer rows.Close()

	var roles []LaborRole
	for rows.Next() {
		var role LaborRole
		if err := rows.Scan(&role.ID, &role.Code, &role.Name, &role.BillRate, &role.CostRate, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan labor role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
