package work

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldbill/fieldbill/internal/shared"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) InsertClient(ctx context.Context, client Client) (Client, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO clients (name, email)
		VALUES ($1, $2)
		RETURNING id, created_at`,
		client.Name, client.Email,
	).Scan(&client.ID, &client.CreatedAt)
	if err != nil {
		return Client{}, fmt.Errorf("insert client: %w", err)
	}
	return client, nil
}

func (r *Repository) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, email, created_at FROM clients ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *Repository) GetClient(ctx context.Context, id int64) (Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx, `SELECT id, name, email, created_at FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, fmt.Errorf("%w: client %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return Client{}, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

func (r *Repository) InsertWorkOrder(ctx context.Context, wo WorkOrder) (WorkOrder, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO work_orders (client_id, title, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		wo.ClientID, wo.Title, string(wo.Status),
	).Scan(&wo.ID, &wo.CreatedAt)
	if err != nil {
		return WorkOrder{}, fmt.Errorf("insert work order: %w", err)
	}
	return wo, nil
}

func (r *Repository) GetWorkOrder(ctx context.Context, id int64) (WorkOrder, error) {
	var wo WorkOrder
	err := r.pool.QueryRow(ctx, `
		SELECT id, client_id, title, status, created_at
		FROM work_orders WHERE id = $1`, id,
	).Scan(&wo.ID, &wo.ClientID, &wo.Title, &wo.Status, &wo.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return WorkOrder{}, fmt.Errorf("%w: work order %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return WorkOrder{}, fmt.Errorf("get work order: %w", err)
	}
	return wo, nil
}

func (r *Repository) ListWorkOrders(ctx context.Context, clientID int64) ([]WorkOrder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, client_id, title, status, created_at
		FROM work_orders
		WHERE ($1::bigint = 0 OR client_id = $1)
		ORDER BY id DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list work orders: %w", err)
	}
	defer rows.Close()

	var orders []WorkOrder
	for rows.Next() {
		var wo WorkOrder
		if err := rows.Scan(&wo.ID, &wo.ClientID, &wo.Title, &wo.Status, &wo.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan work order: %w", err)
		}
		orders = append(orders, wo)
	}
	return orders, rows.Err()
}

func (r *Repository) CloseWorkOrder(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE work_orders SET status = $1 WHERE id = $2`, string(WorkOrderClosed), id)
	if err != nil {
		return fmt.Errorf("close work order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: work order %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *Repository) InsertTimeEntry(ctx context.Context, entry TimeEntry) (TimeEntry, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO time_entries
			(work_order_id, client_id, labor_role_id, minutes, bill_rate, cost_rate, billable, notes, worked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		entry.WorkOrderID, entry.ClientID, entry.LaborRoleID, entry.Minutes,
		entry.BillRate, entry.CostRate, entry.Billable, entry.Notes, entry.WorkedAt,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return TimeEntry{}, fmt.Errorf("insert time entry: %w", err)
	}
	return entry, nil
}

func (r *Repository) InsertPartUsage(ctx context.Context, usage PartUsage) (PartUsage, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO part_usages
			(work_order_id, client_id, item_id, warehouse_id, qty, unit_cost, sell_price, billable, used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		usage.WorkOrderID, usage.ClientID, usage.ItemID, usage.WarehouseID,
		usage.Qty, usage.UnitCost, usage.SellPrice, usage.Billable, usage.UsedAt,
	).Scan(&usage.ID, &usage.CreatedAt)
	if err != nil {
		return PartUsage{}, fmt.Errorf("insert part usage: %w", err)
	}
	return usage, nil
}

func (r *Repository) InsertFlatTask(ctx context.Context, task FlatTask) (FlatTask, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO flat_tasks
			(work_order_id, client_id, item_id, description, sell_price, billable, done_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		task.WorkOrderID, task.ClientID, task.ItemID, task.Description,
		task.SellPrice, task.Billable, task.DoneAt,
	).Scan(&task.ID, &task.CreatedAt)
	if err != nil {
		return FlatTask{}, fmt.Errorf("insert flat task: %w", err)
	}
	return task, nil
}
