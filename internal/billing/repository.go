package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fieldbill/fieldbill/internal/platform/db"
	"github.com/fieldbill/fieldbill/internal/shared"
)

const uniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// FindUnbilled returns billable sources without an invoice line,
// recorded up to asOf, each slice oldest-first.
func (r *Repository) FindUnbilled(ctx context.Context, clientID int64, asOf time.Time) (UnbilledWork, error) {
	out := UnbilledWork{ClientID: clientID, AsOf: asOf}

	rows, err := r.pool.Query(ctx, `
		SELECT id, work_order_id, minutes, bill_rate, COALESCE(NULLIF(notes, ''), 'Labor'), worked_at
		FROM time_entries
		WHERE client_id = $1 AND billable AND invoice_line_id IS NULL AND created_at <= $2
		ORDER BY created_at ASC, id ASC`, clientID, asOf)
	if err != nil {
		return UnbilledWork{}, fmt.Errorf("unbilled time: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t UnbilledTime
		if err := rows.Scan(&t.SourceID, &t.WorkOrderID, &t.Minutes, &t.BillRate, &t.Description, &t.WorkedAt); err != nil {
			return UnbilledWork{}, fmt.Errorf("scan unbilled time: %w", err)
		}
		t.Hours = minutesToHours(t.Minutes)
		out.Time = append(out.Time, t)
	}
	if err := rows.Err(); err != nil {
		return UnbilledWork{}, err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT pu.id, pu.work_order_id, pu.item_id, ci.name, pu.qty, pu.sell_price, pu.used_at
		FROM part_usages pu
		JOIN catalog_items ci ON ci.id = pu.item_id
		WHERE pu.client_id = $1 AND pu.billable AND pu.invoice_line_id IS NULL AND pu.created_at <= $2
		ORDER BY pu.created_at ASC, pu.id ASC`, clientID, asOf)
	if err != nil {
		return UnbilledWork{}, fmt.Errorf("unbilled parts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p UnbilledPart
		if err := rows.Scan(&p.SourceID, &p.WorkOrderID, &p.ItemID, &p.Description, &p.Qty, &p.SellPrice, &p.UsedAt); err != nil {
			return UnbilledWork{}, fmt.Errorf("scan unbilled part: %w", err)
		}
		out.Parts = append(out.Parts, p)
	}
	if err := rows.Err(); err != nil {
		return UnbilledWork{}, err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT id, work_order_id, description, sell_price, done_at
		FROM flat_tasks
		WHERE client_id = $1 AND billable AND invoice_line_id IS NULL AND created_at <= $2
		ORDER BY created_at ASC, id ASC`, clientID, asOf)
	if err != nil {
		return UnbilledWork{}, fmt.Errorf("unbilled flat tasks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f UnbilledFlat
		if err := rows.Scan(&f.SourceID, &f.WorkOrderID, &f.Description, &f.SellPrice, &f.DoneAt); err != nil {
			return UnbilledWork{}, fmt.Errorf("scan unbilled flat task: %w", err)
		}
		out.Flat = append(out.Flat, f)
	}
	return out, rows.Err()
}

func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	var inv Invoice
	err := r.pool.QueryRow(ctx, `
		SELECT id, client_id, status, tax_rate, subtotal, tax, total, COALESCE(notes, ''), issued_at, paid_at, created_at
		FROM invoices WHERE id = $1`, id,
	).Scan(&inv.ID, &inv.ClientID, &inv.Status, &inv.TaxRate, &inv.Subtotal, &inv.Tax, &inv.Total,
		&inv.Notes, &inv.IssuedAt, &inv.PaidAt, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("get invoice: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, source_type, source_id, description, qty, unit_price, discount, amount
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY id`, id)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoice lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.SourceType, &line.SourceID,
			&line.Description, &line.Qty, &line.UnitPrice, &line.Discount, &line.Amount); err != nil {
			return Invoice{}, fmt.Errorf("scan invoice line: %w", err)
		}
		inv.Lines = append(inv.Lines, line)
	}
	return inv, rows.Err()
}

func (r *Repository) ListInvoices(ctx context.Context, clientID int64) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, client_id, status, tax_rate, subtotal, tax, total, COALESCE(notes, ''), issued_at, paid_at, created_at
		FROM invoices
		WHERE ($1::bigint = 0 OR client_id = $1)
		ORDER BY id DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.ClientID, &inv.Status, &inv.TaxRate, &inv.Subtotal, &inv.Tax,
			&inv.Total, &inv.Notes, &inv.IssuedAt, &inv.PaidAt, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) LoadSourceForUpdate(ctx context.Context, sourceType SourceType, sourceID int64) (SourceLine, error) {
	var (
		src    SourceLine
		lineID *int64
		err    error
	)
	switch sourceType {
	case SourceTimeEntry:
		var minutes int
		err = t.tx.QueryRow(ctx, `
			SELECT client_id, minutes, bill_rate, billable, COALESCE(NULLIF(notes, ''), 'Labor'), invoice_line_id
			FROM time_entries WHERE id = $1 FOR UPDATE`, sourceID,
		).Scan(&src.ClientID, &minutes, &src.UnitPrice, &src.Billable, &src.Description, &lineID)
		src.Qty = minutesToHours(minutes)
	case SourcePartUsage:
		err = t.tx.QueryRow(ctx, `
			SELECT pu.client_id, pu.qty, pu.sell_price, pu.billable, ci.name, pu.invoice_line_id
			FROM part_usages pu
			JOIN catalog_items ci ON ci.id = pu.item_id
			WHERE pu.id = $1 FOR UPDATE OF pu`, sourceID,
		).Scan(&src.ClientID, &src.Qty, &src.UnitPrice, &src.Billable, &src.Description, &lineID)
	case SourceFlatTask:
		err = t.tx.QueryRow(ctx, `
			SELECT client_id, description, sell_price, billable, invoice_line_id
			FROM flat_tasks WHERE id = $1 FOR UPDATE`, sourceID,
		).Scan(&src.ClientID, &src.Description, &src.UnitPrice, &src.Billable, &lineID)
		src.Qty = decimal.NewFromInt(1)
	default:
		return SourceLine{}, fmt.Errorf("%w: unknown source type %q", shared.ErrValidation, sourceType)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return SourceLine{}, fmt.Errorf("%w: %s %d", shared.ErrNotFound, sourceType, sourceID)
	}
	if err != nil {
		return SourceLine{}, fmt.Errorf("load source: %w", err)
	}
	src.Billed = lineID != nil
	return src, nil
}

func (t *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO invoices (client_id, status, tax_rate, subtotal, tax, total, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		inv.ClientID, string(inv.Status), inv.TaxRate, inv.Subtotal, inv.Tax, inv.Total, inv.Notes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert invoice: %w", err)
	}
	return id, nil
}

func (t *txRepository) InsertInvoiceLine(ctx context.Context, line InvoiceLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO invoice_lines (invoice_id, source_type, source_id, description, qty, unit_price, discount, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		line.InvoiceID, string(line.SourceType), line.SourceID, line.Description,
		line.Qty, line.UnitPrice, line.Discount, line.Amount,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, fmt.Errorf("%w: %s %d", shared.ErrAlreadyBilled, line.SourceType, line.SourceID)
		}
		return 0, fmt.Errorf("insert invoice line: %w", err)
	}
	return id, nil
}

func (t *txRepository) MarkSourceBilled(ctx context.Context, sourceType SourceType, sourceID, lineID int64) error {
	var table string
	switch sourceType {
	case SourceTimeEntry:
		table = "time_entries"
	case SourcePartUsage:
		table = "part_usages"
	case SourceFlatTask:
		table = "flat_tasks"
	default:
		return fmt.Errorf("%w: unknown source type %q", shared.ErrValidation, sourceType)
	}
	tag, err := t.tx.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET invoice_line_id = $1 WHERE id = $2 AND invoice_line_id IS NULL`, table),
		lineID, sourceID)
	if err != nil {
		return fmt.Errorf("mark source billed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %d", shared.ErrAlreadyBilled, sourceType, sourceID)
	}
	return nil
}

func (t *txRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	var inv Invoice
	err := t.tx.QueryRow(ctx, `
		SELECT id, client_id, status, tax_rate, subtotal, tax, total, COALESCE(notes, ''), issued_at, paid_at, created_at
		FROM invoices WHERE id = $1 FOR UPDATE`, id,
	).Scan(&inv.ID, &inv.ClientID, &inv.Status, &inv.TaxRate, &inv.Subtotal, &inv.Tax, &inv.Total,
		&inv.Notes, &inv.IssuedAt, &inv.PaidAt, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

func (t *txRepository) UpdateInvoiceStatus(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE invoices SET status = $1, issued_at = $2, paid_at = $3 WHERE id = $4`,
		string(inv.Status), inv.IssuedAt, inv.PaidAt, inv.ID)
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	return nil
}

func minutesToHours(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).DivRound(decimal.NewFromInt(60), 4)
}
