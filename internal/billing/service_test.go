package billing

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fieldbill/fieldbill/internal/shared"
)

type sourceKey struct {
	typ SourceType
	id  int64
}

type sourceRow struct {
	line      SourceLine
	createdAt time.Time
	eventAt   time.Time
}

type memoryRepo struct {
	sources  map[sourceKey]*sourceRow
	invoices []Invoice
	lines    []InvoiceLine
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{sources: make(map[sourceKey]*sourceRow)}
}

func (r *memoryRepo) addSource(typ SourceType, id int64, line SourceLine, at time.Time) {
	r.sources[sourceKey{typ, id}] = &sourceRow{line: line, createdAt: at, eventAt: at}
}

func (r *memoryRepo) addBackdatedSource(typ SourceType, id int64, line SourceLine, createdAt, eventAt time.Time) {
	r.sources[sourceKey{typ, id}] = &sourceRow{line: line, createdAt: createdAt, eventAt: eventAt}
}

func (r *memoryRepo) snapshot() *memoryRepo {
	cp := newMemoryRepo()
	for k, v := range r.sources {
		row := *v
		cp.sources[k] = &row
	}
	cp.invoices = append([]Invoice(nil), r.invoices...)
	cp.lines = append([]InvoiceLine(nil), r.lines...)
	cp.nextID = r.nextID
	return cp
}

func (r *memoryRepo) restore(from *memoryRepo) {
	r.sources = from.sources
	r.invoices = from.invoices
	r.lines = from.lines
	r.nextID = from.nextID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	saved := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.restore(saved)
		return err
	}
	return nil
}

func (r *memoryRepo) FindUnbilled(ctx context.Context, clientID int64, asOf time.Time) (UnbilledWork, error) {
	out := UnbilledWork{ClientID: clientID, AsOf: asOf}
	type hit struct {
		key sourceKey
		row *sourceRow
	}
	var hits []hit
	for k, v := range r.sources {
		if v.line.ClientID != clientID || !v.line.Billable || v.line.Billed || v.createdAt.After(asOf) {
			continue
		}
		hits = append(hits, hit{k, v})
	}
	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].row.createdAt.Equal(hits[j].row.createdAt) {
			return hits[i].row.createdAt.Before(hits[j].row.createdAt)
		}
		return hits[i].key.id < hits[j].key.id
	})
	for _, h := range hits {
		switch h.key.typ {
		case SourceTimeEntry:
			out.Time = append(out.Time, UnbilledTime{
				SourceID: h.key.id, Hours: h.row.line.Qty, BillRate: h.row.line.UnitPrice,
				Description: h.row.line.Description, WorkedAt: h.row.eventAt,
			})
		case SourcePartUsage:
			out.Parts = append(out.Parts, UnbilledPart{
				SourceID: h.key.id, Qty: h.row.line.Qty, SellPrice: h.row.line.UnitPrice,
				Description: h.row.line.Description, UsedAt: h.row.eventAt,
			})
		case SourceFlatTask:
			out.Flat = append(out.Flat, UnbilledFlat{
				SourceID: h.key.id, SellPrice: h.row.line.UnitPrice,
				Description: h.row.line.Description, DoneAt: h.row.eventAt,
			})
		}
	}
	return out, nil
}

func (r *memoryRepo) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	for _, inv := range r.invoices {
		if inv.ID == id {
			for _, line := range r.lines {
				if line.InvoiceID == id {
					inv.Lines = append(inv.Lines, line)
				}
			}
			return inv, nil
		}
	}
	return Invoice{}, fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
}

func (r *memoryRepo) ListInvoices(ctx context.Context, clientID int64) ([]Invoice, error) {
	return r.invoices, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) LoadSourceForUpdate(ctx context.Context, typ SourceType, id int64) (SourceLine, error) {
	row, ok := t.repo.sources[sourceKey{typ, id}]
	if !ok {
		return SourceLine{}, fmt.Errorf("%w: %s %d", shared.ErrNotFound, typ, id)
	}
	return row.line, nil
}

func (t *memoryTx) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	t.repo.nextID++
	inv.ID = t.repo.nextID
	inv.CreatedAt = time.Now().UTC()
	t.repo.invoices = append(t.repo.invoices, inv)
	return inv.ID, nil
}

func (t *memoryTx) InsertInvoiceLine(ctx context.Context, line InvoiceLine) (int64, error) {
	for _, existing := range t.repo.lines {
		if existing.SourceType == line.SourceType && existing.SourceID == line.SourceID {
			return 0, fmt.Errorf("%w: %s %d", shared.ErrAlreadyBilled, line.SourceType, line.SourceID)
		}
	}
	t.repo.nextID++
	line.ID = t.repo.nextID
	t.repo.lines = append(t.repo.lines, line)
	return line.ID, nil
}

func (t *memoryTx) MarkSourceBilled(ctx context.Context, typ SourceType, sourceID, lineID int64) error {
	row, ok := t.repo.sources[sourceKey{typ, sourceID}]
	if !ok {
		return fmt.Errorf("%w: %s %d", shared.ErrNotFound, typ, sourceID)
	}
	if row.line.Billed {
		return fmt.Errorf("%w: %s %d", shared.ErrAlreadyBilled, typ, sourceID)
	}
	row.line.Billed = true
	return nil
}

func (t *memoryTx) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	for _, inv := range t.repo.invoices {
		if inv.ID == id {
			return inv, nil
		}
	}
	return Invoice{}, fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
}

func (t *memoryTx) UpdateInvoiceStatus(ctx context.Context, inv Invoice) error {
	for i := range t.repo.invoices {
		if t.repo.invoices[i].ID == inv.ID {
			t.repo.invoices[i] = inv
			return nil
		}
	}
	return shared.ErrNotFound
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateDraftRounding(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Now().UTC()
	repo.addSource(SourcePartUsage, 1, SourceLine{
		ClientID: 1, Description: "Valve", Qty: money("2"), UnitPrice: money("50.00"), Billable: true,
	}, now)
	repo.addSource(SourcePartUsage, 2, SourceLine{
		ClientID: 1, Description: "Fitting", Qty: money("3"), UnitPrice: money("9.995"), Billable: true,
	}, now)
	svc := NewService(repo, nil)

	inv, err := svc.CreateDraft(context.Background(), CreateDraftInput{
		ClientID: 1,
		Selections: []Selection{
			{SourceType: SourcePartUsage, SourceID: 1},
			{SourceType: SourcePartUsage, SourceID: 2},
		},
		TaxRate: money("0.08"),
	})
	require.NoError(t, err)

	// 2x50.00 = 100.00; 3x9.995 = 29.985 -> 29.99 half-up.
	require.Len(t, inv.Lines, 2)
	require.True(t, inv.Lines[0].Amount.Equal(money("100.00")), "got %s", inv.Lines[0].Amount)
	require.True(t, inv.Lines[1].Amount.Equal(money("29.99")), "got %s", inv.Lines[1].Amount)
	require.True(t, inv.Subtotal.Equal(money("129.99")))
	require.True(t, inv.Total.Equal(money("140.39")), "got %s", inv.Total)
	require.True(t, inv.Tax.Equal(money("10.40")), "got %s", inv.Tax)
	require.Equal(t, StatusDraft, inv.Status)
}

func TestCreateDraftDiscountAndOverrides(t *testing.T) {
	repo := newMemoryRepo()
	repo.addSource(SourceTimeEntry, 5, SourceLine{
		ClientID: 2, Description: "Labor", Qty: money("1.5"), UnitPrice: money("95.00"), Billable: true,
	}, time.Now().UTC())
	svc := NewService(repo, nil)

	override := money("80.00")
	inv, err := svc.CreateDraft(context.Background(), CreateDraftInput{
		ClientID: 2,
		Selections: []Selection{
			{SourceType: SourceTimeEntry, SourceID: 5, UnitPrice: &override, Discount: money("0.1")},
		},
	})
	require.NoError(t, err)
	// 1.5 x 80.00 x 0.9 = 108.00
	require.True(t, inv.Lines[0].Amount.Equal(money("108.00")), "got %s", inv.Lines[0].Amount)
	require.True(t, inv.Total.Equal(money("108.00")))
	require.True(t, inv.Tax.IsZero())
}

func TestCreateDraftRejectsDoubleBilling(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Now().UTC()
	repo.addSource(SourceFlatTask, 9, SourceLine{
		ClientID: 1, Description: "Diagnostic", Qty: money("1"), UnitPrice: money("79.00"), Billable: true,
	}, now)
	repo.addSource(SourceFlatTask, 10, SourceLine{
		ClientID: 1, Description: "Flush", Qty: money("1"), UnitPrice: money("149.00"), Billable: true,
	}, now)
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.CreateDraft(ctx, CreateDraftInput{
		ClientID:   1,
		Selections: []Selection{{SourceType: SourceFlatTask, SourceID: 9}},
	})
	require.NoError(t, err)

	// Re-billing 9 fails the whole draft; 10 stays unbilled.
	_, err = svc.CreateDraft(ctx, CreateDraftInput{
		ClientID: 1,
		Selections: []Selection{
			{SourceType: SourceFlatTask, SourceID: 10},
			{SourceType: SourceFlatTask, SourceID: 9},
		},
	})
	require.ErrorIs(t, err, shared.ErrAlreadyBilled)
	require.False(t, repo.sources[sourceKey{SourceFlatTask, 10}].line.Billed)
	require.Len(t, repo.invoices, 1)

	work, err := svc.FindUnbilled(ctx, 1, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, work.Flat, 1)
	require.Equal(t, int64(10), work.Flat[0].SourceID)
}

func TestCreateDraftValidation(t *testing.T) {
	repo := newMemoryRepo()
	repo.addSource(SourceTimeEntry, 1, SourceLine{
		ClientID: 1, Qty: money("1"), UnitPrice: money("10.00"), Billable: true,
	}, time.Now().UTC())
	repo.addSource(SourceTimeEntry, 2, SourceLine{
		ClientID: 1, Qty: money("1"), UnitPrice: money("10.00"), Billable: false,
	}, time.Now().UTC())
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.CreateDraft(ctx, CreateDraftInput{ClientID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateDraft(ctx, CreateDraftInput{
		ClientID:   1,
		Selections: []Selection{{SourceType: SourceTimeEntry, SourceID: 1, Discount: money("1")}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	// Source owned by another client.
	_, err = svc.CreateDraft(ctx, CreateDraftInput{
		ClientID:   7,
		Selections: []Selection{{SourceType: SourceTimeEntry, SourceID: 1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	// Non-billable source.
	_, err = svc.CreateDraft(ctx, CreateDraftInput{
		ClientID:   1,
		Selections: []Selection{{SourceType: SourceTimeEntry, SourceID: 2}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateDraft(ctx, CreateDraftInput{
		ClientID:   1,
		Selections: []Selection{{SourceType: SourceTimeEntry, SourceID: 404}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestInvoiceLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	repo.addSource(SourceFlatTask, 1, SourceLine{
		ClientID: 1, Description: "Diagnostic", Qty: money("1"), UnitPrice: money("79.00"), Billable: true,
	}, time.Now().UTC())
	svc := NewService(repo, nil)
	ctx := context.Background()

	inv, err := svc.CreateDraft(ctx, CreateDraftInput{
		ClientID:   1,
		Selections: []Selection{{SourceType: SourceFlatTask, SourceID: 1}},
	})
	require.NoError(t, err)

	sent, err := svc.Finalize(ctx, inv.ID, StatusSent)
	require.NoError(t, err)
	require.Equal(t, StatusSent, sent.Status)
	require.NotNil(t, sent.IssuedAt)
	require.Nil(t, sent.PaidAt)

	// No going back, no repeats.
	_, err = svc.Finalize(ctx, inv.ID, StatusSent)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	paid, err := svc.Finalize(ctx, inv.ID, StatusPaid)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	_, err = svc.Finalize(ctx, inv.ID, StatusPaid)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = svc.Finalize(ctx, 404, StatusSent)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Finalize(ctx, inv.ID, StatusDraft)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = svc.Finalize(ctx, inv.ID, InvoiceStatus("void"))
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestDraftPaidDirectly(t *testing.T) {
	repo := newMemoryRepo()
	repo.addSource(SourceFlatTask, 1, SourceLine{
		ClientID: 1, Qty: money("1"), UnitPrice: money("50.00"), Billable: true,
	}, time.Now().UTC())
	svc := NewService(repo, nil)
	ctx := context.Background()

	inv, err := svc.CreateDraft(ctx, CreateDraftInput{
		ClientID:   1,
		Selections: []Selection{{SourceType: SourceFlatTask, SourceID: 1}},
	})
	require.NoError(t, err)

	paid, err := svc.Finalize(ctx, inv.ID, StatusPaid)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.NotNil(t, paid.IssuedAt)
	require.NotNil(t, paid.PaidAt)
}

func TestFindUnbilledCutoff(t *testing.T) {
	repo := newMemoryRepo()
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	repo.addSource(SourceTimeEntry, 1, SourceLine{
		ClientID: 1, Qty: money("2"), UnitPrice: money("95.00"), Billable: true,
	}, base)
	repo.addSource(SourceTimeEntry, 2, SourceLine{
		ClientID: 1, Qty: money("1"), UnitPrice: money("95.00"), Billable: true,
	}, base.Add(48*time.Hour))
	repo.addSource(SourceTimeEntry, 3, SourceLine{
		ClientID: 2, Qty: money("1"), UnitPrice: money("95.00"), Billable: true,
	}, base)
	svc := NewService(repo, nil)

	work, err := svc.FindUnbilled(context.Background(), 1, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, work.Time, 1)
	require.Equal(t, int64(1), work.Time[0].SourceID)

	_, err = svc.FindUnbilled(context.Background(), 0, time.Time{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestFindUnbilledOrdersByCreation(t *testing.T) {
	repo := newMemoryRepo()
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	repo.addSource(SourceTimeEntry, 1, SourceLine{
		ClientID: 1, Qty: money("2"), UnitPrice: money("95.00"), Billable: true,
	}, base)
	// Recorded later but backdated; creation order still wins.
	repo.addBackdatedSource(SourceTimeEntry, 2, SourceLine{
		ClientID: 1, Qty: money("1"), UnitPrice: money("95.00"), Billable: true,
	}, base.Add(time.Hour), base.Add(-72*time.Hour))
	svc := NewService(repo, nil)

	work, err := svc.FindUnbilled(context.Background(), 1, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, work.Time, 2)
	require.Equal(t, int64(1), work.Time[0].SourceID)
	require.Equal(t, int64(2), work.Time[1].SourceID)
}
