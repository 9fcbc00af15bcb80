package work

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fieldbill/fieldbill/internal/catalog"
	"github.com/fieldbill/fieldbill/internal/shared"
	"github.com/fieldbill/fieldbill/internal/stock"
)

type memoryRepo struct {
	clients []Client
	orders  []WorkOrder
	times   []TimeEntry
	parts   []PartUsage
	flats   []FlatTask
	nextID  int64
	partErr error
}

func (r *memoryRepo) nid() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) InsertClient(ctx context.Context, c Client) (Client, error) {
	c.ID = r.nid()
	r.clients = append(r.clients, c)
	return c, nil
}

func (r *memoryRepo) ListClients(ctx context.Context) ([]Client, error) { return r.clients, nil }

func (r *memoryRepo) GetClient(ctx context.Context, id int64) (Client, error) {
	for _, c := range r.clients {
		if c.ID == id {
			return c, nil
		}
	}
	return Client{}, fmt.Errorf("%w: client %d", shared.ErrNotFound, id)
}

func (r *memoryRepo) InsertWorkOrder(ctx context.Context, wo WorkOrder) (WorkOrder, error) {
	wo.ID = r.nid()
	r.orders = append(r.orders, wo)
	return wo, nil
}

func (r *memoryRepo) GetWorkOrder(ctx context.Context, id int64) (WorkOrder, error) {
	for _, wo := range r.orders {
		if wo.ID == id {
			return wo, nil
		}
	}
	return WorkOrder{}, fmt.Errorf("%w: work order %d", shared.ErrNotFound, id)
}

func (r *memoryRepo) ListWorkOrders(ctx context.Context, clientID int64) ([]WorkOrder, error) {
	return r.orders, nil
}

func (r *memoryRepo) CloseWorkOrder(ctx context.Context, id int64) error {
	for i := range r.orders {
		if r.orders[i].ID == id {
			r.orders[i].Status = WorkOrderClosed
			return nil
		}
	}
	return shared.ErrNotFound
}

func (r *memoryRepo) InsertTimeEntry(ctx context.Context, e TimeEntry) (TimeEntry, error) {
	e.ID = r.nid()
	r.times = append(r.times, e)
	return e, nil
}

func (r *memoryRepo) InsertPartUsage(ctx context.Context, u PartUsage) (PartUsage, error) {
	if r.partErr != nil {
		return PartUsage{}, r.partErr
	}
	u.ID = r.nid()
	r.parts = append(r.parts, u)
	return u, nil
}

func (r *memoryRepo) InsertFlatTask(ctx context.Context, t FlatTask) (FlatTask, error) {
	t.ID = r.nid()
	r.flats = append(r.flats, t)
	return t, nil
}

type fakeIssuer struct {
	lastInput  stock.IssueInput
	result     stock.IssueResult
	err        error
	lastAdjust stock.AdjustInput
	adjusts    int
}

func (f *fakeIssuer) Issue(ctx context.Context, input stock.IssueInput) (stock.IssueResult, error) {
	f.lastInput = input
	if f.err != nil {
		return stock.IssueResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeIssuer) Adjust(ctx context.Context, input stock.AdjustInput) (stock.AdjustResult, error) {
	f.lastAdjust = input
	f.adjusts++
	return stock.AdjustResult{}, nil
}

type fakeCatalog struct {
	items       map[int64]catalog.Item
	roles       map[int64]catalog.LaborRole
	warehouseID int64
}

func (f *fakeCatalog) GetItem(ctx context.Context, id int64) (catalog.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return catalog.Item{}, shared.ErrNotFound
	}
	return item, nil
}

func (f *fakeCatalog) GetLaborRole(ctx context.Context, id int64) (catalog.LaborRole, error) {
	role, ok := f.roles[id]
	if !ok {
		return catalog.LaborRole{}, shared.ErrNotFound
	}
	return role, nil
}

func (f *fakeCatalog) ActiveWarehouseID(ctx context.Context) (int64, error) {
	if f.warehouseID == 0 {
		return 0, shared.ErrNotFound
	}
	return f.warehouseID, nil
}

func seedOrder(t *testing.T, svc *Service) WorkOrder {
	t.Helper()
	ctx := context.Background()
	client, err := svc.CreateClient(ctx, Client{Name: "Acme Plumbing"})
	require.NoError(t, err)
	wo, err := svc.CreateWorkOrder(ctx, WorkOrder{ClientID: client.ID, Title: "Boiler swap"})
	require.NoError(t, err)
	return wo
}

func TestConsumePartSnapshotsIssueCost(t *testing.T) {
	repo := &memoryRepo{}
	issuer := &fakeIssuer{
		result: stock.IssueResult{
			TotalQty:  decimal.RequireFromString("3"),
			TotalCost: decimal.RequireFromString("7.50"),
		},
	}
	cat := &fakeCatalog{
		items: map[int64]catalog.Item{
			10: {ID: 10, SKU: "PIPE-05", Name: "Pipe 5ft", UnitKind: catalog.UnitEach, DefaultSellPrice: decimal.RequireFromString("6.00")},
		},
		warehouseID: 4,
	}
	svc := NewService(repo, issuer, cat, nil)
	wo := seedOrder(t, svc)
	ctx := context.Background()

	usage, err := svc.ConsumePart(ctx, ConsumePartInput{
		WorkOrderID: wo.ID,
		ItemID:      10,
		Qty:         decimal.RequireFromString("3"),
	})
	require.NoError(t, err)

	// Issue went through the depletion engine against the active warehouse.
	require.Equal(t, int64(4), issuer.lastInput.WarehouseID)
	require.Equal(t, stock.RefWorkEntry, issuer.lastInput.RefType)
	require.NotEmpty(t, issuer.lastInput.RefID)

	// Weighted FIFO cost of the issue is frozen on the usage row.
	require.True(t, usage.UnitCost.Equal(decimal.RequireFromString("2.5")), "got %s", usage.UnitCost)
	require.True(t, usage.SellPrice.Equal(decimal.RequireFromString("6.00")))
	require.True(t, usage.Billable)
	require.Equal(t, wo.ClientID, usage.ClientID)
}

func TestConsumePartPropagatesInsufficientStock(t *testing.T) {
	repo := &memoryRepo{}
	issuer := &fakeIssuer{err: shared.ErrInsufficientStock}
	cat := &fakeCatalog{
		items:       map[int64]catalog.Item{10: {ID: 10, SKU: "PIPE-05", UnitKind: catalog.UnitEach}},
		warehouseID: 4,
	}
	svc := NewService(repo, issuer, cat, nil)
	wo := seedOrder(t, svc)

	_, err := svc.ConsumePart(context.Background(), ConsumePartInput{
		WorkOrderID: wo.ID,
		ItemID:      10,
		Qty:         decimal.RequireFromString("99"),
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Empty(t, repo.parts)
}

func TestConsumePartCompensatesFailedUsageInsert(t *testing.T) {
	repo := &memoryRepo{partErr: fmt.Errorf("connection reset")}
	issuer := &fakeIssuer{
		result: stock.IssueResult{
			TotalQty:  decimal.RequireFromString("3"),
			TotalCost: decimal.RequireFromString("7.50"),
		},
	}
	cat := &fakeCatalog{
		items:       map[int64]catalog.Item{10: {ID: 10, SKU: "PIPE-05", UnitKind: catalog.UnitEach}},
		warehouseID: 4,
	}
	svc := NewService(repo, issuer, cat, nil)
	wo := seedOrder(t, svc)

	_, err := svc.ConsumePart(context.Background(), ConsumePartInput{
		WorkOrderID: wo.ID,
		ItemID:      10,
		Qty:         decimal.RequireFromString("3"),
	})
	require.Error(t, err)
	require.Empty(t, repo.parts)

	// The issued quantity was put back at the issue's weighted cost.
	require.Equal(t, 1, issuer.adjusts)
	require.True(t, issuer.lastAdjust.Delta.Equal(decimal.RequireFromString("3")))
	require.True(t, issuer.lastAdjust.UnitCost.Equal(decimal.RequireFromString("2.5")))
	require.Equal(t, issuer.lastInput.RefID, issuer.lastAdjust.RefID)
}

func TestConsumePartRejectsNonStockableItems(t *testing.T) {
	repo := &memoryRepo{}
	cat := &fakeCatalog{
		items:       map[int64]catalog.Item{11: {ID: 11, SKU: "DIAG", UnitKind: catalog.UnitFlat}},
		warehouseID: 4,
	}
	svc := NewService(repo, &fakeIssuer{}, cat, nil)
	wo := seedOrder(t, svc)

	_, err := svc.ConsumePart(context.Background(), ConsumePartInput{
		WorkOrderID: wo.ID,
		ItemID:      11,
		Qty:         decimal.RequireFromString("1"),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestLogTimeDefaultsAndOverrides(t *testing.T) {
	repo := &memoryRepo{}
	cat := &fakeCatalog{
		roles: map[int64]catalog.LaborRole{
			1: {ID: 1, Code: "TECH", BillRate: decimal.RequireFromString("95.00"), CostRate: decimal.RequireFromString("38.50")},
		},
	}
	svc := NewService(repo, &fakeIssuer{}, cat, nil)
	wo := seedOrder(t, svc)
	ctx := context.Background()

	entry, err := svc.LogTime(ctx, LogTimeInput{WorkOrderID: wo.ID, LaborRoleID: 1, Minutes: 90})
	require.NoError(t, err)
	require.True(t, entry.BillRate.Equal(decimal.RequireFromString("95.00")))
	require.True(t, entry.Hours().Equal(decimal.RequireFromString("1.5")))

	override := decimal.RequireFromString("120.00")
	entry, err = svc.LogTime(ctx, LogTimeInput{WorkOrderID: wo.ID, LaborRoleID: 1, Minutes: 30, BillRate: &override})
	require.NoError(t, err)
	require.True(t, entry.BillRate.Equal(override))
	require.True(t, entry.CostRate.Equal(decimal.RequireFromString("38.50")))

	_, err = svc.LogTime(ctx, LogTimeInput{WorkOrderID: wo.ID, LaborRoleID: 1, Minutes: 0})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.LogTime(ctx, LogTimeInput{WorkOrderID: 999, LaborRoleID: 1, Minutes: 10})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAddFlatTaskRequiresFlatItem(t *testing.T) {
	repo := &memoryRepo{}
	cat := &fakeCatalog{
		items: map[int64]catalog.Item{
			20: {ID: 20, SKU: "DIAG", Name: "Diagnostic", UnitKind: catalog.UnitFlat, DefaultSellPrice: decimal.RequireFromString("79.00")},
			21: {ID: 21, SKU: "PIPE", UnitKind: catalog.UnitEach},
		},
	}
	svc := NewService(repo, &fakeIssuer{}, cat, nil)
	wo := seedOrder(t, svc)
	ctx := context.Background()

	task, err := svc.AddFlatTask(ctx, AddFlatTaskInput{WorkOrderID: wo.ID, ItemID: 20})
	require.NoError(t, err)
	require.Equal(t, "Diagnostic", task.Description)
	require.True(t, task.SellPrice.Equal(decimal.RequireFromString("79.00")))

	_, err = svc.AddFlatTask(ctx, AddFlatTaskInput{WorkOrderID: wo.ID, ItemID: 21})
	require.ErrorIs(t, err, shared.ErrValidation)
}
