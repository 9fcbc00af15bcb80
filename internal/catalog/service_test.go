package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fieldbill/fieldbill/internal/shared"
)

type memoryRepo struct {
	items      []Item
	warehouses []Warehouse
	roles      []LaborRole
	nextID     int64
}

func (r *memoryRepo) nid() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) InsertItem(ctx context.Context, item Item) (Item, error) {
	item.ID = r.nid()
	r.items = append(r.items, item)
	return item, nil
}

func (r *memoryRepo) GetItem(ctx context.Context, id int64) (Item, error) {
	for _, it := range r.items {
		if it.ID == id {
			return it, nil
		}
	}
	return Item{}, shared.ErrNotFound
}

func (r *memoryRepo) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	for _, it := range r.items {
		if it.SKU == sku {
			return it, nil
		}
	}
	return Item{}, shared.ErrNotFound
}

func (r *memoryRepo) ListActiveItems(ctx context.Context) ([]Item, error) {
	var out []Item
	for _, it := range r.items {
		if it.Active {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *memoryRepo) InsertWarehouse(ctx context.Context, wh Warehouse) (Warehouse, error) {
	wh.ID = r.nid()
	r.warehouses = append(r.warehouses, wh)
	return wh, nil
}

func (r *memoryRepo) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	return r.warehouses, nil
}

func (r *memoryRepo) ActiveWarehouse(ctx context.Context) (Warehouse, error) {
	for _, wh := range r.warehouses {
		if wh.IsActive {
			return wh, nil
		}
	}
	return Warehouse{}, fmt.Errorf("%w: no active warehouse", shared.ErrNotFound)
}

func (r *memoryRepo) ActivateWarehouse(ctx context.Context, id int64) error {
	found := false
	for i := range r.warehouses {
		r.warehouses[i].IsActive = r.warehouses[i].ID == id
		if r.warehouses[i].ID == id {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: warehouse %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *memoryRepo) InsertLaborRole(ctx context.Context, role LaborRole) (LaborRole, error) {
	role.ID = r.nid()
	r.roles = append(r.roles, role)
	return role, nil
}

func (r *memoryRepo) GetLaborRole(ctx context.Context, id int64) (LaborRole, error) {
	for _, role := range r.roles {
		if role.ID == id {
			return role, nil
		}
	}
	return LaborRole{}, shared.ErrNotFound
}

func (r *memoryRepo) ListLaborRoles(ctx context.Context) ([]LaborRole, error) {
	return r.roles, nil
}

func TestActiveWarehouseResolution(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.ActiveWarehouseID(ctx)
	require.ErrorIs(t, err, shared.ErrNotFound)

	main, err := svc.CreateWarehouse(ctx, Warehouse{Code: "MAIN", Name: "Main Shop"})
	require.NoError(t, err)
	truck, err := svc.CreateWarehouse(ctx, Warehouse{Code: "TRUCK1", Name: "Truck 1"})
	require.NoError(t, err)

	require.NoError(t, svc.SetActiveWarehouse(ctx, main.ID))
	id, err := svc.ActiveWarehouseID(ctx)
	require.NoError(t, err)
	require.Equal(t, main.ID, id)

	// Switching activates exactly one warehouse.
	require.NoError(t, svc.SetActiveWarehouse(ctx, truck.ID))
	id, err = svc.ActiveWarehouseID(ctx)
	require.NoError(t, err)
	require.Equal(t, truck.ID, id)

	active := 0
	for _, wh := range repo.warehouses {
		if wh.IsActive {
			active++
		}
	}
	require.Equal(t, 1, active)

	require.ErrorIs(t, svc.SetActiveWarehouse(ctx, 999), shared.ErrNotFound)
}

func TestCreateItemValidation(t *testing.T) {
	svc := NewService(&memoryRepo{})
	ctx := context.Background()

	_, err := svc.CreateItem(ctx, Item{SKU: "", Name: "Widget", UnitKind: UnitEach})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateItem(ctx, Item{SKU: "W-1", Name: "Widget", UnitKind: "box"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateItem(ctx, Item{SKU: "W-1", Name: "Widget", UnitKind: UnitEach, DefaultSellPrice: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, shared.ErrValidation)

	item, err := svc.CreateItem(ctx, Item{SKU: " W-1 ", Name: "Widget", UnitKind: UnitEach, DefaultSellPrice: decimal.NewFromInt(5)})
	require.NoError(t, err)
	require.Equal(t, "W-1", item.SKU)
	require.True(t, item.Active)

	got, err := svc.GetItemBySKU(ctx, "W-1")
	require.NoError(t, err)
	require.Equal(t, item.ID, got.ID)
}

func TestLaborRoleRates(t *testing.T) {
	svc := NewService(&memoryRepo{})
	ctx := context.Background()

	_, err := svc.CreateLaborRole(ctx, LaborRole{Code: "TECH", Name: "Technician", BillRate: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, shared.ErrValidation)

	role, err := svc.CreateLaborRole(ctx, LaborRole{
		Code:     "TECH",
		Name:     "Technician",
		BillRate: decimal.RequireFromString("95.00"),
		CostRate: decimal.RequireFromString("38.50"),
	})
	require.NoError(t, err)

	got, err := svc.GetLaborRole(ctx, role.ID)
	require.NoError(t, err)
	require.True(t, got.BillRate.Equal(decimal.RequireFromString("95.00")))
}
