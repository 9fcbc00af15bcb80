package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/fieldbill/fieldbill/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	InsertItem(ctx context.Context, item Item) (Item, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	GetItemBySKU(ctx context.Context, sku string) (Item, error)
	ListActiveItems(ctx context.Context) ([]Item, error)

	InsertWarehouse(ctx context.Context, wh Warehouse) (Warehouse, error)
	ListWarehouses(ctx context.Context) ([]Warehouse, error)
	ActiveWarehouse(ctx context.Context) (Warehouse, error)
	ActivateWarehouse(ctx context.Context, id int64) error

	InsertLaborRole(ctx context.Context, role LaborRole) (LaborRole, error)
	GetLaborRole(ctx context.Context, id int64) (LaborRole, error)
	ListLaborRoles(ctx context.Context) ([]LaborRole, error)
}

// Service owns catalog items, warehouses and labor roles.
type Service struct {
	repo RepositoryPort
}

func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateItem(ctx context.Context, item Item) (Item, error) {
	item.SKU = strings.TrimSpace(item.SKU)
	item.Name = strings.TrimSpace(item.Name)
	if item.SKU == "" {
		return Item{}, fmt.Errorf("%w: sku required", shared.ErrValidation)
	}
	if item.Name == "" {
		return Item{}, fmt.Errorf("%w: name required", shared.ErrValidation)
	}
	if !item.UnitKind.Valid() {
		return Item{}, fmt.Errorf("%w: unknown unit kind %q", shared.ErrValidation, item.UnitKind)
	}
	if item.DefaultSellPrice.Sign() < 0 {
		return Item{}, fmt.Errorf("%w: sell price must be >= 0", shared.ErrValidation)
	}
	item.Active = true
	return s.repo.InsertItem(ctx, item)
}

func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	if id <= 0 {
		return Item{}, fmt.Errorf("%w: invalid item id", shared.ErrValidation)
	}
	return s.repo.GetItem(ctx, id)
}

func (s *Service) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return Item{}, fmt.Errorf("%w: sku required", shared.ErrValidation)
	}
	return s.repo.GetItemBySKU(ctx, sku)
}

func (s *Service) ListActiveItems(ctx context.Context) ([]Item, error) {
	return s.repo.ListActiveItems(ctx)
}

func (s *Service) CreateWarehouse(ctx context.Context, wh Warehouse) (Warehouse, error) {
	wh.Code = strings.TrimSpace(wh.Code)
	wh.Name = strings.TrimSpace(wh.Name)
	if wh.Code == "" || wh.Name == "" {
		return Warehouse{}, fmt.Errorf("%w: code and name required", shared.ErrValidation)
	}
	return s.repo.InsertWarehouse(ctx, wh)
}

func (s *Service) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	return s.repo.ListWarehouses(ctx)
}

// ActiveWarehouseID resolves the single active warehouse. Stock and work
// handlers call this when a request omits the warehouse.
func (s *Service) ActiveWarehouseID(ctx context.Context) (int64, error) {
	wh, err := s.repo.ActiveWarehouse(ctx)
	if err != nil {
		return 0, err
	}
	return wh.ID, nil
}

// SetActiveWarehouse flips the active flag to the given warehouse,
// deactivating the rest in the same statement set.
func (s *Service) SetActiveWarehouse(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid warehouse id", shared.ErrValidation)
	}
	return s.repo.ActivateWarehouse(ctx, id)
}

func (s *Service) CreateLaborRole(ctx context.Context, role LaborRole) (LaborRole, error) {
	role.Code = strings.TrimSpace(role.Code)
	role.Name = strings.TrimSpace(role.Name)
	if role.Code == "" || role.Name == "" {
		return LaborRole{}, fmt.Errorf("%w: code and name required", shared.ErrValidation)
	}
	if role.BillRate.Sign() < 0 || role.CostRate.Sign() < 0 {
		return LaborRole{}, fmt.Errorf("%w: rates must be >= 0", shared.ErrValidation)
	}
	return s.repo.InsertLaborRole(ctx, role)
}

func (s *Service) GetLaborRole(ctx context.Context, id int64) (LaborRole, error) {
	if id <= 0 {
		return LaborRole{}, fmt.Errorf("%w: invalid labor role id", shared.ErrValidation)
	}
	return s.repo.GetLaborRole(ctx, id)
}

func (s *Service) ListLaborRoles(ctx context.Context) ([]LaborRole, error) {
	return s.repo.ListLaborRoles(ctx)
}
