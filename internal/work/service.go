package work

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldbill/fieldbill/internal/catalog"
	"github.com/fieldbill/fieldbill/internal/shared"
	"github.com/fieldbill/fieldbill/internal/stock"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	InsertClient(ctx context.Context, client Client) (Client, error)
	ListClients(ctx context.Context) ([]Client, error)
	GetClient(ctx context.Context, id int64) (Client, error)

	InsertWorkOrder(ctx context.Context, wo WorkOrder) (WorkOrder, error)
	GetWorkOrder(ctx context.Context, id int64) (WorkOrder, error)
	ListWorkOrders(ctx context.Context, clientID int64) ([]WorkOrder, error)
	CloseWorkOrder(ctx context.Context, id int64) error

	InsertTimeEntry(ctx context.Context, entry TimeEntry) (TimeEntry, error)
	InsertPartUsage(ctx context.Context, usage PartUsage) (PartUsage, error)
	InsertFlatTask(ctx context.Context, task FlatTask) (FlatTask, error)
}

// StockIssuer is the depletion engine as seen from this module. Adjust is
// the compensation path when a usage row cannot be written after an issue.
type StockIssuer interface {
	Issue(ctx context.Context, input stock.IssueInput) (stock.IssueResult, error)
	Adjust(ctx context.Context, input stock.AdjustInput) (stock.AdjustResult, error)
}

// CatalogPort resolves items, labor roles and the active warehouse.
type CatalogPort interface {
	GetItem(ctx context.Context, id int64) (catalog.Item, error)
	GetLaborRole(ctx context.Context, id int64) (catalog.LaborRole, error)
	ActiveWarehouseID(ctx context.Context) (int64, error)
}

// Service records the billable sources: time, parts and flat tasks.
type Service struct {
	repo    RepositoryPort
	stock   StockIssuer
	catalog CatalogPort
	audit   AuditPort
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

func NewService(repo RepositoryPort, issuer StockIssuer, cat CatalogPort, audit AuditPort) *Service {
	return &Service{repo: repo, stock: issuer, catalog: cat, audit: audit}
}

func (s *Service) CreateClient(ctx context.Context, client Client) (Client, error) {
	client.Name = strings.TrimSpace(client.Name)
	if client.Name == "" {
		return Client{}, fmt.Errorf("%w: client name required", shared.ErrValidation)
	}
	return s.repo.InsertClient(ctx, client)
}

func (s *Service) ListClients(ctx context.Context) ([]Client, error) {
	return s.repo.ListClients(ctx)
}

func (s *Service) CreateWorkOrder(ctx context.Context, wo WorkOrder) (WorkOrder, error) {
	wo.Title = strings.TrimSpace(wo.Title)
	if wo.ClientID <= 0 {
		return WorkOrder{}, fmt.Errorf("%w: client required", shared.ErrValidation)
	}
	if wo.Title == "" {
		return WorkOrder{}, fmt.Errorf("%w: title required", shared.ErrValidation)
	}
	if _, err := s.repo.GetClient(ctx, wo.ClientID); err != nil {
		return WorkOrder{}, err
	}
	wo.Status = WorkOrderOpen
	return s.repo.InsertWorkOrder(ctx, wo)
}

func (s *Service) GetWorkOrder(ctx context.Context, id int64) (WorkOrder, error) {
	if id <= 0 {
		return WorkOrder{}, fmt.Errorf("%w: invalid work order id", shared.ErrValidation)
	}
	return s.repo.GetWorkOrder(ctx, id)
}

func (s *Service) ListWorkOrders(ctx context.Context, clientID int64) ([]WorkOrder, error) {
	return s.repo.ListWorkOrders(ctx, clientID)
}

func (s *Service) CloseWorkOrder(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid work order id", shared.ErrValidation)
	}
	return s.repo.CloseWorkOrder(ctx, id)
}

// LogTime records labor against a work order. Rates default from the
// labor role unless the input overrides them.
func (s *Service) LogTime(ctx context.Context, input LogTimeInput) (TimeEntry, error) {
	if input.Minutes <= 0 {
		return TimeEntry{}, fmt.Errorf("%w: minutes must be positive", shared.ErrValidation)
	}
	wo, err := s.repo.GetWorkOrder(ctx, input.WorkOrderID)
	if err != nil {
		return TimeEntry{}, err
	}
	role, err := s.catalog.GetLaborRole(ctx, input.LaborRoleID)
	if err != nil {
		return TimeEntry{}, err
	}

	entry := TimeEntry{
		WorkOrderID: wo.ID,
		ClientID:    wo.ClientID,
		LaborRoleID: role.ID,
		Minutes:     input.Minutes,
		BillRate:    role.BillRate,
		CostRate:    role.CostRate,
		Billable:    !input.NonBillable,
		Notes:       input.Notes,
		WorkedAt:    input.WorkedAt,
	}
	if input.BillRate != nil {
		if input.BillRate.Sign() < 0 {
			return TimeEntry{}, fmt.Errorf("%w: bill rate must be >= 0", shared.ErrValidation)
		}
		entry.BillRate = *input.BillRate
	}
	if input.CostRate != nil {
		if input.CostRate.Sign() < 0 {
			return TimeEntry{}, fmt.Errorf("%w: cost rate must be >= 0", shared.ErrValidation)
		}
		entry.CostRate = *input.CostRate
	}
	if entry.WorkedAt.IsZero() {
		entry.WorkedAt = time.Now().UTC()
	}

	entry, err = s.repo.InsertTimeEntry(ctx, entry)
	if err != nil {
		return TimeEntry{}, err
	}
	s.recordAudit(ctx, input.Actor, "work:log_time", "time_entries", entry.ID)
	return entry, nil
}

// ConsumePart issues stock FIFO for the work order and snapshots the
// weighted unit cost of that issue onto the usage row. Sell price
// defaults from the catalog item.
func (s *Service) ConsumePart(ctx context.Context, input ConsumePartInput) (PartUsage, error) {
	if input.Qty.Sign() <= 0 {
		return PartUsage{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	wo, err := s.repo.GetWorkOrder(ctx, input.WorkOrderID)
	if err != nil {
		return PartUsage{}, err
	}
	item, err := s.catalog.GetItem(ctx, input.ItemID)
	if err != nil {
		return PartUsage{}, err
	}
	if item.UnitKind == catalog.UnitFlat || item.UnitKind == catalog.UnitHour {
		return PartUsage{}, fmt.Errorf("%w: item %s is not stockable", shared.ErrValidation, item.SKU)
	}

	warehouseID := input.WarehouseID
	if warehouseID == 0 {
		warehouseID, err = s.catalog.ActiveWarehouseID(ctx)
		if err != nil {
			return PartUsage{}, err
		}
	}

	if input.SellPrice != nil && input.SellPrice.Sign() < 0 {
		return PartUsage{}, fmt.Errorf("%w: sell price must be >= 0", shared.ErrValidation)
	}

	usedAt := input.UsedAt
	if usedAt.IsZero() {
		usedAt = time.Now().UTC()
	}

	refID := uuid.NewString()
	issued, err := s.stock.Issue(ctx, stock.IssueInput{
		ItemID:      item.ID,
		WarehouseID: warehouseID,
		Qty:         input.Qty,
		RefType:     stock.RefWorkEntry,
		RefID:       refID,
		MovedAt:     usedAt,
		Actor:       input.Actor,
		Code:        input.Code,
	})
	if err != nil {
		return PartUsage{}, err
	}

	usage := PartUsage{
		WorkOrderID: wo.ID,
		ClientID:    wo.ClientID,
		ItemID:      item.ID,
		WarehouseID: warehouseID,
		Qty:         issued.TotalQty,
		UnitCost:    issued.AverageCost(),
		SellPrice:   item.DefaultSellPrice,
		Billable:    !input.NonBillable,
		UsedAt:      usedAt,
	}
	if input.SellPrice != nil {
		usage.SellPrice = *input.SellPrice
	}

	usage, err = s.repo.InsertPartUsage(ctx, usage)
	if err != nil {
		// Put the consumed stock back so the issue does not strand
		// quantity with no billable usage row behind it.
		if _, adjErr := s.stock.Adjust(ctx, stock.AdjustInput{
			ItemID:      item.ID,
			WarehouseID: warehouseID,
			Delta:       issued.TotalQty,
			UnitCost:    issued.AverageCost(),
			RefType:     stock.RefWorkEntry,
			RefID:       refID,
			MovedAt:     usedAt,
			Actor:       input.Actor,
		}); adjErr != nil {
			return PartUsage{}, fmt.Errorf("insert part usage: %w (compensation failed: %v)", err, adjErr)
		}
		return PartUsage{}, err
	}
	s.recordAudit(ctx, input.Actor, "work:consume_part", "part_usages", usage.ID)
	return usage, nil
}

// AddFlatTask records a fixed-price task tied to a flat-unit item.
func (s *Service) AddFlatTask(ctx context.Context, input AddFlatTaskInput) (FlatTask, error) {
	wo, err := s.repo.GetWorkOrder(ctx, input.WorkOrderID)
	if err != nil {
		return FlatTask{}, err
	}
	item, err := s.catalog.GetItem(ctx, input.ItemID)
	if err != nil {
		return FlatTask{}, err
	}
	if item.UnitKind != catalog.UnitFlat {
		return FlatTask{}, fmt.Errorf("%w: item %s is not flat-rate", shared.ErrValidation, item.SKU)
	}

	task := FlatTask{
		WorkOrderID: wo.ID,
		ClientID:    wo.ClientID,
		ItemID:      item.ID,
		Description: strings.TrimSpace(input.Description),
		SellPrice:   item.DefaultSellPrice,
		Billable:    !input.NonBillable,
		DoneAt:      input.DoneAt,
	}
	if task.Description == "" {
		task.Description = item.Name
	}
	if input.SellPrice != nil {
		if input.SellPrice.Sign() < 0 {
			return FlatTask{}, fmt.Errorf("%w: sell price must be >= 0", shared.ErrValidation)
		}
		task.SellPrice = *input.SellPrice
	}
	if task.DoneAt.IsZero() {
		task.DoneAt = time.Now().UTC()
	}

	task, err = s.repo.InsertFlatTask(ctx, task)
	if err != nil {
		return FlatTask{}, err
	}
	s.recordAudit(ctx, input.Actor, "work:add_flat_task", "flat_tasks", task.ID)
	return task, nil
}

func (s *Service) recordAudit(ctx context.Context, actor, action, entity string, id int64) {
	if s.audit == nil {
		return
	}
	if actor == "" {
		actor = shared.ActorFromContext(ctx)
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
	})
}
