package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/audit"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/dto"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/model"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/repository"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/stock"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LedgerService exposes the allocation ledger to receiving, manual
// corrections and reporting. Every write goes through one conditional
// repository call and is audited in the same atomic unit.
type LedgerService interface {
	Get(ctx context.Context, productID, warehouseID uuid.UUID) (*dto.AllocationResponse, error)
	Receive(ctx context.Context, actorID uuid.UUID, req dto.ReceiveStockRequest) (*dto.AllocationResponse, error)
	Adjust(ctx context.Context, actorID uuid.UUID, req dto.AdjustStockRequest) (*dto.AllocationResponse, error)
	SetSafetyStock(ctx context.Context, actorID uuid.UUID, req dto.SafetyStockRequest) (*dto.AllocationResponse, error)
	StockReport(ctx context.Context, productID uuid.UUID) (*dto.StockReportResponse, error)
	WarehouseStock(ctx context.Context, warehouseID uuid.UUID) (*dto.WarehouseInventoryResponse, error)
	History(ctx context.Context, productID, warehouseID uuid.UUID) ([]dto.AuditEventResponse, error)
	LowStockAlerts(ctx context.Context, threshold int) ([]dto.StockAlertResponse, error)
}

type ledgerService struct {
	store             repository.Store
	emitter           *audit.Emitter
	lowStockThreshold int
}

func NewLedgerService(store repository.Store, emitter *audit.Emitter, lowStockThreshold int) LedgerService {
	return &ledgerService{store: store, emitter: emitter, lowStockThreshold: lowStockThreshold}
}

// Get returns ErrAllocationNotFound when the pair has never held stock.
func (s *ledgerService) Get(ctx context.Context, productID, warehouseID uuid.UUID) (*dto.AllocationResponse, error) {
	row, err := s.store.Allocations().Get(ctx, productID, warehouseID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: product %s at warehouse %s", ErrAllocationNotFound, productID, warehouseID)
	}
	if err != nil {
		return nil, storageErr("get allocation", err)
	}
	return allocationToResponse(*row), nil
}

func (s *ledgerService) Receive(ctx context.Context, actorID uuid.UUID, req dto.ReceiveStockRequest) (*dto.AllocationResponse, error) {
	productID, warehouseID, err := parsePair(req.ProductID, req.WarehouseID)
	if err != nil {
		return nil, err
	}
	if req.Quantity <= 0 || req.Quantity > model.MaxQuantity {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidDelta, model.MaxQuantity)
	}
	return s.applyDelta(ctx, actorID, productID, warehouseID, req.Quantity, audit.ActionReceive, req.Reason)
}

func (s *ledgerService) Adjust(ctx context.Context, actorID uuid.UUID, req dto.AdjustStockRequest) (*dto.AllocationResponse, error) {
	productID, warehouseID, err := parsePair(req.ProductID, req.WarehouseID)
	if err != nil {
		return nil, err
	}
	if req.Delta == 0 {
		return nil, fmt.Errorf("%w: delta must not be zero", ErrInvalidDelta)
	}
	if req.Delta > model.MaxQuantity || req.Delta < -model.MaxQuantity {
		return nil, fmt.Errorf("%w: |delta| must not exceed %d", ErrInvalidDelta, model.MaxQuantity)
	}
	return s.applyDelta(ctx, actorID, productID, warehouseID, req.Delta, audit.ActionAdjust, req.Reason)
}

func (s *ledgerService) applyDelta(ctx context.Context, actorID, productID, warehouseID uuid.UUID, delta int, action, reason string) (*dto.AllocationResponse, error) {
	var after model.Allocation
	err := s.store.Atomic(ctx, func(tx repository.Repositories) error {
		if _, err := findProduct(ctx, tx, productID); err != nil {
			return err
		}
		if _, err := findWarehouse(ctx, tx, warehouseID); err != nil {
			return err
		}

		before, updated, err := tx.Allocations().UpsertAdd(ctx, productID, warehouseID, delta)
		if err != nil {
			return ledgerWriteErr(ctx, tx, productID, warehouseID, delta, err)
		}
		after = updated

		change := audit.AllocationChange{Before: before.Snapshot(), After: after.Snapshot(), Reason: reason}
		if err := s.emitter.Emit(ctx, tx.Audit(), audit.EntityAllocation, allocationEntityID(productID, warehouseID), action, change, actorRef(actorID)); err != nil {
			return storageErr("audit "+action, err)
		}
		return nil
	})
	if err != nil {
		logLedgerFailure(err, action, productID, warehouseID)
		return nil, err
	}

	log.Info().
		Str("action", action).
		Str("product_id", productID.String()).
		Str("warehouse_id", warehouseID.String()).
		Int("delta", delta).
		Int("allocated", after.AllocatedQuantity).
		Msg("ledger: allocation updated")
	return allocationToResponse(after), nil
}

func (s *ledgerService) SetSafetyStock(ctx context.Context, actorID uuid.UUID, req dto.SafetyStockRequest) (*dto.AllocationResponse, error) {
	productID, warehouseID, err := parsePair(req.ProductID, req.WarehouseID)
	if err != nil {
		return nil, err
	}
	if req.SafetyStock < 0 || req.SafetyStock > model.MaxQuantity {
		return nil, fmt.Errorf("%w: safety_stock must be between 0 and %d", ErrInvalidRequest, model.MaxQuantity)
	}

	var after model.Allocation
	err = s.store.Atomic(ctx, func(tx repository.Repositories) error {
		before, updated, err := tx.Allocations().SetSafetyStock(ctx, productID, warehouseID, req.SafetyStock)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("%w: product %s at warehouse %s", ErrAllocationNotFound, productID, warehouseID)
		case errors.Is(err, repository.ErrConditionFailed):
			return fmt.Errorf("%w: requested %d", ErrSafetyStockExceedsAllocation, req.SafetyStock)
		case errors.Is(err, repository.ErrInvalidDelta):
			return fmt.Errorf("%w: safety_stock must not be negative", ErrInvalidRequest)
		case err != nil:
			return storageErr("set safety stock", err)
		}
		after = updated

		change := audit.AllocationChange{Before: before.Snapshot(), After: after.Snapshot()}
		if err := s.emitter.Emit(ctx, tx.Audit(), audit.EntityAllocation, allocationEntityID(productID, warehouseID), audit.ActionSetSafetyStock, change, actorRef(actorID)); err != nil {
			return storageErr("audit set_safety_stock", err)
		}
		return nil
	})
	if err != nil {
		logLedgerFailure(err, audit.ActionSetSafetyStock, productID, warehouseID)
		return nil, err
	}
	return allocationToResponse(after), nil
}

func (s *ledgerService) StockReport(ctx context.Context, productID uuid.UUID) (*dto.StockReportResponse, error) {
	p, err := findProduct(ctx, s.store, productID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.Allocations().ListByProduct(ctx, productID)
	if err != nil {
		return nil, storageErr("list allocations", err)
	}

	warehouses, err := s.warehouseIndex(ctx)
	if err != nil {
		return nil, err
	}

	resp := &dto.StockReportResponse{
		ProductID:      p.ID.String(),
		SKU:            p.SKU,
		Name:           p.Name,
		TotalAllocated: stock.TotalAcrossWarehouses(rows),
		TotalAvailable: stock.TotalAvailable(rows),
		Warehouses:     make([]dto.WarehouseStockResponse, 0, len(rows)),
	}
	for _, row := range rows {
		w := warehouses[row.WarehouseID]
		resp.Warehouses = append(resp.Warehouses, dto.WarehouseStockResponse{
			WarehouseID:       row.WarehouseID.String(),
			WarehouseName:     w.Name,
			Region:            w.Region,
			AllocatedQuantity: row.AllocatedQuantity,
			SafetyStock:       row.SafetyStock,
			Available:         stock.Available(row),
			LowStock:          stock.IsLowStock(row, s.lowStockThreshold),
			OutOfStock:        stock.IsOutOfStock(row),
			UtilizationPct:    stock.Utilization(row.AllocatedQuantity, w.Capacity),
		})
	}
	return resp, nil
}

// WarehouseStock lists every product row held at one warehouse. Utilization is
// the warehouse's allocated total against its capacity.
func (s *ledgerService) WarehouseStock(ctx context.Context, warehouseID uuid.UUID) (*dto.WarehouseInventoryResponse, error) {
	w, err := findWarehouse(ctx, s.store, warehouseID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.Allocations().ListByWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, storageErr("list allocations", err)
	}

	total := stock.TotalAcrossWarehouses(rows)
	resp := &dto.WarehouseInventoryResponse{
		WarehouseID:    w.ID.String(),
		Name:           w.Name,
		Region:         w.Region,
		Capacity:       w.Capacity,
		TotalAllocated: total,
		TotalAvailable: stock.TotalAvailable(rows),
		UtilizationPct: stock.Utilization(total, w.Capacity),
		Products:       make([]dto.ProductStockResponse, 0, len(rows)),
	}
	for _, row := range rows {
		p, err := findProduct(ctx, s.store, row.ProductID)
		if err != nil {
			return nil, err
		}
		resp.Products = append(resp.Products, dto.ProductStockResponse{
			ProductID:         p.ID.String(),
			SKU:               p.SKU,
			Name:              p.Name,
			AllocatedQuantity: row.AllocatedQuantity,
			SafetyStock:       row.SafetyStock,
			Available:         stock.Available(row),
			LowStock:          stock.IsLowStock(row, s.lowStockThreshold),
			OutOfStock:        stock.IsOutOfStock(row),
		})
	}
	return resp, nil
}

// History returns the audit facts recorded for one ledger row, oldest first.
// Fulfillment and transfer facts are recorded under their own entities.
func (s *ledgerService) History(ctx context.Context, productID, warehouseID uuid.UUID) ([]dto.AuditEventResponse, error) {
	if _, err := s.Get(ctx, productID, warehouseID); err != nil {
		return nil, err
	}
	events, err := s.store.Audit().ListByEntity(ctx, audit.EntityAllocation, allocationEntityID(productID, warehouseID))
	if err != nil {
		return nil, storageErr("list audit events", err)
	}
	out := make([]dto.AuditEventResponse, 0, len(events))
	for _, e := range events {
		r := dto.AuditEventResponse{
			ID:        e.ID.String(),
			Action:    e.Action,
			Details:   json.RawMessage(e.Details),
			CreatedAt: formatTime(e.CreatedAt),
		}
		if e.ActorID != nil {
			id := e.ActorID.String()
			r.ActorID = &id
		}
		if e.PublishedAt != nil {
			at := formatTime(*e.PublishedAt)
			r.PublishedAt = &at
		}
		out = append(out, r)
	}
	return out, nil
}

// LowStockAlerts falls back to the configured threshold when threshold < 0.
func (s *ledgerService) LowStockAlerts(ctx context.Context, threshold int) ([]dto.StockAlertResponse, error) {
	if threshold < 0 {
		threshold = s.lowStockThreshold
	}
	rows, err := s.store.Allocations().ListLowStock(ctx, threshold)
	if err != nil {
		return nil, storageErr("list low stock", err)
	}
	if len(rows) == 0 {
		return []dto.StockAlertResponse{}, nil
	}

	warehouses, err := s.warehouseIndex(ctx)
	if err != nil {
		return nil, err
	}
	products := make(map[uuid.UUID]*model.Product)

	out := make([]dto.StockAlertResponse, 0, len(rows))
	for _, row := range rows {
		p, ok := products[row.ProductID]
		if !ok {
			if p, err = findProduct(ctx, s.store, row.ProductID); err != nil {
				return nil, err
			}
			products[row.ProductID] = p
		}
		w := warehouses[row.WarehouseID]
		out = append(out, dto.StockAlertResponse{
			ProductID:         row.ProductID.String(),
			SKU:               p.SKU,
			ProductName:       p.Name,
			WarehouseID:       row.WarehouseID.String(),
			WarehouseName:     w.Name,
			AllocatedQuantity: row.AllocatedQuantity,
			SafetyStock:       row.SafetyStock,
			Available:         stock.Available(row),
			OutOfStock:        stock.IsOutOfStock(row),
		})
	}
	return out, nil
}

func (s *ledgerService) warehouseIndex(ctx context.Context) (map[uuid.UUID]model.Warehouse, error) {
	list, err := s.store.Warehouses().List(ctx)
	if err != nil {
		return nil, storageErr("list warehouses", err)
	}
	idx := make(map[uuid.UUID]model.Warehouse, len(list))
	for _, w := range list {
		idx[w.ID] = w
	}
	return idx, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

// ledgerWriteErr translates a failed UpsertAdd. A row that cannot give up the
// requested units is reported as insufficient stock with what it does have.
func ledgerWriteErr(ctx context.Context, tx repository.Repositories, productID, warehouseID uuid.UUID, delta int, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: product %s at warehouse %s", ErrAllocationNotFound, productID, warehouseID)
	case errors.Is(err, repository.ErrInvalidDelta) && delta > 0:
		return fmt.Errorf("%w: delta %d would push the allocation past %d", ErrInvalidDelta, delta, model.MaxQuantity)
	case errors.Is(err, repository.ErrInvalidDelta):
		return fmt.Errorf("%w: delta %d would leave a negative allocation", ErrInvalidDelta, delta)
	case errors.Is(err, repository.ErrConditionFailed):
		available := 0
		if row, getErr := tx.Allocations().Get(ctx, productID, warehouseID); getErr == nil {
			available = stock.Available(*row)
		}
		return &InsufficientStockError{
			ProductID:   productID,
			WarehouseID: &warehouseID,
			Requested:   -delta,
			Available:   available,
		}
	default:
		return storageErr("upsert allocation", err)
	}
}

func logLedgerFailure(err error, action string, productID, warehouseID uuid.UUID) {
	ev := log.Warn()
	if errors.Is(err, ErrStorage) {
		ev = log.Error()
	}
	ev.Err(err).
		Str("action", action).
		Str("product_id", productID.String()).
		Str("warehouse_id", warehouseID.String()).
		Msg("ledger: write rejected")
}

func parsePair(productRaw, warehouseRaw string) (uuid.UUID, uuid.UUID, error) {
	productID, err := parseID("product_id", productRaw)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	warehouseID, err := parseID("warehouse_id", warehouseRaw)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return productID, warehouseID, nil
}

func allocationEntityID(productID, warehouseID uuid.UUID) string {
	return productID.String() + ":" + warehouseID.String()
}

// actorRef maps the zero id (no authenticated actor) to nil.
func actorRef(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func allocationToResponse(row model.Allocation) *dto.AllocationResponse {
	return &dto.AllocationResponse{
		ProductID:         row.ProductID.String(),
		WarehouseID:       row.WarehouseID.String(),
		AllocatedQuantity: row.AllocatedQuantity,
		SafetyStock:       row.SafetyStock,
		Available:         stock.Available(row),
		UpdatedAt:         formatTime(row.UpdatedAt),
	}
}
