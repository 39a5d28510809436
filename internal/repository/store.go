package repository

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/model"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")

	// ErrConditionFailed means a conditional ledger write matched no row: the
	// row exists but no longer satisfies the guard (e.g. available stock).
	ErrConditionFailed = errors.New("conditional update matched no row")
	ErrInvalidDelta    = errors.New("invalid allocation delta")

	// ErrConflict means the database aborted the unit to break a deadlock or a
	// serialization conflict. Nothing was written; the unit may be retried.
	ErrConflict = errors.New("transaction conflict")
)

// ProductRepository defines the data access contract for products.
type ProductRepository interface {
	Create(ctx context.Context, p *model.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	// FindBySKU expects an already normalized SKU.
	FindBySKU(ctx context.Context, businessID uuid.UUID, sku string) (*model.Product, error)
	// List returns every product when businessID is uuid.Nil.
	List(ctx context.Context, businessID uuid.UUID) ([]model.Product, error)
}

type WarehouseRepository interface {
	Create(ctx context.Context, w *model.Warehouse) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Warehouse, error)
	List(ctx context.Context) ([]model.Warehouse, error)
}

// AllocationRepository is the ledger. Every write is a single conditional
// statement at the storage layer; callers never read-then-write.
type AllocationRepository interface {
	Get(ctx context.Context, productID, warehouseID uuid.UUID) (*model.Allocation, error)

	// UpsertAdd adds delta to allocated_quantity, creating the row with
	// safety_stock = 0 when absent (positive deltas only). A negative delta is
	// applied only while allocated_quantity - safety_stock >= |delta|.
	//   - ErrInvalidDelta: delta == 0, |delta| > model.MaxQuantity, or the
	//     result would be negative or above model.MaxQuantity
	//   - ErrNotFound: negative delta on a missing row
	//   - ErrConditionFailed: the row cannot give up |delta| available units
	UpsertAdd(ctx context.Context, productID, warehouseID uuid.UUID, delta int) (before, after model.Allocation, err error)

	// SetSafetyStock fails with ErrConditionFailed when safety > allocated.
	SetSafetyStock(ctx context.Context, productID, warehouseID uuid.UUID, safety int) (before, after model.Allocation, err error)

	// ListByProduct orders by allocated_quantity DESC, warehouse_id ASC.
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]model.Allocation, error)
	ListByWarehouse(ctx context.Context, warehouseID uuid.UUID) ([]model.Allocation, error)
	// ListLowStock returns rows whose clamped available quantity is <= threshold.
	ListLowStock(ctx context.Context, threshold int) ([]model.Allocation, error)
}

// TransferFilter defines filters for listing transfers.
type TransferFilter struct {
	ProductID   *uuid.UUID
	WarehouseID *uuid.UUID // matches either side
	Status      string
	Page        int
	Limit       int
}

type TransferRepository interface {
	Create(ctx context.Context, t *model.Transfer) error
	Update(ctx context.Context, t *model.Transfer) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Transfer, error)
	List(ctx context.Context, filter TransferFilter) ([]model.Transfer, int64, error)
}

type AuditRepository interface {
	Create(ctx context.Context, e *model.AuditEvent) error
	ListUnpublished(ctx context.Context, limit int) ([]model.AuditEvent, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]model.AuditEvent, error)
}

// Repositories groups the contracts that can share one atomic unit.
type Repositories interface {
	Products() ProductRepository
	Warehouses() WarehouseRepository
	Allocations() AllocationRepository
	Transfers() TransferRepository
	Audit() AuditRepository
}

// Store is the storage boundary of the engine. Atomic runs fn inside one
// all-or-nothing unit: when fn returns an error nothing it wrote is kept.
// Callers touching several ledger rows in one unit lock them in
// (product_id, warehouse_id) order; see LockOrderLess.
type Store interface {
	Repositories
	Atomic(ctx context.Context, fn func(tx Repositories) error) error
	Ping(ctx context.Context) error
}

// Transfer list paging bounds.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// NormalizePage applies the paging defaults shared by every Store and by
// callers that echo the effective page back.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > MaxPageLimit {
		limit = DefaultPageLimit
	}
	return page, limit
}

// LockOrderLess orders ledger rows for writes inside one atomic unit. Every
// multi-row writer follows it so two units never wait on each other's rows.
func LockOrderLess(productA, warehouseA, productB, warehouseB uuid.UUID) bool {
	if c := bytes.Compare(productA[:], productB[:]); c != 0 {
		return c < 0
	}
	return bytes.Compare(warehouseA[:], warehouseB[:]) < 0
}
