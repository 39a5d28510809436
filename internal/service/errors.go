package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrWarehouseNotFound = errors.New("warehouse not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransfer   = errors.New("invalid transfer")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidDelta      = errors.New("invalid delta")
	ErrDuplicate         = errors.New("already exists")
	ErrTransferNotFound  = errors.New("transfer not found")

	ErrAllocationNotFound           = errors.New("allocation not found")
	ErrNoAllocationAtSource         = errors.New("no allocation at source warehouse")
	ErrSafetyStockExceedsAllocation = errors.New("safety stock exceeds allocated quantity")

	// ErrSplitOrder is returned when split orders are disabled and the lines of
	// one order would be served from more than one warehouse.
	ErrSplitOrder = errors.New("order lines span multiple warehouses")

	// ErrConcurrencyConflict never reaches callers: it is retried and then
	// reported as ErrInsufficientStock.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrStorage wraps every infrastructure failure. It is never swallowed.
	ErrStorage = errors.New("storage failure")
)

// ProductNotFoundError names the unknown reference.
type ProductNotFoundError struct {
	SKU       string
	ProductID uuid.UUID
}

func (e *ProductNotFoundError) Error() string {
	if e.SKU != "" {
		return fmt.Sprintf("product not found: sku %s", e.SKU)
	}
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrProductNotFound }

// WarehouseAvailability is one entry of an InsufficientStockError breakdown.
type WarehouseAvailability struct {
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Available   int       `json:"available"`
}

// InsufficientStockError carries what a caller needs to build an actionable
// message. Available is the total across all warehouses for the product.
type InsufficientStockError struct {
	SKU         string
	ProductID   uuid.UUID
	WarehouseID *uuid.UUID // set for transfers
	Requested   int
	Available   int
	Breakdown   []WarehouseAvailability
}

func (e *InsufficientStockError) Error() string {
	label := e.SKU
	if label == "" {
		label = e.ProductID.String()
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", label, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
