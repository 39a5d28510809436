package model

import (
	"time"

	"github.com/google/uuid"
)

// MaxQuantity caps every quantity the engine accepts and every allocated
// quantity it stores. Request DTOs carry the same bound as a max= tag.
const MaxQuantity = 1_000_000_000

// Allocation is the ledger row for one (product, warehouse) pair. The composite
// primary key guarantees at most one row per pair. Rows are never deleted while
// history references them; they are set to zero instead.
type Allocation struct {
	ProductID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	WarehouseID       uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	AllocatedQuantity int       `gorm:"not null;default:0"`
	SafetyStock       int       `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (Allocation) TableName() string { return "stock_allocations" }

// AllocationSnapshot is the before/after view recorded in audit facts.
type AllocationSnapshot struct {
	ProductID         uuid.UUID `json:"product_id"`
	WarehouseID       uuid.UUID `json:"warehouse_id"`
	AllocatedQuantity int       `json:"allocated_quantity"`
	SafetyStock       int       `json:"safety_stock"`
}

func (a Allocation) Snapshot() AllocationSnapshot {
	return AllocationSnapshot{
		ProductID:         a.ProductID,
		WarehouseID:       a.WarehouseID,
		AllocatedQuantity: a.AllocatedQuantity,
		SafetyStock:       a.SafetyStock,
	}
}
