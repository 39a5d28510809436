package dto

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type ReceiveStockRequest struct {
	ProductID   string `json:"product_id"   validate:"required,uuid"`
	WarehouseID string `json:"warehouse_id" validate:"required,uuid"`
	Quantity    int    `json:"quantity"     validate:"required,gt=0,max=1000000000"`
	Reason      string `json:"reason"       validate:"max=255"`
}

type AdjustStockRequest struct {
	ProductID   string `json:"product_id"   validate:"required,uuid"`
	WarehouseID string `json:"warehouse_id" validate:"required,uuid"`
	Delta       int    `json:"delta"        validate:"required,ne=0,min=-1000000000,max=1000000000"`
	Reason      string `json:"reason"       validate:"required,min=3,max=255"`
}

type SafetyStockRequest struct {
	ProductID   string `json:"product_id"   validate:"required,uuid"`
	WarehouseID string `json:"warehouse_id" validate:"required,uuid"`
	SafetyStock int    `json:"safety_stock" validate:"min=0,max=1000000000"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type AllocationResponse struct {
	ProductID         string `json:"product_id"`
	WarehouseID       string `json:"warehouse_id"`
	AllocatedQuantity int    `json:"allocated_quantity"`
	SafetyStock       int    `json:"safety_stock"`
	Available         int    `json:"available"`
	UpdatedAt         string `json:"updated_at"`
}

type WarehouseStockResponse struct {
	WarehouseID       string          `json:"warehouse_id"`
	WarehouseName     string          `json:"warehouse_name"`
	Region            string          `json:"region"`
	AllocatedQuantity int             `json:"allocated_quantity"`
	SafetyStock       int             `json:"safety_stock"`
	Available         int             `json:"available"`
	LowStock          bool            `json:"low_stock"`
	OutOfStock        bool            `json:"out_of_stock"`
	UtilizationPct    decimal.Decimal `json:"utilization_pct"`
}

type StockReportResponse struct {
	ProductID      string                   `json:"product_id"`
	SKU            string                   `json:"sku"`
	Name           string                   `json:"name"`
	TotalAllocated int                      `json:"total_allocated"`
	TotalAvailable int                      `json:"total_available"`
	Warehouses     []WarehouseStockResponse `json:"warehouses"`
}

type ProductStockResponse struct {
	ProductID         string `json:"product_id"`
	SKU               string `json:"sku"`
	Name              string `json:"name"`
	AllocatedQuantity int    `json:"allocated_quantity"`
	SafetyStock       int    `json:"safety_stock"`
	Available         int    `json:"available"`
	LowStock          bool   `json:"low_stock"`
	OutOfStock        bool   `json:"out_of_stock"`
}

type WarehouseInventoryResponse struct {
	WarehouseID    string                 `json:"warehouse_id"`
	Name           string                 `json:"name"`
	Region         string                 `json:"region"`
	Capacity       int                    `json:"capacity"`
	TotalAllocated int                    `json:"total_allocated"`
	TotalAvailable int                    `json:"total_available"`
	UtilizationPct decimal.Decimal        `json:"utilization_pct"`
	Products       []ProductStockResponse `json:"products"`
}

type StockAlertResponse struct {
	ProductID         string `json:"product_id"`
	SKU               string `json:"sku"`
	ProductName       string `json:"product_name"`
	WarehouseID       string `json:"warehouse_id"`
	WarehouseName     string `json:"warehouse_name"`
	AllocatedQuantity int    `json:"allocated_quantity"`
	SafetyStock       int    `json:"safety_stock"`
	Available         int    `json:"available"`
	OutOfStock        bool   `json:"out_of_stock"`
}

type AuditEventResponse struct {
	ID          string          `json:"id"`
	Action      string          `json:"action"`
	Details     json.RawMessage `json:"details"`
	ActorID     *string         `json:"actor_id,omitempty"`
	CreatedAt   string          `json:"created_at"`
	PublishedAt *string         `json:"published_at,omitempty"`
}
