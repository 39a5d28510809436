package dto

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OrderLineRequest struct {
	SKU      string `json:"sku"      validate:"required,max=64"`
	Quantity int    `json:"quantity" validate:"required,gt=0,max=1000000000"`
}

type FulfillRequest struct {
	BusinessID     string             `json:"business_id"     validate:"required,uuid"`
	OrderReference string             `json:"order_reference" validate:"max=120"`
	Lines          []OrderLineRequest `json:"lines"           validate:"required,min=1,dive"`
}

type ValidateBatchRequest struct {
	Orders []FulfillRequest `json:"orders" validate:"required,min=1,max=500,dive"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type LineAllocationResponse struct {
	SKU            string `json:"sku"`
	ProductID      string `json:"product_id"`
	WarehouseID    string `json:"warehouse_id"`
	Quantity       int    `json:"quantity"`
	QuantityBefore int    `json:"quantity_before"`
	QuantityAfter  int    `json:"quantity_after"`
	AvailableAfter int    `json:"available_after"`
}

type FulfillmentResponse struct {
	FulfillmentID          string                   `json:"fulfillment_id"`
	OrderReference         string                   `json:"order_reference,omitempty"`
	FulfillmentWarehouseID string                   `json:"fulfillment_warehouse_id"`
	SpansWarehouses        bool                     `json:"spans_warehouses"`
	Lines                  []LineAllocationResponse `json:"lines"`
	Attempts               int                      `json:"attempts"`
}

// Line validation statuses.
const (
	LineOK                = "ok"
	LineProductNotFound   = "product_not_found"
	LineInsufficientStock = "insufficient_stock"
	LineInvalid           = "invalid"
)

type LineValidationResponse struct {
	SKU         string  `json:"sku"`
	Quantity    int     `json:"quantity"`
	Status      string  `json:"status"`
	WarehouseID *string `json:"warehouse_id,omitempty"`
	Available   int     `json:"available"`
	Detail      string  `json:"detail,omitempty"`
}

type OrderValidationResponse struct {
	Index          int                      `json:"index"`
	OrderReference string                   `json:"order_reference,omitempty"`
	Valid          bool                     `json:"valid"`
	Error          string                   `json:"error,omitempty"`
	Lines          []LineValidationResponse `json:"lines"`
}

type ValidateBatchResponse struct {
	Orders       []OrderValidationResponse `json:"orders"`
	ValidCount   int                       `json:"valid_count"`
	InvalidCount int                       `json:"invalid_count"`
}
