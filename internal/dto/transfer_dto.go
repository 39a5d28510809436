package dto

// ─── Request DTOs ────────────────────────────────────────────────────────────

type TransferRequest struct {
	ProductID       string `json:"product_id"        validate:"required,uuid"`
	FromWarehouseID string `json:"from_warehouse_id" validate:"required,uuid"`
	ToWarehouseID   string `json:"to_warehouse_id"   validate:"required,uuid"`
	Quantity        int    `json:"quantity"          validate:"required,gt=0,max=1000000000"`
	Notes           string `json:"notes"             validate:"max=500"`
}

// ─── Filter / Pagination ─────────────────────────────────────────────────────

type TransferFilter struct {
	ProductID   string `form:"product_id"   validate:"omitempty,uuid"`
	WarehouseID string `form:"warehouse_id" validate:"omitempty,uuid"`
	Status      string `form:"status"       validate:"omitempty,oneof=PENDING COMPLETED FAILED"`
	Page        int    `form:"page"`
	Limit       int    `form:"limit"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type TransferResponse struct {
	ID              string  `json:"id"`
	ProductID       string  `json:"product_id"`
	FromWarehouseID string  `json:"from_warehouse_id"`
	ToWarehouseID   string  `json:"to_warehouse_id"`
	Quantity        int     `json:"quantity"`
	Status          string  `json:"status"`
	RequestedBy     string  `json:"requested_by"`
	ApprovedBy      *string `json:"approved_by,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	FailureReason   *string `json:"failure_reason,omitempty"`
	CompletedAt     *string `json:"completed_at,omitempty"`
	CreatedAt       string  `json:"created_at"`

	// Post-transfer availability, only set on the response to a transfer call.
	SourceAvailable      *int `json:"source_available,omitempty"`
	DestinationAvailable *int `json:"destination_available,omitempty"`
}

type TransferListResponse struct {
	Data  []TransferResponse `json:"data"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}
