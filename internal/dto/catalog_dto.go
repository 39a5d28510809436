package dto

import "github.com/shopspring/decimal"

type CreateProductRequest struct {
	BusinessID string          `json:"business_id" validate:"required,uuid"`
	SKU        string          `json:"sku"         validate:"required,max=64"`
	Name       string          `json:"name"        validate:"required,min=2,max=120"`
	UnitWeight decimal.Decimal `json:"unit_weight" validate:"min=0"`
}

type ProductResponse struct {
	ID         string          `json:"id"`
	BusinessID string          `json:"business_id"`
	SKU        string          `json:"sku"`
	Name       string          `json:"name"`
	UnitWeight decimal.Decimal `json:"unit_weight"`
	CreatedAt  string          `json:"created_at"`
}

type CreateWarehouseRequest struct {
	Name     string `json:"name"     validate:"required,min=1,max=120"`
	Region   string `json:"region"   validate:"max=80"`
	Capacity int    `json:"capacity" validate:"min=0"`
}

type WarehouseResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Region    string `json:"region"`
	Capacity  int    `json:"capacity"`
	CreatedAt string `json:"created_at"`
}
