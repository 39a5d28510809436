package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxSKULength matches the max= tag on SKU request fields.
const MaxSKULength = 64

// Product is owned by a business; only metadata may change once a ledger row
// or order line references it.
type Product struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	BusinessID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_products_business_sku"`
	SKU        string          `gorm:"not null;uniqueIndex:idx_products_business_sku"`
	Name       string          `gorm:"not null"`
	UnitWeight decimal.Decimal `gorm:"type:decimal(10,3);not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NormalizeSKU is the canonical form used for storage and lookup.
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}
