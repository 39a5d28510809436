// Package stock holds the pure availability arithmetic over ledger rows.
// Nothing here performs I/O.
package stock

import (
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/model"

	"github.com/shopspring/decimal"
)

// Available is allocated minus safety stock, clamped at zero.
func Available(row model.Allocation) int {
	return max(0, row.AllocatedQuantity-row.SafetyStock)
}

// TotalAcrossWarehouses sums allocated quantity (not available) over rows.
func TotalAcrossWarehouses(rows []model.Allocation) int {
	total := 0
	for _, r := range rows {
		total += r.AllocatedQuantity
	}
	return total
}

// TotalAvailable sums Available over rows.
func TotalAvailable(rows []model.Allocation) int {
	total := 0
	for _, r := range rows {
		total += Available(r)
	}
	return total
}

func IsLowStock(row model.Allocation, threshold int) bool {
	return Available(row) <= threshold
}

func IsOutOfStock(row model.Allocation) bool {
	return Available(row) == 0
}

// Utilization returns used/capacity as a percentage rounded to two places.
// A non-positive capacity means the warehouse is unbounded and reports zero.
func Utilization(used, capacity int) decimal.Decimal {
	if capacity <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(used)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(capacity))).
		Round(2)
}
