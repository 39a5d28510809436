package repository

import (
	"context"
	"time"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type allocationRepo struct{ db *gorm.DB }

func (r *allocationRepo) Get(ctx context.Context, productID, warehouseID uuid.UUID) (*model.Allocation, error) {
	var a model.Allocation
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).
		First(&a).Error
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *allocationRepo) UpsertAdd(ctx context.Context, productID, warehouseID uuid.UUID, delta int) (model.Allocation, model.Allocation, error) {
	if delta == 0 || delta > model.MaxQuantity || delta < -model.MaxQuantity {
		return model.Allocation{}, model.Allocation{}, ErrInvalidDelta
	}
	if delta > 0 {
		return r.increment(ctx, productID, warehouseID, delta)
	}
	return r.decrement(ctx, productID, warehouseID, -delta)
}

// increment is a single INSERT .. ON CONFLICT DO UPDATE, so concurrent first
// receipts for the same pair cannot create two rows or lose an addition. The
// DO UPDATE is guarded so the row never grows past model.MaxQuantity; a
// refused update returns no row.
func (r *allocationRepo) increment(ctx context.Context, productID, warehouseID uuid.UUID, qty int) (model.Allocation, model.Allocation, error) {
	now := time.Now()
	after := model.Allocation{
		ProductID:         productID,
		WarehouseID:       warehouseID,
		AllocatedQuantity: qty,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	res := r.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "product_id"}, {Name: "warehouse_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"allocated_quantity": gorm.Expr("stock_allocations.allocated_quantity + EXCLUDED.allocated_quantity"),
					"updated_at":         gorm.Expr("EXCLUDED.updated_at"),
				}),
				Where: clause.Where{Exprs: []clause.Expression{
					gorm.Expr("stock_allocations.allocated_quantity <= ?", model.MaxQuantity-qty),
				}},
			},
			clause.Returning{},
		).
		Create(&after)
	if res.Error != nil {
		return model.Allocation{}, model.Allocation{}, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Allocation{}, model.Allocation{}, ErrInvalidDelta
	}
	before := after
	before.AllocatedQuantity -= qty
	return before, after, nil
}

// decrement guards the subtraction in the WHERE clause: the check and the write
// are one statement, so two concurrent callers can never both take the last
// available units.
func (r *allocationRepo) decrement(ctx context.Context, productID, warehouseID uuid.UUID, qty int) (model.Allocation, model.Allocation, error) {
	var after model.Allocation
	res := r.db.WithContext(ctx).
		Model(&after).
		Clauses(clause.Returning{}).
		Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).
		Where("allocated_quantity - safety_stock >= ?", qty).
		Updates(map[string]interface{}{
			"allocated_quantity": gorm.Expr("allocated_quantity - ?", qty),
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return model.Allocation{}, model.Allocation{}, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Allocation{}, model.Allocation{}, r.classifyMiss(ctx, productID, warehouseID, qty)
	}
	before := after
	before.AllocatedQuantity += qty
	return before, after, nil
}

// classifyMiss explains why a guarded decrement matched nothing. It only
// reads; the decision to write was already made by the guarded statement.
func (r *allocationRepo) classifyMiss(ctx context.Context, productID, warehouseID uuid.UUID, qty int) error {
	row, err := r.Get(ctx, productID, warehouseID)
	if err != nil {
		return err
	}
	if row.AllocatedQuantity < qty {
		return ErrInvalidDelta
	}
	return ErrConditionFailed
}

func (r *allocationRepo) SetSafetyStock(ctx context.Context, productID, warehouseID uuid.UUID, safety int) (model.Allocation, model.Allocation, error) {
	if safety < 0 {
		return model.Allocation{}, model.Allocation{}, ErrInvalidDelta
	}
	db := r.db.WithContext(ctx)

	var before model.Allocation
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).
		First(&before).Error
	if err != nil {
		return model.Allocation{}, model.Allocation{}, translate(err)
	}

	var after model.Allocation
	res := db.Model(&after).
		Clauses(clause.Returning{}).
		Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).
		Where("allocated_quantity >= ?", safety).
		Updates(map[string]interface{}{
			"safety_stock": safety,
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return model.Allocation{}, model.Allocation{}, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Allocation{}, model.Allocation{}, ErrConditionFailed
	}
	return before, after, nil
}

func (r *allocationRepo) ListByProduct(ctx context.Context, productID uuid.UUID) ([]model.Allocation, error) {
	var rows []model.Allocation
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("allocated_quantity DESC, warehouse_id ASC").
		Find(&rows).Error
	return rows, translate(err)
}

func (r *allocationRepo) ListByWarehouse(ctx context.Context, warehouseID uuid.UUID) ([]model.Allocation, error) {
	var rows []model.Allocation
	err := r.db.WithContext(ctx).
		Where("warehouse_id = ?", warehouseID).
		Order("product_id ASC").
		Find(&rows).Error
	return rows, translate(err)
}

func (r *allocationRepo) ListLowStock(ctx context.Context, threshold int) ([]model.Allocation, error) {
	var rows []model.Allocation
	err := r.db.WithContext(ctx).
		Where("GREATEST(allocated_quantity - safety_stock, 0) <= ?", threshold).
		Order("product_id ASC, warehouse_id ASC").
		Find(&rows).Error
	return rows, translate(err)
}
