package repository

import (
	"context"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type transferRepo struct{ db *gorm.DB }

func (r *transferRepo) Create(ctx context.Context, t *model.Transfer) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return translate(r.db.WithContext(ctx).Create(t).Error)
}

// Update persists only the mutable part of a transfer: status and approval metadata.
func (r *transferRepo) Update(ctx context.Context, t *model.Transfer) error {
	res := r.db.WithContext(ctx).Model(&model.Transfer{}).
		Where("id = ?", t.ID).
		Updates(map[string]interface{}{
			"status":         t.Status,
			"approved_by":    t.ApprovedBy,
			"failure_reason": t.FailureReason,
			"completed_at":   t.CompletedAt,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *transferRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Transfer, error) {
	var t model.Transfer
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *transferRepo) List(ctx context.Context, filter TransferFilter) ([]model.Transfer, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Transfer{})
	if filter.ProductID != nil {
		q = q.Where("product_id = ?", *filter.ProductID)
	}
	if filter.WarehouseID != nil {
		q = q.Where("from_warehouse_id = ? OR to_warehouse_id = ?", *filter.WarehouseID, *filter.WarehouseID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	page, limit := NormalizePage(filter.Page, filter.Limit)
	var transfers []model.Transfer
	err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&transfers).Error
	return transfers, total, translate(err)
}
