package repository

import (
	"context"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type warehouseRepo struct{ db *gorm.DB }

func (r *warehouseRepo) Create(ctx context.Context, w *model.Warehouse) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return translate(r.db.WithContext(ctx).Create(w).Error)
}

func (r *warehouseRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Warehouse, error) {
	var w model.Warehouse
	if err := r.db.WithContext(ctx).First(&w, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

func (r *warehouseRepo) List(ctx context.Context) ([]model.Warehouse, error) {
	var warehouses []model.Warehouse
	err := r.db.WithContext(ctx).Order("name ASC").Find(&warehouses).Error
	return warehouses, translate(err)
}
