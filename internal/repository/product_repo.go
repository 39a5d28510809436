package repository

import (
	"context"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type productRepo struct{ db *gorm.DB }

func (r *productRepo) Create(ctx context.Context, p *model.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return translate(r.db.WithContext(ctx).Create(p).Error)
}

func (r *productRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var p model.Product
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *productRepo) FindBySKU(ctx context.Context, businessID uuid.UUID, sku string) (*model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND sku = ?", businessID, sku).
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *productRepo) List(ctx context.Context, businessID uuid.UUID) ([]model.Product, error) {
	q := r.db.WithContext(ctx).Model(&model.Product{})
	if businessID != uuid.Nil {
		q = q.Where("business_id = ?", businessID)
	}
	var products []model.Product
	err := q.Order("sku ASC").Find(&products).Error
	return products, translate(err)
}
