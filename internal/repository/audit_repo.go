package repository

import (
	"context"
	"time"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type auditRepo struct{ db *gorm.DB }

func (r *auditRepo) Create(ctx context.Context, e *model.AuditEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return translate(r.db.WithContext(ctx).Create(e).Error)
}

func (r *auditRepo) ListUnpublished(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	var events []model.AuditEvent
	err := r.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, translate(err)
}

func (r *auditRepo) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Model(&model.AuditEvent{}).
		Where("id IN ?", ids).
		Update("published_at", at).Error)
}

func (r *auditRepo) ListByEntity(ctx context.Context, entityType, entityID string) ([]model.AuditEvent, error) {
	var events []model.AuditEvent
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").
		Find(&events).Error
	return events, translate(err)
}
