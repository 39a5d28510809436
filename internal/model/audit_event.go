package model

import (
	"time"

	"github.com/google/uuid"
)

// AuditEvent is a before/after fact written in the same transaction as the
// mutation it describes. PublishedAt is set once the relay hands it off.
type AuditEvent struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	EntityType  string     `gorm:"not null;index:idx_audit_entity"`
	EntityID    string     `gorm:"not null;index:idx_audit_entity"`
	Action      string     `gorm:"not null"`
	Details     string     `gorm:"type:jsonb;not null"`
	ActorID     *uuid.UUID `gorm:"type:uuid"`
	PublishedAt *time.Time `gorm:"index"`
	CreatedAt   time.Time
}

func (AuditEvent) TableName() string { return "audit_events" }
