package model

import (
	"time"

	"github.com/google/uuid"
)

// Warehouse has an independent lifecycle; allocation rows reference it.
type Warehouse struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string    `gorm:"not null;uniqueIndex"`
	Region    string    `gorm:"not null;default:''"`
	Capacity  int       `gorm:"not null;default:0"` // 0 = unbounded
	CreatedAt time.Time
	UpdatedAt time.Time
}
