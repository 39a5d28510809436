package model

import (
	"time"

	"github.com/google/uuid"
)

// Transfer states. A transfer is logically instantaneous once validated, so
// there is no in-transit state.
const (
	TransferPending   = "PENDING"
	TransferCompleted = "COMPLETED"
	TransferFailed    = "FAILED"
)

// Transfer is immutable once created except for status and approval metadata.
type Transfer struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProductID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	FromWarehouseID uuid.UUID  `gorm:"type:uuid;not null;index"`
	ToWarehouseID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	Quantity        int        `gorm:"not null"`
	Status          string     `gorm:"not null;index"`
	RequestedBy     uuid.UUID  `gorm:"type:uuid;not null"`
	ApprovedBy      *uuid.UUID `gorm:"type:uuid"`
	Notes           string
	FailureReason   *string
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Transfer) TableName() string { return "stock_transfers" }
