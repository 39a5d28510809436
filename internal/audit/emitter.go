// Package audit records before/after facts for every ledger mutation. Facts
// are written through the repository of the caller's open atomic unit, so a
// failed emit fails the mutation with it.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/model"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/repository"

	"github.com/google/uuid"
)

// Entity types.
const (
	EntityAllocation  = "allocation"
	EntityFulfillment = "fulfillment"
	EntityTransfer    = "transfer"
)

// Actions.
const (
	ActionReceive        = "receive"
	ActionAdjust         = "adjust"
	ActionSetSafetyStock = "set_safety_stock"
	ActionFulfill        = "fulfill"
	ActionTransfer       = "transfer"
	ActionTransferFailed = "transfer_failed"
)

// Emitter writes audit facts. It is stateless; the zero value is usable.
type Emitter struct{}

func NewEmitter() *Emitter { return &Emitter{} }

// Emit must be called with the AuditRepository of the same atomic unit as the
// mutation. It performs no network I/O.
func (e *Emitter) Emit(ctx context.Context, repo repository.AuditRepository, entityType, entityID, action string, details any, actorID *uuid.UUID) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("audit: encode %s/%s details: %w", entityType, action, err)
	}
	ev := &model.AuditEvent{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Details:    string(payload),
		ActorID:    actorID,
	}
	if err := repo.Create(ctx, ev); err != nil {
		return fmt.Errorf("audit: record %s/%s: %w", entityType, action, err)
	}
	return nil
}

// AllocationChange is the detail payload for single-row ledger writes.
type AllocationChange struct {
	Before model.AllocationSnapshot `json:"before"`
	After  model.AllocationSnapshot `json:"after"`
	Reason string                   `json:"reason,omitempty"`
}

// FulfillmentLine is one committed line of an order.
type FulfillmentLine struct {
	SKU            string    `json:"sku"`
	ProductID      uuid.UUID `json:"product_id"`
	WarehouseID    uuid.UUID `json:"warehouse_id"`
	Quantity       int       `json:"quantity"`
	QuantityBefore int       `json:"quantity_before"`
	QuantityAfter  int       `json:"quantity_after"`
}

type FulfillmentFact struct {
	OrderReference         string            `json:"order_reference,omitempty"`
	FulfillmentWarehouseID uuid.UUID         `json:"fulfillment_warehouse_id"`
	Lines                  []FulfillmentLine `json:"lines"`
}

type TransferFact struct {
	TransferID        uuid.UUID                `json:"transfer_id"`
	Quantity          int                      `json:"quantity"`
	SourceBefore      model.AllocationSnapshot `json:"source_before"`
	SourceAfter       model.AllocationSnapshot `json:"source_after"`
	DestinationBefore model.AllocationSnapshot `json:"destination_before"`
	DestinationAfter  model.AllocationSnapshot `json:"destination_after"`
}

// TransferFailure is recorded when a transfer ends in FAILED. No ledger row
// changed, so there are no snapshots.
type TransferFailure struct {
	TransferID      uuid.UUID `json:"transfer_id"`
	ProductID       uuid.UUID `json:"product_id"`
	FromWarehouseID uuid.UUID `json:"from_warehouse_id"`
	ToWarehouseID   uuid.UUID `json:"to_warehouse_id"`
	Quantity        int       `json:"quantity"`
	Reason          string    `json:"reason"`
}
