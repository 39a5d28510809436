package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/model"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenAuditRepo struct{ repository.AuditRepository }

func (brokenAuditRepo) Create(context.Context, *model.AuditEvent) error {
	return errors.New("disk full")
}

func TestEmitStoresEncodedDetails(t *testing.T) {
	store := repository.NewMemoryStore()
	actor := uuid.New()
	pid, wid := uuid.New(), uuid.New()

	err := NewEmitter().Emit(context.Background(), store.Audit(), EntityAllocation, pid.String(), ActionReceive,
		AllocationChange{
			Before: model.AllocationSnapshot{ProductID: pid, WarehouseID: wid},
			After:  model.AllocationSnapshot{ProductID: pid, WarehouseID: wid, AllocatedQuantity: 12},
			Reason: "PO-991",
		}, &actor)
	require.NoError(t, err)

	events, err := store.Audit().ListByEntity(context.Background(), EntityAllocation, pid.String())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ActionReceive, events[0].Action)
	assert.Equal(t, actor, *events[0].ActorID)

	var got AllocationChange
	require.NoError(t, json.Unmarshal([]byte(events[0].Details), &got))
	assert.Equal(t, 12, got.After.AllocatedQuantity)
	assert.Equal(t, "PO-991", got.Reason)
}

func TestEmitPropagatesStorageFailure(t *testing.T) {
	err := NewEmitter().Emit(context.Background(), brokenAuditRepo{}, EntityTransfer, "x", ActionTransfer, struct{}{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestEmitRejectsUnencodableDetails(t *testing.T) {
	store := repository.NewMemoryStore()
	err := NewEmitter().Emit(context.Background(), store.Audit(), EntityTransfer, "x", ActionTransfer, make(chan int), nil)
	require.Error(t, err)

	pending, err := store.Audit().ListUnpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEmitInsideRolledBackUnitLeavesNothing(t *testing.T) {
	store := repository.NewMemoryStore()
	boom := errors.New("later step failed")

	err := store.Atomic(context.Background(), func(tx repository.Repositories) error {
		if err := NewEmitter().Emit(context.Background(), tx.Audit(), EntityTransfer, "t-1", ActionTransfer, struct{}{}, nil); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	pending, err := store.Audit().ListUnpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
