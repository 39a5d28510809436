package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/audit"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/dto"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/model"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/repository"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newFulfillment(f *fixture, store repository.Store, opts service.FulfillmentOptions) service.FulfillmentService {
	return service.NewFulfillmentService(store, f.emitter, nil, opts)
}

func order(f *fixture, lines ...dto.OrderLineRequest) dto.FulfillRequest {
	return dto.FulfillRequest{BusinessID: f.businessID.String(), OrderReference: "ORD-1", Lines: lines}
}

func line(sku string, qty int) dto.OrderLineRequest {
	return dto.OrderLineRequest{SKU: sku, Quantity: qty}
}

func TestFulfill_PicksOnlyWarehouseThatCanServeTheLine(t *testing.T) {
	f := newFixture(t)
	svc := newFulfillment(f, f.store, service.FulfillmentOptions{})

	resp, err := svc.Fulfill(context.Background(), f.actor, order(f, line("WIDGET-1", 30)))
	require.NoError(t, err)

	assert.Equal(t, f.whA.ID.String(), resp.FulfillmentWarehouseID)
	assert.False(t, resp.SpansWarehouses)
	assert.Equal(t, 1, resp.Attempts)
	require.Len(t, resp.Lines, 1)
	assert.Equal(t, 50, resp.Lines[0].QuantityBefore)
	assert.Equal(t, 20, resp.Lines[0].QuantityAfter)
	assert.Equal(t, 10, resp.Lines[0].AvailableAfter)

	assert.Equal(t, 20, f.row(t, f.widget.ID, f.whA.ID).AllocatedQuantity)
	assert.Equal(t, 20, f.row(t, f.widget.ID, f.whB.ID).AllocatedQuantity)
}

func TestFulfill_PrefersHighestAllocatedAmongEligible(t *testing.T) {
	f := newFixture(t)
	svc := newFulfillment(f, f.store, service.FulfillmentOptions{})

	resp, err := svc.Fulfill(context.Background(), f.actor, order(f, line("WIDGET-1", 10)))
	require.NoError(t, err)
	assert.Equal(t, f.whA.ID.String(), resp.FulfillmentWarehouseID)
}

func TestFulfill_TiesGoToLowestWarehouseID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	low := &model.Warehouse{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Name: "low"}
	high := &model.Warehouse{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), Name: "high"}
	require.NoError(t, f.store.Warehouses().Create(ctx, high))
	require.NoError(t, f.store.Warehouses().Create(ctx, low))
	gadget := f.addProduct(t, "GADGET")
	f.seed(t, gadget.ID, high.ID, 30, 0)
	f.seed(t, gadget.ID, low.ID, 30, 0)

	svc := newFulfillment(f, f.store, service.FulfillmentOptions{})
	for i := 0; i < 3; i++ {
		resp, err := svc.ValidateBatch(ctx, dto.ValidateBatchRequest{Orders: []dto.FulfillRequest{order(f, line("GADGET", 5))}})
		require.NoError(t, err)
		require.NotNil(t, resp.Orders[0].Lines[0].WarehouseID)
		assert.Equal(t, low.ID.String(), *resp.Orders[0].Lines[0].WarehouseID)
	}

	resp, err := svc.Fulfill(ctx, f.actor, order(f, line("GADGET", 5)))
	require.NoError(t, err)
	assert.Equal(t, low.ID.String(), resp.FulfillmentWarehouseID)
}

func TestFulfill_AggregatesRepeatedSKUs(t *testing.T) {
	split := newFixture(t)
	merged := newFixture(t)
	ctx := context.Background()

	r1, err := newFulfillment(split, split.store, service.FulfillmentOptions{}).
		Fulfill(ctx, split.actor, order(split, line("widget-1", 3), line(" WIDGET-1 ", 4)))
	require.NoError(t, err)
	r2, err := newFulfillment(merged, merged.store, service.FulfillmentOptions{}).
		Fulfill(ctx, merged.actor, order(merged, line("WIDGET-1", 7)))
	require.NoError(t, err)

	require.Len(t, r1.Lines, 1)
	assert.Equal(t, 7, r1.Lines[0].Quantity)
	assert.Equal(t, "WIDGET-1", r1.Lines[0].SKU)
	assert.Equal(t, r2.Lines[0].QuantityAfter, r1.Lines[0].QuantityAfter)
	assert.Equal(t,
		merged.row(t, merged.widget.ID, merged.whA.ID).AllocatedQuantity,
		split.row(t, split.widget.ID, split.whA.ID).AllocatedQuantity)
}

func TestFulfill_InsufficientStockReportsTotalAvailable(t *testing.T) {
	f := newFixture(t)
	svc := newFulfillment(f, f.store, service.FulfillmentOptions{})

	_, err := svc.Fulfill(context.Background(), f.actor, order(f, line("WIDGET-1", 45)))
	require.ErrorIs(t, err, service.ErrInsufficientStock)

	var ise *service.InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, "WIDGET-1", ise.SKU)
	assert.Equal(t, 45, ise.Requested)
	assert.Equal(t, 60, ise.Available)
	assert.Len(t, ise.Breakdown, 2)

	assert.Equal(t, 50, f.row(t, f.widget.ID, f.whA.ID).AllocatedQuantity)
	assert.Equal(t, 0, f.auditCount(t), "no audit fact for a rejected order")
}

func TestFulfill_UnknownSKUFailsWholeOrder(t *testing.T) {
	f := newFixture(t)
	svc := newFulfillment(f, f.store, service.FulfillmentOptions{})

	_, err := svc.Fulfill(context.Background(), f.actor, order(f, line("WIDGET-1", 5), line("NOPE", 1)))
	require.ErrorIs(t, err, service.ErrProductNotFound)

	var pnf *service.ProductNotFoundError
	require.True(t, errors.As(err, &pnf))
	assert.Equal(t, "NOPE", pnf.SKU)
	assert.Equal(t, 50, f.row(t, f.widget.ID, f.whA.ID).AllocatedQuantity)
}

func TestFulfill_ProductsAreScopedToBusiness(t *testing.T) {
	f := newFixture(t)
	svc := newFulfillment(f, f.store, service.FulfillmentOptions{})

	req := order(f, line("WIDGET-1", 1))
	req.BusinessID = uuid.NewString()
	_, err := svc.Fulfill(context.Background(), f.actor, req)
	assert.ErrorIs(t, err, service.ErrProductNotFound)
}

func TestFulfill_OneShortLineRejectsEveryLine(t *testing.T) {
	f := newFixture(t)
	bolt := f.addProduct(t, "BOLT")
	f.seed(t, bolt.ID, f.whA.ID, 5, 0)
	svc := newFulfillment(f, f.store, service.FulfillmentOptions{})

	_, err := svc.Fulfill(context.Background(), f.actor, order(f, line("WIDGET-1", 10), line("BOLT", 6)))
	require.ErrorIs(t, err, service.ErrInsufficientStock)

	assert.Equal(t, 50, f.row(t, f.widget.ID, f.whA.ID).AllocatedQuantity)
	assert.Equal(t, 5, f.row(t, bolt.ID, f.whA.ID).AllocatedQuantity)
}

func TestFulfill_SplitOrdersAreFlaggedOrRejected(t *testing.T) {
	f := newFixture(t)
	bolt := f.addProduct(t, "BOLT")
	f.seed(t, bolt.ID, f.whB.ID, 5, 0)

	resp, err := newFulfillment(f, f.store, service.FulfillmentOptions{}).
		Fulfill(context.Background(), f.actor, order(f, line("WIDGET-1", 10), line("BOLT", 2)))
	require.NoError(t, err)
	assert.True(t, resp.SpansWarehouses)
	assert.Equal(t, f.whA.ID.String(), resp.FulfillmentWarehouseID)
	assert.Equal(t, f.whB.ID.String(), resp.Lines[1].WarehouseID)

	_, err = newFulfillment(f, f.store, service.FulfillmentOptions{RejectSplitOrders: true}).
		Fulfill(context.Background(), f.actor, order(f, line("WIDGET-1", 10), line("BOLT", 2)))
	require.ErrorIs(t, err, service.ErrSplitOrder)
	assert.Equal(t, 40, f.row(t, f.widget.ID, f.whA.ID).AllocatedQuantity)
	assert.Equal(t, 3, f.row(t, bolt.ID, f.whB.ID).AllocatedQuantity)
}

func TestFulfill_RejectsMalformedLines(t *testing.T) {
	f := newFixture(t)
	svc := newFulfillment(f, f.store, service.FulfillmentOptions{})

	cases := []struct {
		name string
		req  dto.FulfillRequest
	}{
		{"no lines", order(f)},
		{"zero quantity", order(f, line("WIDGET-1", 0))},
		{"blank sku", order(f, line("  ", 1))},
		{"sku too long", order(f, line(strings.Repeat("X", model.MaxSKULength+1), 1))},
		{"quantity above ceiling", order(f, line("WIDGET-1", model.MaxQuantity+1))},
		{"quantity near MaxInt", order(f, line("WIDGET-1", math.MaxInt64))},
		{"bad business", dto.FulfillRequest{BusinessID: "nope", Lines: []dto.OrderLineRequest{line("WIDGET-1", 1)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Fulfill(context.Background(), f.actor, tc.req)
			assert.ErrorIs(t, err, service.ErrInvalidRequest)
		})
	}
}

func TestFulfill_EmitsAuditFactPerOrder(t *testing.T) {
	f := newFixture(t)
	svc := newFulfillment(f, f.store, service.FulfillmentOptions{})

	resp, err := svc.Fulfill(context.Background(), f.actor, order(f, line("WIDGET-1", 30)))
	require.NoError(t, err)

	events, err := f.store.Audit().ListByEntity(context.Background(), audit.EntityFulfillment, resp.FulfillmentID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionFulfill, events[0].Action)
	assert.Equal(t, f.actor, *events[0].ActorID)

	var fact audit.FulfillmentFact
	require.NoError(t, json.Unmarshal([]byte(events[0].Details), &fact))
	assert.Equal(t, "ORD-1", fact.OrderReference)
	require.Len(t, fact.Lines, 1)
	assert.Equal(t, 50, fact.Lines[0].QuantityBefore)
	assert.Equal(t, 20, fact.Lines[0].QuantityAfter)
}

func TestFulfill_AuditFailureRollsBackDecrements(t *testing.T) {
	f := newFixture(t)
	svc := newFulfillment(f, brokenAuditStore{f.store}, service.FulfillmentOptions{})

	_, err := svc.Fulfill(context.Background(), f.actor, order(f, line("WIDGET-1", 30)))
	require.ErrorIs(t, err, service.ErrStorage)

	assert.Equal(t, 50, f.row(t, f.widget.ID, f.whA.ID).AllocatedQuantity)
	assert.Equal(t, 0, f.auditCount(t))
}

func TestFulfill_ConcurrentOrdersNeverOversell(t *testing.T) {
	f := newFixture(t)
	rec := newCountingRecorder()
	svc := service.NewFulfillmentService(f.store, f.emitter, rec, service.FulfillmentOptions{})

	const k = 16
	var ok, short atomic.Int32
	var g errgroup.Group
	for i := 0; i < k; i++ {
		g.Go(func() error {
			_, err := svc.Fulfill(context.Background(), f.actor, order(f, line("WIDGET-1", 40)))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, service.ErrInsufficientStock):
				short.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(k-1), short.Load())
	a := f.row(t, f.widget.ID, f.whA.ID)
	assert.Equal(t, 10, a.AllocatedQuantity)
	assert.Equal(t, 1, rec.fulfillments[service.OutcomePlaced])
	assert.Equal(t, k-1, rec.fulfillments[service.OutcomeInsufficientStock])
}

func TestFulfill_LostRacesAreRetriedThenReportedAsInsufficient(t *testing.T) {
	f := newFixture(t)
	rec := newCountingRecorder()
	svc := service.NewFulfillmentService(racingStore{f.store}, f.emitter, rec, service.FulfillmentOptions{MaxAttempts: 3})

	_, err := svc.Fulfill(context.Background(), f.actor, order(f, line("WIDGET-1", 30)))
	require.ErrorIs(t, err, service.ErrInsufficientStock)
	assert.NotErrorIs(t, err, service.ErrConcurrencyConflict)
	assert.Equal(t, 3, rec.retries)
	assert.Equal(t, 50, f.row(t, f.widget.ID, f.whA.ID).AllocatedQuantity)
}

func TestValidateBatch_IsReadOnlyAndRepeatable(t *testing.T) {
	f := newFixture(t)
	svc := newFulfillment(f, f.store, service.FulfillmentOptions{})
	req := dto.ValidateBatchRequest{Orders: []dto.FulfillRequest{
		order(f, line("WIDGET-1", 30)),
		order(f, line("WIDGET-1", 41)),
		order(f, line("GHOST", 1)),
		order(f, line("", 2), line("WIDGET-1", 1)),
		{BusinessID: "bad", Lines: []dto.OrderLineRequest{line("WIDGET-1", 1)}},
	}}

	first, err := svc.ValidateBatch(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.ValidateBatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, 1, first.ValidCount)
	assert.Equal(t, 4, first.InvalidCount)

	assert.True(t, first.Orders[0].Valid)
	assert.Equal(t, dto.LineOK, first.Orders[0].Lines[0].Status)
	assert.Equal(t, f.whA.ID.String(), *first.Orders[0].Lines[0].WarehouseID)

	assert.Equal(t, dto.LineInsufficientStock, first.Orders[1].Lines[0].Status)
	assert.Equal(t, 60, first.Orders[1].Lines[0].Available)

	assert.Equal(t, dto.LineProductNotFound, first.Orders[2].Lines[0].Status)
	assert.Equal(t, dto.LineInvalid, first.Orders[3].Lines[0].Status)
	assert.Equal(t, dto.LineInvalid, first.Orders[4].Lines[0].Status)
	assert.Equal(t, 4, first.Orders[4].Index)

	assert.Equal(t, 50, f.row(t, f.widget.ID, f.whA.ID).AllocatedQuantity)
	assert.Equal(t, 0, f.auditCount(t))
}

func TestValidateBatch_OrdersAreJudgedIndependently(t *testing.T) {
	f := newFixture(t)
	svc := newFulfillment(f, f.store, service.FulfillmentOptions{})

	resp, err := svc.ValidateBatch(context.Background(), dto.ValidateBatchRequest{Orders: []dto.FulfillRequest{
		order(f, line("WIDGET-1", 40)),
		order(f, line("WIDGET-1", 40)),
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.ValidCount)
}

func TestFulfill_RepeatedSKUsCannotSumPastCeiling(t *testing.T) {
	f := newFixture(t)
	svc := newFulfillment(f, f.store, service.FulfillmentOptions{})

	cases := []struct {
		name  string
		lines []dto.OrderLineRequest
	}{
		{"wrapping sum", []dto.OrderLineRequest{line("WIDGET-1", math.MaxInt64), line("widget-1", math.MaxInt64-4)}},
		{"sum above ceiling", []dto.OrderLineRequest{line("WIDGET-1", model.MaxQuantity), line("widget-1", 1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Fulfill(context.Background(), f.actor, order(f, tc.lines...))
			assert.ErrorIs(t, err, service.ErrInvalidRequest)
		})
	}

	assert.Equal(t, 50, f.row(t, f.widget.ID, f.whA.ID).AllocatedQuantity)
	assert.Equal(t, 20, f.row(t, f.widget.ID, f.whB.ID).AllocatedQuantity)
	assert.Equal(t, 0, f.auditCount(t))
}

func TestValidateBatch_BoundsEveryLine(t *testing.T) {
	f := newFixture(t)
	svc := newFulfillment(f, f.store, service.FulfillmentOptions{})

	resp, err := svc.ValidateBatch(context.Background(), dto.ValidateBatchRequest{Orders: []dto.FulfillRequest{
		order(f, line(strings.Repeat("X", model.MaxSKULength+1), 1)),
		order(f, line("WIDGET-1", math.MaxInt64)),
		order(f, line("WIDGET-1", model.MaxQuantity), line("widget-1", model.MaxQuantity)),
		order(f, line("WIDGET-1", 5)),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.ValidCount)
	assert.Equal(t, 3, resp.InvalidCount)
	for i := 0; i < 3; i++ {
		o := resp.Orders[i]
		assert.False(t, o.Valid, "order %d", i)
		require.Len(t, o.Lines, 1)
		assert.Equal(t, dto.LineInvalid, o.Lines[0].Status, "order %d", i)
	}
	assert.True(t, resp.Orders[3].Valid)
}

func TestFulfill_WritesRowsInLockOrder(t *testing.T) {
	f := newFixture(t)
	gadget := f.addProduct(t, "GADGET")
	f.seed(t, gadget.ID, f.whA.ID, 100, 0)
	store := &recordingStore{MemoryStore: f.store}
	svc := newFulfillment(f, store, service.FulfillmentOptions{})

	// Request order is the reverse of lock order for one of these two calls.
	for _, lines := range [][]dto.OrderLineRequest{
		{line("WIDGET-1", 1), line("GADGET", 1)},
		{line("GADGET", 1), line("WIDGET-1", 1)},
	} {
		store.writes = nil
		resp, err := svc.Fulfill(context.Background(), f.actor, order(f, lines...))
		require.NoError(t, err)

		writes := store.log()
		require.Len(t, writes, 2)
		assert.Negative(t, bytes.Compare(writes[0].product[:], writes[1].product[:]), "decrements follow product id order")

		require.Len(t, resp.Lines, 2)
		assert.Equal(t, model.NormalizeSKU(lines[0].SKU), resp.Lines[0].SKU, "response keeps request order")
		assert.Equal(t, model.NormalizeSKU(lines[1].SKU), resp.Lines[1].SKU)
	}
}

func TestFulfill_DeadlockVictimIsRetried(t *testing.T) {
	f := newFixture(t)
	rec := newCountingRecorder()
	store := &abortingStore{MemoryStore: f.store, left: 1}
	svc := service.NewFulfillmentService(store, f.emitter, rec, service.FulfillmentOptions{MaxAttempts: 3})

	resp, err := svc.Fulfill(context.Background(), f.actor, order(f, line("WIDGET-1", 30)))
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Attempts)
	assert.Equal(t, 1, rec.retries)
	assert.Equal(t, 20, f.row(t, f.widget.ID, f.whA.ID).AllocatedQuantity, "decremented exactly once")
	assert.Equal(t, 1, f.auditCount(t))
}

func TestFulfill_RepeatedDeadlocksEndAsInsufficientStock(t *testing.T) {
	f := newFixture(t)
	store := &abortingStore{MemoryStore: f.store, left: 10}
	svc := service.NewFulfillmentService(store, f.emitter, nil, service.FulfillmentOptions{MaxAttempts: 3})

	_, err := svc.Fulfill(context.Background(), f.actor, order(f, line("WIDGET-1", 30)))
	require.ErrorIs(t, err, service.ErrInsufficientStock)
	assert.NotErrorIs(t, err, service.ErrStorage)
	assert.Equal(t, 3, store.calls)
	assert.Equal(t, 50, f.row(t, f.widget.ID, f.whA.ID).AllocatedQuantity)
}
