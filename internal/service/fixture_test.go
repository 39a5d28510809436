package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/audit"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/model"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// ── Fixture ──────────────────────────────────────────────────────────────────
// WIDGET-1 held at two warehouses:
//   A: allocated 50, safety 10 (available 40)
//   B: allocated 20, safety 0  (available 20)

type fixture struct {
	store      *repository.MemoryStore
	emitter    *audit.Emitter
	businessID uuid.UUID
	widget     *model.Product
	whA        *model.Warehouse
	whB        *model.Warehouse
	actor      uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      repository.NewMemoryStore(),
		emitter:    audit.NewEmitter(),
		businessID: uuid.New(),
		actor:      uuid.New(),
	}
	f.widget = f.addProduct(t, "WIDGET-1")
	f.whA = f.addWarehouse(t, "A", 200)
	f.whB = f.addWarehouse(t, "B", 0)
	f.seed(t, f.widget.ID, f.whA.ID, 50, 10)
	f.seed(t, f.widget.ID, f.whB.ID, 20, 0)
	return f
}

func (f *fixture) addProduct(t *testing.T, sku string) *model.Product {
	t.Helper()
	p := &model.Product{BusinessID: f.businessID, SKU: sku, Name: sku}
	require.NoError(t, f.store.Products().Create(context.Background(), p))
	return p
}

func (f *fixture) addWarehouse(t *testing.T, name string, capacity int) *model.Warehouse {
	t.Helper()
	w := &model.Warehouse{Name: name, Region: "north", Capacity: capacity}
	require.NoError(t, f.store.Warehouses().Create(context.Background(), w))
	return w
}

func (f *fixture) seed(t *testing.T, productID, warehouseID uuid.UUID, allocated, safety int) {
	t.Helper()
	ctx := context.Background()
	_, _, err := f.store.Allocations().UpsertAdd(ctx, productID, warehouseID, allocated)
	require.NoError(t, err)
	if safety > 0 {
		_, _, err = f.store.Allocations().SetSafetyStock(ctx, productID, warehouseID, safety)
		require.NoError(t, err)
	}
}

func (f *fixture) row(t *testing.T, productID, warehouseID uuid.UUID) model.Allocation {
	t.Helper()
	a, err := f.store.Allocations().Get(context.Background(), productID, warehouseID)
	require.NoError(t, err)
	return *a
}

func (f *fixture) auditCount(t *testing.T) int {
	t.Helper()
	events, err := f.store.Audit().ListUnpublished(context.Background(), 0)
	require.NoError(t, err)
	return len(events)
}

// ── Store wrappers ───────────────────────────────────────────────────────────

// brokenAuditStore hands every atomic unit an audit repository that fails.
type brokenAuditStore struct{ *repository.MemoryStore }

func (s brokenAuditStore) Atomic(ctx context.Context, fn func(tx repository.Repositories) error) error {
	return s.MemoryStore.Atomic(ctx, func(tx repository.Repositories) error {
		return fn(brokenAuditTx{tx})
	})
}

type brokenAuditTx struct{ repository.Repositories }

func (brokenAuditTx) Audit() repository.AuditRepository { return brokenAuditRepo{} }

type brokenAuditRepo struct{ repository.AuditRepository }

func (brokenAuditRepo) Create(context.Context, *model.AuditEvent) error {
	return errors.New("audit table unavailable")
}

// racingStore makes every guarded decrement inside an atomic unit lose, as
// if another writer always got there first.
type racingStore struct{ *repository.MemoryStore }

func (s racingStore) Atomic(ctx context.Context, fn func(tx repository.Repositories) error) error {
	return s.MemoryStore.Atomic(ctx, func(tx repository.Repositories) error {
		return fn(racingTx{tx})
	})
}

type racingTx struct{ repository.Repositories }

func (r racingTx) Allocations() repository.AllocationRepository {
	return racingAllocations{r.Repositories.Allocations()}
}

type racingAllocations struct{ repository.AllocationRepository }

func (racingAllocations) UpsertAdd(_ context.Context, _, _ uuid.UUID, delta int) (model.Allocation, model.Allocation, error) {
	if delta < 0 {
		return model.Allocation{}, model.Allocation{}, repository.ErrConditionFailed
	}
	return model.Allocation{}, model.Allocation{}, errors.New("unexpected increment")
}

// recordingStore logs the (product, warehouse) of every ledger write made
// inside an atomic unit, in call order.
type recordingStore struct {
	*repository.MemoryStore
	mu     sync.Mutex
	writes []writeKey
}

type writeKey struct{ product, warehouse uuid.UUID }

func (s *recordingStore) Atomic(ctx context.Context, fn func(tx repository.Repositories) error) error {
	return s.MemoryStore.Atomic(ctx, func(tx repository.Repositories) error {
		return fn(recordingTx{tx, s})
	})
}

func (s *recordingStore) log() []writeKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]writeKey(nil), s.writes...)
}

type recordingTx struct {
	repository.Repositories
	s *recordingStore
}

func (r recordingTx) Allocations() repository.AllocationRepository {
	return recordingAllocations{r.Repositories.Allocations(), r.s}
}

type recordingAllocations struct {
	repository.AllocationRepository
	s *recordingStore
}

func (r recordingAllocations) UpsertAdd(ctx context.Context, productID, warehouseID uuid.UUID, delta int) (model.Allocation, model.Allocation, error) {
	r.s.mu.Lock()
	r.s.writes = append(r.s.writes, writeKey{productID, warehouseID})
	r.s.mu.Unlock()
	return r.AllocationRepository.UpsertAdd(ctx, productID, warehouseID, delta)
}

// abortingStore fails the first n atomic units the way Postgres reports a
// deadlock victim: nothing is written and the unit can be rerun.
type abortingStore struct {
	*repository.MemoryStore
	mu    sync.Mutex
	left  int
	calls int
}

func (s *abortingStore) Atomic(ctx context.Context, fn func(tx repository.Repositories) error) error {
	s.mu.Lock()
	s.calls++
	abort := s.left > 0
	if abort {
		s.left--
	}
	s.mu.Unlock()

	return s.MemoryStore.Atomic(ctx, func(tx repository.Repositories) error {
		if err := fn(tx); err != nil {
			return err
		}
		if abort {
			return fmt.Errorf("%w: deadlock detected (SQLSTATE 40P01)", repository.ErrConflict)
		}
		return nil
	})
}

// ── Recorder ─────────────────────────────────────────────────────────────────

type countingRecorder struct {
	mu           sync.Mutex
	fulfillments map[string]int
	transfers    map[string]int
	retries      int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{fulfillments: map[string]int{}, transfers: map[string]int{}}
}

func (r *countingRecorder) ObserveFulfillment(outcome string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fulfillments[outcome]++
}

func (r *countingRecorder) ObserveTransfer(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers[outcome]++
}

func (r *countingRecorder) ObserveRetry(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}
