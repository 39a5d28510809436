package repository

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/model"

	"github.com/google/uuid"
)

// MemoryStore is a process-local Store. Atomic works on a copy of the state
// under the store mutex and swaps it in only when fn succeeds, which gives the
// same all-or-nothing behaviour as a database transaction.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState(), now: time.Now}
}

type allocKey struct{ product, warehouse uuid.UUID }

type memState struct {
	products    map[uuid.UUID]model.Product
	warehouses  map[uuid.UUID]model.Warehouse
	allocations map[allocKey]model.Allocation
	transfers   []model.Transfer
	audit       []model.AuditEvent
}

func newMemState() memState {
	return memState{
		products:    make(map[uuid.UUID]model.Product),
		warehouses:  make(map[uuid.UUID]model.Warehouse),
		allocations: make(map[allocKey]model.Allocation),
	}
}

func (s memState) clone() memState {
	c := newMemState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.warehouses {
		c.warehouses[k] = v
	}
	for k, v := range s.allocations {
		c.allocations[k] = v
	}
	c.transfers = append([]model.Transfer(nil), s.transfers...)
	c.audit = append([]model.AuditEvent(nil), s.audit...)
	return c
}

// memView abstracts over "lock then touch shared state" and "already inside Atomic".
type memView interface {
	do(fn func(st *memState) error) error
}

type sharedView struct{ s *MemoryStore }

func (v sharedView) do(fn func(st *memState) error) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return fn(&v.s.state)
}

type txView struct{ st *memState }

func (v txView) do(fn func(st *memState) error) error { return fn(v.st) }

type memRepos struct {
	v   memView
	now func() time.Time
}

func (r memRepos) Products() ProductRepository       { return memProducts(r) }
func (r memRepos) Warehouses() WarehouseRepository   { return memWarehouses(r) }
func (r memRepos) Allocations() AllocationRepository { return memAllocations(r) }
func (r memRepos) Transfers() TransferRepository     { return memTransfers(r) }
func (r memRepos) Audit() AuditRepository            { return memAudit(r) }

func (s *MemoryStore) shared() memRepos { return memRepos{v: sharedView{s: s}, now: s.now} }

func (s *MemoryStore) Products() ProductRepository       { return s.shared().Products() }
func (s *MemoryStore) Warehouses() WarehouseRepository   { return s.shared().Warehouses() }
func (s *MemoryStore) Allocations() AllocationRepository { return s.shared().Allocations() }
func (s *MemoryStore) Transfers() TransferRepository     { return s.shared().Transfers() }
func (s *MemoryStore) Audit() AuditRepository            { return s.shared().Audit() }

func (s *MemoryStore) Atomic(ctx context.Context, fn func(tx Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state.clone()
	if err := fn(memRepos{v: txView{st: &st}, now: s.now}); err != nil {
		return err
	}
	s.state = st
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

var _ Store = (*MemoryStore)(nil)

// ── products ──────────────────────────────────────────────────────────────────

type memProducts memRepos

func (r memProducts) Create(_ context.Context, p *model.Product) error {
	return r.v.do(func(st *memState) error {
		for _, existing := range st.products {
			if existing.BusinessID == p.BusinessID && existing.SKU == p.SKU {
				return ErrDuplicate
			}
		}
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		now := r.now()
		p.CreatedAt, p.UpdatedAt = now, now
		st.products[p.ID] = *p
		return nil
	})
}

func (r memProducts) FindByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	var out *model.Product
	err := r.v.do(func(st *memState) error {
		p, ok := st.products[id]
		if !ok {
			return ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r memProducts) FindBySKU(_ context.Context, businessID uuid.UUID, sku string) (*model.Product, error) {
	var out *model.Product
	err := r.v.do(func(st *memState) error {
		for _, p := range st.products {
			if p.BusinessID == businessID && p.SKU == sku {
				p := p
				out = &p
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (r memProducts) List(_ context.Context, businessID uuid.UUID) ([]model.Product, error) {
	var out []model.Product
	err := r.v.do(func(st *memState) error {
		for _, p := range st.products {
			if businessID == uuid.Nil || p.BusinessID == businessID {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, err
}

// ── warehouses ────────────────────────────────────────────────────────────────

type memWarehouses memRepos

func (r memWarehouses) Create(_ context.Context, w *model.Warehouse) error {
	return r.v.do(func(st *memState) error {
		for _, existing := range st.warehouses {
			if existing.Name == w.Name {
				return ErrDuplicate
			}
		}
		if w.ID == uuid.Nil {
			w.ID = uuid.New()
		}
		now := r.now()
		w.CreatedAt, w.UpdatedAt = now, now
		st.warehouses[w.ID] = *w
		return nil
	})
}

func (r memWarehouses) FindByID(_ context.Context, id uuid.UUID) (*model.Warehouse, error) {
	var out *model.Warehouse
	err := r.v.do(func(st *memState) error {
		w, ok := st.warehouses[id]
		if !ok {
			return ErrNotFound
		}
		out = &w
		return nil
	})
	return out, err
}

func (r memWarehouses) List(_ context.Context) ([]model.Warehouse, error) {
	var out []model.Warehouse
	err := r.v.do(func(st *memState) error {
		for _, w := range st.warehouses {
			out = append(out, w)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// ── allocations ───────────────────────────────────────────────────────────────

type memAllocations memRepos

func (r memAllocations) Get(_ context.Context, productID, warehouseID uuid.UUID) (*model.Allocation, error) {
	var out *model.Allocation
	err := r.v.do(func(st *memState) error {
		a, ok := st.allocations[allocKey{productID, warehouseID}]
		if !ok {
			return ErrNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r memAllocations) UpsertAdd(_ context.Context, productID, warehouseID uuid.UUID, delta int) (model.Allocation, model.Allocation, error) {
	var before, after model.Allocation
	err := r.v.do(func(st *memState) error {
		if delta == 0 || delta > model.MaxQuantity || delta < -model.MaxQuantity {
			return ErrInvalidDelta
		}
		key := allocKey{productID, warehouseID}
		row, ok := st.allocations[key]
		now := r.now()
		if !ok {
			if delta < 0 {
				return ErrNotFound
			}
			row = model.Allocation{ProductID: productID, WarehouseID: warehouseID, CreatedAt: now}
		}
		if delta < 0 {
			if row.AllocatedQuantity+delta < 0 {
				return ErrInvalidDelta
			}
			if row.AllocatedQuantity-row.SafetyStock < -delta {
				return ErrConditionFailed
			}
		}
		if delta > 0 && row.AllocatedQuantity > model.MaxQuantity-delta {
			return ErrInvalidDelta
		}
		before = row
		row.AllocatedQuantity += delta
		row.UpdatedAt = now
		st.allocations[key] = row
		after = row
		return nil
	})
	if err != nil {
		return model.Allocation{}, model.Allocation{}, err
	}
	return before, after, nil
}

func (r memAllocations) SetSafetyStock(_ context.Context, productID, warehouseID uuid.UUID, safety int) (model.Allocation, model.Allocation, error) {
	var before, after model.Allocation
	err := r.v.do(func(st *memState) error {
		if safety < 0 {
			return ErrInvalidDelta
		}
		key := allocKey{productID, warehouseID}
		row, ok := st.allocations[key]
		if !ok {
			return ErrNotFound
		}
		if safety > row.AllocatedQuantity {
			return ErrConditionFailed
		}
		before = row
		row.SafetyStock = safety
		row.UpdatedAt = r.now()
		st.allocations[key] = row
		after = row
		return nil
	})
	if err != nil {
		return model.Allocation{}, model.Allocation{}, err
	}
	return before, after, nil
}

func (r memAllocations) collect(match func(model.Allocation) bool) ([]model.Allocation, error) {
	var out []model.Allocation
	err := r.v.do(func(st *memState) error {
		for _, a := range st.allocations {
			if match(a) {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

func (r memAllocations) ListByProduct(_ context.Context, productID uuid.UUID) ([]model.Allocation, error) {
	rows, err := r.collect(func(a model.Allocation) bool { return a.ProductID == productID })
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AllocatedQuantity != rows[j].AllocatedQuantity {
			return rows[i].AllocatedQuantity > rows[j].AllocatedQuantity
		}
		return bytes.Compare(rows[i].WarehouseID[:], rows[j].WarehouseID[:]) < 0
	})
	return rows, err
}

func (r memAllocations) ListByWarehouse(_ context.Context, warehouseID uuid.UUID) ([]model.Allocation, error) {
	rows, err := r.collect(func(a model.Allocation) bool { return a.WarehouseID == warehouseID })
	sort.Slice(rows, func(i, j int) bool {
		return bytes.Compare(rows[i].ProductID[:], rows[j].ProductID[:]) < 0
	})
	return rows, err
}

func (r memAllocations) ListLowStock(_ context.Context, threshold int) ([]model.Allocation, error) {
	rows, err := r.collect(func(a model.Allocation) bool {
		return max(0, a.AllocatedQuantity-a.SafetyStock) <= threshold
	})
	sort.Slice(rows, func(i, j int) bool {
		if c := bytes.Compare(rows[i].ProductID[:], rows[j].ProductID[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(rows[i].WarehouseID[:], rows[j].WarehouseID[:]) < 0
	})
	return rows, err
}

// ── transfers ─────────────────────────────────────────────────────────────────

type memTransfers memRepos

func (r memTransfers) Create(_ context.Context, t *model.Transfer) error {
	return r.v.do(func(st *memState) error {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		now := r.now()
		t.CreatedAt, t.UpdatedAt = now, now
		st.transfers = append(st.transfers, *t)
		return nil
	})
}

func (r memTransfers) Update(_ context.Context, t *model.Transfer) error {
	return r.v.do(func(st *memState) error {
		for i := range st.transfers {
			if st.transfers[i].ID != t.ID {
				continue
			}
			cur := &st.transfers[i]
			cur.Status = t.Status
			cur.ApprovedBy = t.ApprovedBy
			cur.FailureReason = t.FailureReason
			cur.CompletedAt = t.CompletedAt
			cur.UpdatedAt = r.now()
			return nil
		}
		return ErrNotFound
	})
}

func (r memTransfers) FindByID(_ context.Context, id uuid.UUID) (*model.Transfer, error) {
	var out *model.Transfer
	err := r.v.do(func(st *memState) error {
		for _, t := range st.transfers {
			if t.ID == id {
				t := t
				out = &t
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (r memTransfers) List(_ context.Context, filter TransferFilter) ([]model.Transfer, int64, error) {
	var matched []model.Transfer
	err := r.v.do(func(st *memState) error {
		// newest first
		for i := len(st.transfers) - 1; i >= 0; i-- {
			t := st.transfers[i]
			if filter.ProductID != nil && t.ProductID != *filter.ProductID {
				continue
			}
			if filter.WarehouseID != nil && t.FromWarehouseID != *filter.WarehouseID && t.ToWarehouseID != *filter.WarehouseID {
				continue
			}
			if filter.Status != "" && t.Status != filter.Status {
				continue
			}
			matched = append(matched, t)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(matched))
	page, limit := NormalizePage(filter.Page, filter.Limit)
	start := (page - 1) * limit
	if start >= len(matched) {
		return []model.Transfer{}, total, nil
	}
	end := min(start+limit, len(matched))
	return matched[start:end], total, nil
}

// ── audit ─────────────────────────────────────────────────────────────────────

type memAudit memRepos

func (r memAudit) Create(_ context.Context, e *model.AuditEvent) error {
	return r.v.do(func(st *memState) error {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		e.CreatedAt = r.now()
		st.audit = append(st.audit, *e)
		return nil
	})
}

func (r memAudit) ListUnpublished(_ context.Context, limit int) ([]model.AuditEvent, error) {
	var out []model.AuditEvent
	err := r.v.do(func(st *memState) error {
		for _, e := range st.audit {
			if e.PublishedAt != nil {
				continue
			}
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r memAudit) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return r.v.do(func(st *memState) error {
		for i := range st.audit {
			if _, ok := want[st.audit[i].ID]; ok {
				ts := at
				st.audit[i].PublishedAt = &ts
			}
		}
		return nil
	})
}

func (r memAudit) ListByEntity(_ context.Context, entityType, entityID string) ([]model.AuditEvent, error) {
	var out []model.AuditEvent
	err := r.v.do(func(st *memState) error {
		for _, e := range st.audit {
			if e.EntityType == entityType && e.EntityID == entityID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}
