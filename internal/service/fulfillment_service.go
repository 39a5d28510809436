package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/audit"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/dto"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/model"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/repository"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/stock"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Fulfillment outcomes reported to the Recorder.
const (
	OutcomePlaced            = "placed"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeProductNotFound   = "product_not_found"
	OutcomeSplitRejected     = "split_rejected"
	OutcomeInvalid           = "invalid"
	OutcomeError             = "error"
)

const defaultFulfillAttempts = 3

// FulfillmentOptions tunes the selector.
type FulfillmentOptions struct {
	// MaxAttempts bounds how often a plan is recomputed after losing a race
	// on a ledger row. Values < 1 use the default of 3.
	MaxAttempts int
	// RejectSplitOrders fails orders whose lines would be served from more
	// than one warehouse instead of flagging them.
	RejectSplitOrders bool
}

// FulfillmentService picks one warehouse per order line and consumes the
// stock for the whole order at once, or not at all.
type FulfillmentService interface {
	Fulfill(ctx context.Context, actorID uuid.UUID, req dto.FulfillRequest) (*dto.FulfillmentResponse, error)
	// ValidateBatch runs the selection for every order without writing.
	ValidateBatch(ctx context.Context, req dto.ValidateBatchRequest) (*dto.ValidateBatchResponse, error)
}

type fulfillmentService struct {
	store    repository.Store
	emitter  *audit.Emitter
	recorder Recorder
	opts     FulfillmentOptions
}

func NewFulfillmentService(store repository.Store, emitter *audit.Emitter, recorder Recorder, opts FulfillmentOptions) FulfillmentService {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = defaultFulfillAttempts
	}
	return &fulfillmentService{
		store:    store,
		emitter:  emitter,
		recorder: recorderOrNop(recorder),
		opts:     opts,
	}
}

type orderLine struct {
	SKU      string
	Quantity int
}

type resolvedLine struct {
	orderLine
	Product *model.Product
}

type plannedLine struct {
	resolvedLine
	Row model.Allocation
}

// commitConflict means a chosen row lost the units between planning and the
// guarded decrement.
type commitConflict struct {
	line plannedLine
}

func (e *commitConflict) Error() string {
	return fmt.Sprintf("concurrency conflict on %s at warehouse %s", e.line.SKU, e.line.Row.WarehouseID)
}

func (e *commitConflict) Is(target error) bool { return target == ErrConcurrencyConflict }

// ── Fulfill ───────────────────────────────────────────────────────────────────
//   1. aggregate lines by normalized SKU
//   2. resolve every SKU within the business
//   3. plan: choose one row per line (read only)
//   4. commit all decrements plus the audit fact in one atomic unit
// A lost race in 4 re-runs 3 and 4, up to MaxAttempts.

func (s *fulfillmentService) Fulfill(ctx context.Context, actorID uuid.UUID, req dto.FulfillRequest) (resp *dto.FulfillmentResponse, err error) {
	ctx, span := tracer.Start(ctx, "fulfillment.Fulfill")
	defer span.End()

	attempts := 0
	defer func() {
		outcome := fulfillOutcome(err)
		s.recorder.ObserveFulfillment(outcome, attempts)
		span.SetAttributes(attribute.String("fulfillment.outcome", outcome), attribute.Int("fulfillment.attempts", attempts))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
	}()

	businessID, err := parseID("business_id", req.BusinessID)
	if err != nil {
		return nil, err
	}
	lines, err := aggregateLines(req.Lines)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("fulfillment.lines", len(lines)))

	resolved, err := resolveLines(ctx, s.store, businessID, lines)
	if err != nil {
		log.Warn().Err(err).Str("order_reference", req.OrderReference).Msg("fulfillment: rejected")
		return nil, err
	}

	fulfillmentID := uuid.New()
	var lastConflict *commitConflict
	for attempts < s.opts.MaxAttempts {
		attempts++

		plan, err := planLines(ctx, s.store, resolved)
		if err != nil {
			log.Warn().Err(err).Str("order_reference", req.OrderReference).Int("attempt", attempts).Msg("fulfillment: rejected")
			return nil, err
		}
		spans := spansWarehouses(plan)
		if spans && s.opts.RejectSplitOrders {
			return nil, fmt.Errorf("%w: %d warehouses", ErrSplitOrder, countWarehouses(plan))
		}

		committed, err := s.commit(ctx, actorID, fulfillmentID, req.OrderReference, plan)
		if err == nil {
			log.Info().
				Str("fulfillment_id", fulfillmentID.String()).
				Str("order_reference", req.OrderReference).
				Str("warehouse_id", plan[0].Row.WarehouseID.String()).
				Bool("spans_warehouses", spans).
				Int("attempts", attempts).
				Msg("fulfillment: placed")
			return &dto.FulfillmentResponse{
				FulfillmentID:          fulfillmentID.String(),
				OrderReference:         req.OrderReference,
				FulfillmentWarehouseID: plan[0].Row.WarehouseID.String(),
				SpansWarehouses:        spans,
				Lines:                  committed,
				Attempts:               attempts,
			}, nil
		}
		if !errors.As(err, &lastConflict) {
			log.Error().Err(err).Str("fulfillment_id", fulfillmentID.String()).Msg("fulfillment: commit failed")
			return nil, err
		}
		s.recorder.ObserveRetry("fulfill")
		log.Debug().Err(err).Int("attempt", attempts).Msg("fulfillment: retrying after conflict")
	}

	// Out of attempts: report the line that kept losing with what is left now.
	line := lastConflict.line
	rows, listErr := s.store.Allocations().ListByProduct(ctx, line.Product.ID)
	if listErr != nil {
		return nil, storageErr("list allocations", listErr)
	}
	return nil, insufficientFor(line.resolvedLine, rows)
}

// commit applies every planned decrement in one atomic unit. Any failure
// discards the decrements already applied for this order. Rows are written in
// lock order; the response and the audit fact keep the order of the request.
func (s *fulfillmentService) commit(ctx context.Context, actorID, fulfillmentID uuid.UUID, orderRef string, plan []plannedLine) ([]dto.LineAllocationResponse, error) {
	type applied struct{ before, after model.Allocation }
	results := make([]applied, len(plan))

	err := s.store.Atomic(ctx, func(tx repository.Repositories) error {
		for _, i := range lockOrder(plan) {
			pl := plan[i]
			before, after, err := tx.Allocations().UpsertAdd(ctx, pl.Product.ID, pl.Row.WarehouseID, -pl.Quantity)
			switch {
			case errors.Is(err, repository.ErrConditionFailed),
				errors.Is(err, repository.ErrInvalidDelta),
				errors.Is(err, repository.ErrNotFound),
				errors.Is(err, repository.ErrConflict):
				return &commitConflict{line: pl}
			case err != nil:
				return storageErr("decrement allocation", err)
			}
			results[i] = applied{before: before, after: after}
		}

		fact := audit.FulfillmentFact{
			OrderReference:         orderRef,
			FulfillmentWarehouseID: plan[0].Row.WarehouseID,
			Lines:                  make([]audit.FulfillmentLine, 0, len(plan)),
		}
		for i, pl := range plan {
			fact.Lines = append(fact.Lines, audit.FulfillmentLine{
				SKU:            pl.SKU,
				ProductID:      pl.Product.ID,
				WarehouseID:    pl.Row.WarehouseID,
				Quantity:       pl.Quantity,
				QuantityBefore: results[i].before.AllocatedQuantity,
				QuantityAfter:  results[i].after.AllocatedQuantity,
			})
		}
		if err := s.emitter.Emit(ctx, tx.Audit(), audit.EntityFulfillment, fulfillmentID.String(), audit.ActionFulfill, fact, actorRef(actorID)); err != nil {
			return storageErr("audit fulfill", err)
		}
		return nil
	})
	if errors.Is(err, repository.ErrConflict) && !errors.Is(err, ErrConcurrencyConflict) {
		// aborted by the database outside a guarded write
		return nil, &commitConflict{line: plan[0]}
	}
	if err != nil {
		return nil, err
	}

	out := make([]dto.LineAllocationResponse, 0, len(plan))
	for i, pl := range plan {
		out = append(out, dto.LineAllocationResponse{
			SKU:            pl.SKU,
			ProductID:      pl.Product.ID.String(),
			WarehouseID:    pl.Row.WarehouseID.String(),
			Quantity:       pl.Quantity,
			QuantityBefore: results[i].before.AllocatedQuantity,
			QuantityAfter:  results[i].after.AllocatedQuantity,
			AvailableAfter: stock.Available(results[i].after),
		})
	}
	return out, nil
}

// lockOrder returns plan indexes sorted by (product_id, warehouse_id).
func lockOrder(plan []plannedLine) []int {
	idx := make([]int, len(plan))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		pa, pb := plan[idx[a]], plan[idx[b]]
		return repository.LockOrderLess(pa.Product.ID, pa.Row.WarehouseID, pb.Product.ID, pb.Row.WarehouseID)
	})
	return idx
}

// ── ValidateBatch ─────────────────────────────────────────────────────────────

// ValidateBatch judges every order on its own against current stock; orders in
// the same batch do not consume from each other.
func (s *fulfillmentService) ValidateBatch(ctx context.Context, req dto.ValidateBatchRequest) (*dto.ValidateBatchResponse, error) {
	resp := &dto.ValidateBatchResponse{Orders: make([]dto.OrderValidationResponse, 0, len(req.Orders))}
	for i, order := range req.Orders {
		result, err := s.validateOrder(ctx, order)
		if err != nil {
			return nil, err
		}
		result.Index = i
		if result.Valid {
			resp.ValidCount++
		} else {
			resp.InvalidCount++
		}
		resp.Orders = append(resp.Orders, *result)
	}
	return resp, nil
}

func (s *fulfillmentService) validateOrder(ctx context.Context, order dto.FulfillRequest) (*dto.OrderValidationResponse, error) {
	result := &dto.OrderValidationResponse{OrderReference: order.OrderReference, Valid: true}

	businessID, err := uuid.Parse(order.BusinessID)
	if err != nil {
		result.Valid = false
		result.Error = "invalid business_id"
		for _, l := range order.Lines {
			result.Lines = append(result.Lines, dto.LineValidationResponse{
				SKU: l.SKU, Quantity: l.Quantity, Status: dto.LineInvalid, Detail: "invalid business_id",
			})
		}
		return result, nil
	}
	if len(order.Lines) == 0 {
		result.Valid = false
		result.Error = "order has no lines"
		return result, nil
	}

	var (
		valid   []orderLine
		chosen  = make(map[uuid.UUID]struct{})
		allOK   = true
		ordered = make([]dto.LineValidationResponse, 0, len(order.Lines))
	)
	for _, l := range order.Lines {
		sku := model.NormalizeSKU(l.SKU)
		if problem := lineProblem(sku, l.Quantity); problem != "" {
			allOK = false
			ordered = append(ordered, dto.LineValidationResponse{
				SKU: l.SKU, Quantity: l.Quantity, Status: dto.LineInvalid, Detail: problem,
			})
			continue
		}
		valid = append(valid, orderLine{SKU: sku, Quantity: l.Quantity})
	}
	lines := mergeLines(valid)

	for _, line := range lines {
		lr := dto.LineValidationResponse{SKU: line.SKU, Quantity: line.Quantity}
		if line.Quantity > model.MaxQuantity {
			allOK = false
			lr.Status = dto.LineInvalid
			lr.Detail = fmt.Sprintf("total quantity for sku exceeds %d", model.MaxQuantity)
			ordered = append(ordered, lr)
			continue
		}

		p, err := s.store.Products().FindBySKU(ctx, businessID, line.SKU)
		if errors.Is(err, repository.ErrNotFound) {
			allOK = false
			lr.Status = dto.LineProductNotFound
			ordered = append(ordered, lr)
			continue
		}
		if err != nil {
			return nil, storageErr("find product", err)
		}

		rows, err := s.store.Allocations().ListByProduct(ctx, p.ID)
		if err != nil {
			return nil, storageErr("list allocations", err)
		}
		row, ok := pickWarehouse(rows, line.Quantity)
		if !ok {
			allOK = false
			lr.Status = dto.LineInsufficientStock
			lr.Available = stock.TotalAvailable(rows)
			ordered = append(ordered, lr)
			continue
		}
		wid := row.WarehouseID.String()
		lr.Status = dto.LineOK
		lr.WarehouseID = &wid
		lr.Available = stock.Available(row)
		chosen[row.WarehouseID] = struct{}{}
		ordered = append(ordered, lr)
	}

	result.Lines = ordered
	result.Valid = allOK
	if allOK && s.opts.RejectSplitOrders && len(chosen) > 1 {
		result.Valid = false
		result.Error = ErrSplitOrder.Error()
	}
	return result, nil
}

// ── selection ─────────────────────────────────────────────────────────────────

// aggregateLines normalizes SKUs and sums repeated ones, keeping the order in
// which each SKU first appeared. Every line and every sum stays within
// (0, model.MaxQuantity].
func aggregateLines(lines []dto.OrderLineRequest) ([]orderLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: order has no lines", ErrInvalidRequest)
	}
	out := make([]orderLine, 0, len(lines))
	for i, l := range lines {
		sku := model.NormalizeSKU(l.SKU)
		if problem := lineProblem(sku, l.Quantity); problem != "" {
			return nil, fmt.Errorf("%w: line %d: %s", ErrInvalidRequest, i, problem)
		}
		out = append(out, orderLine{SKU: sku, Quantity: l.Quantity})
	}
	merged := mergeLines(out)
	for _, l := range merged {
		if l.Quantity > model.MaxQuantity {
			return nil, fmt.Errorf("%w: total quantity for %s exceeds %d", ErrInvalidRequest, l.SKU, model.MaxQuantity)
		}
	}
	return merged, nil
}

// lineProblem returns why a single line is unacceptable, or "".
func lineProblem(sku string, qty int) string {
	switch {
	case sku == "":
		return "sku is required"
	case len(sku) > model.MaxSKULength:
		return fmt.Sprintf("sku longer than %d characters", model.MaxSKULength)
	case qty <= 0:
		return "quantity must be positive"
	case qty > model.MaxQuantity:
		return fmt.Sprintf("quantity exceeds %d", model.MaxQuantity)
	}
	return ""
}

// mergeLines sums quantities per SKU. Callers bound each input by
// model.MaxQuantity, so the sums cannot overflow int.
func mergeLines(lines []orderLine) []orderLine {
	idx := make(map[string]int, len(lines))
	out := make([]orderLine, 0, len(lines))
	for _, l := range lines {
		if i, ok := idx[l.SKU]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.SKU] = len(out)
		out = append(out, l)
	}
	return out
}

func resolveLines(ctx context.Context, repos repository.Repositories, businessID uuid.UUID, lines []orderLine) ([]resolvedLine, error) {
	out := make([]resolvedLine, 0, len(lines))
	for _, l := range lines {
		p, err := repos.Products().FindBySKU(ctx, businessID, l.SKU)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ProductNotFoundError{SKU: l.SKU}
		}
		if err != nil {
			return nil, storageErr("find product", err)
		}
		out = append(out, resolvedLine{orderLine: l, Product: p})
	}
	return out, nil
}

// planLines chooses a row for every line or fails on the first line that no
// single warehouse can serve.
func planLines(ctx context.Context, repos repository.Repositories, lines []resolvedLine) ([]plannedLine, error) {
	plan := make([]plannedLine, 0, len(lines))
	for _, l := range lines {
		rows, err := repos.Allocations().ListByProduct(ctx, l.Product.ID)
		if err != nil {
			return nil, storageErr("list allocations", err)
		}
		row, ok := pickWarehouse(rows, l.Quantity)
		if !ok {
			return nil, insufficientFor(l, rows)
		}
		plan = append(plan, plannedLine{resolvedLine: l, Row: row})
	}
	return plan, nil
}

// pickWarehouse returns the eligible row with the highest allocated quantity.
// Ties go to the lowest warehouse id, so the choice does not depend on the
// order rows arrive in.
func pickWarehouse(rows []model.Allocation, qty int) (model.Allocation, bool) {
	var (
		best  model.Allocation
		found bool
	)
	for _, r := range rows {
		if stock.Available(r) < qty {
			continue
		}
		if !found ||
			r.AllocatedQuantity > best.AllocatedQuantity ||
			(r.AllocatedQuantity == best.AllocatedQuantity && bytes.Compare(r.WarehouseID[:], best.WarehouseID[:]) < 0) {
			best, found = r, true
		}
	}
	return best, found
}

func insufficientFor(l resolvedLine, rows []model.Allocation) *InsufficientStockError {
	breakdown := make([]WarehouseAvailability, 0, len(rows))
	for _, r := range rows {
		breakdown = append(breakdown, WarehouseAvailability{WarehouseID: r.WarehouseID, Available: stock.Available(r)})
	}
	return &InsufficientStockError{
		SKU:       l.SKU,
		ProductID: l.Product.ID,
		Requested: l.Quantity,
		Available: stock.TotalAvailable(rows),
		Breakdown: breakdown,
	}
}

func spansWarehouses(plan []plannedLine) bool { return countWarehouses(plan) > 1 }

func countWarehouses(plan []plannedLine) int {
	seen := make(map[uuid.UUID]struct{}, len(plan))
	for _, pl := range plan {
		seen[pl.Row.WarehouseID] = struct{}{}
	}
	return len(seen)
}

func fulfillOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomePlaced
	case errors.Is(err, ErrInsufficientStock):
		return OutcomeInsufficientStock
	case errors.Is(err, ErrProductNotFound):
		return OutcomeProductNotFound
	case errors.Is(err, ErrSplitOrder):
		return OutcomeSplitRejected
	case errors.Is(err, ErrInvalidRequest):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}
