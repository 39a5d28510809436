package service

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// Transfer outcomes reported to the Recorder.
const (
	TransferOutcomeCompleted         = "completed"
	TransferOutcomeInsufficientStock = "insufficient_stock"
	TransferOutcomeNoAllocation      = "no_allocation"
	TransferOutcomeInvalid           = "invalid"
	TransferOutcomeError             = "error"
)

// TransferService moves available stock of one product between two
// warehouses. A transfer is PENDING only inside its own atomic unit and is
// observed as COMPLETED or FAILED.
type TransferService interface {
	Transfer(ctx context.Context, actorID uuid.UUID, req dto.TransferRequest) (*dto.TransferResponse, error)
	GetTransfer(ctx context.Context, id uuid.UUID) (*dto.TransferResponse, error)
	ListTransfers(ctx context.Context, filter dto.TransferFilter) (*dto.TransferListResponse, error)
}

type transferService struct {
	store    repository.Store
	emitter  *audit.Emitter
	recorder Recorder
	now      func() time.Time
}

func NewTransferService(store repository.Store, emitter *audit.Emitter, recorder Recorder) TransferService {
	return &transferService{
		store:    store,
		emitter:  emitter,
		recorder: recorderOrNop(recorder),
		now:      time.Now,
	}
}

// ── Transfer ──────────────────────────────────────────────────────────────────
//   1. reject same-warehouse and non-positive requests (no record)
//   2. resolve product and both warehouses (no record)
//   3. source row must exist and hold enough available stock
//   4. one atomic unit: decrement source, increment destination (in lock
//      order), PENDING -> COMPLETED, audit both rows; a unit the database
//      aborts as a deadlock victim is rerun
// Failures from 3 on are persisted as a FAILED record with the reason.

func (s *transferService) Transfer(ctx context.Context, actorID uuid.UUID, req dto.TransferRequest) (resp *dto.TransferResponse, err error) {
	ctx, span := tracer.Start(ctx, "transfer.Transfer")
	defer span.End()
	defer func() {
		outcome := transferOutcome(err)
		s.recorder.ObserveTransfer(outcome)
		span.SetAttributes(attribute.String("transfer.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
	}()

	t, err := s.newTransfer(ctx, actorID, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("transfer.id", t.ID.String()),
		attribute.Int("transfer.quantity", t.Quantity),
	)

	source, err := s.store.Allocations().Get(ctx, t.ProductID, t.FromWarehouseID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, s.fail(ctx, t, fmt.Errorf("%w: product %s at warehouse %s", ErrNoAllocationAtSource, t.ProductID, t.FromWarehouseID))
	}
	if err != nil {
		return nil, s.fail(ctx, t, storageErr("get source allocation", err))
	}
	if avail := stock.Available(*source); t.Quantity > avail {
		return nil, s.fail(ctx, t, &InsufficientStockError{
			ProductID:   t.ProductID,
			WarehouseID: &t.FromWarehouseID,
			Requested:   t.Quantity,
			Available:   avail,
		})
	}

	var srcAfter, dstAfter model.Allocation
	for attempt := 1; ; attempt++ {
		srcAfter, dstAfter, err = s.move(ctx, actorID, t)
		if !errors.Is(err, repository.ErrConflict) || attempt == maxTransferAttempts {
			break
		}
		s.recorder.ObserveRetry("transfer")
		log.Debug().Err(err).Str("transfer_id", t.ID.String()).Int("attempt", attempt).Msg("transfer: retrying after conflict")
	}
	if errors.Is(err, repository.ErrConflict) {
		err = s.conflictErr(ctx, t)
	}
	if err != nil {
		return nil, s.fail(ctx, t, err)
	}

	log.Info().
		Str("transfer_id", t.ID.String()).
		Str("product_id", t.ProductID.String()).
		Str("from", t.FromWarehouseID.String()).
		Str("to", t.ToWarehouseID.String()).
		Int("quantity", t.Quantity).
		Msg("transfer: completed")

	resp = transferToResponse(t)
	srcAvail, dstAvail := stock.Available(srcAfter), stock.Available(dstAfter)
	resp.SourceAvailable = &srcAvail
	resp.DestinationAvailable = &dstAvail
	return resp, nil
}

// maxTransferAttempts bounds reruns of the move after the database aborted it
// as a deadlock or serialization victim. A refused guard is never rerun.
const maxTransferAttempts = 3

// move runs the ledger half of a transfer in one atomic unit. The two rows are
// written in lock order, so opposite transfers of one product cannot deadlock.
func (s *transferService) move(ctx context.Context, actorID uuid.UUID, t *model.Transfer) (srcAfter, dstAfter model.Allocation, err error) {
	t.Status = model.TransferPending
	t.CompletedAt = nil
	t.ApprovedBy = nil

	err = s.store.Atomic(ctx, func(tx repository.Repositories) error {
		if err := tx.Transfers().Create(ctx, t); err != nil {
			return storageErr("create transfer", err)
		}

		var (
			srcBefore, src, dstBefore, dst model.Allocation
			err                            error
		)
		decrement := func() error {
			srcBefore, src, err = tx.Allocations().UpsertAdd(ctx, t.ProductID, t.FromWarehouseID, -t.Quantity)
			switch {
			case errors.Is(err, repository.ErrConflict):
				return err
			case errors.Is(err, repository.ErrNotFound):
				return fmt.Errorf("%w: product %s at warehouse %s", ErrNoAllocationAtSource, t.ProductID, t.FromWarehouseID)
			case errors.Is(err, repository.ErrConditionFailed), errors.Is(err, repository.ErrInvalidDelta):
				// Another writer took the units after the pre-check.
				return ledgerWriteErr(ctx, tx, t.ProductID, t.FromWarehouseID, -t.Quantity, repository.ErrConditionFailed)
			case err != nil:
				return storageErr("decrement source", err)
			}
			return nil
		}
		increment := func() error {
			dstBefore, dst, err = tx.Allocations().UpsertAdd(ctx, t.ProductID, t.ToWarehouseID, t.Quantity)
			switch {
			case errors.Is(err, repository.ErrConflict):
				return err
			case errors.Is(err, repository.ErrInvalidDelta):
				return fmt.Errorf("%w: destination would hold more than %d units", ErrInvalidTransfer, model.MaxQuantity)
			case err != nil:
				return storageErr("increment destination", err)
			}
			return nil
		}
		steps := []func() error{decrement, increment}
		if repository.LockOrderLess(t.ProductID, t.ToWarehouseID, t.ProductID, t.FromWarehouseID) {
			steps = []func() error{increment, decrement}
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return err
			}
		}

		completedAt := s.now()
		t.Status = model.TransferCompleted
		t.CompletedAt = &completedAt
		t.ApprovedBy = actorRef(actorID)
		if err := tx.Transfers().Update(ctx, t); err != nil {
			return storageErr("complete transfer", err)
		}

		fact := audit.TransferFact{
			TransferID:        t.ID,
			Quantity:          t.Quantity,
			SourceBefore:      srcBefore.Snapshot(),
			SourceAfter:       src.Snapshot(),
			DestinationBefore: dstBefore.Snapshot(),
			DestinationAfter:  dst.Snapshot(),
		}
		if err := s.emitter.Emit(ctx, tx.Audit(), audit.EntityTransfer, t.ID.String(), audit.ActionTransfer, fact, actorRef(actorID)); err != nil {
			return storageErr("audit transfer", err)
		}
		srcAfter, dstAfter = src, dst
		return nil
	})
	return srcAfter, dstAfter, err
}

// conflictErr reports a move that kept being aborted the same way as a lost
// race: insufficient stock at the source with what it holds now.
func (s *transferService) conflictErr(ctx context.Context, t *model.Transfer) error {
	return ledgerWriteErr(ctx, s.store, t.ProductID, t.FromWarehouseID, -t.Quantity, repository.ErrConditionFailed)
}

// newTransfer validates the request and stages a PENDING record in memory.
func (s *transferService) newTransfer(ctx context.Context, actorID uuid.UUID, req dto.TransferRequest) (*model.Transfer, error) {
	productID, err := parseID("product_id", req.ProductID)
	if err != nil {
		return nil, err
	}
	fromID, err := parseID("from_warehouse_id", req.FromWarehouseID)
	if err != nil {
		return nil, err
	}
	toID, err := parseID("to_warehouse_id", req.ToWarehouseID)
	if err != nil {
		return nil, err
	}
	if fromID == toID {
		return nil, fmt.Errorf("%w: source and destination are the same warehouse", ErrInvalidTransfer)
	}
	if req.Quantity <= 0 || req.Quantity > model.MaxQuantity {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidTransfer, model.MaxQuantity)
	}

	if _, err := findProduct(ctx, s.store, productID); err != nil {
		return nil, err
	}
	if _, err := findWarehouse(ctx, s.store, fromID); err != nil {
		return nil, err
	}
	if _, err := findWarehouse(ctx, s.store, toID); err != nil {
		return nil, err
	}

	return &model.Transfer{
		ID:              uuid.New(),
		ProductID:       productID,
		FromWarehouseID: fromID,
		ToWarehouseID:   toID,
		Quantity:        req.Quantity,
		Status:          model.TransferPending,
		RequestedBy:     actorID,
		Notes:           req.Notes,
	}, nil
}

// fail persists t as FAILED with cause as the reason, in its own atomic unit,
// and returns cause. The ledger is untouched at this point.
func (s *transferService) fail(ctx context.Context, t *model.Transfer, cause error) error {
	reason := cause.Error()
	failed := *t
	failed.Status = model.TransferFailed
	failed.FailureReason = &reason
	failed.CompletedAt = nil
	failed.ApprovedBy = nil

	ev := log.Warn()
	if errors.Is(cause, ErrStorage) {
		ev = log.Error()
	}
	ev.Err(cause).
		Str("transfer_id", t.ID.String()).
		Str("product_id", t.ProductID.String()).
		Int("quantity", t.Quantity).
		Msg("transfer: failed")

	err := s.store.Atomic(ctx, func(tx repository.Repositories) error {
		if err := tx.Transfers().Create(ctx, &failed); err != nil {
			return err
		}
		details := audit.TransferFailure{
			TransferID:      failed.ID,
			ProductID:       failed.ProductID,
			FromWarehouseID: failed.FromWarehouseID,
			ToWarehouseID:   failed.ToWarehouseID,
			Quantity:        failed.Quantity,
			Reason:          reason,
		}
		return s.emitter.Emit(ctx, tx.Audit(), audit.EntityTransfer, failed.ID.String(), audit.ActionTransferFailed, details, actorRef(failed.RequestedBy))
	})
	if err != nil {
		log.Error().Err(err).Str("transfer_id", t.ID.String()).Msg("transfer: could not record failure")
	} else {
		*t = failed
	}
	return cause
}

func (s *transferService) GetTransfer(ctx context.Context, id uuid.UUID) (*dto.TransferResponse, error) {
	t, err := s.store.Transfers().FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTransferNotFound, id)
	}
	if err != nil {
		return nil, storageErr("find transfer", err)
	}
	return transferToResponse(t), nil
}

func (s *transferService) ListTransfers(ctx context.Context, filter dto.TransferFilter) (*dto.TransferListResponse, error) {
	f := repository.TransferFilter{Status: filter.Status, Page: filter.Page, Limit: filter.Limit}
	if filter.ProductID != "" {
		id, err := parseID("product_id", filter.ProductID)
		if err != nil {
			return nil, err
		}
		f.ProductID = &id
	}
	if filter.WarehouseID != "" {
		id, err := parseID("warehouse_id", filter.WarehouseID)
		if err != nil {
			return nil, err
		}
		f.WarehouseID = &id
	}
	f.Page, f.Limit = repository.NormalizePage(f.Page, f.Limit)

	transfers, total, err := s.store.Transfers().List(ctx, f)
	if err != nil {
		return nil, storageErr("list transfers", err)
	}
	data := make([]dto.TransferResponse, 0, len(transfers))
	for i := range transfers {
		data = append(data, *transferToResponse(&transfers[i]))
	}
	return &dto.TransferListResponse{Data: data, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

func transferOutcome(err error) string {
	switch {
	case err == nil:
		return TransferOutcomeCompleted
	case errors.Is(err, ErrInsufficientStock):
		return TransferOutcomeInsufficientStock
	case errors.Is(err, ErrNoAllocationAtSource):
		return TransferOutcomeNoAllocation
	case errors.Is(err, ErrInvalidTransfer),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrWarehouseNotFound):
		return TransferOutcomeInvalid
	default:
		return TransferOutcomeError
	}
}

func transferToResponse(t *model.Transfer) *dto.TransferResponse {
	resp := &dto.TransferResponse{
		ID:              t.ID.String(),
		ProductID:       t.ProductID.String(),
		FromWarehouseID: t.FromWarehouseID.String(),
		ToWarehouseID:   t.ToWarehouseID.String(),
		Quantity:        t.Quantity,
		Status:          t.Status,
		RequestedBy:     t.RequestedBy.String(),
		Notes:           t.Notes,
		FailureReason:   t.FailureReason,
		CreatedAt:       formatTime(t.CreatedAt),
	}
	if t.ApprovedBy != nil {
		s := t.ApprovedBy.String()
		resp.ApprovedBy = &s
	}
	if t.CompletedAt != nil {
		s := formatTime(*t.CompletedAt)
		resp.CompletedAt = &s
	}
	return resp
}
