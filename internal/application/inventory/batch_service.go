package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/application/unitofwork"
	"github.com/medrx/backend/internal/domain/inventory"
	"github.com/medrx/backend/internal/domain/shared"
	"github.com/medrx/backend/internal/infrastructure/logger"
	"github.com/medrx/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultLockTimeout bounds how long stock maintenance waits for a batch lock
const DefaultLockTimeout = 5 * time.Second

// BatchService handles stock receipts and manual stock maintenance.
// Every quantity change goes through a unit of work that locks the batch and
// appends a ledger entry in the same commit as the quantity write.
type BatchService struct {
	scope          unitofwork.TransactionScope
	batchRepo      inventory.BatchRepository
	ledgerRepo     inventory.LedgerRepository
	eventPublisher shared.EventPublisher
	lockTimeout    time.Duration
	logger         *zap.Logger
}

// NewBatchService creates a new BatchService
func NewBatchService(
	scope unitofwork.TransactionScope,
	batchRepo inventory.BatchRepository,
	ledgerRepo inventory.LedgerRepository,
	lockTimeout time.Duration,
	log *zap.Logger,
) *BatchService {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &BatchService{
		scope:       scope,
		batchRepo:   batchRepo,
		ledgerRepo:  ledgerRepo,
		lockTimeout: lockTimeout,
		logger:      log,
	}
}

// SetEventPublisher sets the event publisher for post-commit events
func (s *BatchService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// Receive creates a batch from a stock receipt
func (s *BatchService) Receive(ctx context.Context, actorID uuid.UUID, req ReceiveBatchRequest) (*BatchResponse, error) {
	receivedAt := time.Time{}
	if req.ReceivedAt != nil {
		receivedAt = *req.ReceivedAt
	}
	batch, err := inventory.NewInventoryBatch(inventory.ReceiptParams{
		FacilityID:       req.FacilityID,
		MedicationID:     req.MedicationID,
		MedicationName:   req.MedicationName,
		LotNumber:        req.LotNumber,
		Quantity:         req.Quantity,
		MinLevel:         req.MinLevel,
		MaxLevel:         req.MaxLevel,
		ReorderThreshold: req.ReorderThreshold,
		UnitCost:         req.UnitCost,
		ReceivedAt:       receivedAt,
		ExpiryDate:       req.ExpiryDate,
	})
	if err != nil {
		return nil, err
	}

	reference := req.Reference
	if reference == "" {
		reference = "receipt:" + batch.ID.String()
	}

	err = s.scope.Execute(ctx, func(repos unitofwork.TransactionalRepositories) error {
		if err := repos.BatchRepo().Create(ctx, batch); err != nil {
			return err
		}
		entry, err := inventory.NewInboundEntry(batch, inventory.ReasonReceipt, batch.Quantity, 0, batch.Quantity, reference, actorID)
		if err != nil {
			return err
		}
		return repos.LedgerRepo().Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	events := []shared.DomainEvent{inventory.NewBatchReceivedEvent(batch)}
	if inventory.ReorderAlertDue(0, batch.Quantity, batch.ReorderThreshold, batch.AlertSent) {
		events = append(events, inventory.NewStockBelowThresholdEvent(batch, 0))
	}
	s.publish(ctx, events...)

	resp := ToBatchResponse(batch)
	return &resp, nil
}

// Restock adds units to an existing batch. A Depleted batch becomes Active
// again and the alert flag resets once stock is back above threshold.
func (s *BatchService) Restock(ctx context.Context, actorID, batchID uuid.UUID, req RestockRequest) (*BatchResponse, error) {
	batch, err := s.adjust(ctx, "restock", actorID, batchID, req.Reference, func(b *inventory.InventoryBatch) (*inventory.LedgerEntry, error) {
		before, after, err := b.Replenish(req.Quantity)
		if err != nil {
			return nil, err
		}
		return inventory.NewInboundEntry(b, inventory.ReasonRestock, req.Quantity, before, after, "", actorID)
	})
	if err != nil {
		return nil, err
	}
	if inventory.ReorderAlertDue(batch.Quantity-req.Quantity, batch.Quantity, batch.ReorderThreshold, batch.AlertSent) {
		s.publish(ctx, inventory.NewStockBelowThresholdEvent(batch, batch.Quantity-req.Quantity))
	}
	resp := ToBatchResponse(batch)
	return &resp, nil
}

// ManualZero sets a batch's quantity to zero
func (s *BatchService) ManualZero(ctx context.Context, actorID, batchID uuid.UUID, req AdjustmentRequest) (*BatchResponse, error) {
	var before int64
	batch, err := s.adjust(ctx, "manual_zero", actorID, batchID, req.Reference, func(b *inventory.InventoryBatch) (*inventory.LedgerEntry, error) {
		var err error
		before, err = b.ZeroOut()
		if err != nil {
			return nil, err
		}
		if before == 0 {
			return nil, nil
		}
		return inventory.NewOutboundEntry(b, inventory.ReasonManualZero, before, before, 0, "", actorID)
	})
	if err != nil {
		return nil, err
	}
	if before > 0 && inventory.ReorderAlertDue(before, 0, batch.ReorderThreshold, batch.AlertSent) {
		s.publish(ctx, inventory.NewStockBelowThresholdEvent(batch, before))
	}
	resp := ToBatchResponse(batch)
	return &resp, nil
}

// Dispose writes off what is left of a batch and marks it Disposed.
// Disposed batches are never allocated and raise no low-stock alert.
func (s *BatchService) Dispose(ctx context.Context, actorID, batchID uuid.UUID, req AdjustmentRequest) (*BatchResponse, error) {
	batch, err := s.adjust(ctx, "dispose", actorID, batchID, req.Reference, func(b *inventory.InventoryBatch) (*inventory.LedgerEntry, error) {
		before, err := b.Dispose()
		if err != nil {
			return nil, err
		}
		if before == 0 {
			return nil, nil
		}
		return inventory.NewOutboundEntry(b, inventory.ReasonDisposal, before, before, 0, "", actorID)
	})
	if err != nil {
		return nil, err
	}
	resp := ToBatchResponse(batch)
	return &resp, nil
}

// adjust locks one batch, applies change and writes the batch and its ledger
// entry in one unit of work. change may return a nil entry when nothing moved.
func (s *BatchService) adjust(
	ctx context.Context,
	op string,
	actorID, batchID uuid.UUID,
	reference string,
	change func(b *inventory.InventoryBatch) (*inventory.LedgerEntry, error),
) (*inventory.InventoryBatch, error) {
	if actorID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ACTOR", "Actor identity is required")
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "inventory", op,
		telemetry.SpanAttrBatchID.String(batchID.String()))
	defer span.End()

	var result *inventory.InventoryBatch
	err := s.scope.Execute(ctx, func(repos unitofwork.TransactionalRepositories) error {
		locked, err := repos.BatchRepo().LockForUpdate(ctx, []uuid.UUID{batchID}, s.lockTimeout)
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return shared.ErrNotFound
		}
		b := &locked[0]

		entry, err := change(b)
		if err != nil {
			return err
		}
		if err := repos.BatchRepo().Save(ctx, b); err != nil {
			return err
		}
		if entry != nil {
			if reference != "" {
				entry.Reference = reference
			}
			if err := entry.VerifyAgainst(b.Quantity); err != nil {
				return err
			}
			if err := repos.LedgerRepo().Append(ctx, entry); err != nil {
				return err
			}
		}
		result = b
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		logger.WithLogger(ctx, s.logger).With(
			zap.String("batch_id", batchID.String()),
			zap.String("actor_id", actorID.String()),
		).Zap().Warn("stock adjustment failed", zap.String("operation", op), zap.Error(err))
		return nil, err
	}
	span.SetAttributes(telemetry.SpanAttrQuantity.Int64(result.Quantity))
	telemetry.SetOK(span)
	return result, nil
}

// GetByID returns a batch
func (s *BatchService) GetByID(ctx context.Context, batchID uuid.UUID) (*BatchResponse, error) {
	b, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	resp := ToBatchResponse(b)
	return &resp, nil
}

// List returns batches matching filter
func (s *BatchService) List(ctx context.Context, filter BatchListFilter) ([]BatchResponse, int64, error) {
	f := shared.DefaultFilter()
	f.OrderBy = "received_at"
	f.OrderDir = "asc"
	if filter.Page > 0 {
		f.Page = filter.Page
	}
	if filter.PageSize > 0 {
		f.PageSize = filter.PageSize
	}
	if filter.MedicationID != nil {
		f.Filters["medication_id"] = *filter.MedicationID
	}
	if filter.FacilityID != nil {
		f.Filters["facility_id"] = *filter.FacilityID
	}
	if filter.Status != "" {
		status := inventory.BatchStatus(filter.Status)
		if !status.IsValid() {
			return nil, 0, shared.NewDomainError("INVALID_STATUS", fmt.Sprintf("Unknown batch status %q", filter.Status))
		}
		f.Filters["status"] = filter.Status
	}

	batches, total, err := s.batchRepo.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return ToBatchResponses(batches), total, nil
}

// Ledger returns a batch's ledger entries oldest first
func (s *BatchService) Ledger(ctx context.Context, batchID uuid.UUID, filter LedgerListFilter) ([]LedgerEntryResponse, int64, error) {
	if _, err := s.batchRepo.FindByID(ctx, batchID); err != nil {
		return nil, 0, err
	}
	f := shared.DefaultFilter()
	f.OrderBy = "created_at"
	f.OrderDir = "asc"
	if filter.Page > 0 {
		f.Page = filter.Page
	}
	if filter.PageSize > 0 {
		f.PageSize = filter.PageSize
	}
	entries, total, err := s.ledgerRepo.ListByBatch(ctx, batchID, f)
	if err != nil {
		return nil, 0, err
	}
	return ToLedgerEntryResponses(entries), total, nil
}

// publish sends post-commit events; failures are logged only
func (s *BatchService) publish(ctx context.Context, events ...shared.DomainEvent) {
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish stock events", zap.Int("count", len(events)), zap.Error(err))
	}
}
