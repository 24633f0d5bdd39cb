// Package fulfillment turns an approved request into stock depletions.
//
// Each attempt plans every line item against a lock-free snapshot, then
// commits all depletions in one unit of work with the touched batches locked
// in ascending ID order. A request is fulfilled completely or not at all.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/application/unitofwork"
	"github.com/medrx/backend/internal/domain/fulfillment"
	"github.com/medrx/backend/internal/domain/inventory"
	"github.com/medrx/backend/internal/domain/shared"
	"github.com/medrx/backend/internal/infrastructure/logger"
	"github.com/medrx/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TransientReasonPrefix marks rejections the caller may retry later
const TransientReasonPrefix = "transient: "

// Config holds retry and locking settings. MaxConflictRetries and
// MaxTransientRetries bound the retries inside one call; MaxCallerRetries
// bounds how often a caller may resubmit a transiently rejected request.
type Config struct {
	LockTimeout         time.Duration
	MaxConflictRetries  int
	MaxTransientRetries int
	TransientBackoff    time.Duration
	MaxCallerRetries    int
}

// DefaultConfig returns the default manager configuration
func DefaultConfig() Config {
	return Config{
		LockTimeout:         5 * time.Second,
		MaxConflictRetries:  1,
		MaxTransientRetries: 2,
		TransientBackoff:    50 * time.Millisecond,
		MaxCallerRetries:    3,
	}
}

// RequestReader reads requests outside a unit of work
type RequestReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Request, error)
	Create(ctx context.Context, r *fulfillment.Request) error
}

// Manager orchestrates fulfillment of approved requests
type Manager struct {
	scope     unitofwork.TransactionScope
	allocator *inventory.Allocator
	requests  RequestReader
	ledger    inventory.LedgerRepository
	publisher shared.EventPublisher
	config    Config
	logger    *zap.Logger
	metrics   *telemetry.FulfillmentMetrics
	tracer    trace.Tracer
}

// NewManager creates a new fulfillment manager
func NewManager(
	scope unitofwork.TransactionScope,
	allocator *inventory.Allocator,
	requests RequestReader,
	ledger inventory.LedgerRepository,
	publisher shared.EventPublisher,
	cfg Config,
	log *zap.Logger,
) *Manager {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultConfig().LockTimeout
	}
	if cfg.MaxConflictRetries < 0 {
		cfg.MaxConflictRetries = 0
	}
	if cfg.MaxTransientRetries < 0 {
		cfg.MaxTransientRetries = 0
	}
	if cfg.MaxCallerRetries < 0 {
		cfg.MaxCallerRetries = 0
	}
	return &Manager{
		scope:     scope,
		allocator: allocator,
		requests:  requests,
		ledger:    ledger,
		publisher: publisher,
		config:    cfg,
		logger:    log,
		tracer:    otel.Tracer("medrx/fulfillment"),
	}
}

// SetMetrics sets the metrics recorder
func (m *Manager) SetMetrics(fm *telemetry.FulfillmentMetrics) {
	m.metrics = fm
}

// linePlan is the plan for one line item
type linePlan struct {
	item fulfillment.LineItem
	plan *inventory.AllocationPlan
}

// commitResult carries what the unit of work produced for post-commit work
type commitResult struct {
	events []shared.DomainEvent
	lines  []LineResult
}

// Fulfill processes one approval. It returns an Outcome for every terminal
// result, Fulfilled or Rejected. An error is returned only when the request
// was already processed, the command is invalid, or the rejection itself
// could not be recorded.
func (m *Manager) Fulfill(ctx context.Context, cmd Command) (*Outcome, error) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "fulfillment.Fulfill", trace.WithAttributes(
		telemetry.SpanAttrRequestID.String(cmd.RequestID.String()),
		attribute.Int("line_items", len(cmd.LineItems)),
	))
	defer span.End()

	if cmd.ActorID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ACTOR", "Approver identity is required")
	}

	req, err := m.loadOrCreate(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	ctx = logger.WithFulfillmentRequestID(ctx, req.ID.String())
	if logger.GetActorID(ctx) == "" {
		ctx = logger.WithActorID(ctx, cmd.ActorID.String())
	}
	log := logger.WithLogger(ctx, m.logger).Zap()

	outcome, err := m.run(ctx, log, req, cmd.ActorID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		telemetry.SpanAttrOutcome.String(outcome.Status.String()),
		telemetry.SpanAttrAttempt.Int(outcome.Attempts),
	)
	m.metrics.RecordOutcome(ctx, outcome.Status.String(), outcome.Transient, time.Since(start))
	log.Info("fulfillment finished",
		zap.String("status", outcome.Status.String()),
		zap.Int("attempts", outcome.Attempts),
		zap.Bool("transient", outcome.Transient),
		zap.String("reason", outcome.Reason),
	)
	return outcome, nil
}

// loadOrCreate returns the stored Pending request, creating it on first
// sight. A transiently rejected request is reopened while its retry budget
// lasts.
func (m *Manager) loadOrCreate(ctx context.Context, cmd Command) (*fulfillment.Request, error) {
	if cmd.RequestID != uuid.Nil {
		existing, err := m.requests.FindByID(ctx, cmd.RequestID)
		switch {
		case err == nil:
			return m.admit(ctx, existing)
		case !errors.Is(err, shared.ErrNotFound):
			return nil, fmt.Errorf("load request: %w", err)
		}
	}

	req, err := fulfillment.NewRequest(cmd.RequestID, cmd.PatientID, cmd.FacilityID, cmd.LineItems)
	if err != nil {
		return nil, err
	}
	if err := m.requests.Create(ctx, req); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// lost a create race with a concurrent approval of the same request
			existing, ferr := m.requests.FindByID(ctx, req.ID)
			if ferr != nil {
				return nil, fmt.Errorf("load request: %w", ferr)
			}
			return m.admit(ctx, existing)
		}
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

// admit returns a stored request that may be processed now
func (m *Manager) admit(ctx context.Context, existing *fulfillment.Request) (*fulfillment.Request, error) {
	switch {
	case existing.Status == fulfillment.RequestStatusPending:
		return existing, nil
	case existing.CanReopen(m.config.MaxCallerRetries):
		return m.reopen(ctx, existing.ID)
	default:
		return nil, shared.ErrRequestAlreadyProcessed
	}
}

// reopen moves a transiently rejected request back to Pending under its row
// lock. A concurrent resubmission that already reopened it wins.
func (m *Manager) reopen(ctx context.Context, id uuid.UUID) (*fulfillment.Request, error) {
	var reopened *fulfillment.Request
	err := m.scope.Execute(ctx, func(repos unitofwork.TransactionalRepositories) error {
		locked, err := repos.RequestRepo().LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if locked.Status != fulfillment.RequestStatusPending {
			if err := locked.Reopen(m.config.MaxCallerRetries); err != nil {
				return err
			}
			if err := repos.RequestRepo().Save(ctx, locked); err != nil {
				return err
			}
		}
		reopened = locked
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrRequestAlreadyProcessed) {
			return nil, err
		}
		return nil, fmt.Errorf("reopen request: %w", err)
	}
	logger.WithLogger(ctx, m.logger).Zap().Info("transiently rejected request reopened",
		zap.String("fulfillment_request_id", id.String()),
		zap.Int("transient_rejections", reopened.TransientRejections),
	)
	return reopened, nil
}

func (m *Manager) run(ctx context.Context, log *zap.Logger, req *fulfillment.Request, actor uuid.UUID) (*Outcome, error) {
	conflicts, transients := 0, 0

	for attempt := 1; ; attempt++ {
		plans, shortages, err := m.plan(ctx, req)
		if err != nil {
			return m.rejectSystemError(ctx, log, req, actor, attempt, err)
		}
		if len(shortages) > 0 {
			log.Info("request rejected for insufficient stock", zap.Int("shortages", len(shortages)))
			return m.reject(ctx, req, actor, attempt, fulfillment.ShortageReason(shortages), shortages, false)
		}

		result, err := m.commit(ctx, req, plans, actor)
		if err == nil {
			m.publish(ctx, log, result.events)
			return &Outcome{
				RequestID: req.ID,
				Status:    fulfillment.RequestStatusFulfilled,
				Attempts:  attempt,
				Lines:     result.lines,
			}, nil
		}

		var transientErr error
		switch {
		case errors.Is(err, shared.ErrRequestAlreadyProcessed):
			return nil, err
		case errors.Is(err, shared.ErrStockConflict):
			m.metrics.RecordConflict(ctx)
			log.Info("stock changed under lock, re-planning", zap.Int("attempt", attempt), zap.Error(err))
			if conflicts < m.config.MaxConflictRetries {
				conflicts++
				continue
			}
			transientErr = err
		case errors.Is(err, shared.ErrLockTimeout):
			m.metrics.RecordLockTimeout(ctx)
			log.Warn("batch lock timeout", zap.Int("attempt", attempt), zap.Error(err))
			transientErr = err
		default:
			return m.rejectSystemError(ctx, log, req, actor, attempt, err)
		}

		if transients < m.config.MaxTransientRetries {
			transients++
			conflicts = 0
			if werr := m.backoff(ctx, transients); werr != nil {
				return m.rejectSystemError(ctx, log, req, actor, attempt, werr)
			}
			continue
		}
		return m.reject(ctx, req, actor, attempt, TransientReasonPrefix+transientErr.Error(), nil, true)
	}
}

// plan allocates every line item against a lock-free snapshot. Units promised
// to earlier line items are held back from later ones so that two lines for
// the same medication cannot plan the same units twice.
func (m *Manager) plan(ctx context.Context, req *fulfillment.Request) ([]linePlan, []fulfillment.Shortage, error) {
	ctx, span := m.tracer.Start(ctx, "fulfillment.plan")
	defer span.End()

	held := inventory.Reservations{}
	plans := make([]linePlan, 0, len(req.LineItems))
	var shortages []fulfillment.Shortage

	for _, item := range req.LineItems {
		p, err := m.allocator.AllocateWith(ctx, item.MedicationID, req.FacilityID, item.Quantity, held)
		if err != nil {
			return nil, nil, fmt.Errorf("allocate %s: %w", item.MedicationID, err)
		}
		if !p.Sufficient {
			shortages = append(shortages, fulfillment.Shortage{
				MedicationID:   item.MedicationID,
				MedicationName: p.MedicationName,
				Required:       item.Quantity,
				Available:      p.TotalAvailable,
			})
			continue
		}
		held.Add(p)
		plans = append(plans, linePlan{item: item, plan: p})
	}
	return plans, shortages, nil
}

// commit applies every planned depletion inside one unit of work
func (m *Manager) commit(ctx context.Context, req *fulfillment.Request, plans []linePlan, actor uuid.UUID) (*commitResult, error) {
	ctx, span := m.tracer.Start(ctx, "fulfillment.commit")
	defer span.End()

	need := make(map[uuid.UUID]int64)
	ids := make([]uuid.UUID, 0)
	for _, lp := range plans {
		for _, a := range lp.plan.Allocations {
			if _, ok := need[a.BatchID]; !ok {
				ids = append(ids, a.BatchID)
			}
			need[a.BatchID] += a.Quantity
		}
	}
	ids = inventory.SortIDs(ids)

	result := &commitResult{}
	err := m.scope.Execute(ctx, func(repos unitofwork.TransactionalRepositories) error {
		locked, err := repos.RequestRepo().LockForUpdate(ctx, req.ID)
		if err != nil {
			return err
		}
		if locked.Status.IsTerminal() {
			return shared.ErrRequestAlreadyProcessed
		}

		batches, err := repos.BatchRepo().LockForUpdate(ctx, ids, m.config.LockTimeout)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*inventory.InventoryBatch, len(batches))
		for i := range batches {
			byID[batches[i].ID] = &batches[i]
		}

		for _, id := range ids {
			b, ok := byID[id]
			if !ok {
				return shared.WrapDomainError(shared.ErrStockConflict.Code, shared.ErrStockConflict.Message,
					fmt.Errorf("batch %s no longer exists", id))
			}
			if b.Status != inventory.BatchStatusActive || b.Quantity < need[id] {
				return shared.WrapDomainError(shared.ErrStockConflict.Code, shared.ErrStockConflict.Message,
					fmt.Errorf("batch %s holds %d (%s), plan needs %d", id, b.Quantity, b.Status, need[id]))
			}
		}

		before := make(map[uuid.UUID]int64, len(ids))
		for _, id := range ids {
			before[id] = byID[id].Quantity
		}

		allocated := make(map[uuid.UUID]int64, len(plans))
		for _, lp := range plans {
			for _, a := range lp.plan.Allocations {
				if _, _, err := byID[a.BatchID].Deplete(a.Quantity); err != nil {
					return err
				}
			}
			allocated[lp.item.MedicationID] += lp.plan.Allocated()
			result.lines = append(result.lines, LineResult{
				MedicationID: lp.item.MedicationID,
				Required:     lp.item.Quantity,
				Allocations:  lp.plan.Allocations,
			})
		}

		// one entry per batch touched, however many line items drew on it
		entries := make([]*inventory.LedgerEntry, 0, len(ids))
		for _, id := range ids {
			b := byID[id]
			entry, err := inventory.NewOutboundEntry(b, inventory.ReasonFulfillment, need[id], before[id], b.Quantity, req.ID.String(), actor)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
			if err := repos.BatchRepo().Save(ctx, b); err != nil {
				return err
			}
		}

		// re-read under lock: the stored quantity must be what the ledger says
		for _, entry := range entries {
			stored, err := repos.BatchRepo().FindByID(ctx, entry.BatchID)
			if err != nil {
				return err
			}
			if err := entry.VerifyAgainst(stored.Quantity); err != nil {
				return err
			}
		}

		if err := repos.LedgerRepo().Append(ctx, entries...); err != nil {
			return err
		}

		if err := locked.MarkFulfilled(actor, allocated); err != nil {
			return err
		}
		if err := repos.RequestRepo().Save(ctx, locked); err != nil {
			return err
		}

		result.events = append(result.events, locked.GetDomainEvents()...)
		for _, id := range ids {
			b := byID[id]
			if inventory.ReorderAlertDue(before[id], b.Quantity, b.ReorderThreshold, b.AlertSent) {
				result.events = append(result.events, inventory.NewStockBelowThresholdEvent(b, before[id]))
			}
			m.metrics.RecordDepleted(ctx, b.MedicationID.String(), before[id]-b.Quantity)
		}
		*req = *locked
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

// reject records a Rejected outcome in its own short unit of work
func (m *Manager) reject(ctx context.Context, req *fulfillment.Request, actor uuid.UUID, attempts int, reason string, shortages []fulfillment.Shortage, transient bool) (*Outcome, error) {
	var events []shared.DomainEvent
	retryable := false
	err := m.scope.Execute(ctx, func(repos unitofwork.TransactionalRepositories) error {
		locked, err := repos.RequestRepo().LockForUpdate(ctx, req.ID)
		if err != nil {
			return err
		}
		if err := locked.MarkRejected(actor, reason, shortages, transient); err != nil {
			return err
		}
		if err := repos.RequestRepo().Save(ctx, locked); err != nil {
			return err
		}
		events = locked.GetDomainEvents()
		retryable = locked.CanReopen(m.config.MaxCallerRetries)
		*req = *locked
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrRequestAlreadyProcessed) {
			return nil, err
		}
		return nil, fmt.Errorf("record rejection: %w", err)
	}

	m.publish(ctx, m.logger, events)
	return &Outcome{
		RequestID: req.ID,
		Status:    fulfillment.RequestStatusRejected,
		Reason:    reason,
		Transient: transient,
		Retryable: retryable,
		Attempts:  attempts,
		Shortages: shortages,
	}, nil
}

// rejectSystemError logs cause and records a system-error rejection. The
// write runs detached from ctx so that a cancelled caller still leaves the
// request in a terminal state.
func (m *Manager) rejectSystemError(ctx context.Context, log *zap.Logger, req *fulfillment.Request, actor uuid.UUID, attempts int, cause error) (*Outcome, error) {
	log.Error("fulfillment failed, rolling back", zap.Int("attempt", attempts), zap.Error(cause))

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.LockTimeout)
	defer cancel()
	return m.reject(wctx, req, actor, attempts, "system error: "+cause.Error(), nil, false)
}

func (m *Manager) backoff(ctx context.Context, n int) error {
	if m.config.TransientBackoff <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(time.Duration(n) * m.config.TransientBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// publish hands post-commit events to the bus. Failures never affect the
// committed outcome.
func (m *Manager) publish(ctx context.Context, log *zap.Logger, events []shared.DomainEvent) {
	if m.publisher == nil || len(events) == 0 {
		return
	}
	if err := m.publisher.Publish(ctx, events...); err != nil {
		log.Error("failed to publish post-commit events", zap.Int("count", len(events)), zap.Error(err))
	}
}

// GetRequest returns a stored request with the ledger entries it produced
func (m *Manager) GetRequest(ctx context.Context, id uuid.UUID) (*RequestView, error) {
	r, err := m.requests.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var entries []inventory.LedgerEntry
	if r.Status == fulfillment.RequestStatusFulfilled && m.ledger != nil {
		entries, err = m.ledger.ListByReference(ctx, r.ID.String())
		if err != nil {
			return nil, err
		}
	}
	return ToRequestView(r, entries), nil
}
