package event

import (
	"context"
	"time"

	"github.com/medrx/backend/internal/domain/shared"
	"github.com/medrx/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DefaultClaimTTL bounds how long a handled event ID is remembered
const DefaultClaimTTL = 24 * time.Hour

// Delivery outcomes recorded on event_deliveries_total
const (
	DeliveryHandled   = "handled"
	DeliveryDuplicate = "duplicate"
	DeliveryFailed    = "failed"
)

var attrDeliveryOutcome = attribute.Key("outcome")

// DedupHandler delivers each event ID to the wrapped handler at most once
// while its claim is held. A failed delivery releases the claim so a
// redelivery can retry; an unreachable store lets the delivery through and
// leaves duplicate detection to the wrapped handler.
type DedupHandler struct {
	inner  shared.EventHandler
	store  shared.DedupStore
	ttl    time.Duration
	logger *zap.Logger

	meter      metric.Meter
	deliveries *telemetry.Counter
}

// DedupOption configures a DedupHandler
type DedupOption func(*DedupHandler)

// WithClaimTTL sets how long a claim on an event ID is held
func WithClaimTTL(ttl time.Duration) DedupOption {
	return func(h *DedupHandler) {
		if ttl > 0 {
			h.ttl = ttl
		}
	}
}

// WithDeliveryMetrics counts deliveries by event type and outcome on meter
func WithDeliveryMetrics(meter metric.Meter) DedupOption {
	return func(h *DedupHandler) {
		h.meter = meter
	}
}

// NewDedupHandler wraps inner with claim-based deduplication on store
func NewDedupHandler(inner shared.EventHandler, store shared.DedupStore, logger *zap.Logger, opts ...DedupOption) *DedupHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &DedupHandler{inner: inner, store: store, ttl: DefaultClaimTTL, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	if h.meter != nil {
		in := telemetry.NewInstruments(h.meter)
		h.deliveries = in.Counter("event_deliveries_total", "Event deliveries by outcome", "{deliveries}")
		if err := in.Err(); err != nil {
			logger.Warn("event delivery metrics disabled", zap.Error(err))
		}
	}
	return h
}

// EventTypes returns the event types of the wrapped handler
func (h *DedupHandler) EventTypes() []string {
	return h.inner.EventTypes()
}

// Unwrap returns the wrapped handler
func (h *DedupHandler) Unwrap() shared.EventHandler {
	return h.inner
}

// Handle delivers event unless another delivery of it holds the claim
func (h *DedupHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	key := claimKey(event)
	log := h.logger.With(
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
	)

	claimed, err := h.store.Claim(ctx, key, h.ttl)
	switch {
	case err != nil:
		log.Warn("event claim failed, delivering anyway", zap.Error(err))
	case !claimed:
		log.Debug("duplicate event skipped")
		h.count(ctx, event, DeliveryDuplicate)
		return nil
	}

	if err := h.inner.Handle(ctx, event); err != nil {
		h.count(ctx, event, DeliveryFailed)
		if relErr := h.store.Release(ctx, key); relErr != nil {
			log.Warn("event claim not released", zap.Error(relErr))
		}
		return err
	}
	h.count(ctx, event, DeliveryHandled)
	return nil
}

func (h *DedupHandler) count(ctx context.Context, event shared.DomainEvent, outcome string) {
	if h.deliveries == nil {
		return
	}
	h.deliveries.Inc(ctx, telemetry.SpanAttrEventType.String(event.EventType()), attrDeliveryOutcome.String(outcome))
}

func claimKey(event shared.DomainEvent) string {
	return "event:" + event.EventType() + ":" + event.EventID().String()
}

var _ shared.EventHandler = (*DedupHandler)(nil)
