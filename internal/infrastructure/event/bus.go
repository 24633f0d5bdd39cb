package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/medrx/backend/internal/domain/shared"
	"github.com/medrx/backend/internal/infrastructure/logger"
	"github.com/medrx/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// InMemoryEventBus delivers events synchronously on the publisher's
// goroutine. Handler errors and panics are logged and counted but never
// returned, so a failing alert cannot undo a committed fulfillment.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger

	closed   atomic.Bool
	inflight sync.WaitGroup

	published atomic.Int64
	failed    atomic.Int64
}

func NewInMemoryEventBus(log *zap.Logger) *InMemoryEventBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   log.Named("eventbus"),
	}
}

// Publish hands each event, in order, to its handlers. After Stop events
// are dropped with a warning.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if b.closed.Load() {
		b.logger.Warn("event bus stopped, dropping events", zap.Int("count", len(events)))
		return nil
	}
	b.inflight.Add(1)
	defer b.inflight.Done()

	for _, e := range events {
		b.published.Add(1)
		for _, h := range b.registry.GetHandlers(e.EventType()) {
			if err := b.deliver(ctx, h, e); err != nil {
				b.failed.Add(1)
				logger.WithLogger(ctx, b.logger).With(
					zap.String("event_type", e.EventType()),
					zap.String("event_id", e.EventID().String()),
					zap.String("aggregate_id", e.AggregateID().String()),
				).Zap().Error("event handler failed", zap.Error(err))
			}
		}
	}
	return nil
}

// deliver runs one handler inside a consumer span and turns a panic into an
// error
func (b *InMemoryEventBus) deliver(ctx context.Context, h shared.EventHandler, e shared.DomainEvent) (err error) {
	ctx, span := telemetry.StartConsumerSpan(ctx, "event.deliver "+e.EventType(),
		telemetry.SpanAttrEventType.String(e.EventType()),
		telemetry.SpanAttrEventID.String(e.EventID().String()),
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
		telemetry.RecordError(span, err)
		span.End()
	}()
	return h.Handle(ctx, e)
}

// Subscribe routes eventTypes to handler, or the handler's own EventTypes
// when none are given. A handler with neither receives every event.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
}

// Start reopens a stopped bus
func (b *InMemoryEventBus) Start(context.Context) error {
	b.closed.Store(false)
	b.logger.Info("event bus started", zap.Strings("event_types", b.registry.EventTypes()))
	return nil
}

// Stop refuses new events and waits for in-flight publishes until ctx ends
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.closed.Store(true)

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		b.inflight.Wait()
	}()

	select {
	case <-drained:
		published, failed := b.Stats()
		b.logger.Info("event bus stopped", zap.Int64("published", published), zap.Int64("handler_failures", failed))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event bus stop: %w", ctx.Err())
	}
}

// Stats returns how many events were published and how many deliveries failed
func (b *InMemoryEventBus) Stats() (published, failed int64) {
	return b.published.Load(), b.failed.Load()
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
