package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "FulfillmentRequest", uuid.New()),
		Data:            "test data",
	}
}

type testHandler struct {
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panicMsg   string
	mu         sync.Mutex
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	h.handled = append(h.handled, event)
	err, msg := h.err, h.panicMsg
	h.mu.Unlock()
	if msg != "" {
		panic(msg)
	}
	return err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zaptest.NewLogger(t))

	handler := newTestHandler("FulfillmentCompleted")
	bus.Subscribe(handler)

	event := newTestEvent("FulfillmentCompleted")
	require.NoError(t, bus.Publish(context.Background(), event))

	require.Len(t, handler.getHandled(), 1)
	assert.Equal(t, event, handler.getHandled()[0])
}

func TestInMemoryEventBus_Publish_MultipleEventsInOrder(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newTestHandler("StockDepleted")
	bus.Subscribe(handler, "StockDepleted")

	first := newTestEvent("StockDepleted")
	second := newTestEvent("StockDepleted")
	require.NoError(t, bus.Publish(context.Background(), first, second))

	handled := handler.getHandled()
	require.Len(t, handled, 2)
	assert.Equal(t, first.EventID(), handled[0].EventID())
	assert.Equal(t, second.EventID(), handled[1].EventID())
}

func TestInMemoryEventBus_Publish_TypedBeforeWildcard(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	var order []string
	var mu sync.Mutex
	record := func(name string) shared.EventHandler {
		return &funcHandler{fn: func(context.Context, shared.DomainEvent) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}}
	}

	bus.Subscribe(record("wildcard"), []string{}...)
	bus.Subscribe(record("typed"), "LowStockDetected")

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("LowStockDetected")))
	assert.Equal(t, []string{"typed", "wildcard"}, order)
}

func TestInMemoryEventBus_Publish_HandlerErrorIsIsolated(t *testing.T) {
	bus := NewInMemoryEventBus(zaptest.NewLogger(t))

	failing := newTestHandler("FulfillmentCompleted")
	failing.err = errors.New("smtp unavailable")
	healthy := newTestHandler("FulfillmentCompleted")
	bus.Subscribe(failing)
	bus.Subscribe(healthy)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("FulfillmentCompleted")))
	assert.Len(t, failing.getHandled(), 1)
	assert.Len(t, healthy.getHandled(), 1)

	published, failed := bus.Stats()
	assert.Equal(t, int64(1), published)
	assert.Equal(t, int64(1), failed)
}

func TestInMemoryEventBus_Publish_HandlerPanicIsRecovered(t *testing.T) {
	bus := NewInMemoryEventBus(zaptest.NewLogger(t))

	panicking := newTestHandler("FulfillmentCompleted")
	panicking.panicMsg = "nil map"
	healthy := newTestHandler("FulfillmentCompleted")
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	assert.NotPanics(t, func() {
		require.NoError(t, bus.Publish(context.Background(), newTestEvent("FulfillmentCompleted")))
	})
	assert.Len(t, healthy.getHandled(), 1)

	_, failed := bus.Stats()
	assert.Equal(t, int64(1), failed)
}

func TestInMemoryEventBus_Publish_NoMatchingHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newTestHandler("FulfillmentRejected")
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("FulfillmentCompleted")))
	assert.Empty(t, handler.getHandled())
}

func TestInMemoryEventBus_SubscribeTwiceDeliversOnce(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newTestHandler("FulfillmentCompleted")
	bus.Subscribe(handler)
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("FulfillmentCompleted")))
	assert.Len(t, handler.getHandled(), 1)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newTestHandler("FulfillmentCompleted")
	bus.Subscribe(handler)

	_ = bus.Publish(context.Background(), newTestEvent("FulfillmentCompleted"))
	assert.Len(t, handler.getHandled(), 1)

	bus.Unsubscribe(handler)

	_ = bus.Publish(context.Background(), newTestEvent("FulfillmentCompleted"))
	assert.Len(t, handler.getHandled(), 1)
	assert.Empty(t, bus.registry.EventTypes())
}

func TestInMemoryEventBus_StopDropsLaterEvents(t *testing.T) {
	bus := NewInMemoryEventBus(zaptest.NewLogger(t))
	handler := newTestHandler("FulfillmentCompleted")
	bus.Subscribe(handler)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(ctx))

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("FulfillmentCompleted")))
	assert.Empty(t, handler.getHandled())

	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("FulfillmentCompleted")))
	assert.Len(t, handler.getHandled(), 1)
}

func TestInMemoryEventBus_StopWaitsForInflight(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	entered := make(chan struct{})
	release := make(chan struct{})
	bus.Subscribe(&funcHandler{
		types: []string{"FulfillmentCompleted"},
		fn: func(context.Context, shared.DomainEvent) error {
			close(entered)
			<-release
			return nil
		},
	})

	go func() {
		_ = bus.Publish(context.Background(), newTestEvent("FulfillmentCompleted"))
	}()
	<-entered

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bus.Stop(short)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	ctx, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	assert.NoError(t, bus.Stop(ctx))
}

func TestInMemoryEventBus_ConcurrentPublish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("FulfillmentCompleted")
	bus.Subscribe(handler)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bus.Publish(context.Background(), newTestEvent("FulfillmentCompleted"))
		}()
	}
	wg.Wait()

	assert.Len(t, handler.getHandled(), 20)
	published, _ := bus.Stats()
	assert.Equal(t, int64(20), published)
}

type funcHandler struct {
	types []string
	fn    func(context.Context, shared.DomainEvent) error
}

func (h *funcHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	return h.fn(ctx, event)
}

func (h *funcHandler) EventTypes() []string { return h.types }
