package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medrx/backend/internal/domain/shared"
	"github.com/medrx/backend/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

type MockEventHandler struct {
	mock.Mock
}

func (m *MockEventHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventHandler) EventTypes() []string {
	return m.Called().Get(0).([]string)
}

type MockDedupStore struct {
	mock.Mock
}

func (m *MockDedupStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockDedupStore) Release(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockDedupStore) Close() error {
	return m.Called().Error(0)
}

func newMemoryStore(t *testing.T) shared.DedupStore {
	t.Helper()
	store := cache.NewInMemoryDedupStore()
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// deliveries reads event_deliveries_total by outcome
func deliveries(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "event_deliveries_total" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key("outcome"))
				out[v.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestDedupHandler_DeliversOnce(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	inner := new(MockEventHandler)
	approved := newTestEvent("fulfillment.request_approved")
	inner.On("Handle", mock.Anything, approved).Return(nil).Once()

	h := NewDedupHandler(inner, newMemoryStore(t), zaptest.NewLogger(t), WithDeliveryMetrics(mp.Meter("test")))

	require.NoError(t, h.Handle(context.Background(), approved))
	require.NoError(t, h.Handle(context.Background(), approved))

	inner.AssertExpectations(t)
	assert.Equal(t, map[string]int64{DeliveryHandled: 1, DeliveryDuplicate: 1}, deliveries(t, reader))
}

func TestDedupHandler_DistinctEventsBothDelivered(t *testing.T) {
	inner := new(MockEventHandler)
	inner.On("Handle", mock.Anything, mock.Anything).Return(nil).Twice()

	h := NewDedupHandler(inner, newMemoryStore(t), zaptest.NewLogger(t))
	require.NoError(t, h.Handle(context.Background(), newTestEvent("fulfillment.request_approved")))
	require.NoError(t, h.Handle(context.Background(), newTestEvent("fulfillment.request_approved")))

	inner.AssertExpectations(t)
}

func TestDedupHandler_FailureReleasesClaim(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	inner := new(MockEventHandler)
	approved := newTestEvent("fulfillment.request_approved")
	inner.On("Handle", mock.Anything, approved).Return(errors.New("lock timeout")).Once()
	inner.On("Handle", mock.Anything, approved).Return(nil).Once()

	h := NewDedupHandler(inner, newMemoryStore(t), zaptest.NewLogger(t), WithDeliveryMetrics(mp.Meter("test")))

	require.Error(t, h.Handle(context.Background(), approved))
	require.NoError(t, h.Handle(context.Background(), approved))

	inner.AssertExpectations(t)
	assert.Equal(t, map[string]int64{DeliveryFailed: 1, DeliveryHandled: 1}, deliveries(t, reader))
}

func TestDedupHandler_ClaimKeyAndTTL(t *testing.T) {
	store := new(MockDedupStore)
	inner := new(MockEventHandler)
	approved := newTestEvent("fulfillment.request_approved")
	key := "event:fulfillment.request_approved:" + approved.EventID().String()

	store.On("Claim", mock.Anything, key, 10*time.Minute).Return(false, errors.New("redis down"))
	inner.On("Handle", mock.Anything, approved).Return(nil)

	h := NewDedupHandler(inner, store, zaptest.NewLogger(t), WithClaimTTL(10*time.Minute))
	require.NoError(t, h.Handle(context.Background(), approved), "store outage still delivers")

	store.AssertExpectations(t)
	inner.AssertExpectations(t)
}

func TestDedupHandler_ReleaseErrorKeepsHandlerError(t *testing.T) {
	store := new(MockDedupStore)
	inner := new(MockEventHandler)
	approved := newTestEvent("fulfillment.request_approved")
	handlerErr := errors.New("boom")

	store.On("Claim", mock.Anything, mock.Anything, DefaultClaimTTL).Return(true, nil)
	store.On("Release", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	inner.On("Handle", mock.Anything, approved).Return(handlerErr)

	h := NewDedupHandler(inner, store, nil)
	assert.ErrorIs(t, h.Handle(context.Background(), approved), handlerErr)
	store.AssertExpectations(t)
}

func TestDedupHandler_DelegatesEventTypes(t *testing.T) {
	inner := new(MockEventHandler)
	inner.On("EventTypes").Return([]string{"fulfillment.request_approved"})

	h := NewDedupHandler(inner, new(MockDedupStore), zaptest.NewLogger(t), WithClaimTTL(-time.Second))
	assert.Equal(t, []string{"fulfillment.request_approved"}, h.EventTypes())
	assert.Same(t, inner, h.Unwrap())
	assert.Equal(t, DefaultClaimTTL, h.ttl)
}
