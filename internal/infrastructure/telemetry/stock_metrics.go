package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// FacilityStockStats is the per-facility snapshot read by the stock collector
type FacilityStockStats struct {
	FacilityID    string
	ActiveBatches int64
	LowStock      int64 // active batches at or below their reorder threshold
	UnitsOnHand   int64
}

// StockStatsProvider reads current stock figures
type StockStatsProvider interface {
	StockStatsByFacility(ctx context.Context) ([]FacilityStockStats, error)
}

// StockMetrics periodically records stock gauges per facility
type StockMetrics struct {
	provider StockStatsProvider
	logger   *zap.Logger

	activeBatches *Gauge
	lowStock      *Gauge
	unitsOnHand   *Gauge

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewStockMetrics creates the stock gauges on meter
func NewStockMetrics(meter metric.Meter, provider StockStatsProvider, logger *zap.Logger) (*StockMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	in := NewInstruments(meter)
	sm := &StockMetrics{
		provider: provider,
		logger:   logger,
		activeBatches: in.Gauge("stock_active_batches",
			"Active batches with stock", "{batches}"),
		lowStock: in.Gauge("stock_low_batches",
			"Active batches at or below their reorder threshold", "{batches}"),
		unitsOnHand: in.Gauge("stock_units_on_hand",
			"Units on hand across active batches", "{units}"),
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	return sm, nil
}

// Collect records one snapshot
func (sm *StockMetrics) Collect(ctx context.Context) error {
	stats, err := sm.provider.StockStatsByFacility(ctx)
	if err != nil {
		return err
	}
	for _, s := range stats {
		attr := AttrFacilityID.String(s.FacilityID)
		sm.activeBatches.Record(ctx, s.ActiveBatches, attr)
		sm.lowStock.Record(ctx, s.LowStock, attr)
		sm.unitsOnHand.Record(ctx, s.UnitsOnHand, attr)
	}
	return nil
}

// Start collects immediately and then every interval until Stop or ctx is done
func (sm *StockMetrics) Start(ctx context.Context, interval time.Duration) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.cancel != nil {
		return
	}
	ctx, sm.cancel = context.WithCancel(ctx)
	sm.stopped = make(chan struct{})

	go func() {
		defer close(sm.stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := sm.Collect(ctx); err != nil && ctx.Err() == nil {
				sm.logger.Warn("stock metrics collection failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts periodic collection and waits for the collector to exit
func (sm *StockMetrics) Stop() {
	sm.mu.Lock()
	cancel, stopped := sm.cancel, sm.stopped
	sm.cancel = nil
	sm.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}
