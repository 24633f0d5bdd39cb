package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when instruments are requested without a meter
var ErrMeterNil = errors.New("telemetry: meter is nil")

// Attribute keys for HTTP and database instruments
var (
	AttrHTTPMethod     = attribute.Key("http.method")
	AttrHTTPStatusCode = attribute.Key("http.status_code")
	AttrHTTPRoute      = attribute.Key("http.route")
	AttrDBOperation    = attribute.Key("db.operation")
	AttrDBTable        = attribute.Key("db.table")
	AttrDBState        = attribute.Key("db.pool.state")
)

// Latency bucket boundaries in seconds
var (
	HTTPDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	DBDurationBuckets   = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
)

// Instruments creates instruments on one meter. The first failure is kept
// and later calls become no-ops, so a constructor declares every instrument
// and checks Err once.
//
//	in := telemetry.NewInstruments(meter)
//	total := in.Counter("fulfillment_requests_total", "...", "{requests}")
//	if err := in.Err(); err != nil { ... }
type Instruments struct {
	meter metric.Meter
	err   error
}

// NewInstruments returns a builder over meter. A nil meter fails every
// instrument with ErrMeterNil.
func NewInstruments(meter metric.Meter) *Instruments {
	in := &Instruments{meter: meter}
	if meter == nil {
		in.err = ErrMeterNil
	}
	return in
}

// Err returns the first instrument creation failure
func (in *Instruments) Err() error {
	return in.err
}

func (in *Instruments) fail(name string, err error) bool {
	if err != nil && in.err == nil {
		in.err = fmt.Errorf("create instrument %s: %w", name, err)
	}
	return in.err != nil
}

// Counter wraps a monotonic int64 instrument
type Counter struct {
	c metric.Int64Counter
}

// Counter declares a monotonic counter
func (in *Instruments) Counter(name, description, unit string) *Counter {
	if in.err != nil {
		return nil
	}
	c, err := in.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if in.fail(name, err) {
		return nil
	}
	return &Counter{c: c}
}

// Add adds n
func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	c.c.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Inc adds one
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// Histogram wraps a float64 distribution
type Histogram struct {
	h metric.Float64Histogram
}

// Histogram declares a distribution with explicit bucket boundaries. No
// boundaries keeps the SDK defaults.
func (in *Instruments) Histogram(name, description, unit string, boundaries ...float64) *Histogram {
	if in.err != nil {
		return nil
	}
	opts := []metric.Float64HistogramOption{metric.WithDescription(description), metric.WithUnit(unit)}
	if len(boundaries) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(boundaries...))
	}
	h, err := in.meter.Float64Histogram(name, opts...)
	if in.fail(name, err) {
		return nil
	}
	return &Histogram{h: h}
}

// Record records v
func (h *Histogram) Record(ctx context.Context, v float64, attrs ...attribute.KeyValue) {
	h.h.Record(ctx, v, metric.WithAttributes(attrs...))
}

// RecordDuration records d in seconds
func (h *Histogram) RecordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	h.Record(ctx, d.Seconds(), attrs...)
}

// Gauge wraps a last-value int64 instrument
type Gauge struct {
	g metric.Int64Gauge
}

// Gauge declares a last-value gauge
func (in *Instruments) Gauge(name, description, unit string) *Gauge {
	if in.err != nil {
		return nil
	}
	g, err := in.meter.Int64Gauge(name, metric.WithDescription(description), metric.WithUnit(unit))
	if in.fail(name, err) {
		return nil
	}
	return &Gauge{g: g}
}

// Record sets the current value
func (g *Gauge) Record(ctx context.Context, v int64, attrs ...attribute.KeyValue) {
	g.g.Record(ctx, v, metric.WithAttributes(attrs...))
}

// UpDownCounter declares a counter that may decrease, such as in-flight
// requests
func (in *Instruments) UpDownCounter(name, description, unit string) metric.Int64UpDownCounter {
	if in.err != nil {
		return nil
	}
	c, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if in.fail(name, err) {
		return nil
	}
	return c
}
