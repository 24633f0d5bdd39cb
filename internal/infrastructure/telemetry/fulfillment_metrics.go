// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Attribute keys for fulfillment metrics
var (
	AttrOutcome      = attribute.Key("outcome")
	AttrTransient    = attribute.Key("transient")
	AttrMedicationID = attribute.Key("medication_id")
	AttrFacilityID   = attribute.Key("facility_id")
	AttrReason       = attribute.Key("reason")
)

// FulfillmentDurationBuckets are bucket boundaries for one fulfillment call (seconds).
var FulfillmentDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// FulfillmentMetrics records fulfillment and low-stock alert activity.
// All methods are safe to call on a nil receiver.
type FulfillmentMetrics struct {
	logger *zap.Logger

	requestsTotal     *Counter
	conflictsTotal    *Counter
	lockTimeoutsTotal *Counter
	unitsDepleted     *Counter
	alertsCreated     *Counter
	alertsSuppressed  *Counter
	duration          *Histogram
}

// NewFulfillmentMetrics creates the fulfillment instruments on meter
func NewFulfillmentMetrics(meter metric.Meter, logger *zap.Logger) (*FulfillmentMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	in := NewInstruments(meter)
	fm := &FulfillmentMetrics{
		logger: logger,
		requestsTotal: in.Counter("fulfillment_requests_total",
			"Fulfillment requests by terminal outcome", "{requests}"),
		conflictsTotal: in.Counter("fulfillment_conflicts_total",
			"Commit-time stock conflicts that forced a re-plan", "{conflicts}"),
		lockTimeoutsTotal: in.Counter("fulfillment_lock_timeouts_total",
			"Batch lock acquisitions that timed out", "{timeouts}"),
		unitsDepleted: in.Counter("stock_units_depleted_total",
			"Units removed from batches by fulfillment", "{units}"),
		alertsCreated: in.Counter("stock_alerts_created_total",
			"Low-stock alert records created", "{alerts}"),
		alertsSuppressed: in.Counter("stock_alerts_suppressed_total",
			"Low-stock alert checks suppressed by the dedup window", "{alerts}"),
		duration: in.Histogram("fulfillment_duration_seconds",
			"Time to reach a terminal fulfillment outcome", "s", FulfillmentDurationBuckets...),
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	return fm, nil
}

// RecordOutcome counts one terminal outcome and its latency
func (m *FulfillmentMetrics) RecordOutcome(ctx context.Context, outcome string, transient bool, d time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrOutcome.String(outcome), AttrTransient.Bool(transient)}
	m.requestsTotal.Inc(ctx, attrs...)
	m.duration.RecordDuration(ctx, d, attrs...)
}

// RecordConflict counts a commit-time conflict
func (m *FulfillmentMetrics) RecordConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc(ctx)
}

// RecordLockTimeout counts a lock timeout
func (m *FulfillmentMetrics) RecordLockTimeout(ctx context.Context) {
	if m == nil {
		return
	}
	m.lockTimeoutsTotal.Inc(ctx)
}

// RecordDepleted counts units removed for a medication
func (m *FulfillmentMetrics) RecordDepleted(ctx context.Context, medicationID string, units int64) {
	if m == nil || units <= 0 {
		return
	}
	m.unitsDepleted.Add(ctx, units, AttrMedicationID.String(medicationID))
}

// RecordAlertsCreated counts created alert records
func (m *FulfillmentMetrics) RecordAlertsCreated(ctx context.Context, facilityID string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.alertsCreated.Add(ctx, int64(n), AttrFacilityID.String(facilityID))
}

// RecordAlertSuppressed counts a suppressed alert check
func (m *FulfillmentMetrics) RecordAlertSuppressed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.alertsSuppressed.Inc(ctx, AttrReason.String(reason))
}
