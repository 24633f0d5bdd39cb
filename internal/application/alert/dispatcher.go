// Package alert decides when a low-stock alert is newly warranted and
// creates the role-targeted records for it.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/alert"
	"github.com/medrx/backend/internal/domain/inventory"
	"github.com/medrx/backend/internal/domain/shared"
	"github.com/medrx/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Suppression reasons reported in DispatchResult
const (
	SkipAboveThreshold = "above_threshold"
	SkipRecentAlert    = "recent_alert"
	SkipClaimHeld      = "claim_held"
	SkipDuplicateKey   = "duplicate_key"
)

// Config holds dispatcher settings
type Config struct {
	// Window is the rolling dedup window, 24h by default
	Window time.Duration
	// Audiences receive one record each per alert
	Audiences []alert.Audience
}

// DefaultConfig returns the default dispatcher configuration
func DefaultConfig() Config {
	return Config{
		Window:    24 * time.Hour,
		Audiences: []alert.Audience{alert.AudienceAdmin, alert.AudienceInventoryStaff},
	}
}

// BatchFlagWriter persists the per-batch alert-sent flag
type BatchFlagWriter interface {
	SetAlertSent(ctx context.Context, id uuid.UUID, sent bool) error
}

// DispatchResult describes what MaybeAlert did
type DispatchResult struct {
	Created    []*alert.LowStockAlert
	Suppressed bool
	Reason     string
}

// Dispatcher raises deduplicated low-stock alerts
type Dispatcher struct {
	repo    alert.Repository
	flags   BatchFlagWriter
	dedup   shared.DedupStore
	sink    alert.NotificationSink
	clock   shared.Clock
	config  Config
	logger  *zap.Logger
	metrics *telemetry.FulfillmentMetrics
	tracer  trace.Tracer
}

// NewDispatcher creates a dispatcher over the alert history repository
func NewDispatcher(repo alert.Repository, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if len(cfg.Audiences) == 0 {
		cfg.Audiences = DefaultConfig().Audiences
	}
	return &Dispatcher{
		repo:   repo,
		clock:  shared.SystemClock{},
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("medrx/alert"),
	}
}

// WithBatchFlags sets where the alert-sent flag is recorded
func (d *Dispatcher) WithBatchFlags(flags BatchFlagWriter) *Dispatcher {
	d.flags = flags
	return d
}

// WithDedupStore sets the claim store used to narrow insert races
func (d *Dispatcher) WithDedupStore(store shared.DedupStore) *Dispatcher {
	d.dedup = store
	return d
}

// WithNotificationSink sets the delivery sink for created alerts
func (d *Dispatcher) WithNotificationSink(sink alert.NotificationSink) *Dispatcher {
	d.sink = sink
	return d
}

// WithClock overrides the wall clock
func (d *Dispatcher) WithClock(clock shared.Clock) *Dispatcher {
	d.clock = clock
	return d
}

// WithMetrics sets the metrics recorder
func (d *Dispatcher) WithMetrics(m *telemetry.FulfillmentMetrics) *Dispatcher {
	d.metrics = m
	return d
}

// MaybeAlert creates alert records for tr unless an alert with the same
// (medication, facility) key was created within the window.
func (d *Dispatcher) MaybeAlert(ctx context.Context, tr alert.Trigger) (*DispatchResult, error) {
	ctx, span := d.tracer.Start(ctx, "alert.MaybeAlert", trace.WithAttributes(
		telemetry.SpanAttrMedicationID.String(tr.MedicationID.String()),
		telemetry.SpanAttrFacilityID.String(tr.FacilityID.String()),
		telemetry.SpanAttrQuantity.Int64(tr.Quantity),
	))
	defer span.End()

	if !inventory.NeedsReorderAlert(tr.Quantity, tr.ReorderThreshold) {
		return d.suppressed(ctx, SkipAboveThreshold), nil
	}

	now := d.clock.Now()
	key := alert.DedupKey(tr.MedicationID, tr.FacilityID)

	recent, err := d.repo.ExistsSince(ctx, key, now.Add(-d.config.Window))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("check alert history: %w", err)
	}
	if recent {
		return d.suppressed(ctx, SkipRecentAlert), nil
	}

	claimed := false
	if d.dedup != nil {
		ok, err := d.dedup.Claim(ctx, key, d.config.Window)
		switch {
		case err != nil:
			// history query above already passed; the unique index still guards inserts
			d.logger.Warn("alert dedup claim failed, continuing without it",
				zap.String("dedup_key", key),
				zap.Error(err),
			)
		case !ok:
			return d.suppressed(ctx, SkipClaimHeld), nil
		default:
			claimed = true
		}
	}

	alerts := make([]*alert.LowStockAlert, 0, len(d.config.Audiences))
	for _, audience := range d.config.Audiences {
		a, err := alert.NewLowStockAlert(tr, audience, now, d.config.Window)
		if err != nil {
			d.releaseClaim(ctx, key, claimed)
			return nil, err
		}
		alerts = append(alerts, a)
	}

	if err := d.repo.Create(ctx, alerts...); err != nil {
		if errors.Is(err, shared.ErrDuplicateAlert) {
			return d.suppressed(ctx, SkipDuplicateKey), nil
		}
		d.releaseClaim(ctx, key, claimed)
		span.RecordError(err)
		return nil, fmt.Errorf("create alerts: %w", err)
	}

	d.logger.Warn("low stock alert raised",
		zap.String("dedup_key", key),
		zap.String("batch_id", tr.BatchID.String()),
		zap.Int64("quantity", tr.Quantity),
		zap.Int64("reorder_threshold", tr.ReorderThreshold),
		zap.Int("records", len(alerts)),
	)
	d.metrics.RecordAlertsCreated(ctx, tr.FacilityID.String(), len(alerts))

	if d.flags != nil && tr.BatchID != uuid.Nil {
		if err := d.flags.SetAlertSent(ctx, tr.BatchID, true); err != nil {
			d.logger.Error("failed to set batch alert flag",
				zap.String("batch_id", tr.BatchID.String()),
				zap.Error(err),
			)
		}
	}

	d.deliver(ctx, alerts)

	return &DispatchResult{Created: alerts}, nil
}

// deliver hands each record to the sink. Failures are logged, never returned.
func (d *Dispatcher) deliver(ctx context.Context, alerts []*alert.LowStockAlert) {
	if d.sink == nil {
		return
	}
	for _, a := range alerts {
		err := d.sink.Send(ctx, alert.Notification{
			Target:    a.Audience.String(),
			Title:     a.Title,
			Message:   a.Message,
			ActionRef: a.ActionRef(),
		})
		if err != nil {
			d.logger.Error("failed to deliver low stock alert",
				zap.String("alert_id", a.ID.String()),
				zap.String("audience", a.Audience.String()),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) suppressed(ctx context.Context, reason string) *DispatchResult {
	d.metrics.RecordAlertSuppressed(ctx, reason)
	telemetry.AddEvent(trace.SpanFromContext(ctx), "alert.suppressed", telemetry.AttrReason.String(reason))
	d.logger.Debug("low stock alert suppressed", zap.String("reason", reason))
	return &DispatchResult{Suppressed: true, Reason: reason}
}

func (d *Dispatcher) releaseClaim(ctx context.Context, key string, claimed bool) {
	if !claimed {
		return
	}
	if err := d.dedup.Release(ctx, key); err != nil {
		d.logger.Warn("failed to release alert claim", zap.String("dedup_key", key), zap.Error(err))
	}
}

// Recent returns alerts created within the last window
func (d *Dispatcher) Recent(ctx context.Context, since time.Time, filter shared.Filter) ([]alert.LowStockAlert, int64, error) {
	if since.IsZero() {
		since = d.clock.Now().Add(-d.config.Window)
	}
	return d.repo.ListSince(ctx, since, filter)
}

// EventTypes returns the event types this handler is interested in
func (d *Dispatcher) EventTypes() []string {
	return []string{inventory.EventTypeStockBelowThreshold}
}

// Handle processes a StockBelowThresholdEvent published after commit
func (d *Dispatcher) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*inventory.StockBelowThresholdEvent)
	if !ok {
		d.logger.Error("unexpected event type",
			zap.String("expected", inventory.EventTypeStockBelowThreshold),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			inventory.EventTypeStockBelowThreshold, event.EventType())
	}

	_, err := d.MaybeAlert(ctx, TriggerFromEvent(e))
	return err
}

// TriggerFromEvent converts a below-threshold event into a dispatcher trigger
func TriggerFromEvent(e *inventory.StockBelowThresholdEvent) alert.Trigger {
	return alert.Trigger{
		BatchID:          e.BatchID,
		FacilityID:       e.FacilityID,
		MedicationID:     e.MedicationID,
		MedicationName:   e.MedicationName,
		Quantity:         e.Quantity,
		ReorderThreshold: e.ReorderThreshold,
	}
}

var _ shared.EventHandler = (*Dispatcher)(nil)
