package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBConfig controls gorm instrumentation
type DBConfig struct {
	TraceEnabled    bool
	LogFullSQL      bool          // include bind values in spans, never in production
	SlowQueryThresh time.Duration // default 200ms
	DBSystem        string        // "postgresql" or "sqlite"
}

const queryStartKey = "medrx:query_start"

type dbInstrumentation struct {
	cfg      DBConfig
	logger   *zap.Logger
	duration *Histogram
	errors   *Counter
}

// InstrumentDB registers otelgorm tracing (when enabled), query duration and
// error metrics, slow query logging and connection pool gauges on db.
func InstrumentDB(db *gorm.DB, meter metric.Meter, cfg DBConfig, logger *zap.Logger) error {
	if meter == nil {
		return ErrMeterNil
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}

	if cfg.TraceEnabled {
		opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
		if !cfg.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return fmt.Errorf("register otelgorm: %w", err)
		}
	}

	instruments := NewInstruments(meter)
	in := &dbInstrumentation{
		cfg:    cfg,
		logger: logger,
		duration: instruments.Histogram("db_query_duration_seconds",
			"Database statement latency", "s", DBDurationBuckets...),
		errors: instruments.Counter("db_query_errors_total", "Failed database statements", "{errors}"),
	}
	if err := instruments.Err(); err != nil {
		return err
	}
	if err := in.registerCallbacks(db); err != nil {
		return err
	}
	return registerPoolGauges(db, meter)
}

func (in *dbInstrumentation) registerCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	steps := []struct {
		name   string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, s := range steps {
		if err := s.before("medrx_metrics:before_"+s.name, in.before); err != nil {
			return err
		}
		op := s.name
		if err := s.after("medrx_metrics:after_"+s.name, func(db *gorm.DB) { in.after(db, op) }); err != nil {
			return err
		}
	}
	return nil
}

func (in *dbInstrumentation) before(db *gorm.DB) {
	db.InstanceSet(queryStartKey, time.Now())
}

func (in *dbInstrumentation) after(db *gorm.DB, operation string) {
	v, ok := db.InstanceGet(queryStartKey)
	if !ok {
		return
	}
	start, ok := v.(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(start)
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if operation == "raw" {
		operation = statementVerb(db.Statement.SQL.String())
	}
	op, table := AttrDBOperation.String(operation), AttrDBTable.String(db.Statement.Table)

	in.duration.RecordDuration(ctx, elapsed, op, table)
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		in.errors.Inc(ctx, op, table)
	}
	if elapsed >= in.cfg.SlowQueryThresh {
		fields := []zap.Field{
			zap.String("operation", operation),
			zap.String("table", db.Statement.Table),
			zap.Duration("elapsed", elapsed),
			zap.Int64("rows", db.RowsAffected),
		}
		if in.cfg.LogFullSQL {
			fields = append(fields, zap.String("sql", db.Statement.SQL.String()))
		}
		in.logger.Warn("slow query", fields...)
	}
}

// statementVerb returns the lower-cased first keyword of a SQL statement
func statementVerb(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "raw"
	}
	return strings.ToLower(fields[0])
}

func registerPoolGauges(db *gorm.DB, meter metric.Meter) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	conns, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Connections in the database pool by state"),
		metric.WithUnit("{connections}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create pool gauge: %w", err)
	}
	waits, err := meter.Int64ObservableCounter("db_pool_wait_total",
		metric.WithDescription("Connections waited for"),
		metric.WithUnit("{waits}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create pool wait counter: %w", err)
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := sqlDB.Stats()
		o.ObserveInt64(conns, int64(s.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(conns, int64(s.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(conns, int64(s.MaxOpenConnections), metric.WithAttributes(AttrDBState.String("max")))
		o.ObserveInt64(waits, s.WaitCount)
		return nil
	}, conns, waits)
	return err
}
