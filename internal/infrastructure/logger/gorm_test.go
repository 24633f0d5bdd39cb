package logger

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGorm(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func statement(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_Defaults(t *testing.T) {
	g, _ := newObservedGorm(gormlogger.Warn)

	assert.Equal(t, gormlogger.Warn, g.level)
	assert.Equal(t, defaultSlowThreshold, g.slowThreshold)
	assert.Equal(t, defaultMaxSQLLength, g.maxSQLLength)

	g, _ = newObservedGorm(gormlogger.Warn, WithSlowThreshold(time.Second), WithMaxSQLLength(0))
	assert.Equal(t, time.Second, g.slowThreshold)
	assert.Zero(t, g.maxSQLLength)
}

func TestGormLogger_LogModeReturnsCopy(t *testing.T) {
	g, _ := newObservedGorm(gormlogger.Warn)

	silent := g.LogMode(gormlogger.Silent)

	assert.Equal(t, gormlogger.Silent, silent.(*GormLogger).level)
	assert.Equal(t, gormlogger.Warn, g.level)
}

func TestGormLogger_Trace(t *testing.T) {
	lockErr := fmt.Errorf("lock batch: %w", &pgconn.PgError{Code: "55P03", Message: "could not obtain lock"})

	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		elapsed time.Duration
		err     error
		wantMsg string
		wantLvl zapcore.Level
	}{
		{"query at info", gormlogger.Info, 0, nil, "SQL query", zapcore.DebugLevel},
		{"query below info", gormlogger.Warn, 0, nil, "", 0},
		{"not found at info", gormlogger.Info, 0, gormlogger.ErrRecordNotFound, "SQL query", zapcore.DebugLevel},
		{"not found at warn", gormlogger.Warn, 0, gormlogger.ErrRecordNotFound, "", 0},
		{"lock wait", gormlogger.Warn, 0, lockErr, "SQL lock wait exceeded", zapcore.WarnLevel},
		{"lock timeout via context", gormlogger.Warn, 0, context.DeadlineExceeded, "SQL lock wait exceeded", zapcore.WarnLevel},
		{"lock wait at error", gormlogger.Error, 0, lockErr, "", 0},
		{"other error", gormlogger.Error, 0, assert.AnError, "SQL error", zapcore.ErrorLevel},
		{"slow", gormlogger.Warn, time.Second, nil, "slow SQL", zapcore.WarnLevel},
		{"silent", gormlogger.Silent, time.Second, assert.AnError, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, recorded := newObservedGorm(tt.level)

			g.Trace(context.Background(), time.Now().Add(-tt.elapsed), statement("SELECT 1", 1), tt.err)

			if tt.wantMsg == "" {
				assert.Zero(t, recorded.Len())
				return
			}
			entries := recorded.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantMsg, entries[0].Message)
			assert.Equal(t, tt.wantLvl, entries[0].Level)
			assert.Equal(t, "SELECT 1", entries[0].ContextMap()["sql"])
		})
	}
}

func TestGormLogger_TraceCarriesContextFields(t *testing.T) {
	g, recorded := newObservedGorm(gormlogger.Info)
	ctx := WithFulfillmentRequestID(WithActorID(context.Background(), "actor-1"), "ful-1")

	g.Trace(ctx, time.Now(), statement("UPDATE batches SET quantity = 3", 1), nil)

	require.Equal(t, 1, recorded.Len())
	got := recorded.All()[0].ContextMap()
	assert.Equal(t, "actor-1", got["actor_id"])
	assert.Equal(t, "ful-1", got["fulfillment_request_id"])
	assert.EqualValues(t, 1, got["rows"])
	assert.Equal(t, "gorm", recorded.All()[0].LoggerName)
}

func TestGormLogger_TruncatesLongSQL(t *testing.T) {
	g, recorded := newObservedGorm(gormlogger.Info, WithMaxSQLLength(10))

	g.Trace(context.Background(), time.Now(), statement(strings.Repeat("x", 50), 0), nil)

	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "xxxxxxxxxx...(truncated)", recorded.All()[0].ContextMap()["sql"])
}

func TestGormLogger_SlowThresholdDisabled(t *testing.T) {
	g, recorded := newObservedGorm(gormlogger.Warn, WithSlowThreshold(0))

	g.Trace(context.Background(), time.Now().Add(-time.Hour), statement("SELECT 1", 1), nil)

	assert.Zero(t, recorded.Len())
}

func TestGormLogger_MessageMethods(t *testing.T) {
	g, recorded := newObservedGorm(gormlogger.Warn)
	ctx := WithRequestID(context.Background(), "req-1")

	g.Info(ctx, "migrated %d tables", 3)
	g.Warn(ctx, "deprecated %s", "column")
	g.Error(ctx, "failed: %v", assert.AnError)

	entries := recorded.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "deprecated column", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestIsLockWait(t *testing.T) {
	assert.True(t, IsLockWait(&pgconn.PgError{Code: "55P03"}))
	assert.True(t, IsLockWait(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.False(t, IsLockWait(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsLockWait(assert.AnError))
	assert.False(t, IsLockWait(nil))
}

func TestMapGormLogLevel(t *testing.T) {
	tests := map[string]gormlogger.LogLevel{
		"silent": gormlogger.Silent,
		"error":  gormlogger.Error,
		"warn":   gormlogger.Warn,
		"INFO":   gormlogger.Info,
		"debug":  gormlogger.Info,
		"":       gormlogger.Warn,
	}
	for in, want := range tests {
		assert.Equal(t, want, MapGormLogLevel(in), in)
	}
}
