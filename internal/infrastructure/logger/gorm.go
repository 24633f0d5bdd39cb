package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

const (
	defaultSlowThreshold = 200 * time.Millisecond
	defaultMaxSQLLength  = 2048

	pgLockNotAvailable = "55P03"
)

// GormLogger writes GORM statement logs through zap with the correlation
// fields of the statement's context. Statements that give up waiting for a
// row lock log at warn: the fulfillment path expects and retries them.
type GormLogger struct {
	log           *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
	maxSQLLength  int
}

// GormLoggerOption configures a GormLogger
type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the duration above which a statement is slow.
// Zero disables slow statement logging.
func WithSlowThreshold(d time.Duration) GormLoggerOption {
	return func(g *GormLogger) {
		g.slowThreshold = d
	}
}

// WithMaxSQLLength truncates logged SQL. Zero logs statements in full.
func WithMaxSQLLength(n int) GormLoggerOption {
	return func(g *GormLogger) {
		g.maxSQLLength = n
	}
}

// NewGormLogger creates a GORM logger backed by l
func NewGormLogger(l *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	g := &GormLogger{
		log:           l.Named("gorm"),
		level:         level,
		slowThreshold: defaultSlowThreshold,
		maxSQLLength:  defaultMaxSQLLength,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// LogMode implements gormlogger.Interface
func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *g
	clone.level = level
	return &clone
}

// Info implements gormlogger.Interface
func (g *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Info {
		g.log.With(Fields(ctx)...).Sugar().Infof(msg, data...)
	}
}

// Warn implements gormlogger.Interface
func (g *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Warn {
		g.log.With(Fields(ctx)...).Sugar().Warnf(msg, data...)
	}
}

// Error implements gormlogger.Interface
func (g *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Error {
		g.log.With(Fields(ctx)...).Sugar().Errorf(msg, data...)
	}
}

// Trace implements gormlogger.Interface
func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := append(Fields(ctx),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", g.truncate(sql)),
	)

	switch {
	case errors.Is(err, gormlogger.ErrRecordNotFound):
		// repositories answer misses with ErrNotFound
		if g.level >= gormlogger.Info {
			g.log.Debug("SQL query", fields...)
		}
	case err != nil && IsLockWait(err):
		if g.level >= gormlogger.Warn {
			g.log.Warn("SQL lock wait exceeded", append(fields, zap.Error(err))...)
		}
	case err != nil:
		if g.level >= gormlogger.Error {
			g.log.Error("SQL error", append(fields, zap.Error(err))...)
		}
	case g.slowThreshold > 0 && elapsed > g.slowThreshold:
		if g.level >= gormlogger.Warn {
			g.log.Warn("slow SQL", append(fields, zap.Duration("threshold", g.slowThreshold))...)
		}
	case g.level >= gormlogger.Info:
		g.log.Debug("SQL query", fields...)
	}
}

func (g *GormLogger) truncate(sql string) string {
	if g.maxSQLLength <= 0 || len(sql) <= g.maxSQLLength {
		return sql
	}
	return sql[:g.maxSQLLength] + "...(truncated)"
}

// IsLockWait reports whether err ended a wait for a row lock
func IsLockWait(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgLockNotAvailable
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// MapGormLogLevel maps the configured log level to a GORM level. Debug and
// info log every statement.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
