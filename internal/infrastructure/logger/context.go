package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	requestIDKey
	actorIDKey
	fulfillmentRequestIDKey
)

// WithContext attaches l to ctx. The attached logger stays untagged;
// correlation fields are added when it is read back.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger attached to ctx tagged with the
// correlation fields of ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	return L(ctx).Zap()
}

// WithRequestID stores the HTTP request ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithActorID stores the acting staff member
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey, actorID)
}

// WithFulfillmentRequestID stores the fulfillment request being processed.
// SQL and event logs written under ctx carry it.
func WithFulfillmentRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, fulfillmentRequestIDKey, id)
}

// GetRequestID returns the HTTP request ID stored in ctx
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// GetActorID returns the actor stored in ctx
func GetActorID(ctx context.Context) string {
	return stringValue(ctx, actorIDKey)
}

// GetFulfillmentRequestID returns the fulfillment request stored in ctx
func GetFulfillmentRequestID(ctx context.Context) string {
	return stringValue(ctx, fulfillmentRequestIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}

// Fields returns the correlation fields found in ctx: trace and span IDs of
// the active span plus whichever of request, actor and fulfillment request
// are set.
func Fields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	var fields []zap.Field
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if v := GetRequestID(ctx); v != "" {
		fields = append(fields, zap.String("request_id", v))
	}
	if v := GetActorID(ctx); v != "" {
		fields = append(fields, zap.String("actor_id", v))
	}
	if v := GetFulfillmentRequestID(ctx); v != "" {
		fields = append(fields, zap.String("fulfillment_request_id", v))
	}
	return fields
}

// ContextLogger logs with the correlation fields of its context.
//
//	logger.WithLogger(ctx, s.logger).With(zap.String("batch_id", id)).Zap().Warn(...)
type ContextLogger struct {
	ctx    context.Context
	logger *zap.Logger
}

// L returns a ContextLogger over the logger attached to ctx
func L(ctx context.Context) *ContextLogger {
	var l *zap.Logger
	if ctx != nil {
		l, _ = ctx.Value(loggerKey).(*zap.Logger)
	}
	return WithLogger(ctx, l)
}

// WithLogger returns a ContextLogger over l
func WithLogger(ctx context.Context, l *zap.Logger) *ContextLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ContextLogger{ctx: ctx, logger: l}
}

// With adds fields to the underlying logger
func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	return &ContextLogger{ctx: cl.ctx, logger: cl.logger.With(fields...)}
}

// Zap returns the underlying logger with the context fields applied
func (cl *ContextLogger) Zap() *zap.Logger {
	return cl.logger.With(Fields(cl.ctx)...)
}

// Debug logs at debug level
func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) { cl.Zap().Debug(msg, fields...) }

// Info logs at info level
func (cl *ContextLogger) Info(msg string, fields ...zap.Field) { cl.Zap().Info(msg, fields...) }

// Warn logs at warn level
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field) { cl.Zap().Warn(msg, fields...) }

// Error logs at error level
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) { cl.Zap().Error(msg, fields...) }
