// Package middleware provides the gin middleware chain of the medrx API.
package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/medrx/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig configures the otelgin server spans
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	SkipPaths   []string // exact paths that never start a span, such as /health
}

func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "medrx-backend",
		Enabled:     true,
		SkipPaths:   []string{"/health"},
	}
}

// Tracing starts a server span per request through otelgin
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	skip := slices.Clone(cfg.SkipPaths)
	return otelgin.Middleware(cfg.ServiceName, otelgin.WithFilter(func(r *http.Request) bool {
		return !slices.Contains(skip, r.URL.Path)
	}))
}

// SpanEnricher runs inside the server span, after RequestID and Actor, and
// tags it with the request ID, the actor and the response status. Only 5xx
// fails the span; a rejected fulfillment is an answer, not a fault.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		if id := GetRequestID(c); id != "" {
			span.SetAttributes(telemetry.SpanAttrHTTPRequest.String(id))
		}
		if actor, ok := GetActorID(c); ok {
			span.SetAttributes(telemetry.SpanAttrActorID.String(actor.String()))
		}

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(telemetry.AttrHTTPStatusCode.Int(status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
