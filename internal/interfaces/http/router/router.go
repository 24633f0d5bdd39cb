package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/medrx/backend/internal/infrastructure/logger"
	"github.com/medrx/backend/internal/interfaces/http/dto"
	"github.com/medrx/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// APIPrefix is where the fulfillment, batch and alert routes are mounted
const APIPrefix = "/api/v1"

// Routes is implemented by every handler that serves part of the API
type Routes interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Config configures the middleware chain of New
type Config struct {
	Logger       *zap.Logger
	Meter        metric.Meter
	Tracing      middleware.TracingConfig
	CORS         middleware.CORSConfig
	MaxBodyBytes int64
	// Health serves GET /health outside the API prefix when set
	Health gin.HandlerFunc
}

// New builds the engine and mounts routes under APIPrefix.
//
// Order matters: the request ID must exist before the logger and span pick
// it up, and the actor is parsed inside the span.
func New(cfg Config, routes ...Routes) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		logger.GinMiddleware(log),
		middleware.Tracing(cfg.Tracing),
		middleware.Actor(),
		middleware.SpanEnricher(),
		middleware.HTTPMetrics(cfg.Meter),
		middleware.Secure(),
		middleware.CORSWithConfig(cfg.CORS),
	)
	if cfg.MaxBodyBytes > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	}
	engine.NoRoute(notFound)

	if cfg.Health != nil {
		engine.GET("/health", cfg.Health)
	}
	Mount(engine, APIPrefix, routes...)
	return engine
}

// Mount registers routes on a group at prefix
func Mount(engine *gin.Engine, prefix string, routes ...Routes) *gin.RouterGroup {
	group := engine.Group(prefix)
	for _, r := range routes {
		r.RegisterRoutes(group)
	}
	return group
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, dto.Failure(
		dto.ErrCodeNotFound,
		"No route for "+c.Request.Method+" "+c.Request.URL.Path,
		middleware.GetRequestID(c),
	))
}
