package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/medrx/backend/internal/infrastructure/logger"
	"github.com/medrx/backend/internal/interfaces/http/dto"
)

const (
	// HeaderActorID names the staff member performing the request
	HeaderActorID = "X-Actor-ID"
	// ActorIDKey is the gin context key holding the parsed actor
	ActorIDKey = "actor_id"
)

// Actor parses X-Actor-ID. A malformed header is rejected with 400; a
// missing one passes through and mutating handlers insist on it.
// A valid actor is attached to the gin context, the request context and
// the request-scoped logger.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderActorID)
		if raw == "" {
			c.Next()
			return
		}
		actorID, err := uuid.Parse(raw)
		if err != nil || actorID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.Failure(
				dto.ErrCodeInvalidActor,
				HeaderActorID+" must be a UUID",
				GetRequestID(c),
			))
			return
		}

		c.Set(ActorIDKey, actorID)
		ctx := logger.WithActorID(c.Request.Context(), actorID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(logger.GinLoggerKey, logger.FromContext(ctx))
		c.Next()
	}
}

// GetActorID returns the actor set by Actor
func GetActorID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ActorIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
