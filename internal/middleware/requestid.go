package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/guttosm/stockpulse/internal/logger"
)

const (
	RequestIDKey    = "request_id"
	RequestIDHeader = "X-Request-ID"
)

// RequestID is a Gin middleware that tags each request with a UUID.
//
// Behavior:
//   - Reuses the caller's X-Request-ID when it is a valid UUID, otherwise generates one.
//   - Stores it in the Gin context under "request_id" and echoes it in the response header.
//   - Attaches a zerolog logger carrying the id to the request context,
//     retrievable with zerolog.Ctx(c.Request.Context()).
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		c.Set(RequestIDKey, id)
		c.Writer.Header().Set(RequestIDHeader, id)

		reqLog := logger.With("http").With().Str(RequestIDKey, id).Logger()
		c.Request = c.Request.WithContext(reqLog.WithContext(c.Request.Context()))

		c.Next()
	}
}
