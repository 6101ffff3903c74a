package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/guttosm/stockpulse/internal/domain/dto"
	"github.com/guttosm/stockpulse/internal/logger"
)

// RecoveryMiddleware recovers from panics in later handlers, logs the stack
// and answers 500 with a dto.ErrorResponse.
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				rid, _ := c.Get(RequestIDKey)
				log := logger.With("http")
				log.Error().
					Str("request_id", toString(rid)).
					Str("path", c.Request.URL.Path).
					Str("panic", fmt.Sprintf("%v", r)).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				c.AbortWithStatusJSON(http.StatusInternalServerError,
					dto.NewErrorResponse("Internal server error", fmt.Errorf("%v", r)))
			}
		}()

		c.Next()
	}
}
