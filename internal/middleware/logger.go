package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/guttosm/stockpulse/internal/logger"
)

// RequestLogger logs one structured line per request once it completes.
//
// 5xx responses are logged at error level and 4xx at warn; everything else at info.
// The request_id field comes from RequestID() when it runs first.
//
// Example log output:
//
//	{"level":"info","component":"http","request_id":"123e...","method":"GET","path":"/api/v1/stats","status":200,"latency_ms":3,"message":"http_request"}
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		rid, _ := c.Get(RequestIDKey)

		log := logger.With("http")
		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		default:
			ev = log.Info()
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			ev = ev.Str("errors", errs.String())
		}
		ev.Str("request_id", toString(rid)).
			Str("method", method).
			Str("path", path).
			Int("status", status).
			Int64("latency_ms", time.Since(start).Milliseconds()).
			Str("client_ip", c.ClientIP()).
			Msg("http_request")
	}
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
