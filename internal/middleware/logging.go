package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs one line per request. Requests slower than slow, or
// answered with a server error, log at WARN; the rest at DEBUG.
func RequestLogger(logger *slog.Logger, slow time.Duration) gin.HandlerFunc {
	logger = logger.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration_ms", float64(duration.Microseconds()) / 1000.0,
		}
		if id, ok := GetUserID(c); ok {
			attrs = append(attrs, "user_id", id)
		}

		switch {
		case status >= 500:
			logger.Warn("request_failed", attrs...)
		case duration >= slow:
			logger.Warn("slow_request", attrs...)
		default:
			logger.Debug("request", attrs...)
		}
	}
}
