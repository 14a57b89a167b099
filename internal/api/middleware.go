package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// requestLogger logs every request at debug and failures at warn.
func requestLogger() gin.HandlerFunc {
	log := slog.Default().With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
			"ip", c.ClientIP(),
		}
		if status >= 500 {
			log.Warn("Request failed", attrs...)
			return
		}
		log.Debug("Request served", attrs...)
	}
}
