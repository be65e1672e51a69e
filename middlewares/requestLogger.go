package middlewares

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"civicanchor-be/logger"
)

// RequestLogger writes one debug line per request.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	log = logger.OrDefault(log)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http_access",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}
