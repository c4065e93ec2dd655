package middleware

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a 500 and logs it through logger.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logger.Error("panic recovered",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
			zap.Stack("stack"))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	})
}

// Stack returns the request middleware in mount order. Recovery sits inside
// the logger and metrics so a recovered panic is still logged and counted.
func Stack(logger *zap.Logger, metrics *HTTPMetrics) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		Logger(logger),
		metrics.Handler(),
		Recovery(logger),
	}
}
