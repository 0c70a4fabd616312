package ratelimit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	obsmetrics "github.com/vylinhq/vylin/internal/observability/metrics"
)

// Middleware rejects clients that exceed the perimeter budget. A nil
// limiter passes everything through.
func Middleware(limiter *PerimeterLimiter, metrics *obsmetrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.AllowClient(c.Request.Context(), c.ClientIP()) {
			if metrics != nil {
				metrics.RecordRateLimitDenied(c.Request.Context(), c.FullPath())
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
