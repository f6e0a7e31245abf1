package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
)

// RequestMetricsMiddleware records every request under its route pattern,
// or the raw path for unmatched requests.
func RequestMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
