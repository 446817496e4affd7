package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/transcript-qa/internal/metrics"
)

// Metrics 记录请求数量和耗时
// 使用路由模板作为路径标签，未匹配的路由记为 "unmatched"
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
