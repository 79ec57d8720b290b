package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// skipPaths 不参与统计的路径，避免自我监控
var skipPaths = map[string]struct{}{
	"/metrics": {},
	"/healthz": {},
}

// PrometheusMiddleware Prometheus 指标收集中间件
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, skip := skipPaths[c.Request.URL.Path]; skip {
			c.Next()
			return
		}

		APIRequestsInFlight.Inc()
		start := time.Now()

		c.Next()

		APIRequestsInFlight.Dec()
		path := routeTemplate(c)
		APIRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		APIRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// routeTemplate 优先使用路由模板（如 /api/admin/quotas/:userId），防止标签基数爆炸
func routeTemplate(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return "unmatched"
}
