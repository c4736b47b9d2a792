package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// 自身探针不计入业务指标
var skipPaths = map[string]struct{}{
	"/metrics": {},
	"/health":  {},
	"/ready":   {},
}

// PrometheusMiddleware HTTP 指标收集中间件
// 记录每个请求的计数、延迟、请求和响应体大小
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, skip := skipPaths[c.Request.URL.Path]; skip {
			c.Next()
			return
		}

		start := time.Now()
		requestSize := c.Request.ContentLength

		APIInFlightRequests.Inc()
		c.Next()
		APIInFlightRequests.Dec()

		// 标签用路由模板而不是真实路径，避免 :id 参数把基数打爆
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		APIRequestsTotal.WithLabelValues(method, path, status).Inc()
		APIRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())

		if requestSize > 0 {
			APIRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
		}
		if respSize := c.Writer.Size(); respSize >= 0 {
			APIResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
		}
	}
}
