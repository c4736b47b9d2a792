package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"campusperks/internal/logger"
)

// HeaderRequestID 请求 ID 头
const HeaderRequestID = "X-Request-ID"

// RequestIDMiddleware 请求 ID 中间件
// 为每个请求生成唯一的请求 ID，支持上游透传
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		// 注入到 context.Context，日志通过 logger.WithContext 自动带上
		ctx := logger.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)

		// 设置响应头
		c.Header(HeaderRequestID, requestID)

		c.Next()
	}
}
