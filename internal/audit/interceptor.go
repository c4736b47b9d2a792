package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusperks/internal/auth"
	"campusperks/internal/metrics"
	"campusperks/pkg/types"
)

// Interceptor 路由级审计拦截器
// 业务处理器成功返回后组装审计记录，自身任何失败都不影响业务响应
type Interceptor struct {
	composer *Composer
	logger   *zap.Logger
}

// NewInterceptor 创建拦截器，logger 为空时静默
func NewInterceptor(composer *Composer, log *zap.Logger) *Interceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Interceptor{composer: composer, logger: log}
}

// Intercept 按路由配置生成审计中间件
// 配置非法时直接 panic，把问题暴露在启动阶段而不是运行期
func (i *Interceptor) Intercept(meta Metadata) gin.HandlerFunc {
	if err := meta.Validate(); err != nil {
		panic(fmt.Sprintf("注册审计路由失败: %v", err))
	}

	if meta.SkipLogging {
		return func(c *gin.Context) {
			c.Next()
			metrics.AuditEventsTotal.WithLabelValues(string(meta.Action), "skipped").Inc()
		}
	}

	return func(c *gin.Context) {
		// 先留存请求体副本，再还给后续处理器
		var bodyBytes []byte
		if c.Request.Body != nil {
			bodyBytes, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}

		writer := newCaptureWriter(c.Writer)
		c.Writer = writer

		c.Next()

		// 失败的业务操作不产生审计记录
		if c.Writer.Status() >= 400 {
			metrics.AuditEventsTotal.WithLabelValues(string(meta.Action), "skipped").Inc()
			return
		}

		i.record(c, meta, bodyBytes, writer.body.Bytes())
	}
}

// record 提取操作镜像并交给组装器，提取过程的 panic 就地吞掉
func (i *Interceptor) record(c *gin.Context, meta Metadata, bodyBytes, respBytes []byte) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("审计提取发生 panic",
				zap.String("action", string(meta.Action)),
				zap.String("path", c.FullPath()),
				zap.Any("panic", r))
			metrics.AuditEventsTotal.WithLabelValues(string(meta.Action), "failed").Inc()
		}
	}()

	in := &OperationInput{
		Body:   parseJSONBody(bodyBytes),
		Params: pathParams(c),
		Query:  c.Request.URL.Query(),
		Ctx:    c,
	}

	kind := KindForMethod(c.Request.Method)
	recordID := resolveRecordID(meta, in, respBytes)
	oldValues, newValues := resolveValues(meta, kind, in)

	var actor *types.ActorView
	if user, ok := auth.GetUserContext(c); ok {
		actor = &types.ActorView{ID: user.UserID, Email: user.Email, Role: user.Role}
	}

	req := RequestInfo{
		IPAddress: clientIP(c),
		UserAgent: c.Request.UserAgent(),
	}

	// 和请求上下文解耦，客户端断开不影响落库
	ctx := context.WithoutCancel(c.Request.Context())
	i.composer.Compose(ctx, kind, meta, actor, req, recordID, oldValues, newValues)
}

// resolveRecordID 解析记录标识
// 配置里声明了哪种提取方式就用哪种，参数缺失时退到约定的 id，
// 再不行就在操作完成后从响应体里找，最后落到占位值
func resolveRecordID(meta Metadata, in *OperationInput, respBytes []byte) string {
	switch {
	case meta.RecordIDParam != "":
		if v, ok := in.Lookup(meta.RecordIDParam); ok {
			return v
		}
		if v, ok := in.Lookup("id"); ok {
			return v
		}
	case meta.GetRecordID != nil:
		if v := meta.GetRecordID(in); v != "" {
			return v
		}
	default:
		if v, ok := in.Lookup("id"); ok {
			return v
		}
	}

	if v := idFromResponse(respBytes); v != "" {
		return v
	}
	return RecordIDUnknown
}

// resolveValues 解析新旧快照
// 旧值只能来自显式声明的提取函数，新值默认取请求体
func resolveValues(meta Metadata, kind OperationKind, in *OperationInput) (oldValues, newValues map[string]any) {
	if meta.GetOldValues != nil {
		oldValues = meta.GetOldValues(in)
	}
	if meta.GetNewValues != nil {
		newValues = meta.GetNewValues(in)
	} else if kind == KindCreate || kind == KindUpdate {
		newValues = in.Body
	}
	return oldValues, newValues
}

// parseJSONBody 尝试把请求体解析成对象，非对象或解析失败返回 nil
func parseJSONBody(bodyBytes []byte) map[string]any {
	if len(bodyBytes) == 0 {
		return nil
	}
	var body map[string]any
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		return nil
	}
	return body
}

// pathParams 把路径参数转成查找表
func pathParams(c *gin.Context) map[string]string {
	if len(c.Params) == 0 {
		return nil
	}
	params := make(map[string]string, len(c.Params))
	for _, p := range c.Params {
		params[p.Key] = p.Value
	}
	return params
}

// idFromResponse 从响应体里找记录标识
// 支持顶层 id 和统一响应包里的 data.id
func idFromResponse(respBytes []byte) string {
	if len(respBytes) == 0 {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(respBytes, &payload); err != nil {
		return ""
	}
	if v := stringifyID(payload["id"]); v != "" {
		return v
	}
	if data, ok := payload["data"].(map[string]any); ok {
		if v := stringifyID(data["id"]); v != "" {
			return v
		}
	}
	return ""
}

// clientIP 解析客户端来源地址
// 依次取 X-Forwarded-For 首个条目、X-Real-IP、连接对端地址
func clientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(c.GetHeader("X-Real-IP")); realIP != "" {
		return realIP
	}
	return c.ClientIP()
}
