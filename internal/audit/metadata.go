package audit

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
)

// OperationKind 操作动词分类，由 HTTP 方法推导
type OperationKind string

const (
	KindCreate  OperationKind = "CREATE"
	KindUpdate  OperationKind = "UPDATE"
	KindDelete  OperationKind = "DELETE"
	KindGeneric OperationKind = "GENERIC"
)

// KindForMethod 按 HTTP 方法分类操作动词
func KindForMethod(method string) OperationKind {
	switch method {
	case http.MethodPost:
		return KindCreate
	case http.MethodPut, http.MethodPatch:
		return KindUpdate
	case http.MethodDelete:
		return KindDelete
	default:
		return KindGeneric
	}
}

// Metadata 路由级审计配置
// 注册路由时静态声明，运行期不变
type Metadata struct {
	// Action 事件名，必填
	Action Action
	// Table 关联的业务表名
	Table string
	// RecordIDParam 承载记录标识的参数名，依次查路径、查询串、请求体
	RecordIDParam string
	// GetRecordID 自定义记录标识提取
	GetRecordID func(in *OperationInput) string
	// GetOldValues 自定义变更前快照提取
	GetOldValues func(in *OperationInput) map[string]any
	// GetNewValues 自定义变更后数据提取，声明后不再使用请求体兜底
	GetNewValues func(in *OperationInput) map[string]any
	// SkipLogging 该路由不记审计
	SkipLogging bool
}

// Validate 注册期校验
func (m Metadata) Validate() error {
	if err := m.Action.Validate(); err != nil {
		return fmt.Errorf("审计配置无效: %w", err)
	}
	return nil
}

// OperationInput 一次业务操作的输入镜像，供提取函数使用
type OperationInput struct {
	Body   map[string]any    // 解析后的 JSON 请求体，非 JSON 或解析失败时为 nil
	Params map[string]string // 路径参数
	Query  url.Values        // 查询参数
	Ctx    *gin.Context      // 完整请求上下文
}

// Lookup 按参数名依次在路径、查询串、请求体中找值
func (in *OperationInput) Lookup(name string) (string, bool) {
	if v, ok := in.Params[name]; ok && v != "" {
		return v, true
	}
	if in.Query != nil {
		if v := in.Query.Get(name); v != "" {
			return v, true
		}
	}
	if v, ok := in.Body[name]; ok {
		if s := stringifyID(v); s != "" {
			return s, true
		}
	}
	return "", false
}

// stringifyID 把请求体里的标量转成记录标识字符串
func stringifyID(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	default:
		return ""
	}
}

// snapshotKey 处理器暂存变更前快照用的上下文键
const snapshotKey = "audit:snapshot"

// StashSnapshot 处理器在改写数据前暂存一份旧值
// 搭配 SnapshotFromContext 作为路由的 GetOldValues 使用
func StashSnapshot(c *gin.Context, snapshot any) {
	c.Set(snapshotKey, snapshot)
}

// SnapshotFromContext 读取处理器暂存的变更前快照
func SnapshotFromContext(in *OperationInput) map[string]any {
	if in.Ctx == nil {
		return nil
	}
	v, ok := in.Ctx.Get(snapshotKey)
	if !ok {
		return nil
	}
	snapshot, err := toMap(v)
	if err != nil {
		return nil
	}
	return snapshot
}
