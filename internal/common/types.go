package common

// ============================================================================
// 通用请求类型
// ============================================================================

// 分页默认值
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `json:"page" form:"page" binding:"omitempty,min=1"`           // 页码，从1开始
	PageSize int `json:"page_size" form:"page_size" binding:"omitempty,min=1"` // 每页数量
}

// DefaultPagination 返回默认分页参数
func DefaultPagination() PaginationRequest {
	return PaginationRequest{
		Page:     1,
		PageSize: DefaultPageSize,
	}
}

// GetPageSize 获取每页数量，提供默认值
func (p PaginationRequest) GetPageSize() int {
	if p.PageSize < 1 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// ============================================================================
// 通用响应类型
// ============================================================================

// APIResponse 统一API响应格式
type APIResponse struct {
	Success bool   `json:"success"`           // 是否成功
	Data    any    `json:"data,omitempty"`    // 响应数据
	Message string `json:"message,omitempty"` // 提示信息
	Code    int    `json:"code"`              // 业务状态码
}

// SuccessResponse 成功响应
func SuccessResponse(data any) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
		Code:    0,
	}
}

// SuccessMessageResponse 成功响应（带消息）
func SuccessMessageResponse(message string, data any) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
		Message: message,
		Code:    0,
	}
}

// ErrorResponse 错误响应
func ErrorResponse(code int, message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
		Code:    code,
	}
}

// PaginationMeta 分页元信息
type PaginationMeta struct {
	Page       int   `json:"page"`        // 当前页码
	PageSize   int   `json:"page_size"`   // 每页数量
	Total      int64 `json:"total"`       // 总记录数
	TotalPages int   `json:"total_pages"` // 总页数
}

// CalculateTotalPages 计算总页数
func (m *PaginationMeta) CalculateTotalPages() {
	if m.PageSize > 0 {
		m.TotalPages = int((m.Total + int64(m.PageSize) - 1) / int64(m.PageSize))
	}
}

// NewPaginationMeta 创建分页元信息
func NewPaginationMeta(page, pageSize int, total int64) PaginationMeta {
	meta := PaginationMeta{
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}
	meta.CalculateTotalPages()
	return meta
}

// ListResponse 列表响应（包含分页信息）
type ListResponse struct {
	Items      any            `json:"items"`      // 数据列表
	Pagination PaginationMeta `json:"pagination"` // 分页信息
}

// NewListResponse 创建列表响应
func NewListResponse(items any, page, pageSize int, total int64) ListResponse {
	return ListResponse{
		Items:      items,
		Pagination: NewPaginationMeta(page, pageSize, total),
	}
}

// ============================================================================
// 业务状态码定义
// ============================================================================

const (
	// 成功状态码
	CodeSuccess = 0

	// 通用错误码 (1000-1999)
	CodeInvalidRequest     = 1000 // 请求参数错误
	CodeUnauthorized       = 1001 // 未授权
	CodeForbidden          = 1002 // 禁止访问
	CodeNotFound           = 1003 // 资源不存在
	CodeConflict           = 1004 // 资源冲突
	CodeInternalError      = 1005 // 内部错误
	CodeServiceUnavailable = 1006 // 服务不可用
	CodeTooManyRequests    = 1007 // 请求过于频繁

	// 用户与认证错误码 (2000-2099)
	CodeUserNotFound       = 2000 // 用户不存在
	CodeUserDisabled       = 2001 // 用户已禁用
	CodeInvalidCredentials = 2002 // 凭证无效
	CodeEmailTaken         = 2003 // 邮箱已被注册
	CodeTokenInvalid       = 2010 // 令牌无效或已过期

	// 优惠相关错误码 (3000-3099)
	CodeOfferNotFound      = 3000 // 优惠不存在
	CodeOfferNotActive     = 3001 // 优惠未上架
	CodeOfferExpired       = 3002 // 优惠已过期
	CodeInvalidOfferStatus = 3003 // 优惠状态不允许该操作

	// 兑换相关错误码 (4000-4099)
	CodeRedemptionNotFound  = 4000 // 兑换记录不存在
	CodeRedemptionReviewed  = 4001 // 兑换已被审核
	CodeOfferNotRedeemable  = 4002 // 优惠不可兑换
	CodeDuplicateRedemption = 4003 // 重复兑换
	CodeRedeemLimitReached  = 4004 // 兑换名额已满

	// 审计相关错误码 (5000-5099)
	CodeAuditEntryNotFound   = 5000 // 审计记录不存在
	CodeInvalidExportFormat  = 5001 // 导出格式无效
	CodeAuditDiffUnavailable = 5002 // 该记录没有可比对的变更内容
)

// ErrorMessages 错误码对应的默认消息
var ErrorMessages = map[int]string{
	CodeSuccess:            "操作成功",
	CodeInvalidRequest:     "请求参数错误",
	CodeUnauthorized:       "未授权，请先登录",
	CodeForbidden:          "无权限访问",
	CodeNotFound:           "资源不存在",
	CodeConflict:           "资源冲突",
	CodeInternalError:      "系统内部错误",
	CodeServiceUnavailable: "服务暂不可用",
	CodeTooManyRequests:    "请求过于频繁，请稍后再试",

	CodeUserNotFound:       "用户不存在",
	CodeUserDisabled:       "用户已禁用",
	CodeInvalidCredentials: "邮箱或密码错误",
	CodeEmailTaken:         "邮箱已被注册",
	CodeTokenInvalid:       "令牌无效或已过期",

	CodeOfferNotFound:      "优惠不存在",
	CodeOfferNotActive:     "优惠未上架",
	CodeOfferExpired:       "优惠已过期",
	CodeInvalidOfferStatus: "优惠当前状态不允许该操作",

	CodeRedemptionNotFound:  "兑换记录不存在",
	CodeRedemptionReviewed:  "兑换已被审核，不能重复操作",
	CodeOfferNotRedeemable:  "该优惠当前不可兑换",
	CodeDuplicateRedemption: "已兑换过该优惠",
	CodeRedeemLimitReached:  "兑换名额已满",

	CodeAuditEntryNotFound:   "审计记录不存在",
	CodeInvalidExportFormat:  "导出格式无效，仅支持 csv 和 json",
	CodeAuditDiffUnavailable: "该记录没有可比对的变更内容",
}

// GetErrorMessage 获取错误码对应的消息
func GetErrorMessage(code int) string {
	if msg, ok := ErrorMessages[code]; ok {
		return msg
	}
	return "未知错误"
}
