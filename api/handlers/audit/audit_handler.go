package audit

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusperks/internal/audit"
	"campusperks/internal/auth"
	"campusperks/internal/common"
)

// AuditHandler 审计日志处理器
type AuditHandler struct {
	service  *audit.Service
	exporter *audit.Exporter
	registry *audit.Registry
}

// NewAuditHandler 创建审计日志处理器
func NewAuditHandler(service *audit.Service, exporter *audit.Exporter, registry *audit.Registry) *AuditHandler {
	return &AuditHandler{
		service:  service,
		exporter: exporter,
		registry: registry,
	}
}

// ListLogsRequest 查询审计日志请求
// 时间参数为 ISO 8601 格式字符串
type ListLogsRequest struct {
	ActorID  string `form:"actor_id" binding:"omitempty,uuid"`
	Action   string `form:"action"`
	Table    string `form:"table"`
	RecordID string `form:"record_id"`
	Search   string `form:"search"`
	From     string `form:"from"`
	To       string `form:"to"`
	Sort     string `form:"sort" binding:"omitempty,oneof=newest oldest"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// toFilter 转换为存储层筛选条件
func (r ListLogsRequest) toFilter() (audit.Filter, error) {
	from, err := parseTimeParam("from", r.From)
	if err != nil {
		return audit.Filter{}, err
	}
	to, err := parseTimeParam("to", r.To)
	if err != nil {
		return audit.Filter{}, err
	}
	return audit.Filter{
		ActorID:  r.ActorID,
		Action:   r.Action,
		Table:    r.Table,
		RecordID: r.RecordID,
		From:     from,
		To:       to,
		Search:   r.Search,
	}, nil
}

// parseTimeParam 解析 RFC3339 时间参数，空值表示不限
func parseTimeParam(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("%s 不是合法的 RFC3339 时间: %s", name, value)
	}
	return &t, nil
}

// ListLogs 查询审计日志
// @Summary 查询审计日志
// @Description 按操作者、事件名、业务表、时间范围等条件分页检索审计日志
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param actor_id query string false "操作者 ID"
// @Param action query string false "事件名，子串匹配"
// @Param table query string false "业务表名，子串匹配"
// @Param record_id query string false "记录标识，精确匹配"
// @Param search query string false "自由文本，匹配事件名/表名/操作者邮箱"
// @Param from query string false "起始时间（RFC3339）"
// @Param to query string false "结束时间（RFC3339）"
// @Param sort query string false "排序方式" Enums(newest, oldest)
// @Param page query int false "页码"
// @Param page_size query int false "每页数量，最大 100"
// @Success 200 {object} common.APIResponse{data=types.AuditEntryPage}
// @Failure 400 {object} common.APIResponse "参数错误"
// @Failure 403 {object} common.APIResponse "角色权限不足"
// @Router /api/v1/admin/audit-logs [get]
func (h *AuditHandler) ListLogs(c *gin.Context) {
	var req ListLogsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	filter, err := req.toFilter()
	if err != nil {
		common.ResponseBadRequest(c, err.Error())
		return
	}

	page, err := h.service.ListEntries(c.Request.Context(), audit.Query{
		Filter:   filter,
		Sort:     req.Sort,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		if errors.Is(err, audit.ErrInvalidSort) || errors.Is(err, audit.ErrInvalidPage) {
			common.ResponseBadRequest(c, err.Error())
			return
		}
		common.ResponseServerError(c, "查询审计日志失败")
		return
	}

	common.ResponseSuccess(c, page)
}

// GetLog 查看审计日志详情
// @Summary 查看审计日志详情
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param id path string true "日志 ID"
// @Success 200 {object} common.APIResponse{data=types.AuditEntryView}
// @Failure 404 {object} common.APIResponse "审计记录不存在"
// @Router /api/v1/admin/audit-logs/{id} [get]
func (h *AuditHandler) GetLog(c *gin.Context) {
	entry, err := h.service.GetEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, audit.ErrEntryNotFound) {
			common.ResponseError(c, common.CodeAuditEntryNotFound, "")
			return
		}
		common.ResponseServerError(c, "查询审计日志失败")
		return
	}

	common.ResponseSuccess(c, entry)
}

// StatisticsRequest 统计请求
type StatisticsRequest struct {
	From string `form:"from"`
	To   string `form:"to"`
}

// Statistics 审计活动统计
// @Summary 审计活动统计
// @Description 统计时间范围内的总量、高频事件、活跃业务表和最近动态
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param from query string false "起始时间（RFC3339）"
// @Param to query string false "结束时间（RFC3339）"
// @Success 200 {object} common.APIResponse{data=types.AuditStatistics}
// @Failure 400 {object} common.APIResponse "参数错误"
// @Router /api/v1/admin/audit-logs/statistics [get]
func (h *AuditHandler) Statistics(c *gin.Context) {
	var req StatisticsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	from, err := parseTimeParam("from", req.From)
	if err != nil {
		common.ResponseBadRequest(c, err.Error())
		return
	}
	to, err := parseTimeParam("to", req.To)
	if err != nil {
		common.ResponseBadRequest(c, err.Error())
		return
	}

	stats, err := h.service.Statistics(c.Request.Context(), from, to)
	if err != nil {
		common.ResponseServerError(c, "统计审计活动失败")
		return
	}

	common.ResponseSuccess(c, stats)
}

// Diff 对比单条日志的新旧快照
// @Summary 对比单条日志的新旧快照
// @Description 以统一差异格式展示一条审计日志的变更内容
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param id path string true "日志 ID"
// @Success 200 {object} common.APIResponse{data=audit.EntryDiff}
// @Failure 400 {object} common.APIResponse "该记录没有可比对的变更内容"
// @Failure 404 {object} common.APIResponse "审计记录不存在"
// @Router /api/v1/admin/audit-logs/{id}/diff [get]
func (h *AuditHandler) Diff(c *gin.Context) {
	diff, err := h.service.DiffEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, audit.ErrEntryNotFound):
			common.ResponseError(c, common.CodeAuditEntryNotFound, "")
		case errors.Is(err, audit.ErrDiffUnavailable):
			common.ResponseError(c, common.CodeAuditDiffUnavailable, "")
		default:
			common.ResponseServerError(c, "生成差异失败")
		}
		return
	}

	common.ResponseSuccess(c, diff)
}

// ExportRequest 导出请求
type ExportRequest struct {
	ListLogsRequest
	Format string `form:"format"`
}

// Export 导出审计日志
// @Summary 导出审计日志
// @Description 按筛选条件导出为 CSV 或 JSON 附件，条数受上限约束
// @Tags Audit
// @Security BearerAuth
// @Produce octet-stream
// @Param format query string false "导出格式，默认 json" Enums(csv, json)
// @Param actor_id query string false "操作者 ID"
// @Param action query string false "事件名，子串匹配"
// @Param from query string false "起始时间（RFC3339）"
// @Param to query string false "结束时间（RFC3339）"
// @Success 200 {file} file "导出文件"
// @Failure 400 {object} common.APIResponse "导出格式无效"
// @Router /api/v1/admin/audit-logs/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	format, err := audit.ParseExportFormat(req.Format)
	if err != nil {
		common.ResponseError(c, common.CodeInvalidExportFormat, "")
		return
	}

	filter, err := req.toFilter()
	if err != nil {
		common.ResponseBadRequest(c, err.Error())
		return
	}

	result, err := h.exporter.Export(c.Request.Context(), filter, format)
	if err != nil {
		common.ResponseServerError(c, "导出审计日志失败")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

// Actions 审计事件清单
// @Summary 审计事件清单
// @Description 列出平台登记的全部审计事件及其描述
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse
// @Router /api/v1/admin/audit-logs/actions [get]
func (h *AuditHandler) Actions(c *gin.Context) {
	common.ResponseSuccess(c, gin.H{"actions": h.registry.List()})
}

// MyActivity 查看自己的操作记录
// @Summary 查看自己的操作记录
// @Description 普通用户查看以自己为操作者的审计日志
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} common.APIResponse{data=types.AuditEntryPage}
// @Failure 401 {object} common.APIResponse "未认证"
// @Router /api/v1/audit/my-activity [get]
func (h *AuditHandler) MyActivity(c *gin.Context) {
	var page common.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	result, err := h.service.MyActivity(c.Request.Context(), userCtx.UserID, page)
	if err != nil {
		common.ResponseServerError(c, "查询操作记录失败")
		return
	}

	common.ResponseSuccess(c, result)
}
