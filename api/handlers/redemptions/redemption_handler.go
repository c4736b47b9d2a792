package redemptions

import (
	"errors"

	"github.com/gin-gonic/gin"

	"campusperks/internal/audit"
	"campusperks/internal/auth"
	"campusperks/internal/common"
	"campusperks/internal/offers"
	"campusperks/internal/redemptions"
)

// Handler 兑换管理处理器
type Handler struct {
	service *redemptions.Service
}

// NewHandler 创建处理器
func NewHandler(service *redemptions.Service) *Handler {
	return &Handler{service: service}
}

// respondRedemptionError 兑换业务错误统一映射
func respondRedemptionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, redemptions.ErrRedemptionNotFound):
		common.ResponseError(c, common.CodeRedemptionNotFound, "")
	case errors.Is(err, offers.ErrOfferNotFound):
		common.ResponseError(c, common.CodeOfferNotFound, "")
	case errors.Is(err, redemptions.ErrOfferNotActive):
		common.ResponseError(c, common.CodeOfferNotActive, "")
	case errors.Is(err, redemptions.ErrOfferNotStarted):
		common.ResponseError(c, common.CodeOfferNotRedeemable, "")
	case errors.Is(err, redemptions.ErrOfferExpired):
		common.ResponseError(c, common.CodeOfferExpired, "")
	case errors.Is(err, redemptions.ErrDuplicateRedemption):
		common.ResponseError(c, common.CodeDuplicateRedemption, "")
	case errors.Is(err, redemptions.ErrRedeemLimitReached):
		common.ResponseError(c, common.CodeRedeemLimitReached, "")
	case errors.Is(err, redemptions.ErrRedemptionReviewed):
		common.ResponseError(c, common.CodeRedemptionReviewed, "")
	case errors.Is(err, redemptions.ErrInvalidDecision):
		common.ResponseBadRequest(c, "无效的审核决定")
	default:
		common.ResponseServerError(c, "")
	}
}

// Create 发起兑换
// @Summary 发起兑换
// @Description 学生对已上架优惠发起兑换申请，生成兑换码等待审核
// @Tags Redemptions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body redemptions.CreateInput true "兑换申请"
// @Success 201 {object} common.APIResponse{data=redemptions.Redemption}
// @Failure 400 {object} common.APIResponse "参数错误"
// @Failure 409 {object} common.APIResponse "重复兑换或名额已满"
// @Router /api/v1/redemptions [post]
func (h *Handler) Create(c *gin.Context) {
	var req redemptions.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	redemption, err := h.service.Create(c.Request.Context(), userCtx.UserID, req)
	if err != nil {
		respondRedemptionError(c, err)
		return
	}

	common.ResponseCreated(c, redemption)
}

// Mine 查看自己的兑换记录
// @Summary 查看自己的兑换记录
// @Tags Redemptions
// @Security BearerAuth
// @Produce json
// @Param status query string false "状态筛选" Enums(pending, approved, rejected)
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} common.APIResponse{data=common.ListResponse}
// @Failure 401 {object} common.APIResponse "未认证"
// @Router /api/v1/redemptions/mine [get]
func (h *Handler) Mine(c *gin.Context) {
	var q redemptions.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}
	q.StudentID = userCtx.UserID

	items, total, err := h.service.List(c.Request.Context(), q)
	if err != nil {
		common.ResponseServerError(c, "查询兑换记录失败")
		return
	}

	common.ResponseList(c, items, total, &q.PaginationRequest)
}

// Get 查看兑换详情
// @Summary 查看兑换详情
// @Description 学生只能查看自己的兑换，管理员不受限
// @Tags Redemptions
// @Security BearerAuth
// @Produce json
// @Param id path string true "兑换 ID"
// @Success 200 {object} common.APIResponse{data=redemptions.Redemption}
// @Failure 403 {object} common.APIResponse "无权访问"
// @Failure 404 {object} common.APIResponse "兑换记录不存在"
// @Router /api/v1/redemptions/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	redemption, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondRedemptionError(c, err)
		return
	}

	if userCtx.Role != auth.RoleAdmin && redemption.StudentID != userCtx.UserID {
		common.ResponseForbidden(c, "")
		return
	}

	common.ResponseSuccess(c, redemption)
}

// AdminList 管理端兑换列表
// @Summary 管理端兑换列表
// @Description 管理员按学生、优惠、状态查询兑换申请
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param student_id query string false "学生 ID"
// @Param offer_id query string false "优惠 ID"
// @Param status query string false "状态筛选" Enums(pending, approved, rejected)
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} common.APIResponse{data=common.ListResponse}
// @Failure 403 {object} common.APIResponse "角色权限不足"
// @Router /api/v1/admin/redemptions [get]
func (h *Handler) AdminList(c *gin.Context) {
	var q redemptions.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	items, total, err := h.service.List(c.Request.Context(), q)
	if err != nil {
		common.ResponseServerError(c, "查询兑换记录失败")
		return
	}

	common.ResponseList(c, items, total, &q.PaginationRequest)
}

// ReviewRequest 审核请求
type ReviewRequest struct {
	Note string `json:"note" binding:"omitempty,max=500"`
}

// Approve 审核通过兑换
// @Summary 审核通过兑换
// @Description 管理员确认兑换申请，兑换码生效
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "兑换 ID"
// @Param request body ReviewRequest false "审核备注"
// @Success 200 {object} common.APIResponse{data=redemptions.Redemption}
// @Failure 404 {object} common.APIResponse "兑换记录不存在"
// @Failure 409 {object} common.APIResponse "兑换已被审核"
// @Router /api/v1/admin/redemptions/{id}/approve [patch]
func (h *Handler) Approve(c *gin.Context) {
	h.review(c, "approve")
}

// Reject 驳回兑换
// @Summary 驳回兑换
// @Description 管理员驳回兑换申请，学生可重新发起
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "兑换 ID"
// @Param request body ReviewRequest false "审核备注"
// @Success 200 {object} common.APIResponse{data=redemptions.Redemption}
// @Failure 404 {object} common.APIResponse "兑换记录不存在"
// @Failure 409 {object} common.APIResponse "兑换已被审核"
// @Router /api/v1/admin/redemptions/{id}/reject [patch]
func (h *Handler) Reject(c *gin.Context) {
	h.review(c, "reject")
}

func (h *Handler) review(c *gin.Context, decision string) {
	id := c.Param("id")

	// 审核备注可以不带请求体
	var req ReviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.ResponseBadRequest(c, "参数错误: "+err.Error())
			return
		}
	}

	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	if current, err := h.service.Get(c.Request.Context(), id); err == nil {
		audit.StashSnapshot(c, current)
	}

	redemption, err := h.service.Review(c.Request.Context(), id, userCtx.UserID, decision, req.Note)
	if err != nil {
		respondRedemptionError(c, err)
		return
	}

	common.ResponseSuccess(c, redemption)
}
