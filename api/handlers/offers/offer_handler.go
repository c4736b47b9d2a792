package offers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"campusperks/internal/audit"
	"campusperks/internal/auth"
	"campusperks/internal/common"
	"campusperks/internal/offers"
)

// Handler 优惠管理处理器
type Handler struct {
	service *offers.Service
}

// NewHandler 创建处理器
func NewHandler(service *offers.Service) *Handler {
	return &Handler{service: service}
}

// respondOfferError 优惠业务错误统一映射
func respondOfferError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, offers.ErrOfferNotFound):
		common.ResponseError(c, common.CodeOfferNotFound, "")
	case errors.Is(err, offers.ErrNotOfferOwner):
		common.ResponseError(c, common.CodeForbidden, "无权操作他人的优惠")
	case errors.Is(err, offers.ErrOfferNotPending):
		common.ResponseError(c, common.CodeInvalidOfferStatus, "")
	case errors.Is(err, offers.ErrInvalidDecision):
		common.ResponseBadRequest(c, "无效的审核决定")
	default:
		common.ResponseServerError(c, "")
	}
}

// Create 创建优惠
// @Summary 创建优惠
// @Description 商家创建优惠，新建的优惠进入待审核状态
// @Tags Offers
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body offers.CreateOfferInput true "优惠内容"
// @Success 201 {object} common.APIResponse{data=offers.Offer}
// @Failure 400 {object} common.APIResponse "参数错误"
// @Failure 401 {object} common.APIResponse "未认证"
// @Router /api/v1/offers [post]
func (h *Handler) Create(c *gin.Context) {
	var req offers.CreateOfferInput
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	offer, err := h.service.Create(c.Request.Context(), userCtx.UserID, req)
	if err != nil {
		common.ResponseServerError(c, "创建优惠失败")
		return
	}

	common.ResponseCreated(c, offer)
}

// ListActive 浏览已上架优惠
// @Summary 浏览已上架优惠
// @Description 按关键词、分类、校区筛选已上架的优惠
// @Tags Offers
// @Security BearerAuth
// @Produce json
// @Param keyword query string false "关键词"
// @Param category query string false "分类"
// @Param campus query string false "校区"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} common.APIResponse{data=common.ListResponse}
// @Failure 400 {object} common.APIResponse "参数错误"
// @Router /api/v1/offers [get]
func (h *Handler) ListActive(c *gin.Context) {
	var q offers.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	items, total, err := h.service.ListActive(c.Request.Context(), q)
	if err != nil {
		common.ResponseServerError(c, "查询优惠失败")
		return
	}

	common.ResponseList(c, items, total, &q.PaginationRequest)
}

// Mine 查看自己发布的优惠
// @Summary 查看自己发布的优惠
// @Description 商家查看名下全部优惠，含待审核和已驳回的
// @Tags Offers
// @Security BearerAuth
// @Produce json
// @Param status query string false "状态筛选" Enums(pending, active, rejected)
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} common.APIResponse{data=common.ListResponse}
// @Failure 401 {object} common.APIResponse "未认证"
// @Router /api/v1/offers/mine [get]
func (h *Handler) Mine(c *gin.Context) {
	var q offers.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}
	q.MerchantID = userCtx.UserID

	items, total, err := h.service.List(c.Request.Context(), q)
	if err != nil {
		common.ResponseServerError(c, "查询优惠失败")
		return
	}

	common.ResponseList(c, items, total, &q.PaginationRequest)
}

// Get 查看优惠详情
// @Summary 查看优惠详情
// @Tags Offers
// @Security BearerAuth
// @Produce json
// @Param id path string true "优惠 ID"
// @Success 200 {object} common.APIResponse{data=offers.Offer}
// @Failure 404 {object} common.APIResponse "优惠不存在"
// @Router /api/v1/offers/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	offer, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondOfferError(c, err)
		return
	}

	common.ResponseSuccess(c, offer)
}

// Update 修改优惠
// @Summary 修改优惠
// @Description 商家修改自己的优惠，修改后重新进入待审核状态
// @Tags Offers
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "优惠 ID"
// @Param request body offers.UpdateOfferInput true "变更内容"
// @Success 200 {object} common.APIResponse{data=offers.Offer}
// @Failure 400 {object} common.APIResponse "参数错误"
// @Failure 403 {object} common.APIResponse "无权操作"
// @Failure 404 {object} common.APIResponse "优惠不存在"
// @Router /api/v1/offers/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	id := c.Param("id")

	var req offers.UpdateOfferInput
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	// 改写前暂存旧值快照
	if current, err := h.service.Get(c.Request.Context(), id); err == nil {
		audit.StashSnapshot(c, current)
	}

	offer, err := h.service.Update(c.Request.Context(), id, userCtx.UserID, req)
	if err != nil {
		respondOfferError(c, err)
		return
	}

	common.ResponseSuccess(c, offer)
}

// Delete 删除优惠
// @Summary 删除优惠
// @Description 商家删除自己的优惠，管理员可删除任意优惠
// @Tags Offers
// @Security BearerAuth
// @Produce json
// @Param id path string true "优惠 ID"
// @Success 200 {object} common.APIResponse
// @Failure 403 {object} common.APIResponse "无权操作"
// @Failure 404 {object} common.APIResponse "优惠不存在"
// @Router /api/v1/offers/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	isAdmin := userCtx.Role == auth.RoleAdmin
	deleted, err := h.service.Delete(c.Request.Context(), c.Param("id"), userCtx.UserID, isAdmin)
	if err != nil {
		respondOfferError(c, err)
		return
	}

	// 被删数据作为旧值快照
	audit.StashSnapshot(c, deleted)

	common.ResponseSuccessMessage(c, "删除成功", nil)
}

// ReviewRequest 审核请求
type ReviewRequest struct {
	Note string `json:"note" binding:"omitempty,max=500"`
}

// AdminList 管理端优惠列表
// @Summary 管理端优惠列表
// @Description 管理员按任意状态查询优惠，常用于审核待办
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param status query string false "状态筛选" Enums(pending, active, rejected)
// @Param merchant_id query string false "商家 ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} common.APIResponse{data=common.ListResponse}
// @Failure 403 {object} common.APIResponse "角色权限不足"
// @Router /api/v1/admin/offers [get]
func (h *Handler) AdminList(c *gin.Context) {
	var q offers.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	items, total, err := h.service.List(c.Request.Context(), q)
	if err != nil {
		common.ResponseServerError(c, "查询优惠失败")
		return
	}

	common.ResponseList(c, items, total, &q.PaginationRequest)
}

// Approve 审核通过优惠
// @Summary 审核通过优惠
// @Description 管理员审核通过待审核的优惠，使其上架
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "优惠 ID"
// @Param request body ReviewRequest false "审核备注"
// @Success 200 {object} common.APIResponse{data=offers.Offer}
// @Failure 404 {object} common.APIResponse "优惠不存在"
// @Failure 409 {object} common.APIResponse "优惠不在待审核状态"
// @Router /api/v1/admin/offers/{id}/approve [patch]
func (h *Handler) Approve(c *gin.Context) {
	h.review(c, "approve")
}

// Reject 驳回优惠
// @Summary 驳回优惠
// @Description 管理员驳回待审核的优惠
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "优惠 ID"
// @Param request body ReviewRequest false "审核备注"
// @Success 200 {object} common.APIResponse{data=offers.Offer}
// @Failure 404 {object} common.APIResponse "优惠不存在"
// @Failure 409 {object} common.APIResponse "优惠不在待审核状态"
// @Router /api/v1/admin/offers/{id}/reject [patch]
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

	offer, err := h.service.Review(c.Request.Context(), id, userCtx.UserID, decision, req.Note)
	if err != nil {
		respondOfferError(c, err)
		return
	}

	common.ResponseSuccess(c, offer)
}
