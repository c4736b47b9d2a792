package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ResponseSuccess 返回成功响应
func ResponseSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse(data))
}

// ResponseSuccessMessage 返回成功响应（带消息）
func ResponseSuccessMessage(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, SuccessMessageResponse(message, data))
}

// ResponseList 返回分页列表响应
func ResponseList(c *gin.Context, items any, total int64, req *PaginationRequest) {
	if req == nil {
		defaultReq := DefaultPagination()
		req = &defaultReq
	}

	page := req.Page
	if page < 1 {
		page = 1
	}

	c.JSON(http.StatusOK, SuccessResponse(
		NewListResponse(items, page, req.GetPageSize(), total),
	))
}

// ResponseError 返回错误响应
func ResponseError(c *gin.Context, code int, message string) {
	if message == "" {
		message = GetErrorMessage(code)
	}

	c.JSON(httpStatusFor(code), ErrorResponse(code, message))
}

// httpStatusFor 业务状态码映射到 HTTP 状态码
func httpStatusFor(code int) int {
	switch code {
	case CodeUnauthorized, CodeInvalidCredentials, CodeTokenInvalid:
		return http.StatusUnauthorized
	case CodeForbidden, CodeUserDisabled:
		return http.StatusForbidden
	case CodeNotFound, CodeUserNotFound, CodeOfferNotFound,
		CodeRedemptionNotFound, CodeAuditEntryNotFound:
		return http.StatusNotFound
	case CodeInvalidRequest, CodeInvalidExportFormat, CodeAuditDiffUnavailable:
		return http.StatusBadRequest
	case CodeConflict, CodeEmailTaken, CodeRedemptionReviewed,
		CodeDuplicateRedemption, CodeInvalidOfferStatus,
		CodeOfferNotActive, CodeOfferExpired,
		CodeOfferNotRedeemable, CodeRedeemLimitReached:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// AbortWithError 中断并返回错误
func AbortWithError(c *gin.Context, code int, message string) {
	ResponseError(c, code, message)
	c.Abort()
}

// ResponseCreated 返回创建成功响应（201）
func ResponseCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, SuccessResponse(data))
}

// ResponseBadRequest 返回参数错误响应
func ResponseBadRequest(c *gin.Context, message string) {
	ResponseError(c, CodeInvalidRequest, message)
}

// ResponseUnauthorized 返回未认证响应
func ResponseUnauthorized(c *gin.Context, message string) {
	ResponseError(c, CodeUnauthorized, message)
}

// ResponseForbidden 返回无权限响应
func ResponseForbidden(c *gin.Context, message string) {
	ResponseError(c, CodeForbidden, message)
}

// ResponseServerError 返回服务器错误响应
func ResponseServerError(c *gin.Context, message string) {
	ResponseError(c, CodeInternalError, message)
}
