package auth

import (
	"errors"

	"github.com/gin-gonic/gin"

	"campusperks/internal/auth"
	"campusperks/internal/common"
	"campusperks/internal/identity"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	users      *identity.Service
	jwtService *auth.JWTService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(users *identity.Service, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{
		users:      users,
		jwtService: jwtService,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	FullName string `json:"full_name" binding:"required,max=255"`
	Campus   string `json:"campus" binding:"omitempty,max=255"`
	Role     string `json:"role" binding:"omitempty,oneof=student merchant"`
}

// Register 注册新用户
// @Summary 注册新用户
// @Description 注册学生或商家账号，管理员账号由运维侧初始化
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "注册请求参数"
// @Success 201 {object} common.APIResponse{data=identity.User}
// @Failure 400 {object} common.APIResponse "参数错误"
// @Failure 409 {object} common.APIResponse "邮箱已被注册"
// @Router /api/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	user, err := h.users.Register(c.Request.Context(), identity.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Campus:   req.Campus,
		Role:     req.Role,
	})
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			common.ResponseError(c, common.CodeEmailTaken, "")
			return
		}
		common.ResponseServerError(c, "注册失败")
		return
	}

	common.ResponseCreated(c, user)
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginData 登录响应数据
type LoginData struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login 用户登录
// @Summary 用户登录
// @Description 使用邮箱和密码登录，获取访问令牌和刷新令牌
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "登录请求参数"
// @Success 200 {object} common.APIResponse{data=LoginData}
// @Failure 400 {object} common.APIResponse "参数错误"
// @Failure 401 {object} common.APIResponse "邮箱或密码错误"
// @Failure 403 {object} common.APIResponse "用户已禁用"
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			common.ResponseError(c, common.CodeInvalidCredentials, "")
		case errors.Is(err, identity.ErrUserDisabled):
			common.ResponseError(c, common.CodeUserDisabled, "")
		default:
			common.ResponseServerError(c, "登录失败")
		}
		return
	}

	pair, err := h.jwtService.GenerateTokenPair(user.ID, user.Email, user.Role)
	if err != nil {
		common.ResponseServerError(c, "生成令牌失败")
		return
	}

	common.ResponseSuccess(c, LoginData{
		ID:           user.ID,
		Email:        user.Email,
		Role:         user.Role,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// RefreshRequest 刷新令牌请求
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh 刷新访问令牌
// @Summary 刷新访问令牌
// @Description 使用刷新令牌换取新的令牌对
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "刷新令牌请求参数"
// @Success 200 {object} common.APIResponse{data=auth.TokenPair}
// @Failure 400 {object} common.APIResponse "参数错误"
// @Failure 401 {object} common.APIResponse "无效的刷新令牌"
// @Router /api/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	pair, err := h.jwtService.RefreshAccessToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		common.ResponseError(c, common.CodeTokenInvalid, "刷新令牌失败")
		return
	}

	common.ResponseSuccess(c, pair)
}

// Logout 用户登出
// @Summary 用户登出
// @Description 将当前访问令牌加入黑名单，已过期的令牌不做处理
// @Tags Auth
// @Produce json
// @Success 200 {object} common.APIResponse
// @Router /api/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	token := auth.ExtractTokenFromBearer(authHeader)
	if token != "" {
		// 黑名单失败不中断登出
		_ = h.jwtService.InvalidateToken(c.Request.Context(), token)
	}

	common.ResponseSuccessMessage(c, "登出成功", nil)
}
