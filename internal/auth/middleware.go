package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"campusperks/internal/common"
)

// 平台角色
const (
	RoleStudent  = "student"
	RoleMerchant = "merchant"
	RoleAdmin    = "admin"
)

// UserContextKey 用户上下文键
const UserContextKey = "user"

// UserContext 用户上下文
type UserContext struct {
	UserID string
	Email  string
	Role   string
}

// AuthMiddleware JWT 认证中间件
func AuthMiddleware(jwtService *JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从 Header 获取令牌
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			common.AbortWithError(c, common.CodeUnauthorized, "缺少认证令牌")
			return
		}

		// 提取纯令牌
		token := ExtractTokenFromBearer(authHeader)
		if token == "" {
			common.AbortWithError(c, common.CodeTokenInvalid, "无效的令牌格式")
			return
		}

		// 验证令牌
		claims, err := jwtService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			common.AbortWithError(c, common.CodeTokenInvalid, "令牌验证失败: "+err.Error())
			return
		}

		// 确保是访问令牌
		if claims.TokenType != "access" {
			common.AbortWithError(c, common.CodeTokenInvalid, "令牌类型错误")
			return
		}

		// 将用户信息存入上下文
		c.Set(UserContextKey, &UserContext{
			UserID: claims.UserID,
			Email:  claims.Email,
			Role:   claims.Role,
		})
		// 限流中间件按用户维度统计
		c.Set("user_id", claims.UserID)

		c.Next()
	}
}

// RequireRole 角色检查中间件，满足任意一个角色即放行
func RequireRole(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			common.AbortWithError(c, common.CodeUnauthorized, "")
			return
		}

		if !hasRole(userCtx.Role, requiredRoles) {
			common.AbortWithError(c, common.CodeForbidden, "角色权限不足")
			return
		}

		c.Next()
	}
}

// GetUserContext 从 Gin Context 获取用户上下文
func GetUserContext(c *gin.Context) (*UserContext, bool) {
	userCtx, exists := c.Get(UserContextKey)
	if !exists {
		return nil, false
	}

	ctx, ok := userCtx.(*UserContext)
	return ctx, ok
}

// hasRole 检查是否有指定角色
func hasRole(userRole string, requiredRoles []string) bool {
	for _, required := range requiredRoles {
		if strings.EqualFold(userRole, required) {
			return true
		}
	}
	return false
}
