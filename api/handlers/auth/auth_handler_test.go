package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"campusperks/internal/auth"
	"campusperks/internal/common"
	"campusperks/internal/identity"
)

func newTestRouter(t *testing.T) (*gin.Engine, *identity.Service, *auth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&identity.User{}); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}

	users := identity.NewService(db)
	jwtService := auth.NewJWTService("unit-test-secret", "campusperks-test", time.Minute, time.Hour, nil)
	handler := NewAuthHandler(users, jwtService)

	router := gin.New()
	router.POST("/api/auth/register", handler.Register)
	router.POST("/api/auth/login", handler.Login)
	router.POST("/api/auth/refresh", handler.Refresh)
	router.POST("/api/auth/logout", handler.Logout)
	return router, users, jwtService
}

func postJSON(router *gin.Engine, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(http.MethodPost, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	return body
}

func TestRegisterEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	t.Run("注册成功返回201", func(t *testing.T) {
		w := postJSON(router, "/api/auth/register",
			`{"email":"alice@campus.edu","password":"s3cret-pass","full_name":"Alice Zhang","campus":"紫金港"}`, nil)
		assert.Equal(t, http.StatusCreated, w.Code)

		body := decode(t, w)
		assert.Equal(t, true, body["success"])

		data := body["data"].(map[string]any)
		assert.NotEmpty(t, data["id"])
		assert.Equal(t, "alice@campus.edu", data["email"])
		// 不指定角色默认学生
		assert.Equal(t, "student", data["role"])
		// 口令散列不进响应
		_, leaked := data["password_hash"]
		assert.False(t, leaked)
	})

	t.Run("重复邮箱返回409", func(t *testing.T) {
		w := postJSON(router, "/api/auth/register",
			`{"email":"alice@campus.edu","password":"another-pass","full_name":"另一个Alice"}`, nil)
		assert.Equal(t, http.StatusConflict, w.Code)

		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, float64(common.CodeEmailTaken), body["code"])
	})

	t.Run("参数校验失败返回400", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{name: "邮箱格式错误", body: `{"email":"not-an-email","password":"s3cret-pass","full_name":"X"}`},
			{name: "密码太短", body: `{"email":"short@campus.edu","password":"short","full_name":"X"}`},
			{name: "缺少姓名", body: `{"email":"x@campus.edu","password":"s3cret-pass"}`},
			// 管理员不开放自助注册
			{name: "角色越界", body: `{"email":"x@campus.edu","password":"s3cret-pass","full_name":"X","role":"admin"}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := postJSON(router, "/api/auth/register", tt.body, nil)
				assert.Equal(t, http.StatusBadRequest, w.Code)
			})
		}
	})
}

func TestLoginEndpoint(t *testing.T) {
	router, users, _ := newTestRouter(t)
	ctx := context.Background()

	_, err := users.Register(ctx, identity.RegisterInput{
		Email:    "bob@campus.edu",
		Password: "bob-password",
		FullName: "Bob Li",
		Role:     "merchant",
	})
	assert.NoError(t, err)

	t.Run("登录成功返回令牌对", func(t *testing.T) {
		w := postJSON(router, "/api/auth/login",
			`{"email":"bob@campus.edu","password":"bob-password"}`, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		data := decode(t, w)["data"].(map[string]any)
		assert.Equal(t, "bob@campus.edu", data["email"])
		assert.Equal(t, "merchant", data["role"])
		assert.NotEmpty(t, data["access_token"])
		assert.NotEmpty(t, data["refresh_token"])
		assert.Equal(t, "Bearer", data["token_type"])
		// 访问令牌有效期一分钟
		assert.Equal(t, float64(60), data["expires_in"])
	})

	t.Run("密码错误返回401", func(t *testing.T) {
		w := postJSON(router, "/api/auth/login",
			`{"email":"bob@campus.edu","password":"wrong-password"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, float64(common.CodeInvalidCredentials), decode(t, w)["code"])
	})

	t.Run("不存在的邮箱同样返回401", func(t *testing.T) {
		// 和密码错误不可区分，避免探测注册邮箱
		w := postJSON(router, "/api/auth/login",
			`{"email":"ghost@campus.edu","password":"whatever-pass"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, float64(common.CodeInvalidCredentials), decode(t, w)["code"])
	})

	t.Run("禁用用户返回403", func(t *testing.T) {
		assert.NoError(t, users.GetDB().Model(&identity.User{}).
			Where("email = ?", "bob@campus.edu").Update("status", identity.StatusSuspended).Error)

		w := postJSON(router, "/api/auth/login",
			`{"email":"bob@campus.edu","password":"bob-password"}`, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, float64(common.CodeUserDisabled), decode(t, w)["code"])
	})

	t.Run("缺少参数返回400", func(t *testing.T) {
		w := postJSON(router, "/api/auth/login", `{"email":"bob@campus.edu"}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRefreshEndpoint(t *testing.T) {
	router, _, jwtService := newTestRouter(t)

	pair, err := jwtService.GenerateTokenPair(
		"77777777-7777-7777-7777-777777777777", "carol@campus.edu", "student")
	assert.NoError(t, err)

	t.Run("刷新令牌换取新令牌对", func(t *testing.T) {
		w := postJSON(router, "/api/auth/refresh",
			`{"refresh_token":"`+pair.RefreshToken+`"}`, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		data := decode(t, w)["data"].(map[string]any)
		assert.NotEmpty(t, data["access_token"])
		assert.NotEmpty(t, data["refresh_token"])
		assert.Equal(t, "Bearer", data["token_type"])
	})

	t.Run("访问令牌不能用来刷新", func(t *testing.T) {
		w := postJSON(router, "/api/auth/refresh",
			`{"refresh_token":"`+pair.AccessToken+`"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, float64(common.CodeTokenInvalid), decode(t, w)["code"])
	})

	t.Run("伪造令牌被拒", func(t *testing.T) {
		w := postJSON(router, "/api/auth/refresh", `{"refresh_token":"not-a-jwt"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("缺少参数返回400", func(t *testing.T) {
		w := postJSON(router, "/api/auth/refresh", `{}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLogoutEndpoint(t *testing.T) {
	router, _, jwtService := newTestRouter(t)

	t.Run("带令牌登出", func(t *testing.T) {
		pair, err := jwtService.GenerateTokenPair(
			"77777777-7777-7777-7777-777777777777", "carol@campus.edu", "student")
		assert.NoError(t, err)

		w := postJSON(router, "/api/auth/logout", "",
			map[string]string{"Authorization": "Bearer " + pair.AccessToken})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "登出成功", decode(t, w)["message"])
	})

	t.Run("没有令牌也能登出", func(t *testing.T) {
		// 幂等操作，客户端清掉本地令牌即可
		w := postJSON(router, "/api/auth/logout", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
