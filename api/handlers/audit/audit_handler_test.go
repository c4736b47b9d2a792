package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"campusperks/internal/audit"
	"campusperks/internal/auth"
	"campusperks/internal/common"
	"campusperks/internal/identity"
)

var (
	adminID    = "11111111-1111-1111-1111-111111111111"
	merchantID = "22222222-2222-2222-2222-222222222222"

	entryCreate  = "aaaaaaaa-0000-0000-0000-000000000001"
	entryUpdate  = "aaaaaaaa-0000-0000-0000-000000000002"
	entryApprove = "aaaaaaaa-0000-0000-0000-000000000003"
	entryLogin   = "aaaaaaaa-0000-0000-0000-000000000004"

	seedBase = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

// testAuth 从测试请求头还原用户上下文，代替认证中间件
func testAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			c.Set(auth.UserContextKey, &auth.UserContext{
				UserID: id,
				Email:  c.GetHeader("X-Test-Email"),
				Role:   c.GetHeader("X-Test-Role"),
			})
		}
		c.Next()
	}
}

func as(id, role string) map[string]string {
	return map[string]string{"X-Test-User": id, "X-Test-Role": role}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&identity.User{}, &audit.AuditEntry{}); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}

	users := identity.NewService(db)
	store := audit.NewStore(db)
	service := audit.NewService(store, users, nil, 0, nil)
	handler := NewAuditHandler(service, audit.NewExporter(service, 1000), audit.NewRegistry())

	seedUsers(t, db)
	seedEntries(t, store)

	router := gin.New()
	router.Use(testAuth())
	logs := router.Group("/api/v1/admin/audit-logs")
	logs.GET("", handler.ListLogs)
	logs.GET("/statistics", handler.Statistics)
	logs.GET("/actions", handler.Actions)
	logs.GET("/export", handler.Export)
	logs.GET("/:id", handler.GetLog)
	logs.GET("/:id/diff", handler.Diff)
	router.GET("/api/v1/audit/my-activity", handler.MyActivity)
	return router
}

func seedUsers(t *testing.T, db *gorm.DB) {
	t.Helper()
	users := []identity.User{
		{ID: adminID, Email: "admin@campus.edu", PasswordHash: "x", FullName: "Wang Admin", Role: "admin", Status: identity.StatusActive},
		{ID: merchantID, Email: "latte@coffeeshop.cn", PasswordHash: "x", FullName: "Li Merchant", Role: "merchant", Status: identity.StatusActive},
	}
	if err := db.Create(&users).Error; err != nil {
		t.Fatalf("写入测试用户失败: %v", err)
	}
}

// seedEntries 四条固定记录：创建、修改、审核、登录
func seedEntries(t *testing.T, store *audit.Store) {
	t.Helper()
	ctx := context.Background()
	entries := []audit.AuditEntry{
		{
			ID: entryCreate, Action: "CREATE_OFFER", Table: "offers",
			RecordID: "off-1", ActorID: &merchantID, CreatedAt: seedBase,
			NewValues: datatypes.JSONMap{"title": "拿铁第二杯半价", "discount": float64(50)},
		},
		{
			ID: entryUpdate, Action: "UPDATE_OFFER", Table: "offers",
			RecordID: "off-1", ActorID: &merchantID, CreatedAt: seedBase.Add(time.Hour),
			OldValues: datatypes.JSONMap{"discount": float64(50)},
			NewValues: datatypes.JSONMap{"discount": float64(40)},
		},
		{
			ID: entryApprove, Action: "APPROVE_OFFER", Table: "offers",
			RecordID: "off-1", ActorID: &adminID, CreatedAt: seedBase.Add(2 * time.Hour),
		},
		{
			ID: entryLogin, Action: "LOGIN",
			RecordID: merchantID, ActorID: &merchantID, CreatedAt: seedBase.Add(3 * time.Hour),
		},
	}
	for i := range entries {
		if err := store.Append(ctx, &entries[i]); err != nil {
			t.Fatalf("写入测试记录失败: %v", err)
		}
	}
}

func get(router *gin.Engine, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
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

func TestListLogsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	t.Run("默认最新在前并带操作者投影", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs", as(adminID, "admin"))
		assert.Equal(t, http.StatusOK, w.Code)

		data := decode(t, w)["data"].(map[string]any)
		entries := data["entries"].([]any)
		assert.Len(t, entries, 4)

		first := entries[0].(map[string]any)
		assert.Equal(t, "LOGIN", first["action"])
		actor := first["actor"].(map[string]any)
		assert.Equal(t, "latte@coffeeshop.cn", actor["email"])
		assert.Equal(t, "merchant", actor["role"])

		pagination := data["pagination"].(map[string]any)
		assert.Equal(t, float64(4), pagination["total"])
	})

	t.Run("按事件名子串过滤", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs?action=offer", as(adminID, "admin"))
		entries := decode(t, w)["data"].(map[string]any)["entries"].([]any)
		assert.Len(t, entries, 3)
	})

	t.Run("时间范围过滤", func(t *testing.T) {
		from := seedBase.Add(90 * time.Minute).Format(time.RFC3339)
		w := get(router, "/api/v1/admin/audit-logs?from="+from, as(adminID, "admin"))
		entries := decode(t, w)["data"].(map[string]any)["entries"].([]any)
		assert.Len(t, entries, 2)
	})

	t.Run("升序排列", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs?sort=oldest", as(adminID, "admin"))
		entries := decode(t, w)["data"].(map[string]any)["entries"].([]any)
		assert.Equal(t, "CREATE_OFFER", entries[0].(map[string]any)["action"])
	})

	t.Run("非法时间返回400", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs?from=2026-03-01", as(adminID, "admin"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode(t, w)["message"], "RFC3339")
	})

	t.Run("非法排序返回400", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs?sort=latest", as(adminID, "admin"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("每页数量超出上限返回400", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs?page_size=101", as(adminID, "admin"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("操作者ID必须是UUID", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs?actor_id=zhangsan", as(adminID, "admin"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetLogEndpoint(t *testing.T) {
	router := newTestRouter(t)

	t.Run("查看详情", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs/"+entryCreate, as(adminID, "admin"))
		assert.Equal(t, http.StatusOK, w.Code)

		data := decode(t, w)["data"].(map[string]any)
		assert.Equal(t, "CREATE_OFFER", data["action"])
		assert.Equal(t, "offers", data["table_name"])
		newValues := data["new_values"].(map[string]any)
		assert.Equal(t, "拿铁第二杯半价", newValues["title"])
	})

	t.Run("不存在返回404", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs/ffffffff-0000-0000-0000-000000000000", as(adminID, "admin"))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, float64(common.CodeAuditEntryNotFound), decode(t, w)["code"])
	})
}

func TestStatisticsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	t.Run("全量统计", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs/statistics", as(adminID, "admin"))
		assert.Equal(t, http.StatusOK, w.Code)

		data := decode(t, w)["data"].(map[string]any)
		assert.Equal(t, float64(4), data["total"])
		assert.Len(t, data["by_action"].([]any), 4)

		// LOGIN 没有业务表，不计入表聚合
		byTable := data["by_table"].([]any)
		assert.Len(t, byTable, 1)
		row := byTable[0].(map[string]any)
		assert.Equal(t, "offers", row["table"])
		assert.Equal(t, float64(3), row["count"])

		assert.Len(t, data["recent_activity"].([]any), 4)
	})

	t.Run("带时间范围", func(t *testing.T) {
		from := seedBase.Add(2 * time.Hour).Format(time.RFC3339)
		w := get(router, "/api/v1/admin/audit-logs/statistics?from="+from, as(adminID, "admin"))
		data := decode(t, w)["data"].(map[string]any)
		assert.Equal(t, float64(2), data["total"])
	})

	t.Run("非法时间返回400", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs/statistics?to=昨天", as(adminID, "admin"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDiffEndpoint(t *testing.T) {
	router := newTestRouter(t)

	t.Run("修改记录输出统一差异", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs/"+entryUpdate+"/diff", as(adminID, "admin"))
		assert.Equal(t, http.StatusOK, w.Code)

		data := decode(t, w)["data"].(map[string]any)
		assert.Equal(t, entryUpdate, data["entry_id"])
		assert.Equal(t, "UPDATE_OFFER", data["action"])

		diff := data["diff"].(string)
		assert.Contains(t, diff, "--- old_values")
		assert.Contains(t, diff, "+++ new_values")
		assert.Contains(t, diff, `-  "discount": 50`)
		assert.Contains(t, diff, `+  "discount": 40`)
	})

	t.Run("只有新值的记录也能比对", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs/"+entryCreate+"/diff", as(adminID, "admin"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, decode(t, w)["data"].(map[string]any)["diff"], "拿铁第二杯半价")
	})

	t.Run("没有快照的记录返回400", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs/"+entryApprove+"/diff", as(adminID, "admin"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, float64(common.CodeAuditDiffUnavailable), decode(t, w)["code"])
	})

	t.Run("不存在返回404", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs/ffffffff-0000-0000-0000-000000000000/diff", as(adminID, "admin"))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestExportEndpoint(t *testing.T) {
	router := newTestRouter(t)

	t.Run("CSV附件", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs/export?format=csv", as(adminID, "admin"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
		assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")

		lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
		// 表头加四条数据
		assert.Len(t, lines, 5)
		assert.Contains(t, lines[0], "事件")
	})

	t.Run("JSON为默认格式", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs/export", as(adminID, "admin"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

		var payload struct {
			TotalCount int              `json:"total_count"`
			Entries    []map[string]any `json:"entries"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
		assert.Equal(t, 4, payload.TotalCount)
		assert.Len(t, payload.Entries, 4)
	})

	t.Run("筛选条件生效", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs/export?format=csv&action=LOGIN", as(adminID, "admin"))
		lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
		assert.Len(t, lines, 2)
	})

	t.Run("非法格式返回400", func(t *testing.T) {
		w := get(router, "/api/v1/admin/audit-logs/export?format=xml", as(adminID, "admin"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, float64(common.CodeInvalidExportFormat), decode(t, w)["code"])
	})
}

func TestActionsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := get(router, "/api/v1/admin/audit-logs/actions", as(adminID, "admin"))
	assert.Equal(t, http.StatusOK, w.Code)

	actions := decode(t, w)["data"].(map[string]any)["actions"].([]any)
	assert.NotEmpty(t, actions)

	byName := make(map[string]map[string]any, len(actions))
	for _, item := range actions {
		info := item.(map[string]any)
		byName[info["action"].(string)] = info
	}
	assert.Equal(t, "用户登录", byName["LOGIN"]["description"])
	assert.Equal(t, true, byName["APPROVE_OFFER"]["privileged"])
	assert.Equal(t, false, byName["CREATE_OFFER"]["privileged"])
}

func TestMyActivityEndpoint(t *testing.T) {
	router := newTestRouter(t)

	t.Run("只看自己的操作", func(t *testing.T) {
		w := get(router, "/api/v1/audit/my-activity", as(merchantID, "merchant"))
		assert.Equal(t, http.StatusOK, w.Code)

		data := decode(t, w)["data"].(map[string]any)
		entries := data["entries"].([]any)
		assert.Len(t, entries, 3)
		for _, item := range entries {
			actor := item.(map[string]any)["actor"].(map[string]any)
			assert.Equal(t, merchantID, actor["id"])
		}
	})

	t.Run("分页生效", func(t *testing.T) {
		w := get(router, "/api/v1/audit/my-activity?page=2&page_size=2", as(merchantID, "merchant"))
		data := decode(t, w)["data"].(map[string]any)
		assert.Len(t, data["entries"].([]any), 1)
		pagination := data["pagination"].(map[string]any)
		assert.Equal(t, float64(3), pagination["total"])
	})

	t.Run("未认证返回401", func(t *testing.T) {
		w := get(router, "/api/v1/audit/my-activity", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
