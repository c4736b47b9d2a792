package offers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"campusperks/internal/auth"
	"campusperks/internal/common"
	"campusperks/internal/offers"
)

var (
	adminID    = "11111111-1111-1111-1111-111111111111"
	merchantID = "22222222-2222-2222-2222-222222222222"
	otherID    = "33333333-3333-3333-3333-333333333333"
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

// as 构造身份请求头
func as(id, role string) map[string]string {
	return map[string]string{"X-Test-User": id, "X-Test-Role": role}
}

func newTestRouter(t *testing.T) (*gin.Engine, *offers.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&offers.Offer{}); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}

	svc := offers.NewService(db)
	handler := NewHandler(svc)

	router := gin.New()
	router.Use(testAuth())
	router.POST("/api/v1/offers", handler.Create)
	router.GET("/api/v1/offers", handler.ListActive)
	router.GET("/api/v1/offers/mine", handler.Mine)
	router.GET("/api/v1/offers/:id", handler.Get)
	router.PUT("/api/v1/offers/:id", handler.Update)
	router.DELETE("/api/v1/offers/:id", handler.Delete)
	router.GET("/api/v1/admin/offers", handler.AdminList)
	router.PATCH("/api/v1/admin/offers/:id/approve", handler.Approve)
	router.PATCH("/api/v1/admin/offers/:id/reject", handler.Reject)
	return router, svc
}

func perform(router *gin.Engine, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
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

// seedOffer 直接走服务层造数据，approve 为真时顺手过审
func seedOffer(t *testing.T, svc *offers.Service, merchant, title, category, campus string, approve bool) *offers.Offer {
	t.Helper()
	ctx := context.Background()
	offer, err := svc.Create(ctx, merchant, offers.CreateOfferInput{
		Title:       title,
		Category:    category,
		Campus:      campus,
		DiscountPct: 30,
	})
	if err != nil {
		t.Fatalf("写入测试优惠失败: %v", err)
	}
	if approve {
		if _, err := svc.Review(ctx, offer.ID, adminID, "approve", ""); err != nil {
			t.Fatalf("审核测试优惠失败: %v", err)
		}
	}
	return offer
}

func TestOfferCreateEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	t.Run("商家创建优惠进入待审核", func(t *testing.T) {
		w := perform(router, http.MethodPost, "/api/v1/offers",
			`{"title":"拿铁第二杯半价","category":"餐饮","campus":"紫金港","discount_pct":50,"redeem_limit":100}`,
			as(merchantID, "merchant"))
		assert.Equal(t, http.StatusCreated, w.Code)

		data := decode(t, w)["data"].(map[string]any)
		assert.NotEmpty(t, data["id"])
		assert.Equal(t, "拿铁第二杯半价", data["title"])
		assert.Equal(t, merchantID, data["merchant_id"])
		assert.Equal(t, "pending", data["status"])
		assert.Equal(t, float64(50), data["discount_pct"])
	})

	t.Run("未认证返回401", func(t *testing.T) {
		w := perform(router, http.MethodPost, "/api/v1/offers",
			`{"title":"x","discount_pct":10}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("参数校验失败返回400", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{name: "缺少标题", body: `{"discount_pct":50}`},
			{name: "缺少折扣", body: `{"title":"x"}`},
			{name: "折扣超过100", body: `{"title":"x","discount_pct":150}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := perform(router, http.MethodPost, "/api/v1/offers", tt.body, as(merchantID, "merchant"))
				assert.Equal(t, http.StatusBadRequest, w.Code)
			})
		}
	})
}

func TestOfferBrowseEndpoints(t *testing.T) {
	router, svc := newTestRouter(t)

	seedOffer(t, svc, merchantID, "拿铁第二杯半价", "餐饮", "紫金港", true)
	seedOffer(t, svc, otherID, "打印店八折", "服务", "玉泉", true)
	seedOffer(t, svc, merchantID, "新品尝鲜价", "餐饮", "紫金港", false)

	t.Run("公开列表只含已上架", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/offers", "", as(otherID, "student"))
		assert.Equal(t, http.StatusOK, w.Code)

		data := decode(t, w)["data"].(map[string]any)
		items := data["items"].([]any)
		assert.Len(t, items, 2)
		for _, item := range items {
			assert.Equal(t, "active", item.(map[string]any)["status"])
		}
		pagination := data["pagination"].(map[string]any)
		assert.Equal(t, float64(2), pagination["total"])
	})

	t.Run("按分类和校区筛选", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/offers?category=餐饮&campus=紫金港", "", as(otherID, "student"))
		items := decode(t, w)["data"].(map[string]any)["items"].([]any)
		assert.Len(t, items, 1)
		assert.Equal(t, "拿铁第二杯半价", items[0].(map[string]any)["title"])
	})

	t.Run("关键词搜索", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/offers?keyword=打印", "", as(otherID, "student"))
		items := decode(t, w)["data"].(map[string]any)["items"].([]any)
		assert.Len(t, items, 1)
	})

	t.Run("商家看自己的全部优惠", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/offers/mine", "", as(merchantID, "merchant"))
		assert.Equal(t, http.StatusOK, w.Code)

		items := decode(t, w)["data"].(map[string]any)["items"].([]any)
		// 含待审核的
		assert.Len(t, items, 2)
	})

	t.Run("商家按状态筛选", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/offers/mine?status=pending", "", as(merchantID, "merchant"))
		items := decode(t, w)["data"].(map[string]any)["items"].([]any)
		assert.Len(t, items, 1)
		assert.Equal(t, "新品尝鲜价", items[0].(map[string]any)["title"])
	})

	t.Run("未认证不能看mine", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/offers/mine", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("管理端按商家过滤", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/admin/offers?merchant_id="+merchantID, "", as(adminID, "admin"))
		assert.Equal(t, http.StatusOK, w.Code)
		items := decode(t, w)["data"].(map[string]any)["items"].([]any)
		assert.Len(t, items, 2)
	})

	t.Run("非法状态值返回400", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/admin/offers?status=draft", "", as(adminID, "admin"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestOfferGetEndpoint(t *testing.T) {
	router, svc := newTestRouter(t)
	offer := seedOffer(t, svc, merchantID, "拿铁第二杯半价", "餐饮", "紫金港", true)

	t.Run("查看详情", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/offers/"+offer.ID, "", as(otherID, "student"))
		assert.Equal(t, http.StatusOK, w.Code)

		data := decode(t, w)["data"].(map[string]any)
		assert.Equal(t, offer.ID, data["id"])
		assert.Equal(t, "拿铁第二杯半价", data["title"])
	})

	t.Run("不存在返回404", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/offers/99999999-0000-0000-0000-000000000000", "", as(otherID, "student"))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, float64(common.CodeOfferNotFound), decode(t, w)["code"])
	})
}

func TestOfferUpdateEndpoint(t *testing.T) {
	router, svc := newTestRouter(t)
	offer := seedOffer(t, svc, merchantID, "拿铁第二杯半价", "餐饮", "紫金港", true)

	t.Run("商家修改后回到待审核", func(t *testing.T) {
		w := perform(router, http.MethodPut, "/api/v1/offers/"+offer.ID,
			`{"title":"拿铁六折","discount_pct":40}`, as(merchantID, "merchant"))
		assert.Equal(t, http.StatusOK, w.Code)

		data := decode(t, w)["data"].(map[string]any)
		assert.Equal(t, "拿铁六折", data["title"])
		assert.Equal(t, float64(40), data["discount_pct"])
		assert.Equal(t, "pending", data["status"])
	})

	t.Run("修改他人的优惠返回403", func(t *testing.T) {
		w := perform(router, http.MethodPut, "/api/v1/offers/"+offer.ID,
			`{"title":"蹭个名"}`, as(otherID, "merchant"))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("不存在返回404", func(t *testing.T) {
		w := perform(router, http.MethodPut, "/api/v1/offers/99999999-0000-0000-0000-000000000000",
			`{"title":"x"}`, as(merchantID, "merchant"))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("非法折扣返回400", func(t *testing.T) {
		w := perform(router, http.MethodPut, "/api/v1/offers/"+offer.ID,
			`{"discount_pct":0}`, as(merchantID, "merchant"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestOfferDeleteEndpoint(t *testing.T) {
	router, svc := newTestRouter(t)

	t.Run("商家删除自己的优惠", func(t *testing.T) {
		offer := seedOffer(t, svc, merchantID, "下架的优惠", "餐饮", "紫金港", true)

		w := perform(router, http.MethodDelete, "/api/v1/offers/"+offer.ID, "", as(merchantID, "merchant"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "删除成功", decode(t, w)["message"])

		w = perform(router, http.MethodGet, "/api/v1/offers/"+offer.ID, "", as(merchantID, "merchant"))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("删除他人的优惠返回403", func(t *testing.T) {
		offer := seedOffer(t, svc, merchantID, "别人的优惠", "餐饮", "紫金港", true)

		w := perform(router, http.MethodDelete, "/api/v1/offers/"+offer.ID, "", as(otherID, "merchant"))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("管理员可删任意优惠", func(t *testing.T) {
		offer := seedOffer(t, svc, merchantID, "违规优惠", "餐饮", "紫金港", true)

		w := perform(router, http.MethodDelete, "/api/v1/offers/"+offer.ID, "", as(adminID, "admin"))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("不存在返回404", func(t *testing.T) {
		w := perform(router, http.MethodDelete, "/api/v1/offers/99999999-0000-0000-0000-000000000000", "", as(adminID, "admin"))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestOfferReviewEndpoints(t *testing.T) {
	router, svc := newTestRouter(t)

	t.Run("审核通过带备注", func(t *testing.T) {
		offer := seedOffer(t, svc, merchantID, "待审核A", "餐饮", "紫金港", false)

		w := perform(router, http.MethodPatch, "/api/v1/admin/offers/"+offer.ID+"/approve",
			`{"note":"材料齐全"}`, as(adminID, "admin"))
		assert.Equal(t, http.StatusOK, w.Code)

		data := decode(t, w)["data"].(map[string]any)
		assert.Equal(t, "active", data["status"])
		assert.Equal(t, adminID, data["reviewed_by"])
		assert.Equal(t, "材料齐全", data["review_note"])
		assert.NotEmpty(t, data["reviewed_at"])
	})

	t.Run("不带请求体也能审核", func(t *testing.T) {
		offer := seedOffer(t, svc, merchantID, "待审核B", "餐饮", "紫金港", false)

		w := perform(router, http.MethodPatch, "/api/v1/admin/offers/"+offer.ID+"/approve", "", as(adminID, "admin"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "active", decode(t, w)["data"].(map[string]any)["status"])
	})

	t.Run("驳回优惠", func(t *testing.T) {
		offer := seedOffer(t, svc, merchantID, "待审核C", "餐饮", "紫金港", false)

		w := perform(router, http.MethodPatch, "/api/v1/admin/offers/"+offer.ID+"/reject",
			`{"note":"描述与实际不符"}`, as(adminID, "admin"))
		assert.Equal(t, http.StatusOK, w.Code)

		data := decode(t, w)["data"].(map[string]any)
		assert.Equal(t, "rejected", data["status"])
		assert.Equal(t, "描述与实际不符", data["review_note"])
	})

	t.Run("重复审核返回409", func(t *testing.T) {
		offer := seedOffer(t, svc, merchantID, "已过审", "餐饮", "紫金港", true)

		w := perform(router, http.MethodPatch, "/api/v1/admin/offers/"+offer.ID+"/approve", "", as(adminID, "admin"))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, float64(common.CodeInvalidOfferStatus), decode(t, w)["code"])
	})

	t.Run("不存在返回404", func(t *testing.T) {
		w := perform(router, http.MethodPatch, "/api/v1/admin/offers/99999999-0000-0000-0000-000000000000/approve", "", as(adminID, "admin"))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("未认证返回401", func(t *testing.T) {
		offer := seedOffer(t, svc, merchantID, "待审核D", "餐饮", "紫金港", false)

		w := perform(router, http.MethodPatch, "/api/v1/admin/offers/"+offer.ID+"/approve", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
