package api

import (
	"strings"
	"time"

	_ "campusperks/api/docs"
	auditHandlers "campusperks/api/handlers/audit"
	authHandlers "campusperks/api/handlers/auth"
	offerHandlers "campusperks/api/handlers/offers"
	redemptionHandlers "campusperks/api/handlers/redemptions"
	auditpkg "campusperks/internal/audit"
	"campusperks/internal/auth"
	"campusperks/internal/config"
	"campusperks/internal/identity"
	"campusperks/internal/logger"
	"campusperks/internal/metrics"
	middlewarepkg "campusperks/internal/middleware"
	"campusperks/internal/offers"
	"campusperks/internal/redemptions"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupRouter 组装服务依赖并注册全部路由
// redisClient 允许为 nil，此时令牌黑名单与统计缓存退化为直查
func SetupRouter(db *gorm.DB, redisClient redis.UniversalClient, cfg *config.Config) *gin.Engine {
	router := gin.New()

	// 初始化认证服务
	jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if jwtSecret == "" {
		// 生产模式必须显式配置密钥，防止使用弱默认值
		if strings.EqualFold(cfg.Server.Mode, "release") {
			logger.Fatal("auth.jwt_secret 未配置，生产环境禁止使用默认密钥")
		}
		jwtSecret = "default_jwt_secret_key_change_in_production" // 本地/测试默认值，需明确提示
		logger.Warn("auth.jwt_secret 未配置，已回退为开发默认值，请在生产环境设置强随机密钥")
	}
	jwtService := auth.NewJWTService(
		jwtSecret,
		cfg.Auth.Issuer,
		time.Duration(cfg.Auth.AccessTokenExpire)*time.Minute,
		time.Duration(cfg.Auth.RefreshTokenExpire)*time.Hour,
		redisClient,
	)

	// 初始化业务 Services
	userService := identity.NewService(db)
	offerService := offers.NewService(db)
	redemptionService := redemptions.NewService(db, offerService)

	// 初始化审计组件
	auditStore := auditpkg.NewStore(db)
	composer := auditpkg.NewComposer(auditStore, logger.Get())
	interceptor := auditpkg.NewInterceptor(composer, logger.Get())
	auditService := auditpkg.NewService(auditStore, userService, redisClient,
		time.Duration(cfg.Audit.StatsCacheTTL)*time.Second, logger.Get())
	exporter := auditpkg.NewExporter(auditService, cfg.Audit.ExportMaxRows)

	// 审计事件注册表，描述文件缺失时保留内置描述
	actionRegistry := auditpkg.NewRegistry()
	if cfg.Audit.ActionsFile != "" {
		if err := actionRegistry.LoadDescriptions(cfg.Audit.ActionsFile); err != nil {
			logger.Warn("加载审计事件描述文件失败，使用内置描述",
				zap.String("file", cfg.Audit.ActionsFile), zap.Error(err))
		}
	}

	// 管理端限流器
	adminLimiter := middlewarepkg.NewRateLimiter(nil)

	// 全局中间件
	router.Use(gin.Recovery())
	router.Use(middlewarepkg.RequestIDMiddleware())
	router.Use(RequestLogger())
	router.Use(CORS())

	// Prometheus 指标收集中间件
	router.Use(metrics.PrometheusMiddleware())

	// 公开端点（不需要认证）
	router.GET("/health", HealthCheck(db))
	router.GET("/ready", ReadinessCheck(db, redisClient))

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger 文档
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 初始化 Handlers
	authHandler := authHandlers.NewAuthHandler(userService, jwtService)
	offerHandler := offerHandlers.NewHandler(offerService)
	redemptionHandler := redemptionHandlers.NewHandler(redemptionService)
	auditHandler := auditHandlers.NewAuditHandler(auditService, exporter, actionRegistry)

	// 认证路由（公开）
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register",
			interceptor.Intercept(auditpkg.Metadata{
				Action: auditpkg.ActionRegisterUser,
				Table:  "users",
				GetNewValues: func(in *auditpkg.OperationInput) map[string]any {
					return scrubCredentials(in.Body)
				},
			}),
			authHandler.Register)
		authGroup.POST("/login",
			interceptor.Intercept(auditpkg.Metadata{
				Action: auditpkg.ActionLogin,
				Table:  "users",
				GetNewValues: func(in *auditpkg.OperationInput) map[string]any {
					return scrubCredentials(in.Body)
				},
			}),
			authHandler.Login)
		// 刷新令牌高频且无业务语义，只计数不落库
		authGroup.POST("/refresh",
			interceptor.Intercept(auditpkg.Metadata{Action: "REFRESH_TOKEN", SkipLogging: true}),
			authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// 业务路由（需要认证）
	apiV1 := router.Group("/api/v1")
	apiV1.Use(auth.AuthMiddleware(jwtService))
	{
		// 优惠管理
		offersGroup := apiV1.Group("/offers")
		{
			offersGroup.POST("",
				interceptor.Intercept(auditpkg.Metadata{
					Action: auditpkg.ActionCreateOffer,
					Table:  "offers",
				}),
				offerHandler.Create)
			offersGroup.GET("", offerHandler.ListActive)
			offersGroup.GET("/mine", offerHandler.Mine)
			offersGroup.GET("/:id", offerHandler.Get)
			offersGroup.PUT("/:id",
				interceptor.Intercept(auditpkg.Metadata{
					Action:        auditpkg.ActionUpdateOffer,
					Table:         "offers",
					RecordIDParam: "id",
					GetOldValues:  auditpkg.SnapshotFromContext,
				}),
				offerHandler.Update)
			offersGroup.DELETE("/:id",
				interceptor.Intercept(auditpkg.Metadata{
					Action:        auditpkg.ActionDeleteOffer,
					Table:         "offers",
					RecordIDParam: "id",
					GetOldValues:  auditpkg.SnapshotFromContext,
				}),
				offerHandler.Delete)
		}

		// 兑换管理
		redemptionsGroup := apiV1.Group("/redemptions")
		{
			redemptionsGroup.POST("",
				interceptor.Intercept(auditpkg.Metadata{
					Action: auditpkg.ActionCreateRedemption,
					Table:  "redemptions",
				}),
				redemptionHandler.Create)
			redemptionsGroup.GET("/mine", redemptionHandler.Mine)
			redemptionsGroup.GET("/:id", redemptionHandler.Get)
		}

		// 个人操作足迹
		apiV1.GET("/audit/my-activity", auditHandler.MyActivity)

		// 管理端路由（仅管理员，附加限流）
		admin := apiV1.Group("/admin")
		admin.Use(auth.RequireRole(auth.RoleAdmin))
		admin.Use(middlewarepkg.RateLimitMiddleware(adminLimiter))
		{
			// 优惠审核
			admin.GET("/offers", offerHandler.AdminList)
			admin.PATCH("/offers/:id/approve",
				interceptor.Intercept(auditpkg.Metadata{
					Action:        auditpkg.ActionApproveOffer,
					Table:         "offers",
					RecordIDParam: "id",
					GetOldValues:  auditpkg.SnapshotFromContext,
				}),
				offerHandler.Approve)
			admin.PATCH("/offers/:id/reject",
				interceptor.Intercept(auditpkg.Metadata{
					Action:        auditpkg.ActionRejectOffer,
					Table:         "offers",
					RecordIDParam: "id",
					GetOldValues:  auditpkg.SnapshotFromContext,
				}),
				offerHandler.Reject)

			// 兑换审核
			admin.GET("/redemptions", redemptionHandler.AdminList)
			admin.PATCH("/redemptions/:id/approve",
				interceptor.Intercept(auditpkg.Metadata{
					Action:        auditpkg.ActionApproveRedemption,
					Table:         "redemptions",
					RecordIDParam: "id",
					GetOldValues:  auditpkg.SnapshotFromContext,
				}),
				redemptionHandler.Approve)
			admin.PATCH("/redemptions/:id/reject",
				interceptor.Intercept(auditpkg.Metadata{
					Action:        auditpkg.ActionRejectRedemption,
					Table:         "redemptions",
					RecordIDParam: "id",
					GetOldValues:  auditpkg.SnapshotFromContext,
				}),
				redemptionHandler.Reject)

			// 审计日志查询与导出
			auditLogs := admin.Group("/audit-logs")
			{
				auditLogs.GET("", auditHandler.ListLogs)
				auditLogs.GET("/statistics", auditHandler.Statistics)
				auditLogs.GET("/actions", auditHandler.Actions)
				auditLogs.GET("/export",
					interceptor.Intercept(auditpkg.Metadata{
						Action:       auditpkg.ActionExportAuditLogs,
						Table:        "audit_entries",
						GetNewValues: exportParams,
					}),
					auditHandler.Export)
				auditLogs.GET("/:id", auditHandler.GetLog)
				auditLogs.GET("/:id/diff", auditHandler.Diff)
			}
		}
	}

	return router
}

// scrubCredentials 复制请求体并剔除口令字段，口令不进入审计记录
func scrubCredentials(body map[string]any) map[string]any {
	if body == nil {
		return nil
	}
	scrubbed := make(map[string]any, len(body))
	for key, value := range body {
		if key == "password" {
			continue
		}
		scrubbed[key] = value
	}
	return scrubbed
}

// exportParams 把导出请求的查询参数留档为审计新值
func exportParams(in *auditpkg.OperationInput) map[string]any {
	if len(in.Query) == 0 {
		return nil
	}
	params := make(map[string]any, len(in.Query))
	for key, values := range in.Query {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params
}
