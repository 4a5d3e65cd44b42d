package router

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"skill-swap/backend/config"
	"skill-swap/backend/internal/api/handler"
	"skill-swap/backend/internal/api/middleware"
	"skill-swap/backend/internal/model"
	"skill-swap/backend/pkg/jwt"
	"skill-swap/backend/pkg/metrics"
	"skill-swap/backend/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时 Token 黑名单检查关闭、限流降级为进程内
// ctx 取消时停止路由持有的后台任务（本地限流清理）
func Setup(ctx context.Context, cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, sqlDB *sql.DB, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 避免 nil 指针被包装成非 nil 接口
	var checker middleware.TokenChecker
	if rdb != nil {
		checker = rdb
	}

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	r.Use(metrics.Middleware())

	// ── 健康检查与监控 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{"database": "ok", "redis": "disabled"}
		code := http.StatusOK
		if sqlDB != nil {
			if err := sqlDB.PingContext(ctx); err != nil {
				status["database"] = "down"
				code = http.StatusServiceUnavailable
			}
		}
		if rdb != nil {
			// Redis 可降级，不影响就绪状态
			status["redis"] = "ok"
			if err := rdb.Ping(ctx); err != nil {
				status["redis"] = "down"
			}
		}
		c.JSON(code, status)
	})
	r.GET("/metrics", metrics.Handler())

	writeLimit := middleware.RateLimit(ctx, rdb, cfg.Server.RateLimit.Limit, cfg.Server.RateLimit.Window, logger)
	requireAuth := middleware.JWTAuth(jwtMgr, checker, logger)
	optionalAuth := middleware.OptionalAuth(jwtMgr, checker, logger)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/signup", writeLimit, h.Auth.SignUp)
			auth.POST("/signin", writeLimit, h.Auth.SignIn)
			auth.POST("/refresh", writeLimit, h.Auth.Refresh)
			auth.POST("/resend", writeLimit, h.Auth.ResendConfirmation)
			auth.GET("/confirm", h.Auth.Confirm)
		}

		// 公开浏览（登录后附带待处理申请标记）
		public := v1.Group("")
		public.Use(optionalAuth)
		{
			public.GET("/profiles", h.Profile.List)
			public.GET("/profiles/:id", h.Profile.Get)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(requireAuth)
		{
			authorized.POST("/auth/signout", h.Auth.SignOut)
			authorized.GET("/auth/me", h.Auth.Me)

			// 本人档案
			profile := authorized.Group("/profile")
			{
				profile.GET("", h.Profile.GetMine)
				profile.PUT("", writeLimit, h.Profile.Upsert)
				profile.PUT("/picture", writeLimit, h.Profile.UploadPicture)
				profile.DELETE("/picture", h.Profile.DeletePicture)
				profile.GET("/preferences", h.Profile.GetPreferences)
				profile.PUT("/preferences", h.Profile.UpdatePreferences)
			}

			// 换技能申请
			swaps := authorized.Group("/swap-requests")
			{
				swaps.GET("", h.Swap.List)
				swaps.POST("", writeLimit, h.Swap.Create)
				swaps.GET("/pending-recipients", h.Swap.PendingRecipients)
				swaps.GET("/:id", h.Swap.Get)
				swaps.PATCH("/:id", writeLimit, h.Swap.Respond)
				swaps.DELETE("/:id", writeLimit, h.Swap.Withdraw)
			}

			// 实时变更推送（WebSocket，Token 可放在 access_token 查询参数）
			authorized.GET("/realtime", h.Realtime.Subscribe)

			// 管理端
			admin := authorized.Group("/admin")
			admin.Use(middleware.RoleAuth(model.RoleAdmin))
			{
				admin.GET("/overview", h.Admin.Overview)
				admin.GET("/profiles", h.Admin.Profiles)
				admin.DELETE("/profiles/:id", h.Admin.DeleteProfile)
				admin.GET("/requests", h.Admin.Requests)
				admin.DELETE("/requests/:id", h.Admin.DeleteRequest)
				admin.POST("/requests/:id/notify", writeLimit, h.Admin.TriggerNotification)
				admin.GET("/notifications", h.Admin.Notifications)
				admin.GET("/export/requests", h.Export.ExportRequests)
			}
		}
	}

	return r
}
