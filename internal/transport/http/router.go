package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmail/backend/internal/auth"
	"webmail/backend/internal/config"
	"webmail/backend/internal/health"
	"webmail/backend/internal/middleware"
	"webmail/backend/internal/monitoring"
	"webmail/backend/internal/service"
	"webmail/backend/internal/websocket"
)

const maxBodyBytes = 1 << 20

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config           *config.Config
	AuthService      *auth.Service
	MailService      *service.MailService
	LabelService     *service.LabelService
	BlacklistService *service.BlacklistService
	WebSocketHub     *websocket.Hub          // 可选
	Health           *health.HealthChecker   // 可选
	Metrics          *monitoring.Metrics     // 可选
	RateLimiter      *middleware.RateLimiter // 可选
	Logger           *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(middleware.Recovery(log, deps.Metrics))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.HTTPMetrics(deps.Metrics))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(maxBodyBytes))
	router.Use(gincors.New(corsConfig(deps.Config.CORS.AllowedOrigins)))

	authHandler := NewAuthHandler(deps.AuthService, log)
	mailHandler := NewMailHandler(deps.MailService, log)
	labelHandler := NewLabelHandler(deps.LabelService, log)
	blacklistHandler := NewBlacklistHandler(deps.BlacklistService, log)

	jwtAuth := middleware.NewJWTAuth(deps.AuthService, log)
	requireAuth := jwtAuth.RequireAuth()
	limit := func(c *gin.Context) { c.Next() }
	if deps.RateLimiter != nil {
		limit = deps.RateLimiter.Middleware()
	}

	// 健康检查与指标
	router.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		c.JSON(http.StatusOK, deps.Health.CheckHealth())
	})
	if deps.Health != nil {
		probes := gin.WrapH(http.StripPrefix("/health", deps.Health.Handler()))
		router.GET("/health/live", probes)
		router.GET("/health/ready", probes)
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	v1 := router.Group("/v1")
	{
		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth")
		authRoutes.Use(limit)
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh", authHandler.Refresh)
			authRoutes.POST("/logout", requireAuth, authHandler.Logout)
			authRoutes.GET("/me", requireAuth, authHandler.Me)
		}

		// 以下路由都需要认证，限流按用户计算
		protected := v1.Group("")
		protected.Use(requireAuth, limit)

		// ========== Mail Routes ==========
		mailRoutes := protected.Group("/mails")
		{
			mailRoutes.GET("", mailHandler.ListMails)
			mailRoutes.POST("", mailHandler.SendMail)
			mailRoutes.GET("/search", mailHandler.SearchMails)
			mailRoutes.GET("/:id", mailHandler.GetMail)
			mailRoutes.DELETE("/:id", mailHandler.DeleteMail)
		}

		// ========== Draft Routes ==========
		draftRoutes := protected.Group("/drafts")
		{
			draftRoutes.GET("", mailHandler.ListDrafts)
			draftRoutes.POST("", mailHandler.CreateDraft)
			draftRoutes.GET("/:id", mailHandler.GetDraft)
			draftRoutes.PATCH("/:id", mailHandler.UpdateDraft)
			draftRoutes.DELETE("/:id", mailHandler.DeleteDraft)
		}

		// ========== Label Routes ==========
		labelRoutes := protected.Group("/labels")
		{
			labelRoutes.GET("", labelHandler.ListLabels)
			labelRoutes.POST("", labelHandler.CreateLabel)
			labelRoutes.GET("/:id", labelHandler.GetLabel)
			labelRoutes.PATCH("/:id", labelHandler.UpdateLabel)
			labelRoutes.DELETE("/:id", labelHandler.DeleteLabel)
			labelRoutes.GET("/:id/mails", labelHandler.ListLabelMails)
			labelRoutes.POST("/:id/mails/:mailId", labelHandler.AddMail)
			labelRoutes.DELETE("/:id/mails/:mailId", labelHandler.RemoveMail)
		}

		// ========== Blacklist Routes ==========
		blacklistRoutes := protected.Group("/blacklist")
		{
			blacklistRoutes.GET("", blacklistHandler.Check)
			admins := middleware.RequireCaller(deps.Config.Blacklist.Admins)
			blacklistRoutes.POST("", admins, blacklistHandler.Add)
			blacklistRoutes.DELETE("", admins, blacklistHandler.Remove)
		}

		// ========== WebSocket Routes ==========
		if deps.WebSocketHub != nil {
			v1.GET("/ws", deps.WebSocketHub.Handler())
		}
	}

	return router
}

func corsConfig(origins []string) gincors.Config {
	cfg := gincors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}
	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range cfg.AllowOrigins {
		if origin == "*" {
			cfg.AllowCredentials = false
			break
		}
	}
	return cfg
}
