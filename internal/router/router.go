package router

import (
	"fmt"
	"strings"

	"github.com/daan-setu/internal/cache"
	"github.com/daan-setu/internal/config"
	adminhandlers "github.com/daan-setu/internal/http/handlers/admin"
	publichandlers "github.com/daan-setu/internal/http/handlers/public"
	"github.com/daan-setu/internal/logger"
	"github.com/daan-setu/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按前台/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "ds"
	}
	redisClient := cache.Client()
	loginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
	}
	adminLoginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin_login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		public := apiV1.Group("/public")
		{
			public.GET("/captcha/image", publicHandler.GetCaptcha)
		}

		// 用户认证接口
		auth := apiV1.Group("/auth")
		{
			auth.POST("/register", publicHandler.Register)
			auth.POST("/login", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("email")), publicHandler.Login)
		}

		// 用户接口（需鉴权）
		user := apiV1.Group("")
		user.Use(UserJWTAuthMiddleware(cfg.UserJWT.SecretKey, c.UserRepo))
		{
			user.GET("/me", publicHandler.Me)
			user.GET("/me/donations", publicHandler.ListMyDonations)
			user.GET("/me/donations/:donation_no", publicHandler.GetMyDonation)
			user.POST("/donations", publicHandler.CreateDonation)
			user.POST("/payments/payu/initiate", publicHandler.InitiatePayment)
		}

		// 网关回调（无鉴权，签名即凭证；GET 为取消返回）
		apiV1.POST("/payments/payu/callback", publicHandler.PaymentCallback)
		apiV1.GET("/payments/payu/callback", publicHandler.PaymentCallbackCancel)

		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			// 登录接口（无需鉴权）
			admin.POST("/login", RateLimitMiddleware(redisClient, adminLoginRule, KeyByIP), adminHandler.AdminLogin)

			// 需要鉴权的接口
			authorized := admin.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.AdminRepo))
			{
				authorized.GET("/me", adminHandler.GetAdminMe)
				authorized.GET("/stats", adminHandler.GetAdminStats)
				authorized.GET("/donations", adminHandler.GetAdminDonations)
				authorized.GET("/donations/:donation_no", adminHandler.GetAdminDonation)
				authorized.GET("/registrations", adminHandler.GetAdminRegistrations)
			}
		}
	}

	return r
}
