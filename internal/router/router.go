package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gateway-next/internal/authz"
	"github.com/gateway-next/internal/cache"
	"github.com/gateway-next/internal/config"
	adminhandlers "github.com/gateway-next/internal/http/handlers/admin"
	publichandlers "github.com/gateway-next/internal/http/handlers/public"
	"github.com/gateway-next/internal/http/response"
	"github.com/gateway-next/internal/logger"
	"github.com/gateway-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按商户侧/管理端分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "gw"
	}
	redisClient := cache.Client()
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
		// 商户接口（X-API-Key 鉴权）
		merchant := apiV1.Group("")
		merchant.Use(AppAuthMiddleware(c.AppService))
		{
			merchant.POST("/payments", publicHandler.CreatePayment)
			merchant.GET("/payments/:id", publicHandler.GetPayment)
			merchant.GET("/payments/by-merchant-order/:merchant_order_no", publicHandler.GetPaymentByMerchantOrderNo)
			merchant.POST("/payments/cancel", publicHandler.CancelPayment)
			merchant.GET("/payments/:id/refunds", publicHandler.ListPaymentRefunds)
			merchant.POST("/refunds", publicHandler.CreateRefund)
			merchant.GET("/refunds/:id", publicHandler.GetRefund)
			merchant.POST("/refunds/:id/sync", publicHandler.SyncRefund)
		}

		// 提供方回调端点（验签鉴权）
		callbacks := apiV1.Group("/callbacks")
		{
			callbacks.POST("/stripe", publicHandler.StripeCallback)
			callbacks.POST("/alipay", publicHandler.AlipayCallback)
			callbacks.POST("/wechatpay", publicHandler.WechatPayCallback)
		}

		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			// 登录与验证码（无需鉴权）
			admin.POST("/login", RateLimitMiddleware(redisClient, adminLoginRule, KeyByIPAndJSONField("username")), adminHandler.AdminLogin)
			admin.GET("/captcha", adminHandler.GetCaptcha)

			// 仅需 JWT 的自身操作
			authed := admin.Group("")
			authed.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.AdminRepo))
			{
				authed.GET("/profile", adminHandler.GetProfile)
				authed.POST("/change-password", adminHandler.ChangeAdminPassword)
				authed.GET("/authz/me", adminHandler.GetAuthzMe)
			}

			// 需要 JWT + RBAC 的接口
			authorized := admin.Group("")
			authorized.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.AdminRepo), AdminRBACMiddleware(c.AuthzService))
			{
				// 应用管理
				authorized.POST("/apps", adminHandler.CreateApp)
				authorized.GET("/apps", adminHandler.GetAdminApps)
				authorized.GET("/apps/:id", adminHandler.GetAdminApp)
				authorized.PATCH("/apps/:id/status", adminHandler.UpdateAppStatus)
				authorized.DELETE("/apps/:id", adminHandler.DeleteApp)

				// 支付单
				authorized.GET("/payments", adminHandler.GetAdminPayments)
				authorized.GET("/payments/:id", adminHandler.GetAdminPayment)
				authorized.POST("/payments/:id/test-success", adminHandler.TestPaymentSuccess)
				authorized.GET("/payments/:id/refunds", adminHandler.GetAdminPaymentRefunds)

				// 退款单
				authorized.POST("/refunds", adminHandler.CreateAdminRefund)
				authorized.GET("/refunds", adminHandler.GetAdminRefunds)
				authorized.GET("/refunds/:id", adminHandler.GetAdminRefund)
				authorized.POST("/refunds/:id/sync", adminHandler.SyncAdminRefund)

				// 回调入站记录
				authorized.GET("/callbacks", adminHandler.GetAdminCallbacks)

				// 出站通知
				authorized.GET("/deliveries", adminHandler.GetAdminDeliveries)
				authorized.GET("/deliveries/:id", adminHandler.GetAdminDelivery)
				authorized.POST("/deliveries/:id/redeliver", adminHandler.RedeliverAdminDelivery)

				// 权限管理
				authorized.GET("/authz/roles", adminHandler.ListAuthzRoles)
				authorized.POST("/authz/roles", adminHandler.CreateAuthzRole)
				authorized.DELETE("/authz/roles/:role", adminHandler.DeleteAuthzRole)
				authorized.GET("/authz/roles/:role/policies", adminHandler.GetAuthzRolePolicies)
				authorized.POST("/authz/policies", adminHandler.GrantAuthzPolicy)
				authorized.DELETE("/authz/policies", adminHandler.RevokeAuthzPolicy)
				authorized.GET("/authz/admins/:id/roles", adminHandler.GetAuthzAdminRoles)
				authorized.PUT("/authz/admins/:id/roles", adminHandler.SetAuthzAdminRoles)
				authorized.GET("/authz/permissions/catalog", func(ctx *gin.Context) {
					response.Success(ctx, buildAdminPermissionCatalog(r))
				})
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

type adminPermissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

func buildAdminPermissionCatalog(engine *gin.Engine) []adminPermissionCatalogItem {
	if engine == nil {
		return []adminPermissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]adminPermissionCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") {
			continue
		}
		if item.Path == "/api/v1/admin/login" || item.Path == "/api/v1/admin/captcha" {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, adminPermissionCatalogItem{
			Module:     deriveAdminPermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func deriveAdminPermissionModule(object string) string {
	normalized := strings.TrimPrefix(strings.TrimSpace(object), "/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	if len(segments) <= 1 {
		return segments[0]
	}
	if segments[0] != "admin" {
		return segments[0]
	}
	if segments[1] == "authz" {
		return "authz"
	}
	return segments[1]
}
