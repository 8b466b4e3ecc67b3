package provider

import (
	"strings"
	"time"

	"github.com/gateway-next/internal/authz"
	"github.com/gateway-next/internal/cache"
	"github.com/gateway-next/internal/config"
	"github.com/gateway-next/internal/logger"
	"github.com/gateway-next/internal/models"
	"github.com/gateway-next/internal/payment"
	"github.com/gateway-next/internal/payment/alipay"
	"github.com/gateway-next/internal/payment/stripe"
	"github.com/gateway-next/internal/payment/wechatpay"
	"github.com/gateway-next/internal/queue"
	"github.com/gateway-next/internal/repository"
	"github.com/gateway-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Registry    *payment.Registry

	// Repositories
	AdminRepo    repository.AdminRepository
	AppRepo      repository.AppRepository
	PaymentRepo  repository.PaymentRepository
	RefundRepo   repository.RefundRepository
	CallbackRepo repository.CallbackRepository
	DeliveryRepo repository.WebhookDeliveryRepository

	// Services
	AuthzService    *authz.Service
	AuthService     *service.AuthService
	CaptchaService  *service.CaptchaService
	AppService      *service.AppService
	PaymentService  *service.PaymentService
	RefundService   *service.RefundService
	CallbackService *service.CallbackService
	DeliveryService *service.DeliveryService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 构建提供方适配器注册表
	c.Registry = buildRegistry(&cfg.Providers)

	// 3. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.AppRepo = repository.NewAppRepository(db)
	c.PaymentRepo = repository.NewPaymentRepository(db)
	c.RefundRepo = repository.NewRefundRepository(db)
	c.CallbackRepo = repository.NewCallbackRepository(db)
	c.DeliveryRepo = repository.NewWebhookDeliveryRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo)
	c.CaptchaService = service.NewCaptchaService(c.Config.Captcha)
	c.AppService = service.NewAppService(c.AppRepo, c.PaymentRepo)
	c.DeliveryService = service.NewDeliveryService(
		c.DeliveryRepo,
		c.AppRepo,
		c.PaymentRepo,
		time.Duration(c.Config.Delivery.HTTPTimeoutSeconds)*time.Second,
		c.Config.Delivery.MaxRetries,
		c.Config.Delivery.BatchSize,
	)
	c.PaymentService = service.NewPaymentService(c.PaymentRepo, c.AppRepo, c.Registry, c.QueueClient, c.DeliveryService, c.Config.Payment.ExpireMinutesDefault)
	c.RefundService = service.NewRefundService(c.RefundRepo, c.PaymentRepo, c.Registry, c.DeliveryService)
	c.CallbackService = service.NewCallbackService(c.CallbackRepo, c.PaymentRepo, c.RefundRepo, c.DeliveryService)
}

// buildRegistry 按配置构建已启用提供方的适配器注册表。
// 配置不完整的提供方跳过并告警，不阻断启动。
func buildRegistry(cfg *config.ProvidersConfig) *payment.Registry {
	registry := payment.NewRegistry()
	if cfg == nil {
		return registry
	}

	if strings.TrimSpace(cfg.Stripe.SecretKey) != "" {
		adapter, err := stripe.New(stripe.Config{
			SecretKey:               cfg.Stripe.SecretKey,
			WebhookSecret:           cfg.Stripe.WebhookSecret,
			WebhookToleranceSeconds: cfg.Stripe.WebhookToleranceSeconds,
			APIBaseURL:              cfg.Stripe.APIBase,
			SuccessURL:              cfg.Stripe.SuccessURL,
			CancelURL:               cfg.Stripe.CancelURL,
			PaymentMethodTypes:      cfg.Stripe.PaymentMethods,
		})
		if err != nil {
			logger.Warnw("provider_stripe_init_failed", "error", err)
		} else {
			registry.Register(adapter)
		}
	}

	if strings.TrimSpace(cfg.Alipay.AppID) != "" {
		adapter, err := alipay.New(alipay.Config{
			AppID:           cfg.Alipay.AppID,
			PrivateKey:      cfg.Alipay.PrivateKey,
			AlipayPublicKey: cfg.Alipay.PublicKey,
			GatewayURL:      cfg.Alipay.GatewayURL,
			NotifyURL:       cfg.Alipay.NotifyURL,
			ReturnURL:       cfg.Alipay.ReturnURL,
			SignType:        cfg.Alipay.SignType,
			Mode:            cfg.Alipay.Mode,
		})
		if err != nil {
			logger.Warnw("provider_alipay_init_failed", "error", err)
		} else {
			registry.Register(adapter)
		}
	}

	if strings.TrimSpace(cfg.WechatPay.MchID) != "" {
		adapter, err := wechatpay.New(wechatpay.Config{
			AppID:              cfg.WechatPay.AppID,
			MerchantID:         cfg.WechatPay.MchID,
			MerchantSerialNo:   cfg.WechatPay.CertSerial,
			MerchantPrivateKey: cfg.WechatPay.PrivateKey,
			APIV3Key:           cfg.WechatPay.APIv3Key,
			NotifyURL:          cfg.WechatPay.NotifyURL,
			H5RedirectURL:      cfg.WechatPay.H5RedirectURL,
			Mode:               cfg.WechatPay.Mode,
		})
		if err != nil {
			logger.Warnw("provider_wechatpay_init_failed", "error", err)
		} else {
			registry.Register(adapter)
		}
	}

	logger.Infow("provider_registry_ready", "providers", registry.Providers())
	return registry
}
