package constants

// 支付提供方常量
const (
	ProviderStripe    = "stripe"
	ProviderAlipay    = "alipay"
	ProviderWechatPay = "wechatpay"
)

// 支持的支付提供方顺序
var SupportedProviders = []string{ProviderStripe, ProviderAlipay, ProviderWechatPay}

// 支付状态常量
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
	PaymentStatusCanceled  = "canceled"
)

// 退款状态常量
const (
	RefundStatusPending   = "pending"
	RefundStatusSucceeded = "succeeded"
	RefundStatusFailed    = "failed"
	RefundStatusCanceled  = "canceled"
)

// 回调入站状态常量
const (
	CallbackStatusReceived   = "received"
	CallbackStatusProcessing = "processing"
	CallbackStatusProcessed  = "processed"
	CallbackStatusFailed     = "failed"
)

// 出站通知状态常量
const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusProcessing = "processing"
	DeliveryStatusSucceeded  = "succeeded"
	DeliveryStatusFailed     = "failed"
	DeliveryStatusDead       = "dead"
)

// 回调事件统一结果常量
const (
	OutcomeSucceeded       = "succeeded"
	OutcomeFailed          = "failed"
	OutcomeCanceled        = "canceled"
	OutcomeExpired         = "expired"
	OutcomePending         = "pending"
	OutcomeRefundSucceeded = "refund_succeeded"
	OutcomeRefundFailed    = "refund_failed"
	OutcomeRefundPending   = "refund_pending"
	OutcomeRefundCanceled  = "refund_canceled"
)

// 支付交互方式常量
const (
	PayTypeRedirect     = "redirect"
	PayTypeForm         = "form"
	PayTypeQR           = "qr"
	PayTypeClientSecret = "client_secret"
)

// 币种常量
const (
	CurrencyUSD = "USD"
	CurrencyCNY = "CNY"
	CurrencyHKD = "HKD"
	CurrencyKRW = "KRW"
	CurrencyTHB = "THB"
	CurrencyEUR = "EUR"
	CurrencyGBP = "GBP"
	CurrencyJPY = "JPY"
	CurrencyINR = "INR"
)

// 支持的币种顺序
var SupportedCurrencies = []string{
	CurrencyUSD, CurrencyCNY, CurrencyHKD, CurrencyKRW, CurrencyTHB,
	CurrencyEUR, CurrencyGBP, CurrencyJPY, CurrencyINR,
}

// 支付过期时间边界（分钟）
const (
	PaymentExpireMinutesMin = 1
	PaymentExpireMinutesMax = 1440
)

// 出站通知事件类型前缀与回调路径后缀常量
const (
	EventTypePaymentPrefix    = "payment."
	EventTypeRefundPrefix     = "refund."
	NotifyPathSuffixPayment   = "/callback/payment"
	NotifyPathSuffixRefund    = "/callback/refund"
	DeliveryLastErrorMaxChars = 200
)

// 支付宝回调常量
const (
	AlipayTradeStatusSuccess      = "TRADE_SUCCESS"
	AlipayTradeStatusFinished     = "TRADE_FINISHED"
	AlipayTradeStatusClosed       = "TRADE_CLOSED"
	AlipayTradeStatusWaitBuyerPay = "WAIT_BUYER_PAY"
	AlipayCallbackSuccess         = "success"
	AlipayCallbackFail            = "fail"
)

// 队列常量
const (
	QueueDefault             = "default"
	TaskPaymentTimeoutExpire = "payment:timeout_expire"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "gw"
)

// 验证码提供方常量
const (
	CaptchaProviderNone  = "none"
	CaptchaProviderImage = "image"
)

// API Key 前缀常量
const (
	APIKeyPrefix = "sk_"
)
