package response

// 业务状态码。0 表示成功；三位码与 HTTP 状态一一对应；
// 四位码细分业务场景，HTTP 状态取前三位（code/10）。
const (
	CodeOK = 0

	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeForbidden       = 403
	CodeNotFound        = 404
	CodeConflict        = 409
	CodeValidation      = 422
	CodeTooManyRequests = 429
	CodeInternal        = 500
	CodeProviderError   = 502
	CodeUnavailable     = 503
)

// 退款与应用管理细分码
const (
	CodeRefundNotSucceeded     = 4001 // 支付单不是 succeeded 状态
	CodeRefundAmountExceeded   = 4002 // 单笔退款金额超过支付金额
	CodeRefundCapExceeded      = 4003 // 累计退款金额超过支付金额
	CodeUnsupportedProvider    = 4004 // 不支持的支付提供方
	CodeRefundSyncNoProviderID = 4005 // 退款单缺少第三方退款单号
	CodeTestSuccessNoTxnID     = 4006 // 测试支付缺少第三方交易号
	CodeTestSuccessNotStripe   = 4007 // 测试支付仅支持 stripe
	CodeAppNameExists          = 4008 // 应用名称已存在
)

// 未找到细分码
const (
	CodePaymentNotFound       = 4041 // 按 ID 查支付单未找到
	CodePaymentOrderNotFound  = 4042 // 按商户订单号查支付单未找到
	CodeRefundPaymentNotFound = 4043 // 退款目标支付单未找到
	CodeRefundNotFound        = 4044 // 按 ID 查退款单未找到
	CodeRefundSyncNotFound    = 4045 // 同步目标退款单未找到
	CodeTestPaymentNotFound   = 4046 // 测试目标支付单未找到
)

// 冲突细分码
const (
	CodePaymentConflict     = 4091 // 商户订单号重复且参数不一致
	CodePaymentRaceConflict = 4092 // 并发创建竞争后参数不一致
)

// 内部错误细分码
const (
	CodeRefundCreateInternal = 5001 // 退款创建内部错误
	CodeRefundSyncInternal   = 5002 // 退款同步内部错误
	CodeTestCallbackFailed   = 5003 // 测试回调处理失败
	CodeAPIKeyGenFailed      = 5004 // API 密钥生成失败
)

// 提供方错误细分码
const (
	CodeProviderCancelError    = 5021 // 取消请求到达提供方失败
	CodeProviderCancelRejected = 5022 // 提供方拒绝取消
)

// 服务不可用细分码
const (
	CodeProviderNotConfigured      = 5030 // 提供方未配置
	CodeRefundUnsupportedAlipay    = 5031 // 支付宝退款不可用
	CodeRefundUnsupportedWechatPay = 5032 // 微信退款不可用
	CodeRefundSyncUnsupported      = 5033 // 该提供方不支持退款状态同步
)
