package service

import "errors"

// 应用管理错误
var (
	ErrAppNotFound     = errors.New("app not found")
	ErrAppNameExists   = errors.New("app name already exists")
	ErrAppInUse        = errors.New("app has payments and cannot be deleted")
	ErrAPIKeyGenFailed = errors.New("api key generation failed")
)

// 支付错误
var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentOrderNotFound = errors.New("payment not found by merchant order no")
	ErrPaymentConflict      = errors.New("merchant order no already used with different parameters")
	ErrPaymentRaceConflict  = errors.New("concurrent create race with different parameters")
	ErrPaymentNotCancelable = errors.New("payment is not cancelable")
	ErrPaymentInvalid       = errors.New("payment parameters invalid")
	ErrUnsupportedProvider  = errors.New("unsupported payment provider")
	ErrUnsupportedCurrency  = errors.New("unsupported currency")
)

// 提供方调用错误
var (
	ErrProviderCallFailed     = errors.New("provider call failed")
	ErrProviderCancelRejected = errors.New("provider rejected cancel")
)

// 退款错误
var (
	ErrRefundNotFound          = errors.New("refund not found")
	ErrRefundPaymentNotFound   = errors.New("refund target payment not found")
	ErrRefundNotSucceeded      = errors.New("payment is not in succeeded status")
	ErrRefundAmountExceeded    = errors.New("refund amount exceeds payment amount")
	ErrRefundCapExceeded       = errors.New("cumulative refund amount exceeds payment amount")
	ErrRefundNoProviderID      = errors.New("refund has no provider refund id")
	ErrRefundSyncUnsupported   = errors.New("provider does not support refund status query")
	ErrRefundCreateUnsupported = errors.New("provider does not support refund create")
)

// 测试支付错误
var (
	ErrTestPaymentNotFound  = errors.New("test target payment not found")
	ErrTestSuccessNoTxnID   = errors.New("payment has no provider txn id")
	ErrTestSuccessNotStripe = errors.New("test success only supports stripe payments")
	ErrTestCallbackFailed   = errors.New("test callback processing failed")
)

// 出站通知错误
var (
	ErrDeliveryNotFound = errors.New("webhook delivery not found")
)

// 管理端认证错误
var (
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrAdminNotFound        = errors.New("admin not found")
	ErrInvalidPassword      = errors.New("invalid old password")
	ErrWeakPassword         = errors.New("password does not meet policy")
	ErrCaptchaInvalid       = errors.New("captcha invalid")
	ErrCaptchaRequired      = errors.New("captcha required")
	ErrCaptchaConfigInvalid = errors.New("captcha not enabled")
)
