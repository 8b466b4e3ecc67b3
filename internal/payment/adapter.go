package payment

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrProviderNotConfigured 提供方未配置（已知提供方但缺少可用配置）
	ErrProviderNotConfigured = errors.New("payment provider not configured")
	// ErrNotImplemented 提供方不支持该操作
	ErrNotImplemented = errors.New("payment operation not implemented")
	// ErrUnsupportedEvent 提供方回调事件不在处理范围内，入站端点据此忽略而非报错
	ErrUnsupportedEvent = errors.New("payment callback event unsupported")
)

// CreatePaymentRequest 统一下单输入（金额为最小货币单位）。
type CreatePaymentRequest struct {
	PaymentID       uint
	MerchantOrderNo string
	UnitAmount      int64
	Quantity        int
	Amount          int64
	Currency        string
	ProductName     string
	ProductDesc     string
	ExpireMinutes   int
	SuccessURL      string
	CancelURL       string
	ClientIP        string
	Metadata        map[string]string
}

// CreatePaymentResult 统一下单返回。
type CreatePaymentResult struct {
	PayType       string // redirect / form / qr / client_secret
	Payload       map[string]interface{}
	ProviderTxnID string
	Raw           map[string]interface{}
}

// CancelPaymentRequest 关单输入。
type CancelPaymentRequest struct {
	PaymentID       uint
	MerchantOrderNo string
	ProviderTxnID   string
}

// CancelPaymentResult 关单返回。提供方拒绝关单不是错误，
// 以 Success=false 携带提供方的码与消息返回。
type CancelPaymentResult struct {
	Success bool
	Code    string
	Message string
	Raw     map[string]interface{}
}

// CreateRefundRequest 退款输入（金额为最小货币单位）。
type CreateRefundRequest struct {
	RefundID        uint
	PaymentID       uint
	MerchantOrderNo string
	ProviderTxnID   string
	RefundAmount    int64
	TotalAmount     int64
	Currency        string
	Reason          string
}

// GetRefundRequest 退款查询输入，各提供方按需取字段。
type GetRefundRequest struct {
	RefundID         uint
	ProviderRefundID string
	ProviderTxnID    string
	MerchantOrderNo  string
}

// RefundResult 退款创建/查询返回，Status 使用网关退款状态词汇。
type RefundResult struct {
	ProviderRefundID string
	Status           string // pending / succeeded / failed / canceled
	Raw              map[string]interface{}
}

// CallbackEvent 回调验签解析后的规范化事件。
// Outcome 只使用规范词汇：succeeded / failed / canceled / expired / pending /
// refund_succeeded / refund_failed / refund_pending / refund_canceled。
// 退款事件的 ProviderTxnID 携带提供方退款单号。
type CallbackEvent struct {
	Provider        string
	ProviderEventID string
	ProviderTxnID   string
	MerchantOrderNo string
	Outcome         string
	RawPayload      map[string]interface{}
}

// IsRefundOutcome 事件结果是否属于退款域
func (e *CallbackEvent) IsRefundOutcome() bool {
	return strings.HasPrefix(e.Outcome, "refund_")
}

// Adapter 支付提供方适配器。启动时按配置构建一次，经 Registry 取用。
type Adapter interface {
	Provider() string
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error)
	CancelPayment(ctx context.Context, req CancelPaymentRequest) (*CancelPaymentResult, error)
	CreateRefund(ctx context.Context, req CreateRefundRequest) (*RefundResult, error)
	GetRefund(ctx context.Context, req GetRefundRequest) (*RefundResult, error)
	ParseCallback(ctx context.Context, headers http.Header, body []byte) (*CallbackEvent, error)
}

// Registry 已配置提供方的适配器集合。
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register 注册适配器（同名覆盖）
func (r *Registry) Register(adapter Adapter) {
	if adapter == nil {
		return
	}
	name := strings.ToLower(strings.TrimSpace(adapter.Provider()))
	if name == "" {
		return
	}
	r.adapters[name] = adapter
}

// Get 按提供方名取适配器，未配置返回 ErrProviderNotConfigured
func (r *Registry) Get(provider string) (Adapter, error) {
	name := strings.ToLower(strings.TrimSpace(provider))
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, ErrProviderNotConfigured
	}
	return adapter, nil
}

// Providers 已注册提供方名列表（排序后）
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
