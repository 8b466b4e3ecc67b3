package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gateway-next/internal/constants"
	"github.com/gateway-next/internal/payment"
)

var (
	ErrConfigInvalid    = errors.New("stripe config invalid")
	ErrRequestFailed    = errors.New("stripe request failed")
	ErrResponseInvalid  = errors.New("stripe response invalid")
	ErrSignatureInvalid = errors.New("stripe signature invalid")
	ErrUnsupportedEvent = fmt.Errorf("stripe: %w", payment.ErrUnsupportedEvent)
)

const (
	defaultAPIBaseURL        = "https://api.stripe.com"
	defaultTimeout           = 12 * time.Second
	defaultWebhookToleranceS = 300
	defaultSuccessURL        = "https://example.com/success?session_id={CHECKOUT_SESSION_ID}"
	defaultCancelURL         = "https://example.com/cancel"

	// Checkout 字段长度限制
	maxProductNameChars = 250
	maxProductDescChars = 500

	// Session 过期区间（秒）
	minExpireSeconds = 1800
	maxExpireSeconds = 86400
)

// Config Stripe 渠道配置。
type Config struct {
	SecretKey               string
	WebhookSecret           string
	WebhookToleranceSeconds int
	APIBaseURL              string
	SuccessURL              string
	CancelURL               string
	PaymentMethodTypes      []string
}

// Adapter Stripe 适配器（托管 Checkout + Refunds API）。
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New 构建 Stripe 适配器
func New(cfg Config) (*Adapter, error) {
	cfg.normalize()
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: defaultTimeout},
	}, nil
}

// Provider 提供方名
func (a *Adapter) Provider() string {
	return constants.ProviderStripe
}

// CreatePayment 创建 Checkout Session（托管收银台）。
// 提供方对支付方式列表报错时回退为仅 card 重试一次。
func (a *Adapter) CreatePayment(ctx context.Context, req payment.CreatePaymentRequest) (*payment.CreatePaymentResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req.MerchantOrderNo = strings.TrimSpace(req.MerchantOrderNo)
	if req.MerchantOrderNo == "" {
		return nil, fmt.Errorf("%w: merchant_order_no is required", ErrConfigInvalid)
	}
	if req.UnitAmount <= 0 || req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: amount is invalid", ErrConfigInvalid)
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrConfigInvalid)
	}

	methodTypes := a.cfg.PaymentMethodTypes
	form := a.buildSessionForm(req, currency, methodTypes, time.Now())
	raw, statusCode, err := a.doForm(ctx, http.MethodPost, "/v1/checkout/sessions", form)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		message := readErrorMessage(raw)
		// 支付方式不被该账号支持时回退为仅 card
		if strings.Contains(strings.ToLower(message), "payment_method") && !isCardOnly(methodTypes) {
			form = a.buildSessionForm(req, currency, []string{"card"}, time.Now())
			raw, statusCode, err = a.doForm(ctx, http.MethodPost, "/v1/checkout/sessions", form)
			if err != nil {
				return nil, err
			}
		}
		if statusCode < 200 || statusCode >= 300 {
			return nil, fmt.Errorf("%w: create checkout session status %d: %s", ErrResponseInvalid, statusCode, readErrorMessage(raw))
		}
	}

	sessionID := strings.TrimSpace(readString(raw, "id"))
	checkoutURL := strings.TrimSpace(readString(raw, "url"))
	if sessionID == "" || checkoutURL == "" {
		return nil, fmt.Errorf("%w: missing session id or url", ErrResponseInvalid)
	}
	return &payment.CreatePaymentResult{
		PayType: constants.PayTypeRedirect,
		Payload: map[string]interface{}{
			"checkout_url": checkoutURL,
			"session_id":   sessionID,
		},
		ProviderTxnID: readPaymentIntentID(raw),
		Raw:           raw,
	}, nil
}

// CancelPayment 取消 PaymentIntent。
// 缺少交易号或提供方状态不允许取消时以 Success=false 返回，不作为错误。
func (a *Adapter) CancelPayment(ctx context.Context, req payment.CancelPaymentRequest) (*payment.CancelPaymentResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	paymentIntentID := strings.TrimSpace(req.ProviderTxnID)
	if paymentIntentID == "" {
		return &payment.CancelPaymentResult{
			Success: false,
			Code:    "missing_payment_intent",
			Message: "provider_txn_id (PaymentIntent id) is required to cancel",
		}, nil
	}

	form := url.Values{}
	form.Set("cancellation_reason", "requested_by_customer")
	path := "/v1/payment_intents/" + url.PathEscape(paymentIntentID) + "/cancel"
	raw, statusCode, err := a.doForm(ctx, http.MethodPost, path, form)
	if err != nil {
		return nil, err
	}
	if statusCode >= 200 && statusCode < 300 {
		return &payment.CancelPaymentResult{Success: true, Raw: raw}, nil
	}
	if statusCode >= 400 && statusCode < 500 {
		// 已完成或状态不允许取消
		return &payment.CancelPaymentResult{
			Success: false,
			Code:    readErrorCode(raw),
			Message: readErrorMessage(raw),
			Raw:     raw,
		}, nil
	}
	return nil, fmt.Errorf("%w: cancel payment intent status %d", ErrResponseInvalid, statusCode)
}

// CreateRefund 创建退款。
func (a *Adapter) CreateRefund(ctx context.Context, req payment.CreateRefundRequest) (*payment.RefundResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	paymentIntentID := strings.TrimSpace(req.ProviderTxnID)
	if paymentIntentID == "" {
		return nil, fmt.Errorf("%w: payment_intent is required", ErrConfigInvalid)
	}
	if req.RefundAmount <= 0 {
		return nil, fmt.Errorf("%w: refund amount is invalid", ErrConfigInvalid)
	}

	form := url.Values{}
	form.Set("payment_intent", paymentIntentID)
	form.Set("amount", strconv.FormatInt(req.RefundAmount, 10))
	if reason := normalizeRefundReason(req.Reason); reason != "" {
		form.Set("reason", reason)
	}

	raw, statusCode, err := a.doForm(ctx, http.MethodPost, "/v1/refunds", form)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: create refund status %d: %s", ErrResponseInvalid, statusCode, readErrorMessage(raw))
	}
	return parseRefundObject(raw)
}

// GetRefund 查询退款状态。
func (a *Adapter) GetRefund(ctx context.Context, req payment.GetRefundRequest) (*payment.RefundResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	refundID := strings.TrimSpace(req.ProviderRefundID)
	if refundID == "" {
		return nil, fmt.Errorf("%w: refund id is required", ErrConfigInvalid)
	}
	raw, statusCode, err := a.doGet(ctx, "/v1/refunds/"+url.PathEscape(refundID))
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: get refund status %d: %s", ErrResponseInvalid, statusCode, readErrorMessage(raw))
	}
	return parseRefundObject(raw)
}

// ParseCallback 验签并解析 Stripe Webhook。
// 仅接受 checkout.session.* 与 refund.* 事件，其余返回 ErrUnsupportedEvent。
func (a *Adapter) ParseCallback(ctx context.Context, headers http.Header, body []byte) (*payment.CallbackEvent, error) {
	_ = ctx
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: body is empty", ErrResponseInvalid)
	}
	if err := a.verifySignature(headers, body, time.Now()); err != nil {
		return nil, err
	}

	raw, err := decodeRawMap(body)
	if err != nil {
		return nil, err
	}
	eventID := strings.TrimSpace(readString(raw, "id"))
	eventType := strings.TrimSpace(readString(raw, "type"))
	if eventID == "" || eventType == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrResponseInvalid)
	}
	object := readMap(readMap(raw, "data"), "object")
	if object == nil {
		return nil, fmt.Errorf("%w: missing event object", ErrResponseInvalid)
	}

	event := &payment.CallbackEvent{
		Provider:        constants.ProviderStripe,
		ProviderEventID: eventID,
		RawPayload:      raw,
	}
	switch {
	case strings.HasPrefix(eventType, "checkout.session."):
		outcome, err := mapCheckoutEventOutcome(eventType, object)
		if err != nil {
			return nil, err
		}
		event.Outcome = outcome
		event.ProviderTxnID = readPaymentIntentID(object)
		event.MerchantOrderNo = strings.TrimSpace(readString(readMap(object, "metadata"), "merchant_order_no"))
	case strings.HasPrefix(eventType, "refund."):
		if eventType != "refund.created" && eventType != "refund.updated" {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
		}
		event.Outcome = mapRefundOutcome(readString(object, "status"))
		// 退款事件以提供方退款单号作为定位键
		event.ProviderTxnID = strings.TrimSpace(readString(object, "id"))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
	}
	return event, nil
}

func (a *Adapter) buildSessionForm(req payment.CreatePaymentRequest, currency string, methodTypes []string, now time.Time) url.Values {
	successURL := strings.TrimSpace(req.SuccessURL)
	if successURL == "" {
		successURL = a.cfg.SuccessURL
	}
	cancelURL := strings.TrimSpace(req.CancelURL)
	if cancelURL == "" {
		cancelURL = a.cfg.CancelURL
	}
	name := truncateRunes(strings.TrimSpace(req.ProductName), maxProductNameChars)
	if name == "" {
		name = req.MerchantOrderNo
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.MerchantOrderNo)
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("line_items[0][quantity]", strconv.Itoa(req.Quantity))
	form.Set("line_items[0][price_data][currency]", strings.ToLower(currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.UnitAmount, 10))
	form.Set("line_items[0][price_data][product_data][name]", name)
	if desc := truncateRunes(strings.TrimSpace(req.ProductDesc), maxProductDescChars); desc != "" {
		form.Set("line_items[0][price_data][product_data][description]", desc)
	}

	// 商户自定义元数据先写入，保留键以网关值为准
	for key, value := range req.Metadata {
		key = strings.TrimSpace(key)
		if key == "" || key == "payment_id" || key == "merchant_order_no" {
			continue
		}
		form.Set("metadata["+key+"]", value)
		form.Set("payment_intent_data[metadata]["+key+"]", value)
	}
	form.Set("metadata[payment_id]", strconv.FormatUint(uint64(req.PaymentID), 10))
	form.Set("metadata[merchant_order_no]", req.MerchantOrderNo)
	form.Set("payment_intent_data[metadata][payment_id]", strconv.FormatUint(uint64(req.PaymentID), 10))
	form.Set("payment_intent_data[metadata][merchant_order_no]", req.MerchantOrderNo)

	for _, methodType := range methodTypes {
		form.Add("payment_method_types[]", methodType)
	}
	if req.ExpireMinutes > 0 {
		expireSeconds := int64(req.ExpireMinutes) * 60
		if expireSeconds < minExpireSeconds {
			expireSeconds = minExpireSeconds
		}
		if expireSeconds > maxExpireSeconds {
			expireSeconds = maxExpireSeconds
		}
		form.Set("expires_at", strconv.FormatInt(now.Unix()+expireSeconds, 10))
	}
	return form
}

func (a *Adapter) verifySignature(headers http.Header, body []byte, now time.Time) error {
	signatureHeader := ""
	if headers != nil {
		signatureHeader = strings.TrimSpace(headers.Get("Stripe-Signature"))
	}
	if signatureHeader == "" {
		return fmt.Errorf("%w: Stripe-Signature is required", ErrSignatureInvalid)
	}
	timestamp, signatures, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return err
	}
	if a.cfg.WebhookToleranceSeconds > 0 {
		delta := math.Abs(float64(now.Unix() - timestamp))
		if delta > float64(a.cfg.WebhookToleranceSeconds) {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
		}
	}
	expected := computeSignature(a.cfg.WebhookSecret, timestamp, body)
	for _, sig := range signatures {
		if hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected)) {
			return nil
		}
	}
	return fmt.Errorf("%w: verify failed", ErrSignatureInvalid)
}

func (a *Adapter) doForm(ctx context.Context, method, path string, form url.Values) (map[string]interface{}, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.cfg.APIBaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(req)
}

func (a *Adapter) doGet(ctx context.Context, path string) (map[string]interface{}, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.APIBaseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	return a.do(req)
}

func (a *Adapter) do(req *http.Request) (map[string]interface{}, int, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	raw, err := decodeRawMap(body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}

func parseRefundObject(raw map[string]interface{}) (*payment.RefundResult, error) {
	refundID := strings.TrimSpace(readString(raw, "id"))
	if refundID == "" {
		return nil, fmt.Errorf("%w: missing refund id", ErrResponseInvalid)
	}
	return &payment.RefundResult{
		ProviderRefundID: refundID,
		Status:           mapRefundStatus(readString(raw, "status")),
		Raw:              raw,
	}, nil
}

func mapRefundStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "succeeded":
		return constants.RefundStatusSucceeded
	case "failed":
		return constants.RefundStatusFailed
	case "canceled":
		return constants.RefundStatusCanceled
	default:
		return constants.RefundStatusPending
	}
}

func mapRefundOutcome(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "succeeded":
		return constants.OutcomeRefundSucceeded
	case "failed":
		return constants.OutcomeRefundFailed
	case "canceled":
		return constants.OutcomeRefundCanceled
	default:
		return constants.OutcomeRefundPending
	}
}

func mapCheckoutEventOutcome(eventType string, object map[string]interface{}) (string, error) {
	switch eventType {
	case "checkout.session.completed":
		switch strings.ToLower(strings.TrimSpace(readString(object, "payment_status"))) {
		case "paid", "no_payment_required":
			return constants.OutcomeSucceeded, nil
		default:
			// 异步支付方式（如 Alipay）完成 Session 但尚未扣款
			return constants.OutcomePending, nil
		}
	case "checkout.session.async_payment_succeeded":
		return constants.OutcomeSucceeded, nil
	case "checkout.session.async_payment_failed":
		return constants.OutcomeFailed, nil
	case "checkout.session.expired":
		return constants.OutcomeExpired, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
	}
}

func normalizeRefundReason(reason string) string {
	reason = strings.ToLower(strings.TrimSpace(reason))
	if reason == "" {
		return ""
	}
	switch reason {
	case "duplicate", "fraudulent", "requested_by_customer":
		return reason
	default:
		return "requested_by_customer"
	}
}

func isCardOnly(methodTypes []string) bool {
	return len(methodTypes) == 1 && methodTypes[0] == "card"
}

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(cfg.APIBaseURL); err != nil {
		return fmt.Errorf("%w: api_base is invalid", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(sanitizeURLForValidation(cfg.SuccessURL)); err != nil {
		return fmt.Errorf("%w: success_url is invalid", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(cfg.CancelURL); err != nil {
		return fmt.Errorf("%w: cancel_url is invalid", ErrConfigInvalid)
	}
	if len(cfg.PaymentMethodTypes) == 0 {
		return fmt.Errorf("%w: payment_method_types is empty", ErrConfigInvalid)
	}
	return nil
}

func sanitizeURLForValidation(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return trimmed
	}
	return strings.ReplaceAll(trimmed, "{CHECKOUT_SESSION_ID}", "cs_test_placeholder")
}

func (c *Config) normalize() {
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	c.SuccessURL = strings.TrimSpace(c.SuccessURL)
	c.CancelURL = strings.TrimSpace(c.CancelURL)
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.SuccessURL == "" {
		c.SuccessURL = defaultSuccessURL
	}
	if c.CancelURL == "" {
		c.CancelURL = defaultCancelURL
	}
	if c.WebhookToleranceSeconds <= 0 {
		c.WebhookToleranceSeconds = defaultWebhookToleranceS
	}
	normalized := make([]string, 0, len(c.PaymentMethodTypes))
	for _, item := range c.PaymentMethodTypes {
		trimmed := strings.ToLower(strings.TrimSpace(item))
		if trimmed == "" {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	if len(normalized) == 0 {
		normalized = []string{"card"}
	}
	sort.Strings(normalized)
	c.PaymentMethodTypes = normalized
}

func truncateRunes(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max])
}

func decodeRawMap(body []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, nil
}

func computeSignature(secret string, timestamp int64, body []byte) string {
	payload := strconv.FormatInt(timestamp, 10) + "." + string(body)
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write([]byte(payload))
	return strings.ToLower(hex.EncodeToString(h.Sum(nil)))
}

func parseSignatureHeader(signatureHeader string) (int64, []string, error) {
	timestamp := int64(0)
	signatures := make([]string, 0)
	for _, part := range strings.Split(signatureHeader, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil || parsed <= 0 {
				return 0, nil, fmt.Errorf("%w: invalid timestamp", ErrSignatureInvalid)
			}
			timestamp = parsed
		case "v1":
			if value != "" {
				signatures = append(signatures, strings.ToLower(value))
			}
		}
	}
	if timestamp <= 0 {
		return 0, nil, fmt.Errorf("%w: timestamp is missing", ErrSignatureInvalid)
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: v1 signature is missing", ErrSignatureInvalid)
	}
	return timestamp, signatures, nil
}

func readErrorMessage(raw map[string]interface{}) string {
	errNode := readMap(raw, "error")
	if errNode == nil {
		return ""
	}
	return strings.TrimSpace(readString(errNode, "message"))
}

func readErrorCode(raw map[string]interface{}) string {
	errNode := readMap(raw, "error")
	if errNode == nil {
		return ""
	}
	return strings.TrimSpace(readString(errNode, "code"))
}

func readPaymentIntentID(raw map[string]interface{}) string {
	if raw == nil {
		return ""
	}
	value, ok := raw["payment_intent"]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case map[string]interface{}:
		return strings.TrimSpace(readString(typed, "id"))
	default:
		return ""
	}
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatInt(int64(typed), 10)
	default:
		return ""
	}
}

func readMap(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil {
		return nil
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return nil
	}
	mapped, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	return mapped
}
