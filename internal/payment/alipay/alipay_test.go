package alipay

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gateway-next/internal/constants"
	"github.com/gateway-next/internal/payment"
)

func buildTestConfig(gatewayURL, mode string) Config {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	privateKeyDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		panic(err)
	}
	privateKeyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateKeyDER})
	publicKeyDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		panic(err)
	}
	publicKeyPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicKeyDER})
	return Config{
		AppID:           "2026000000000000",
		PrivateKey:      string(privateKeyPEM),
		AlipayPublicKey: string(publicKeyPEM),
		GatewayURL:      gatewayURL,
		NotifyURL:       "https://gateway.example.com/api/v1/callbacks/alipay",
		ReturnURL:       "https://merchant.example.com/pay/return",
		SignType:        "RSA2",
		Mode:            mode,
	}
}

func TestNewNormalizesAndValidates(t *testing.T) {
	cfg := buildTestConfig("https://openapi.alipay.com/gateway.do", "")
	cfg.SignType = "rsa2"
	adapter, err := New(cfg)
	if err != nil {
		t.Fatalf("new adapter failed: %v", err)
	}
	if adapter.cfg.SignType != "RSA2" {
		t.Fatalf("expected sign_type RSA2, got %s", adapter.cfg.SignType)
	}
	if adapter.cfg.Mode != ModePage {
		t.Fatalf("expected default mode page, got %s", adapter.cfg.Mode)
	}

	missing := buildTestConfig("https://openapi.alipay.com/gateway.do", ModePage)
	missing.AppID = ""
	if _, err := New(missing); err == nil {
		t.Fatalf("expected app_id required error")
	}

	badMode := buildTestConfig("https://openapi.alipay.com/gateway.do", "native")
	if _, err := New(badMode); err == nil {
		t.Fatalf("expected unsupported mode error")
	}
}

func TestCreatePaymentQRPrecreate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected post request, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form failed: %v", err)
		}
		if r.Form.Get("method") != "alipay.trade.precreate" {
			t.Fatalf("expected precreate method, got %s", r.Form.Get("method"))
		}
		if r.Form.Get("notify_url") == "" {
			t.Fatalf("expected notify_url")
		}
		var bizContent map[string]interface{}
		if err := json.Unmarshal([]byte(r.Form.Get("biz_content")), &bizContent); err != nil {
			t.Fatalf("decode biz_content failed: %v", err)
		}
		if bizContent["out_trade_no"] != "ORDER-1" {
			t.Fatalf("unexpected out_trade_no: %v", bizContent["out_trade_no"])
		}
		if bizContent["total_amount"] != "19.90" {
			t.Fatalf("unexpected total_amount: %v", bizContent["total_amount"])
		}
		if bizContent["timeout_express"] != "30m" {
			t.Fatalf("unexpected timeout_express: %v", bizContent["timeout_express"])
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"alipay_trade_precreate_response": map[string]interface{}{
				"code":         "10000",
				"msg":          "Success",
				"out_trade_no": "ORDER-1",
				"trade_no":     "20260824000001",
				"qr_code":      "https://qr.alipay.com/abc",
			},
			"sign": "test-sign",
		})
	}))
	defer server.Close()

	adapter, err := New(buildTestConfig(server.URL, ModeQR))
	if err != nil {
		t.Fatalf("new adapter failed: %v", err)
	}
	result, err := adapter.CreatePayment(context.Background(), payment.CreatePaymentRequest{
		PaymentID:       100,
		MerchantOrderNo: "ORDER-1",
		Amount:          1990,
		Currency:        "CNY",
		ProductName:     "测试商品",
		ExpireMinutes:   30,
	})
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	if result.PayType != constants.PayTypeQR {
		t.Fatalf("unexpected pay type: %s", result.PayType)
	}
	if result.Payload["qr_code"] != "https://qr.alipay.com/abc" {
		t.Fatalf("unexpected qr code: %v", result.Payload["qr_code"])
	}
	if result.ProviderTxnID != "20260824000001" {
		t.Fatalf("unexpected trade_no: %s", result.ProviderTxnID)
	}
}

func TestCreatePaymentPageBuildsAutoSubmitForm(t *testing.T) {
	adapter, err := New(buildTestConfig("https://openapi.alipay.com/gateway.do", ModePage))
	if err != nil {
		t.Fatalf("new adapter failed: %v", err)
	}
	result, err := adapter.CreatePayment(context.Background(), payment.CreatePaymentRequest{
		PaymentID:       101,
		MerchantOrderNo: "ORDER-2",
		Amount:          9999,
		Currency:        "CNY",
		ProductName:     "测试商品2",
		ExpireMinutes:   90,
	})
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	if result.PayType != constants.PayTypeForm {
		t.Fatalf("unexpected pay type: %s", result.PayType)
	}
	formHTML, _ := result.Payload["form_html"].(string)
	if formHTML == "" {
		t.Fatalf("expected form html")
	}
	if !strings.Contains(formHTML, "https://openapi.alipay.com/gateway.do?charset=utf-8") {
		t.Fatalf("form action missing gateway url: %s", formHTML)
	}
	if !strings.Contains(formHTML, `name="sign"`) {
		t.Fatalf("form missing sign input")
	}
	if !strings.Contains(formHTML, "alipay.trade.page.pay") {
		t.Fatalf("form missing page pay method")
	}
	// 90 分钟折算为小时
	if !strings.Contains(formHTML, "timeout_express") || !strings.Contains(formHTML, "1h") {
		t.Fatalf("form missing timeout_express")
	}
}

func TestCreatePaymentWapReturnsPayURL(t *testing.T) {
	adapter, err := New(buildTestConfig("https://openapi.alipay.com/gateway.do", ModeWap))
	if err != nil {
		t.Fatalf("new adapter failed: %v", err)
	}
	result, err := adapter.CreatePayment(context.Background(), payment.CreatePaymentRequest{
		PaymentID:       102,
		MerchantOrderNo: "ORDER-3",
		Amount:          8800,
		Currency:        "CNY",
		SuccessURL:      "https://merchant.example.com/pay/success",
		CancelURL:       "https://merchant.example.com/pay/quit",
	})
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	if result.PayType != constants.PayTypeRedirect {
		t.Fatalf("unexpected pay type: %s", result.PayType)
	}
	payURL, _ := result.Payload["pay_url"].(string)
	parsedURL, err := url.Parse(payURL)
	if err != nil {
		t.Fatalf("parse pay url failed: %v", err)
	}
	query := parsedURL.Query()
	if query.Get("method") != "alipay.trade.wap.pay" {
		t.Fatalf("unexpected method: %s", query.Get("method"))
	}
	if query.Get("sign") == "" {
		t.Fatalf("expected sign in pay url")
	}
	if query.Get("return_url") != "https://merchant.example.com/pay/success" {
		t.Fatalf("unexpected return_url: %s", query.Get("return_url"))
	}
	var bizContent map[string]interface{}
	if err := json.Unmarshal([]byte(query.Get("biz_content")), &bizContent); err != nil {
		t.Fatalf("decode biz_content failed: %v", err)
	}
	if bizContent["product_code"] != "QUICK_WAP_WAY" {
		t.Fatalf("unexpected product_code: %v", bizContent["product_code"])
	}
	if bizContent["quit_url"] != "https://merchant.example.com/pay/quit" {
		t.Fatalf("unexpected quit_url: %v", bizContent["quit_url"])
	}
}

func TestCancelPaymentClose(t *testing.T) {
	var responseNode map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form failed: %v", err)
		}
		if r.Form.Get("method") != "alipay.trade.close" {
			t.Fatalf("unexpected method: %s", r.Form.Get("method"))
		}
		var bizContent map[string]interface{}
		if err := json.Unmarshal([]byte(r.Form.Get("biz_content")), &bizContent); err != nil {
			t.Fatalf("decode biz_content failed: %v", err)
		}
		if bizContent["out_trade_no"] != "ORDER-4" {
			t.Fatalf("unexpected out_trade_no: %v", bizContent["out_trade_no"])
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"alipay_trade_close_response": responseNode,
		})
	}))
	defer server.Close()

	adapter, err := New(buildTestConfig(server.URL, ModePage))
	if err != nil {
		t.Fatalf("new adapter failed: %v", err)
	}

	responseNode = map[string]interface{}{
		"code":         "10000",
		"msg":          "Success",
		"out_trade_no": "ORDER-4",
	}
	result, err := adapter.CancelPayment(context.Background(), payment.CancelPaymentRequest{MerchantOrderNo: "ORDER-4"})
	if err != nil {
		t.Fatalf("cancel payment failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success close")
	}

	responseNode = map[string]interface{}{
		"code":     "40004",
		"msg":      "Business Failed",
		"sub_code": "ACQ.TRADE_STATUS_ERROR",
		"sub_msg":  "交易状态不合法",
	}
	rejected, err := adapter.CancelPayment(context.Background(), payment.CancelPaymentRequest{MerchantOrderNo: "ORDER-4"})
	if err != nil {
		t.Fatalf("cancel should not error: %v", err)
	}
	if rejected.Success {
		t.Fatalf("expected rejected close")
	}
	if rejected.Code != "ACQ.TRADE_STATUS_ERROR" {
		t.Fatalf("unexpected code: %s", rejected.Code)
	}

	if _, err := adapter.CancelPayment(context.Background(), payment.CancelPaymentRequest{}); err == nil {
		t.Fatalf("expected error for missing trade identifiers")
	}
}

func TestCreateRefundFundChange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form failed: %v", err)
		}
		if r.Form.Get("method") != "alipay.trade.refund" {
			t.Fatalf("unexpected method: %s", r.Form.Get("method"))
		}
		var bizContent map[string]interface{}
		if err := json.Unmarshal([]byte(r.Form.Get("biz_content")), &bizContent); err != nil {
			t.Fatalf("decode biz_content failed: %v", err)
		}
		if bizContent["refund_amount"] != "5.00" {
			t.Fatalf("unexpected refund_amount: %v", bizContent["refund_amount"])
		}
		if bizContent["out_request_no"] != "7" {
			t.Fatalf("unexpected out_request_no: %v", bizContent["out_request_no"])
		}
		if bizContent["trade_no"] != "20260824000002" {
			t.Fatalf("unexpected trade_no: %v", bizContent["trade_no"])
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"alipay_trade_refund_response": map[string]interface{}{
				"code":        "10000",
				"msg":         "Success",
				"fund_change": "Y",
				"trade_no":    "20260824000002",
			},
		})
	}))
	defer server.Close()

	adapter, err := New(buildTestConfig(server.URL, ModePage))
	if err != nil {
		t.Fatalf("new adapter failed: %v", err)
	}
	result, err := adapter.CreateRefund(context.Background(), payment.CreateRefundRequest{
		RefundID:        7,
		PaymentID:       100,
		MerchantOrderNo: "ORDER-5",
		ProviderTxnID:   "20260824000002",
		RefundAmount:    500,
		TotalAmount:     1990,
		Currency:        "CNY",
		Reason:          "商品缺货",
	})
	if err != nil {
		t.Fatalf("create refund failed: %v", err)
	}
	if result.ProviderRefundID != "7" {
		t.Fatalf("unexpected provider refund id: %s", result.ProviderRefundID)
	}
	if result.Status != constants.RefundStatusSucceeded {
		t.Fatalf("unexpected status: %s", result.Status)
	}
}

func TestGetRefundQueryStatus(t *testing.T) {
	var responseNode map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form failed: %v", err)
		}
		if r.Form.Get("method") != "alipay.trade.fastpay.refund.query" {
			t.Fatalf("unexpected method: %s", r.Form.Get("method"))
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"alipay_trade_fastpay_refund_query_response": responseNode,
		})
	}))
	defer server.Close()

	adapter, err := New(buildTestConfig(server.URL, ModePage))
	if err != nil {
		t.Fatalf("new adapter failed: %v", err)
	}

	responseNode = map[string]interface{}{
		"code":          "10000",
		"msg":           "Success",
		"refund_status": "REFUND_SUCCESS",
	}
	result, err := adapter.GetRefund(context.Background(), payment.GetRefundRequest{
		ProviderRefundID: "7",
		ProviderTxnID:    "20260824000002",
	})
	if err != nil {
		t.Fatalf("get refund failed: %v", err)
	}
	if result.Status != constants.RefundStatusSucceeded {
		t.Fatalf("unexpected status: %s", result.Status)
	}

	// 未返回 refund_status 视为处理中
	responseNode = map[string]interface{}{
		"code": "10000",
		"msg":  "Success",
	}
	pending, err := adapter.GetRefund(context.Background(), payment.GetRefundRequest{
		ProviderRefundID: "7",
		MerchantOrderNo:  "ORDER-5",
	})
	if err != nil {
		t.Fatalf("get refund failed: %v", err)
	}
	if pending.Status != constants.RefundStatusPending {
		t.Fatalf("unexpected status: %s", pending.Status)
	}
}

func signedCallbackBody(t *testing.T, cfg Config, values url.Values) []byte {
	t.Helper()
	content := buildSignContentFromForm(values)
	sign, err := signContent(content, cfg.PrivateKey, cfg.SignType)
	if err != nil {
		t.Fatalf("sign callback content failed: %v", err)
	}
	values.Set("sign", sign)
	values.Set("sign_type", cfg.SignType)
	return []byte(values.Encode())
}

func TestParseCallbackVerifiesAndMaps(t *testing.T) {
	cfg := buildTestConfig("https://openapi.alipay.com/gateway.do", ModePage)
	adapter, err := New(cfg)
	if err != nil {
		t.Fatalf("new adapter failed: %v", err)
	}

	body := signedCallbackBody(t, cfg, url.Values{
		"notify_id":    {"notify-1"},
		"notify_type":  {"trade_status_sync"},
		"out_trade_no": {"ORDER-6"},
		"trade_no":     {"20260824000099"},
		"trade_status": {"TRADE_SUCCESS"},
		"total_amount": {"88.00"},
	})
	event, err := adapter.ParseCallback(context.Background(), http.Header{}, body)
	if err != nil {
		t.Fatalf("parse callback failed: %v", err)
	}
	if event.Provider != constants.ProviderAlipay {
		t.Fatalf("unexpected provider: %s", event.Provider)
	}
	if event.ProviderEventID != "notify-1" {
		t.Fatalf("unexpected event id: %s", event.ProviderEventID)
	}
	if event.ProviderTxnID != "20260824000099" {
		t.Fatalf("unexpected trade_no: %s", event.ProviderTxnID)
	}
	if event.MerchantOrderNo != "ORDER-6" {
		t.Fatalf("unexpected out_trade_no: %s", event.MerchantOrderNo)
	}
	if event.Outcome != constants.OutcomeSucceeded {
		t.Fatalf("unexpected outcome: %s", event.Outcome)
	}
	if event.IsRefundOutcome() {
		t.Fatalf("payment callback should not be refund outcome")
	}

	cases := map[string]string{
		"TRADE_FINISHED": constants.OutcomeSucceeded,
		"TRADE_CLOSED":   constants.OutcomeCanceled,
		"WAIT_BUYER_PAY": constants.OutcomePending,
		"UNKNOWN_STATUS": constants.OutcomePending,
	}
	for tradeStatus, want := range cases {
		body := signedCallbackBody(t, cfg, url.Values{
			"notify_id":    {"notify-" + tradeStatus},
			"out_trade_no": {"ORDER-6"},
			"trade_status": {tradeStatus},
		})
		event, err := adapter.ParseCallback(context.Background(), http.Header{}, body)
		if err != nil {
			t.Fatalf("%s: parse callback failed: %v", tradeStatus, err)
		}
		if event.Outcome != want {
			t.Fatalf("%s: want %s got %s", tradeStatus, want, event.Outcome)
		}
	}
}

func TestParseCallbackRejectsInvalidSign(t *testing.T) {
	cfg := buildTestConfig("https://openapi.alipay.com/gateway.do", ModePage)
	adapter, err := New(cfg)
	if err != nil {
		t.Fatalf("new adapter failed: %v", err)
	}
	values := url.Values{
		"notify_id":    {"notify-bad"},
		"out_trade_no": {"ORDER-7"},
		"trade_status": {"TRADE_SUCCESS"},
		"sign":         {"invalid-sign"},
		"sign_type":    {"RSA2"},
	}
	if _, err := adapter.ParseCallback(context.Background(), http.Header{}, []byte(values.Encode())); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestFormatTimeoutExpress(t *testing.T) {
	cases := map[int]string{
		0:    "",
		45:   "45m",
		59:   "59m",
		60:   "1h",
		90:   "1h",
		1439: "23h",
		1440: "1d",
		2880: "2d",
	}
	for minutes, want := range cases {
		if got := formatTimeoutExpress(minutes); got != want {
			t.Fatalf("%d minutes: want %q got %q", minutes, want, got)
		}
	}
}
