package public

import (
	"errors"
	"io"
	"net/http"

	"github.com/gateway-next/internal/constants"
	"github.com/gateway-next/internal/payment"

	"github.com/gin-gonic/gin"
)

// StripeCallback Stripe webhook 入站端点
func (h *Handler) StripeCallback(c *gin.Context) {
	event, ok := h.parseCallback(c, constants.ProviderStripe)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"received": false})
		return
	}
	if event == nil {
		// 验签通过但事件不在处理范围内，确认收到即可
		c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
		return
	}
	result, err := h.CallbackService.Process(c.Request.Context(), event)
	if err != nil {
		requestLog(c).Errorw("callback_process_failed", "provider", event.Provider,
			"provider_event_id", event.ProviderEventID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"received": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "replayed": result.Replayed})
}

// AlipayCallback 支付宝异步通知入站端点，按其约定回 success/fail 文本
func (h *Handler) AlipayCallback(c *gin.Context) {
	event, ok := h.parseCallback(c, constants.ProviderAlipay)
	if !ok {
		c.String(http.StatusInternalServerError, "fail")
		return
	}
	if event == nil {
		c.String(http.StatusOK, "success")
		return
	}
	if _, err := h.CallbackService.Process(c.Request.Context(), event); err != nil {
		requestLog(c).Errorw("callback_process_failed", "provider", event.Provider,
			"provider_event_id", event.ProviderEventID, "error", err)
		c.String(http.StatusInternalServerError, "fail")
		return
	}
	c.String(http.StatusOK, "success")
}

// WechatPayCallback 微信支付回调入站端点，按其约定回 SUCCESS/FAIL JSON
func (h *Handler) WechatPayCallback(c *gin.Context) {
	event, ok := h.parseCallback(c, constants.ProviderWechatPay)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "FAIL", "message": "失败"})
		return
	}
	if event == nil {
		c.JSON(http.StatusOK, gin.H{"code": "SUCCESS", "message": "成功"})
		return
	}
	if _, err := h.CallbackService.Process(c.Request.Context(), event); err != nil {
		requestLog(c).Errorw("callback_process_failed", "provider", event.Provider,
			"provider_event_id", event.ProviderEventID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "FAIL", "message": "失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "SUCCESS", "message": "成功"})
}

// parseCallback 读取原始请求并交给对应适配器验签解析。
// 返回 (nil, true) 表示事件不在处理范围内；(nil, false) 表示验签或解析失败。
func (h *Handler) parseCallback(c *gin.Context, provider string) (*payment.CallbackEvent, bool) {
	adapter, err := h.Registry.Get(provider)
	if err != nil {
		requestLog(c).Errorw("callback_provider_unavailable", "provider", provider, "error", err)
		return nil, false
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		requestLog(c).Errorw("callback_read_body_failed", "provider", provider, "error", err)
		return nil, false
	}

	event, err := adapter.ParseCallback(c.Request.Context(), c.Request.Header, body)
	if err != nil {
		if errors.Is(err, payment.ErrUnsupportedEvent) {
			requestLog(c).Debugw("callback_event_ignored", "provider", provider)
			return nil, true
		}
		requestLog(c).Warnw("callback_parse_failed", "provider", provider, "error", err)
		return nil, false
	}
	return event, true
}
