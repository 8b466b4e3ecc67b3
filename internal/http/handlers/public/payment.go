package public

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gateway-next/internal/http/response"
	"github.com/gateway-next/internal/payment"
	"github.com/gateway-next/internal/service"

	"github.com/gin-gonic/gin"
)

// CreatePaymentRequest 创建支付请求（金额为最小货币单位）
type CreatePaymentRequest struct {
	MerchantOrderNo string            `json:"merchant_order_no" binding:"required"`
	Provider        string            `json:"provider" binding:"required"`
	UnitAmount      int64             `json:"unit_amount"`
	Quantity        int               `json:"quantity"`
	Currency        string            `json:"currency"`
	ProductName     string            `json:"product_name"`
	ProductDesc     string            `json:"product_desc"`
	NotifyURL       string            `json:"notify_url"`
	SuccessURL      string            `json:"success_url"`
	CancelURL       string            `json:"cancel_url"`
	ExpireMinutes   int               `json:"expire_minutes"`
	Metadata        map[string]string `json:"metadata"`
}

// CancelPaymentRequest 取消支付请求
type CancelPaymentRequest struct {
	PaymentID       uint   `json:"payment_id" binding:"required"`
	MerchantOrderNo string `json:"merchant_order_no" binding:"required"`
}

// CreatePayment 创建支付单。同一应用下商户订单号幂等：
// 新建返回 201，参数一致的重放返回 200 并携带原始下单负载。
func (h *Handler) CreatePayment(c *gin.Context) {
	app, ok := currentApp(c)
	if !ok {
		return
	}

	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeValidation, "invalid request body", err)
		return
	}

	record, created, err := h.PaymentService.CreateOrGetPayment(c.Request.Context(), app, service.CreatePaymentInput{
		MerchantOrderNo: req.MerchantOrderNo,
		Provider:        req.Provider,
		UnitAmount:      req.UnitAmount,
		Quantity:        req.Quantity,
		Currency:        req.Currency,
		ProductName:     req.ProductName,
		ProductDesc:     req.ProductDesc,
		NotifyURL:       req.NotifyURL,
		SuccessURL:      req.SuccessURL,
		CancelURL:       req.CancelURL,
		ExpireMinutes:   req.ExpireMinutes,
		Metadata:        req.Metadata,
		ClientIP:        c.ClientIP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedProvider):
			respondError(c, response.CodeUnsupportedProvider, "unsupported payment provider", nil)
		case errors.Is(err, service.ErrUnsupportedCurrency):
			respondError(c, response.CodeValidation, "unsupported currency", nil)
		case errors.Is(err, service.ErrPaymentInvalid):
			respondError(c, response.CodeValidation, err.Error(), nil)
		case errors.Is(err, service.ErrPaymentConflict):
			respondError(c, response.CodePaymentConflict, "merchant_order_no already used with different parameters", nil)
		case errors.Is(err, service.ErrPaymentRaceConflict):
			respondError(c, response.CodePaymentRaceConflict, "concurrent create with different parameters", nil)
		case errors.Is(err, payment.ErrProviderNotConfigured):
			respondError(c, response.CodeProviderNotConfigured, "payment provider not configured", nil)
		case errors.Is(err, service.ErrProviderCallFailed):
			respondError(c, response.CodeProviderError, "payment provider request failed", err)
		default:
			respondError(c, response.CodeInternal, "create payment failed", err)
		}
		return
	}

	if created {
		response.Created(c, record)
		return
	}
	response.Success(c, record)
}

// GetPayment 按 ID 查询支付单（应用隔离）
func (h *Handler) GetPayment(c *gin.Context) {
	app, ok := currentApp(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	record, err := h.PaymentService.GetByID(app, id)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			respondError(c, response.CodePaymentNotFound, "payment not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "fetch payment failed", err)
		return
	}
	response.Success(c, record)
}

// GetPaymentByMerchantOrderNo 按商户订单号查询支付单（应用隔离）
func (h *Handler) GetPaymentByMerchantOrderNo(c *gin.Context) {
	app, ok := currentApp(c)
	if !ok {
		return
	}
	orderNo := strings.TrimSpace(c.Param("merchant_order_no"))
	if orderNo == "" {
		respondError(c, response.CodeBadRequest, "merchant_order_no is required", nil)
		return
	}

	record, err := h.PaymentService.GetByMerchantOrderNo(app, orderNo)
	if err != nil {
		if errors.Is(err, service.ErrPaymentOrderNotFound) {
			respondError(c, response.CodePaymentOrderNotFound, "payment not found for merchant_order_no", nil)
			return
		}
		respondError(c, response.CodeInternal, "fetch payment failed", err)
		return
	}
	response.Success(c, record)
}

// CancelPayment 取消待支付的支付单
func (h *Handler) CancelPayment(c *gin.Context) {
	app, ok := currentApp(c)
	if !ok {
		return
	}

	var req CancelPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeValidation, "invalid request body", err)
		return
	}

	record, err := h.PaymentService.CancelPayment(c.Request.Context(), app, service.CancelPaymentInput{
		PaymentID:       req.PaymentID,
		MerchantOrderNo: req.MerchantOrderNo,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound):
			respondError(c, response.CodePaymentNotFound, "payment not found", nil)
		case errors.Is(err, service.ErrPaymentInvalid):
			respondError(c, response.CodeValidation, err.Error(), nil)
		case errors.Is(err, service.ErrPaymentNotCancelable):
			respondError(c, response.CodeConflict, "payment is not cancelable in its current status", nil)
		case errors.Is(err, payment.ErrProviderNotConfigured):
			respondError(c, response.CodeProviderNotConfigured, "payment provider not configured", nil)
		case errors.Is(err, service.ErrProviderCancelRejected):
			respondError(c, response.CodeProviderCancelRejected, "payment provider rejected the cancel request", nil)
		case errors.Is(err, service.ErrProviderCallFailed):
			respondError(c, response.CodeProviderCancelError, "cancel request to payment provider failed", err)
		default:
			respondError(c, response.CodeInternal, "cancel payment failed", err)
		}
		return
	}
	response.Success(c, record)
}

func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "invalid id", nil)
		return 0, false
	}
	return uint(id), true
}
