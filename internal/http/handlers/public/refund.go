package public

import (
	"errors"
	"strconv"

	"github.com/gateway-next/internal/constants"
	handlershared "github.com/gateway-next/internal/http/handlers/shared"
	"github.com/gateway-next/internal/http/response"
	"github.com/gateway-next/internal/models"
	"github.com/gateway-next/internal/payment"
	"github.com/gateway-next/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateRefundRequest 创建退款请求。amount 缺省表示全额退款。
type CreateRefundRequest struct {
	PaymentID uint   `json:"payment_id" binding:"required"`
	Amount    *int64 `json:"amount"`
	Reason    string `json:"reason"`
}

// CreateRefund 创建退款。累计退款金额不超过支付金额。
func (h *Handler) CreateRefund(c *gin.Context) {
	app, ok := currentApp(c)
	if !ok {
		return
	}

	var req CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeValidation, "invalid request body", err)
		return
	}

	record, err := h.RefundService.CreateRefund(c.Request.Context(), app, service.CreateRefundInput{
		PaymentID: req.PaymentID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		h.respondRefundCreateError(c, app, req.PaymentID, err)
		return
	}
	response.Created(c, record)
}

// GetRefund 按 ID 查询退款单（经父支付单做应用隔离）
func (h *Handler) GetRefund(c *gin.Context) {
	app, ok := currentApp(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	record, err := h.RefundService.GetRefund(app, id)
	if err != nil {
		if errors.Is(err, service.ErrRefundNotFound) {
			respondError(c, response.CodeRefundNotFound, "refund not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "fetch refund failed", err)
		return
	}
	response.Success(c, record)
}

// ListPaymentRefunds 按支付单分页查询退款
func (h *Handler) ListPaymentRefunds(c *gin.Context) {
	app, ok := currentApp(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = handlershared.NormalizePagination(page, pageSize)

	refunds, total, err := h.RefundService.ListByPayment(app, id, page, pageSize)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			respondError(c, response.CodePaymentNotFound, "payment not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "fetch refunds failed", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, refunds, pagination)
}

// SyncRefund 主动同步退款状态
func (h *Handler) SyncRefund(c *gin.Context) {
	app, ok := currentApp(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	record, err := h.RefundService.SyncRefundStatus(c.Request.Context(), app, id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRefundNotFound):
			respondError(c, response.CodeRefundSyncNotFound, "refund not found", nil)
		case errors.Is(err, service.ErrRefundNoProviderID):
			respondError(c, response.CodeRefundSyncNoProviderID, "refund has no provider refund id yet", nil)
		case errors.Is(err, service.ErrRefundSyncUnsupported):
			respondError(c, response.CodeRefundSyncUnsupported, "refund status sync unsupported for this provider", nil)
		case errors.Is(err, payment.ErrProviderNotConfigured):
			respondError(c, response.CodeProviderNotConfigured, "payment provider not configured", nil)
		case errors.Is(err, service.ErrProviderCallFailed):
			respondError(c, response.CodeProviderError, "refund query to payment provider failed", err)
		default:
			respondError(c, response.CodeRefundSyncInternal, "refund sync failed", err)
		}
		return
	}
	response.Success(c, record)
}

func (h *Handler) respondRefundCreateError(c *gin.Context, app *models.App, paymentID uint, err error) {
	switch {
	case errors.Is(err, service.ErrRefundPaymentNotFound):
		respondError(c, response.CodeRefundPaymentNotFound, "payment not found", nil)
	case errors.Is(err, service.ErrRefundNotSucceeded):
		respondError(c, response.CodeRefundNotSucceeded, "payment is not in succeeded status", nil)
	case errors.Is(err, service.ErrRefundAmountExceeded):
		respondError(c, response.CodeRefundAmountExceeded, "refund amount exceeds payment amount", nil)
	case errors.Is(err, service.ErrRefundCapExceeded):
		respondError(c, response.CodeRefundCapExceeded, "cumulative refund amount exceeds payment amount", nil)
	case errors.Is(err, service.ErrRefundCreateUnsupported):
		respondError(c, refundUnavailableCode(h.paymentProvider(app, paymentID)), "refund unavailable for this provider", nil)
	case errors.Is(err, payment.ErrProviderNotConfigured):
		respondError(c, response.CodeProviderNotConfigured, "payment provider not configured", nil)
	case errors.Is(err, service.ErrProviderCallFailed):
		respondError(c, response.CodeProviderError, "refund request to payment provider failed", err)
	default:
		respondError(c, response.CodeRefundCreateInternal, "create refund failed", err)
	}
}

func (h *Handler) paymentProvider(app *models.App, paymentID uint) string {
	var record *models.Payment
	var err error
	if app != nil {
		record, err = h.PaymentRepo.GetByAppAndID(app.ID, paymentID)
	} else {
		record, err = h.PaymentRepo.GetByID(paymentID)
	}
	if err != nil || record == nil {
		return ""
	}
	return record.Provider
}

func refundUnavailableCode(provider string) int {
	switch provider {
	case constants.ProviderAlipay:
		return response.CodeRefundUnsupportedAlipay
	case constants.ProviderWechatPay:
		return response.CodeRefundUnsupportedWechatPay
	default:
		return response.CodeUnavailable
	}
}
