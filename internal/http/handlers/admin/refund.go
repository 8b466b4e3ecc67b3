package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gateway-next/internal/constants"
	"github.com/gateway-next/internal/http/response"
	"github.com/gateway-next/internal/models"
	"github.com/gateway-next/internal/payment"
	"github.com/gateway-next/internal/repository"
	"github.com/gateway-next/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateRefundRequest 管理端创建退款请求。amount 缺省表示全额退款。
type CreateRefundRequest struct {
	PaymentID uint   `json:"payment_id" binding:"required"`
	Amount    *int64 `json:"amount"`
	Reason    string `json:"reason"`
}

// CreateAdminRefund 管理端创建退款（不做应用隔离）
func (h *Handler) CreateAdminRefund(c *gin.Context) {
	var req CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeValidation, "invalid request body", err)
		return
	}

	record, err := h.RefundService.CreateRefund(c.Request.Context(), nil, service.CreateRefundInput{
		PaymentID: req.PaymentID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
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
			respondError(c, h.refundUnavailableCode(req.PaymentID), "refund unavailable for this provider", nil)
		case errors.Is(err, payment.ErrProviderNotConfigured):
			respondError(c, response.CodeProviderNotConfigured, "payment provider not configured", nil)
		case errors.Is(err, service.ErrProviderCallFailed):
			respondError(c, response.CodeProviderError, "refund request to payment provider failed", err)
		default:
			respondError(c, response.CodeRefundCreateInternal, "create refund failed", err)
		}
		return
	}

	requestLog(c).Infow("admin_refund_created", "refund_id", record.ID,
		"payment_id", record.PaymentID, "operator_admin_id", currentAdminID(c))
	response.Created(c, record)
}

// GetAdminRefunds 分页查询退款单列表
func (h *Handler) GetAdminRefunds(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.RefundListFilter{
		Page:     page,
		PageSize: pageSize,
		Provider: strings.TrimSpace(c.Query("provider")),
		Status:   strings.TrimSpace(c.Query("status")),
	}
	if raw := strings.TrimSpace(c.Query("payment_id")); raw != "" {
		if paymentID, err := strconv.ParseUint(raw, 10, 64); err == nil {
			filter.PaymentID = uint(paymentID)
		}
	}

	refunds, total, err := h.RefundService.AdminList(filter)
	if err != nil {
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

// GetAdminRefund 查询退款单详情
func (h *Handler) GetAdminRefund(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	record, err := h.RefundService.GetRefund(nil, id)
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

// GetAdminPaymentRefunds 按支付单分页查询退款
func (h *Handler) GetAdminPaymentRefunds(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	refunds, total, err := h.RefundService.ListByPayment(nil, id, page, pageSize)
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

// SyncAdminRefund 主动同步退款状态
func (h *Handler) SyncAdminRefund(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	record, err := h.RefundService.SyncRefundStatus(c.Request.Context(), nil, id)
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

func (h *Handler) refundUnavailableCode(paymentID uint) int {
	var record *models.Payment
	if parent, err := h.PaymentRepo.GetByID(paymentID); err == nil {
		record = parent
	}
	if record == nil {
		return response.CodeUnavailable
	}
	switch record.Provider {
	case constants.ProviderAlipay:
		return response.CodeRefundUnsupportedAlipay
	case constants.ProviderWechatPay:
		return response.CodeRefundUnsupportedWechatPay
	default:
		return response.CodeUnavailable
	}
}
