package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gateway-next/internal/http/response"
	"github.com/gateway-next/internal/repository"
	"github.com/gateway-next/internal/service"

	"github.com/gin-gonic/gin"
)

// GetAdminPayments 分页查询支付单列表
func (h *Handler) GetAdminPayments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.PaymentListFilter{
		Page:            page,
		PageSize:        pageSize,
		Provider:        strings.TrimSpace(c.Query("provider")),
		Status:          strings.TrimSpace(c.Query("status")),
		MerchantOrderNo: strings.TrimSpace(c.Query("merchant_order_no")),
		ProviderTxnID:   strings.TrimSpace(c.Query("provider_txn_id")),
		CreatedFrom:     parseTimeQuery(c, "created_from"),
		CreatedTo:       parseTimeQuery(c, "created_to"),
	}
	if raw := strings.TrimSpace(c.Query("app_id")); raw != "" {
		if appID, err := strconv.ParseUint(raw, 10, 64); err == nil {
			filter.AppID = uint(appID)
		}
	}

	payments, total, err := h.PaymentService.AdminList(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "fetch payments failed", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, payments, pagination)
}

// GetAdminPayment 查询支付单详情
func (h *Handler) GetAdminPayment(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	record, err := h.PaymentService.AdminGetByID(id)
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

// TestPaymentSuccess 测试钩子：构造合成回调把 stripe 支付单推成 succeeded。
// 走完整回调处理链路，产生的出站通知与真实回调一致。
func (h *Handler) TestPaymentSuccess(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	record, err := h.CallbackService.TestMarkPaymentSucceeded(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTestPaymentNotFound):
			respondError(c, response.CodeTestPaymentNotFound, "payment not found", nil)
		case errors.Is(err, service.ErrTestSuccessNotStripe):
			respondError(c, response.CodeTestSuccessNotStripe, "test success is only supported for stripe payments", nil)
		case errors.Is(err, service.ErrTestSuccessNoTxnID):
			respondError(c, response.CodeTestSuccessNoTxnID, "payment has no provider_txn_id yet", nil)
		case errors.Is(err, service.ErrTestCallbackFailed):
			respondError(c, response.CodeTestCallbackFailed, "synthetic callback processing failed", err)
		default:
			respondError(c, response.CodeInternal, "test success failed", err)
		}
		return
	}

	requestLog(c).Infow("admin_payment_test_success", "payment_id", id,
		"operator_admin_id", currentAdminID(c))
	response.Success(c, gin.H{
		"test_mode": true,
		"payment":   record,
	})
}
