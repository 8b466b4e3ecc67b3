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

// GetAdminDeliveries 分页查询出站通知列表
func (h *Handler) GetAdminDeliveries(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.DeliveryListFilter{
		Page:        page,
		PageSize:    pageSize,
		EventType:   strings.TrimSpace(c.Query("event_type")),
		Status:      strings.TrimSpace(c.Query("status")),
		CreatedFrom: parseTimeQuery(c, "created_from"),
		CreatedTo:   parseTimeQuery(c, "created_to"),
	}
	if raw := strings.TrimSpace(c.Query("app_id")); raw != "" {
		if appID, err := strconv.ParseUint(raw, 10, 64); err == nil {
			filter.AppID = uint(appID)
		}
	}
	if raw := strings.TrimSpace(c.Query("payment_id")); raw != "" {
		if paymentID, err := strconv.ParseUint(raw, 10, 64); err == nil {
			filter.PaymentID = uint(paymentID)
		}
	}

	deliveries, total, err := h.DeliveryService.AdminList(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "fetch deliveries failed", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, deliveries, pagination)
}

// GetAdminDelivery 查询出站通知详情
func (h *Handler) GetAdminDelivery(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	record, err := h.DeliveryService.AdminGetByID(id)
	if err != nil {
		if errors.Is(err, service.ErrDeliveryNotFound) {
			respondError(c, response.CodeNotFound, "delivery not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "fetch delivery failed", err)
		return
	}
	response.Success(c, record)
}

// RedeliverAdminDelivery 重置出站通知并重新排队投递，dead 状态也可重投
func (h *Handler) RedeliverAdminDelivery(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	record, err := h.DeliveryService.Redeliver(id)
	if err != nil {
		if errors.Is(err, service.ErrDeliveryNotFound) {
			respondError(c, response.CodeNotFound, "delivery not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "redeliver failed", err)
		return
	}

	requestLog(c).Infow("admin_delivery_redelivered", "delivery_id", id,
		"operator_admin_id", currentAdminID(c))
	response.Success(c, record)
}
