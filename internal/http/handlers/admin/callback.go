package admin

import (
	"strconv"
	"strings"

	"github.com/gateway-next/internal/http/response"
	"github.com/gateway-next/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetAdminCallbacks 分页查询回调入站记录
func (h *Handler) GetAdminCallbacks(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.CallbackListFilter{
		Page:            page,
		PageSize:        pageSize,
		Provider:        strings.TrimSpace(c.Query("provider")),
		Status:          strings.TrimSpace(c.Query("status")),
		ProviderEventID: strings.TrimSpace(c.Query("provider_event_id")),
		ReceivedFrom:    parseTimeQuery(c, "received_from"),
		ReceivedTo:      parseTimeQuery(c, "received_to"),
	}
	if raw := strings.TrimSpace(c.Query("payment_id")); raw != "" {
		if paymentID, err := strconv.ParseUint(raw, 10, 64); err == nil {
			filter.PaymentID = uint(paymentID)
		}
	}

	callbacks, total, err := h.CallbackService.AdminList(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "fetch callbacks failed", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, callbacks, pagination)
}
