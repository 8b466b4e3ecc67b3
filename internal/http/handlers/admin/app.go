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

// CreateAppRequest 创建应用请求
type CreateAppRequest struct {
	Name      string `json:"name" binding:"required"`
	NotifyURL string `json:"notify_url"`
}

// UpdateAppStatusRequest 启停应用请求
type UpdateAppStatusRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// CreateApp 创建商户应用并生成 API 密钥。
// 密钥仅在创建响应中完整返回一次。
func (h *Handler) CreateApp(c *gin.Context) {
	var req CreateAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	app, err := h.AppService.Create(service.CreateAppInput{
		Name:      req.Name,
		NotifyURL: req.NotifyURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAppNameExists):
			respondError(c, response.CodeAppNameExists, "app name already exists", nil)
		case errors.Is(err, service.ErrAPIKeyGenFailed):
			respondError(c, response.CodeAPIKeyGenFailed, "api key generation failed", err)
		case errors.Is(err, service.ErrPaymentInvalid):
			respondError(c, response.CodeValidation, err.Error(), nil)
		default:
			respondError(c, response.CodeInternal, "create app failed", err)
		}
		return
	}

	requestLog(c).Infow("admin_app_created", "app_id", app.ID, "name", app.Name,
		"operator_admin_id", currentAdminID(c))
	response.Created(c, app)
}

// GetAdminApps 分页查询应用列表
func (h *Handler) GetAdminApps(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.AppListFilter{
		Page:     page,
		PageSize: pageSize,
		Keyword:  strings.TrimSpace(c.Query("keyword")),
	}
	if raw := strings.TrimSpace(c.Query("is_active")); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filter.IsActive = &active
		}
	}

	apps, total, err := h.AppService.List(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "fetch apps failed", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, apps, pagination)
}

// GetAdminApp 查询应用详情
func (h *Handler) GetAdminApp(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	app, err := h.AppService.GetByID(id)
	if err != nil {
		if errors.Is(err, service.ErrAppNotFound) {
			respondError(c, response.CodeNotFound, "app not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "fetch app failed", err)
		return
	}
	response.Success(c, app)
}

// UpdateAppStatus 启用/停用应用
func (h *Handler) UpdateAppStatus(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req UpdateAppStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	app, err := h.AppService.UpdateStatus(id, service.UpdateAppStatusInput{IsActive: *req.IsActive})
	if err != nil {
		if errors.Is(err, service.ErrAppNotFound) {
			respondError(c, response.CodeNotFound, "app not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "update app status failed", err)
		return
	}

	requestLog(c).Infow("admin_app_status_updated", "app_id", app.ID,
		"is_active", app.IsActive, "operator_admin_id", currentAdminID(c))
	response.Success(c, app)
}

// DeleteApp 删除应用。已有支付单引用的应用拒绝删除。
func (h *Handler) DeleteApp(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.AppService.Delete(id); err != nil {
		switch {
		case errors.Is(err, service.ErrAppNotFound):
			respondError(c, response.CodeNotFound, "app not found", nil)
		case errors.Is(err, service.ErrAppInUse):
			respondError(c, response.CodeConflict, "app has payments and cannot be deleted", nil)
		default:
			respondError(c, response.CodeInternal, "delete app failed", err)
		}
		return
	}

	requestLog(c).Infow("admin_app_deleted", "app_id", id, "operator_admin_id", currentAdminID(c))
	response.Success(c, nil)
}
