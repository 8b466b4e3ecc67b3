package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/gateway-next/internal/constants"
	"github.com/gateway-next/internal/models"

	"gorm.io/gorm"
)

// WebhookDeliveryRepository 出站通知数据访问接口
type WebhookDeliveryRepository interface {
	Create(delivery *models.WebhookDelivery) error
	Update(delivery *models.WebhookDelivery) error
	GetByID(id uint) (*models.WebhookDelivery, error)
	GetByAppAndEventID(appID uint, eventID string) (*models.WebhookDelivery, error)
	ListDue(now time.Time, maxRetries, limit int) ([]models.WebhookDelivery, error)
	ListAdmin(filter DeliveryListFilter) ([]models.WebhookDelivery, int64, error)
	WithTx(tx *gorm.DB) *GormWebhookDeliveryRepository
}

// GormWebhookDeliveryRepository GORM 实现
type GormWebhookDeliveryRepository struct {
	db *gorm.DB
}

// NewWebhookDeliveryRepository 创建出站通知仓库
func NewWebhookDeliveryRepository(db *gorm.DB) *GormWebhookDeliveryRepository {
	return &GormWebhookDeliveryRepository{db: db}
}

// WithTx 绑定事务
func (r *GormWebhookDeliveryRepository) WithTx(tx *gorm.DB) *GormWebhookDeliveryRepository {
	if tx == nil {
		return r
	}
	return &GormWebhookDeliveryRepository{db: tx}
}

// Create 创建出站通知
func (r *GormWebhookDeliveryRepository) Create(delivery *models.WebhookDelivery) error {
	return r.db.Create(delivery).Error
}

// Update 更新出站通知
func (r *GormWebhookDeliveryRepository) Update(delivery *models.WebhookDelivery) error {
	return r.db.Save(delivery).Error
}

// GetByID 根据 ID 获取出站通知
func (r *GormWebhookDeliveryRepository) GetByID(id uint) (*models.WebhookDelivery, error) {
	var delivery models.WebhookDelivery
	if err := r.db.First(&delivery, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &delivery, nil
}

// GetByAppAndEventID 根据应用+事件号获取出站通知（重复触发去重用）
func (r *GormWebhookDeliveryRepository) GetByAppAndEventID(appID uint, eventID string) (*models.WebhookDelivery, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, nil
	}
	var delivery models.WebhookDelivery
	result := r.db.Where("app_id = ? AND event_id = ?", appID, eventID).Limit(1).Find(&delivery)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &delivery, nil
}

// ListDue 获取到期待投递的批次（pending/failed、未超过最大尝试次数、到达下次尝试时间）
func (r *GormWebhookDeliveryRepository) ListDue(now time.Time, maxRetries, limit int) ([]models.WebhookDelivery, error) {
	if limit <= 0 {
		return []models.WebhookDelivery{}, nil
	}
	var deliveries []models.WebhookDelivery
	err := r.db.Where(
		"status IN ? AND attempt_count < ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)",
		[]string{constants.DeliveryStatusPending, constants.DeliveryStatusFailed},
		maxRetries,
		now,
	).Order("created_at asc").Limit(limit).Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

// ListAdmin 管理端出站通知列表
func (r *GormWebhookDeliveryRepository) ListAdmin(filter DeliveryListFilter) ([]models.WebhookDelivery, int64, error) {
	query := r.db.Model(&models.WebhookDelivery{})

	if filter.AppID != 0 {
		query = query.Where("app_id = ?", filter.AppID)
	}
	if filter.PaymentID != 0 {
		query = query.Where("payment_id = ?", filter.PaymentID)
	}
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var deliveries []models.WebhookDelivery
	if err := query.Order("id desc").Find(&deliveries).Error; err != nil {
		return nil, 0, err
	}
	return deliveries, total, nil
}
