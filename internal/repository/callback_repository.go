package repository

import (
	"errors"
	"strings"

	"github.com/gateway-next/internal/models"

	"gorm.io/gorm"
)

// CallbackRepository 回调入站记录数据访问接口
type CallbackRepository interface {
	Create(callback *models.Callback) error
	Update(callback *models.Callback) error
	GetByID(id uint) (*models.Callback, error)
	GetByProviderEventID(provider, providerEventID string) (*models.Callback, error)
	ListAdmin(filter CallbackListFilter) ([]models.Callback, int64, error)
	WithTx(tx *gorm.DB) *GormCallbackRepository
}

// GormCallbackRepository GORM 实现
type GormCallbackRepository struct {
	db *gorm.DB
}

// NewCallbackRepository 创建回调记录仓库
func NewCallbackRepository(db *gorm.DB) *GormCallbackRepository {
	return &GormCallbackRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCallbackRepository) WithTx(tx *gorm.DB) *GormCallbackRepository {
	if tx == nil {
		return r
	}
	return &GormCallbackRepository{db: tx}
}

// Create 创建回调记录
func (r *GormCallbackRepository) Create(callback *models.Callback) error {
	return r.db.Create(callback).Error
}

// Update 更新回调记录
func (r *GormCallbackRepository) Update(callback *models.Callback) error {
	return r.db.Save(callback).Error
}

// GetByID 根据 ID 获取回调记录
func (r *GormCallbackRepository) GetByID(id uint) (*models.Callback, error) {
	var callback models.Callback
	if err := r.db.First(&callback, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &callback, nil
}

// GetByProviderEventID 根据提供方+事件号获取回调记录（去重回读用）
func (r *GormCallbackRepository) GetByProviderEventID(provider, providerEventID string) (*models.Callback, error) {
	providerEventID = strings.TrimSpace(providerEventID)
	if providerEventID == "" {
		return nil, nil
	}
	var callback models.Callback
	result := r.db.Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		Limit(1).Find(&callback)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &callback, nil
}

// ListAdmin 管理端回调记录列表
func (r *GormCallbackRepository) ListAdmin(filter CallbackListFilter) ([]models.Callback, int64, error) {
	query := r.db.Model(&models.Callback{})

	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ProviderEventID != "" {
		query = query.Where("provider_event_id = ?", filter.ProviderEventID)
	}
	if filter.PaymentID != 0 {
		query = query.Where("payment_id = ?", filter.PaymentID)
	}
	if filter.ReceivedFrom != nil {
		query = query.Where("received_at >= ?", *filter.ReceivedFrom)
	}
	if filter.ReceivedTo != nil {
		query = query.Where("received_at <= ?", *filter.ReceivedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var callbacks []models.Callback
	if err := query.Order("id desc").Find(&callbacks).Error; err != nil {
		return nil, 0, err
	}
	return callbacks, total, nil
}
