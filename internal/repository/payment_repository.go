package repository

import (
	"errors"
	"strings"

	"github.com/gateway-next/internal/models"

	"gorm.io/gorm"
)

// PaymentRepository 支付单数据访问接口
type PaymentRepository interface {
	Create(payment *models.Payment) error
	Update(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetByAppAndID(appID, id uint) (*models.Payment, error)
	GetByAppAndOrderNo(appID uint, merchantOrderNo string) (*models.Payment, error)
	GetLatestByProviderOrderNo(provider, merchantOrderNo string) (*models.Payment, error)
	GetLatestByProviderTxnID(provider, providerTxnID string) (*models.Payment, error)
	CountByAppID(appID uint) (int64, error)
	ListAdmin(filter PaymentListFilter) ([]models.Payment, int64, error)
	WithTx(tx *gorm.DB) *GormPaymentRepository
}

// GormPaymentRepository GORM 实现
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付单仓库
func NewPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentRepository) WithTx(tx *gorm.DB) *GormPaymentRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentRepository{db: tx}
}

// Create 创建支付单
func (r *GormPaymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

// Update 更新支付单
func (r *GormPaymentRepository) Update(payment *models.Payment) error {
	return r.db.Save(payment).Error
}

// GetByID 根据 ID 获取支付单
func (r *GormPaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.First(&payment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetByAppAndID 应用范围内根据 ID 获取支付单（其他应用的支付单视同不存在）
func (r *GormPaymentRepository) GetByAppAndID(appID, id uint) (*models.Payment, error) {
	var payment models.Payment
	result := r.db.Where("app_id = ? AND id = ?", appID, id).Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// GetByAppAndOrderNo 应用范围内根据商户订单号获取支付单
func (r *GormPaymentRepository) GetByAppAndOrderNo(appID uint, merchantOrderNo string) (*models.Payment, error) {
	merchantOrderNo = strings.TrimSpace(merchantOrderNo)
	if merchantOrderNo == "" {
		return nil, nil
	}
	var payment models.Payment
	result := r.db.Where("app_id = ? AND merchant_order_no = ?", appID, merchantOrderNo).Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// GetLatestByProviderOrderNo 按提供方+商户订单号获取最新支付单（回调定位用）
func (r *GormPaymentRepository) GetLatestByProviderOrderNo(provider, merchantOrderNo string) (*models.Payment, error) {
	merchantOrderNo = strings.TrimSpace(merchantOrderNo)
	if merchantOrderNo == "" {
		return nil, nil
	}
	var payment models.Payment
	result := r.db.Where("provider = ? AND merchant_order_no = ?", provider, merchantOrderNo).
		Order("id desc").Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// GetLatestByProviderTxnID 按提供方+第三方交易号获取最新支付单（回调定位用）
func (r *GormPaymentRepository) GetLatestByProviderTxnID(provider, providerTxnID string) (*models.Payment, error) {
	providerTxnID = strings.TrimSpace(providerTxnID)
	if providerTxnID == "" {
		return nil, nil
	}
	var payment models.Payment
	result := r.db.Where("provider = ? AND provider_txn_id = ?", provider, providerTxnID).
		Order("id desc").Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// CountByAppID 统计应用下的支付单数量（删除应用前校验用）
func (r *GormPaymentRepository) CountByAppID(appID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&models.Payment{}).Where("app_id = ?", appID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListAdmin 管理端支付单列表
func (r *GormPaymentRepository) ListAdmin(filter PaymentListFilter) ([]models.Payment, int64, error) {
	query := r.db.Model(&models.Payment{})

	if filter.AppID != 0 {
		query = query.Where("app_id = ?", filter.AppID)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.MerchantOrderNo != "" {
		query = query.Where("merchant_order_no = ?", filter.MerchantOrderNo)
	}
	if filter.ProviderTxnID != "" {
		query = query.Where("provider_txn_id = ?", filter.ProviderTxnID)
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

	var payments []models.Payment
	if err := query.Order("id desc").Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}
