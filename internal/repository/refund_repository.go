package repository

import (
	"errors"
	"strings"

	"github.com/gateway-next/internal/constants"
	"github.com/gateway-next/internal/models"

	"gorm.io/gorm"
)

// RefundRepository 退款单数据访问接口
type RefundRepository interface {
	Create(refund *models.Refund) error
	Update(refund *models.Refund) error
	GetByID(id uint) (*models.Refund, error)
	GetLatestByProviderRefundID(provider, providerRefundID string) (*models.Refund, error)
	SumActiveAmountByPaymentID(paymentID uint) (int64, error)
	ListByPaymentID(paymentID uint, page, pageSize int) ([]models.Refund, int64, error)
	ListAdmin(filter RefundListFilter) ([]models.Refund, int64, error)
	WithTx(tx *gorm.DB) *GormRefundRepository
}

// GormRefundRepository GORM 实现
type GormRefundRepository struct {
	db *gorm.DB
}

// NewRefundRepository 创建退款单仓库
func NewRefundRepository(db *gorm.DB) *GormRefundRepository {
	return &GormRefundRepository{db: db}
}

// WithTx 绑定事务
func (r *GormRefundRepository) WithTx(tx *gorm.DB) *GormRefundRepository {
	if tx == nil {
		return r
	}
	return &GormRefundRepository{db: tx}
}

// Create 创建退款单
func (r *GormRefundRepository) Create(refund *models.Refund) error {
	return r.db.Create(refund).Error
}

// Update 更新退款单
func (r *GormRefundRepository) Update(refund *models.Refund) error {
	return r.db.Save(refund).Error
}

// GetByID 根据 ID 获取退款单
func (r *GormRefundRepository) GetByID(id uint) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.First(&refund, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refund, nil
}

// GetLatestByProviderRefundID 按提供方+第三方退款单号获取最新退款单（回调定位用）
func (r *GormRefundRepository) GetLatestByProviderRefundID(provider, providerRefundID string) (*models.Refund, error) {
	providerRefundID = strings.TrimSpace(providerRefundID)
	if providerRefundID == "" {
		return nil, nil
	}
	var refund models.Refund
	result := r.db.Where("provider = ? AND provider_refund_id = ?", provider, providerRefundID).
		Order("id desc").Limit(1).Find(&refund)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &refund, nil
}

// SumActiveAmountByPaymentID 统计支付单下 pending/succeeded 退款金额之和（累计退款上限校验用）
func (r *GormRefundRepository) SumActiveAmountByPaymentID(paymentID uint) (int64, error) {
	var total int64
	err := r.db.Model(&models.Refund{}).
		Where("payment_id = ? AND status IN ?", paymentID,
			[]string{constants.RefundStatusPending, constants.RefundStatusSucceeded}).
		Select("COALESCE(SUM(refund_amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ListByPaymentID 获取支付单下的退款单分页列表
func (r *GormRefundRepository) ListByPaymentID(paymentID uint, page, pageSize int) ([]models.Refund, int64, error) {
	query := r.db.Model(&models.Refund{}).Where("payment_id = ?", paymentID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, page, pageSize)

	var refunds []models.Refund
	if err := query.Order("id desc").Find(&refunds).Error; err != nil {
		return nil, 0, err
	}
	return refunds, total, nil
}

// ListAdmin 管理端退款单列表
func (r *GormRefundRepository) ListAdmin(filter RefundListFilter) ([]models.Refund, int64, error) {
	query := r.db.Model(&models.Refund{})

	if filter.PaymentID != 0 {
		query = query.Where("payment_id = ?", filter.PaymentID)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var refunds []models.Refund
	if err := query.Order("id desc").Find(&refunds).Error; err != nil {
		return nil, 0, err
	}
	return refunds, total, nil
}
