package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gateway-next/internal/constants"
	"github.com/gateway-next/internal/logger"
	"github.com/gateway-next/internal/models"
	"github.com/gateway-next/internal/payment"
	"github.com/gateway-next/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RefundService 退款服务
type RefundService struct {
	refundRepo  repository.RefundRepository
	paymentRepo repository.PaymentRepository
	registry    *payment.Registry
	deliverySvc *DeliveryService
}

// NewRefundService 创建退款服务
func NewRefundService(refundRepo repository.RefundRepository, paymentRepo repository.PaymentRepository, registry *payment.Registry, deliverySvc *DeliveryService) *RefundService {
	return &RefundService{
		refundRepo:  refundRepo,
		paymentRepo: paymentRepo,
		registry:    registry,
		deliverySvc: deliverySvc,
	}
}

func refundLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// CreateRefundInput 创建退款输入。Amount 为 nil 时全额退款。
type CreateRefundInput struct {
	PaymentID uint
	Amount    *int64
	Reason    string
}

// CreateRefund 创建退款。锁住父支付单做累计金额校验并插入 pending 行，
// 提交后请求提供方，按结果推进退款状态；提供方拒绝时置为 failed 释放额度。
// app 为 nil 时不做应用隔离（管理端）。
func (s *RefundService) CreateRefund(ctx context.Context, app *models.App, input CreateRefundInput) (*models.Refund, error) {
	parent, err := s.loadPayment(app, input.PaymentID)
	if err != nil {
		return nil, err
	}
	if parent.Status != constants.PaymentStatusSucceeded {
		return nil, ErrRefundNotSucceeded
	}
	amount := parent.Amount
	if input.Amount != nil {
		amount = *input.Amount
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrPaymentInvalid)
	}
	if amount > parent.Amount {
		return nil, ErrRefundAmountExceeded
	}

	record := &models.Refund{
		PaymentID:    parent.ID,
		Provider:     parent.Provider,
		RefundAmount: amount,
		Currency:     parent.Currency,
		Reason:       strings.TrimSpace(input.Reason),
		Status:       constants.RefundStatusPending,
	}
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		var locked models.Payment
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", parent.ID).
			Limit(1).
			Find(&locked)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRefundPaymentNotFound
		}
		if locked.Status != constants.PaymentStatusSucceeded {
			return ErrRefundNotSucceeded
		}
		active, sumErr := s.refundRepo.WithTx(tx).SumActiveAmountByPaymentID(locked.ID)
		if sumErr != nil {
			return sumErr
		}
		if active+amount > locked.Amount {
			return ErrRefundCapExceeded
		}
		return s.refundRepo.WithTx(tx).Create(record)
	})
	if err != nil {
		return nil, err
	}
	refundLogger("refund_id", record.ID, "payment_id", parent.ID).Infow("refund_created",
		"amount", amount, "currency", record.Currency)

	if err := s.requestProviderRefund(ctx, parent, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *RefundService) requestProviderRefund(ctx context.Context, parent *models.Payment, record *models.Refund) error {
	adapter, err := s.registry.Get(record.Provider)
	if err != nil {
		return err
	}
	result, err := adapter.CreateRefund(ctx, payment.CreateRefundRequest{
		RefundID:        record.ID,
		PaymentID:       parent.ID,
		MerchantOrderNo: parent.MerchantOrderNo,
		ProviderTxnID:   parent.ProviderTxnID,
		RefundAmount:    record.RefundAmount,
		TotalAmount:     parent.Amount,
		Currency:        record.Currency,
		Reason:          record.Reason,
	})
	if err != nil {
		if errors.Is(err, payment.ErrNotImplemented) {
			return ErrRefundCreateUnsupported
		}
		// 提供方拒绝：退款置为 failed，释放累计额度
		refundLogger("refund_id", record.ID).Errorw("refund_provider_create_failed",
			"provider", record.Provider, "error", err)
		if markErr := s.advance(record.ID, constants.RefundStatusFailed, ""); markErr != nil {
			refundLogger("refund_id", record.ID).Errorw("refund_mark_failed_error", "error", markErr)
		}
		return fmt.Errorf("%w: %v", ErrProviderCallFailed, err)
	}
	return s.advance(record.ID, result.Status, result.ProviderRefundID)
}

// advance 行锁下推进退款状态：终态粘滞，进入 succeeded 时落 refunded_at，
// 到达终态后入列 refund.{status} 通知。
func (s *RefundService) advance(refundID uint, status, providerRefundID string) error {
	if status == "" {
		status = constants.RefundStatusPending
	}
	return models.DB.Transaction(func(tx *gorm.DB) error {
		var locked models.Refund
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", refundID).
			Limit(1).
			Find(&locked)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRefundNotFound
		}
		if providerRefundID != "" && locked.ProviderRefundID == "" {
			locked.ProviderRefundID = providerRefundID
		}
		if !locked.IsTerminal() && locked.Status != status {
			locked.Status = status
			if status == constants.RefundStatusSucceeded && locked.RefundedAt == nil {
				now := time.Now()
				locked.RefundedAt = &now
			}
		}
		if err := s.refundRepo.WithTx(tx).Update(&locked); err != nil {
			return err
		}
		if locked.IsTerminal() {
			parent, err := s.paymentRepo.WithTx(tx).GetByID(locked.PaymentID)
			if err != nil {
				return err
			}
			if parent != nil {
				if err := s.deliverySvc.EnqueueRefundEvent(tx, parent, &locked); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// GetRefund 按 ID 查询退款单。app 非 nil 时经父支付单做应用隔离。
func (s *RefundService) GetRefund(app *models.App, id uint) (*models.Refund, error) {
	record, err := s.refundRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRefundNotFound
	}
	if app != nil {
		parent, err := s.paymentRepo.GetByAppAndID(app.ID, record.PaymentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, ErrRefundNotFound
		}
	}
	return record, nil
}

// ListByPayment 按支付单分页查询退款。app 非 nil 时做应用隔离。
func (s *RefundService) ListByPayment(app *models.App, paymentID uint, page, pageSize int) ([]models.Refund, int64, error) {
	if _, err := s.loadPayment(app, paymentID); err != nil {
		if errors.Is(err, ErrRefundPaymentNotFound) {
			return nil, 0, ErrPaymentNotFound
		}
		return nil, 0, err
	}
	return s.refundRepo.ListByPaymentID(paymentID, page, pageSize)
}

// SyncRefundStatus 主动向提供方查询退款状态并推进本地状态。
// 已到终态的退款为 no-op。
func (s *RefundService) SyncRefundStatus(ctx context.Context, app *models.App, refundID uint) (*models.Refund, error) {
	record, err := s.GetRefund(app, refundID)
	if err != nil {
		return nil, err
	}
	if record.IsTerminal() {
		return record, nil
	}
	if strings.TrimSpace(record.ProviderRefundID) == "" {
		return nil, ErrRefundNoProviderID
	}
	parent, err := s.paymentRepo.GetByID(record.PaymentID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, ErrRefundPaymentNotFound
	}
	adapter, err := s.registry.Get(record.Provider)
	if err != nil {
		return nil, err
	}
	result, err := adapter.GetRefund(ctx, payment.GetRefundRequest{
		RefundID:         record.ID,
		ProviderRefundID: record.ProviderRefundID,
		ProviderTxnID:    parent.ProviderTxnID,
		MerchantOrderNo:  parent.MerchantOrderNo,
	})
	if err != nil {
		if errors.Is(err, payment.ErrNotImplemented) {
			return nil, ErrRefundSyncUnsupported
		}
		refundLogger("refund_id", record.ID).Errorw("refund_provider_query_failed",
			"provider", record.Provider, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrProviderCallFailed, err)
	}
	if err := s.advance(record.ID, result.Status, result.ProviderRefundID); err != nil {
		return nil, err
	}
	synced, err := s.refundRepo.GetByID(record.ID)
	if err != nil {
		return nil, err
	}
	if synced == nil {
		return nil, ErrRefundNotFound
	}
	refundLogger("refund_id", record.ID).Infow("refund_synced", "status", synced.Status)
	return synced, nil
}

// AdminList 管理端分页查询退款单
func (s *RefundService) AdminList(filter repository.RefundListFilter) ([]models.Refund, int64, error) {
	return s.refundRepo.ListAdmin(filter)
}

func (s *RefundService) loadPayment(app *models.App, paymentID uint) (*models.Payment, error) {
	var parent *models.Payment
	var err error
	if app != nil {
		parent, err = s.paymentRepo.GetByAppAndID(app.ID, paymentID)
	} else {
		parent, err = s.paymentRepo.GetByID(paymentID)
	}
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, ErrRefundPaymentNotFound
	}
	return parent, nil
}
