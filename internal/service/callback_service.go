package service

import (
	"context"
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

// CallbackService 回调服务：入站去重、定位目标、推进状态、触发出站通知
type CallbackService struct {
	callbackRepo repository.CallbackRepository
	paymentRepo  repository.PaymentRepository
	refundRepo   repository.RefundRepository
	deliverySvc  *DeliveryService
}

// NewCallbackService 创建回调服务
func NewCallbackService(callbackRepo repository.CallbackRepository, paymentRepo repository.PaymentRepository, refundRepo repository.RefundRepository, deliverySvc *DeliveryService) *CallbackService {
	return &CallbackService{
		callbackRepo: callbackRepo,
		paymentRepo:  paymentRepo,
		refundRepo:   refundRepo,
		deliverySvc:  deliverySvc,
	}
}

func callbackLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// ProcessResult 回调处理结果
type ProcessResult struct {
	Callback *models.Callback
	Replayed bool // 同一事件重放（此前已 processed）
}

// Process 处理一条验签解析后的回调事件。
// 事件按 (provider, provider_event_id) 去重：已处理的重放直接确认；
// 定位不到目标时记录为 failed 并确认，避免提供方无限重试。
func (s *CallbackService) Process(ctx context.Context, event *payment.CallbackEvent) (*ProcessResult, error) {
	record, replayed, err := s.ingest(event)
	if err != nil {
		return nil, err
	}
	if replayed {
		return &ProcessResult{Callback: record, Replayed: true}, nil
	}

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		if event.IsRefundOutcome() {
			return s.processRefundEvent(tx, record, event)
		}
		return s.processPaymentEvent(tx, record, event)
	})
	if err != nil {
		callbackLogger("callback_id", record.ID).Errorw("callback_process_failed",
			"provider", event.Provider, "provider_event_id", event.ProviderEventID, "error", err)
		return nil, err
	}
	return &ProcessResult{Callback: record}, nil
}

// ingest 落库去重。重复事件复读既有行：已 processed 视为重放，
// 其余状态接管续跑（上次处理中断后的重投）。
func (s *CallbackService) ingest(event *payment.CallbackEvent) (*models.Callback, bool, error) {
	record := &models.Callback{
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		ProviderTxnID:   event.ProviderTxnID,
		Payload:         models.JSON(event.RawPayload),
		Status:          constants.CallbackStatusProcessing,
	}
	err := s.callbackRepo.Create(record)
	if err == nil {
		return record, false, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, err
	}
	existing, readErr := s.callbackRepo.GetByProviderEventID(event.Provider, event.ProviderEventID)
	if readErr != nil {
		return nil, false, readErr
	}
	if existing == nil {
		return nil, false, err
	}
	if existing.Status == constants.CallbackStatusProcessed {
		callbackLogger("callback_id", existing.ID).Infow("callback_replayed",
			"provider", event.Provider, "provider_event_id", event.ProviderEventID)
		return existing, true, nil
	}
	return existing, false, nil
}

func (s *CallbackService) processPaymentEvent(tx *gorm.DB, record *models.Callback, event *payment.CallbackEvent) error {
	target, err := s.locatePayment(tx, event)
	if err != nil {
		return err
	}
	if target == nil {
		callbackLogger("callback_id", record.ID).Warnw("callback_payment_not_found",
			"provider", event.Provider, "merchant_order_no", event.MerchantOrderNo,
			"provider_txn_id", event.ProviderTxnID)
		return s.finalize(tx, record, constants.CallbackStatusFailed)
	}
	record.PaymentID = &target.ID

	mapped := mapPaymentOutcome(event.Outcome)
	if mapped == "" {
		callbackLogger("callback_id", record.ID).Warnw("callback_outcome_unmapped",
			"provider", event.Provider, "outcome", event.Outcome)
		return s.finalize(tx, record, constants.CallbackStatusProcessed)
	}

	var locked models.Payment
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", target.ID).
		Limit(1).
		Find(&locked)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return s.finalize(tx, record, constants.CallbackStatusFailed)
	}

	if event.ProviderTxnID != "" && locked.ProviderTxnID == "" {
		locked.ProviderTxnID = event.ProviderTxnID
	}
	enqueue := false
	switch {
	case locked.IsTerminal():
		// 终态粘滞；同终态重放仍触发出站补投，不同终态仅记录分歧
		if mapped == locked.Status {
			enqueue = true
		} else if mapped != constants.PaymentStatusPending {
			callbackLogger("callback_id", record.ID).Warnw("callback_terminal_divergence",
				"payment_id", locked.ID, "current", locked.Status, "mapped", mapped)
		}
	case mapped != constants.PaymentStatusPending:
		locked.Status = mapped
		if mapped == constants.PaymentStatusSucceeded && locked.PaidAt == nil {
			now := time.Now()
			locked.PaidAt = &now
		}
		enqueue = true
		callbackLogger("callback_id", record.ID).Infow("payment_status_advanced",
			"payment_id", locked.ID, "status", mapped, "outcome", event.Outcome)
	}
	if err := s.paymentRepo.WithTx(tx).Update(&locked); err != nil {
		return err
	}
	if enqueue {
		if err := s.deliverySvc.EnqueuePaymentEvent(tx, &locked); err != nil {
			return err
		}
	}
	return s.finalize(tx, record, constants.CallbackStatusProcessed)
}

func (s *CallbackService) processRefundEvent(tx *gorm.DB, record *models.Callback, event *payment.CallbackEvent) error {
	providerRefundID := strings.TrimSpace(event.ProviderTxnID)
	var target *models.Refund
	var err error
	if providerRefundID != "" {
		target, err = s.refundRepo.WithTx(tx).GetLatestByProviderRefundID(event.Provider, providerRefundID)
		if err != nil {
			return err
		}
	}
	if target == nil {
		callbackLogger("callback_id", record.ID).Warnw("callback_refund_not_found",
			"provider", event.Provider, "provider_refund_id", providerRefundID)
		return s.finalize(tx, record, constants.CallbackStatusFailed)
	}
	record.PaymentID = &target.PaymentID

	mapped := mapRefundOutcome(event.Outcome)
	if mapped == "" {
		callbackLogger("callback_id", record.ID).Warnw("callback_outcome_unmapped",
			"provider", event.Provider, "outcome", event.Outcome)
		return s.finalize(tx, record, constants.CallbackStatusProcessed)
	}

	var locked models.Refund
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", target.ID).
		Limit(1).
		Find(&locked)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return s.finalize(tx, record, constants.CallbackStatusFailed)
	}

	if providerRefundID != "" && locked.ProviderRefundID == "" {
		locked.ProviderRefundID = providerRefundID
	}
	if !locked.IsTerminal() && locked.Status != mapped {
		locked.Status = mapped
		if mapped == constants.RefundStatusSucceeded && locked.RefundedAt == nil {
			now := time.Now()
			locked.RefundedAt = &now
		}
		callbackLogger("callback_id", record.ID).Infow("refund_status_advanced",
			"refund_id", locked.ID, "status", mapped, "outcome", event.Outcome)
	}
	if err := s.refundRepo.WithTx(tx).Update(&locked); err != nil {
		return err
	}
	if locked.Status == mapped {
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
	return s.finalize(tx, record, constants.CallbackStatusProcessed)
}

// locatePayment 先按商户订单号、再按第三方交易号定位，取最新一条
func (s *CallbackService) locatePayment(tx *gorm.DB, event *payment.CallbackEvent) (*models.Payment, error) {
	repo := s.paymentRepo.WithTx(tx)
	if no := strings.TrimSpace(event.MerchantOrderNo); no != "" {
		target, err := repo.GetLatestByProviderOrderNo(event.Provider, no)
		if err != nil {
			return nil, err
		}
		if target != nil {
			return target, nil
		}
	}
	if txnID := strings.TrimSpace(event.ProviderTxnID); txnID != "" {
		return repo.GetLatestByProviderTxnID(event.Provider, txnID)
	}
	return nil, nil
}

func (s *CallbackService) finalize(tx *gorm.DB, record *models.Callback, status string) error {
	record.Status = status
	now := time.Now()
	record.ProcessedAt = &now
	return s.callbackRepo.WithTx(tx).Update(record)
}

// TestMarkPaymentSucceeded 管理端测试钩子：构造合成回调事件驱动支付单到 succeeded。
// 仅支持 stripe 支付单，已成功的支付单幂等返回。
func (s *CallbackService) TestMarkPaymentSucceeded(ctx context.Context, paymentID uint) (*models.Payment, error) {
	target, err := s.paymentRepo.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrTestPaymentNotFound
	}
	if target.Status == constants.PaymentStatusSucceeded {
		return target, nil
	}
	if target.Provider != constants.ProviderStripe {
		return nil, ErrTestSuccessNotStripe
	}
	if strings.TrimSpace(target.ProviderTxnID) == "" {
		return nil, ErrTestSuccessNoTxnID
	}
	event := &payment.CallbackEvent{
		Provider:        constants.ProviderStripe,
		ProviderEventID: fmt.Sprintf("evt_test_%d_%d", target.ID, time.Now().Unix()),
		ProviderTxnID:   target.ProviderTxnID,
		MerchantOrderNo: target.MerchantOrderNo,
		Outcome:         constants.OutcomeSucceeded,
		RawPayload: map[string]interface{}{
			"test_mode":  true,
			"payment_id": target.ID,
		},
	}
	if _, err := s.Process(ctx, event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTestCallbackFailed, err)
	}
	updated, err := s.paymentRepo.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrTestPaymentNotFound
	}
	callbackLogger("payment_id", paymentID).Infow("payment_test_succeeded",
		"provider_event_id", event.ProviderEventID)
	return updated, nil
}

// AdminList 管理端分页查询回调记录
func (s *CallbackService) AdminList(filter repository.CallbackListFilter) ([]models.Callback, int64, error) {
	return s.callbackRepo.ListAdmin(filter)
}

func mapPaymentOutcome(outcome string) string {
	switch outcome {
	case constants.OutcomeSucceeded:
		return constants.PaymentStatusSucceeded
	case constants.OutcomeFailed:
		return constants.PaymentStatusFailed
	case constants.OutcomeCanceled, constants.OutcomeExpired:
		return constants.PaymentStatusCanceled
	case constants.OutcomePending:
		return constants.PaymentStatusPending
	}
	return ""
}

func mapRefundOutcome(outcome string) string {
	switch outcome {
	case constants.OutcomeRefundSucceeded:
		return constants.RefundStatusSucceeded
	case constants.OutcomeRefundFailed:
		return constants.RefundStatusFailed
	case constants.OutcomeRefundPending:
		return constants.RefundStatusPending
	case constants.OutcomeRefundCanceled:
		return constants.RefundStatusCanceled
	}
	return ""
}
