package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gateway-next/internal/constants"
	"github.com/gateway-next/internal/models"
	"github.com/gateway-next/internal/payment"
	"github.com/gateway-next/internal/repository"

	"gorm.io/gorm"
)

func setupCallbackServiceTest(t *testing.T) (*CallbackService, *gorm.DB) {
	t.Helper()
	db := openServiceTestDB(t, "callback_service_test")
	svc := NewCallbackService(
		repository.NewCallbackRepository(db),
		repository.NewPaymentRepository(db),
		repository.NewRefundRepository(db),
		newTestDeliveryService(db),
	)
	return svc, db
}

func createPendingPayment(t *testing.T, db *gorm.DB, appID uint, orderNo, txnID string) *models.Payment {
	t.Helper()
	record := &models.Payment{
		AppID:           appID,
		MerchantOrderNo: orderNo,
		Provider:        constants.ProviderStripe,
		UnitAmount:      1000,
		Quantity:        1,
		Amount:          1000,
		Currency:        constants.CurrencyUSD,
		Status:          constants.PaymentStatusPending,
		ProviderTxnID:   txnID,
		NotifyURL:       "https://merchant.example.com/hooks",
	}
	if err := db.Create(record).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	return record
}

func paymentEvent(eventID, orderNo, txnID, outcome string) *payment.CallbackEvent {
	return &payment.CallbackEvent{
		Provider:        constants.ProviderStripe,
		ProviderEventID: eventID,
		ProviderTxnID:   txnID,
		MerchantOrderNo: orderNo,
		Outcome:         outcome,
		RawPayload:      map[string]interface{}{"id": eventID},
	}
}

func TestProcessPaymentSucceededEvent(t *testing.T) {
	svc, db := setupCallbackServiceTest(t)
	record := createPendingPayment(t, db, 1, "ORDER-CB-1", "pi_cb_1")

	result, err := svc.Process(context.Background(), paymentEvent("evt_1", "ORDER-CB-1", "pi_cb_1", constants.OutcomeSucceeded))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if result.Replayed {
		t.Fatalf("first delivery should not be a replay")
	}
	if result.Callback.Status != constants.CallbackStatusProcessed {
		t.Fatalf("callback status want processed got %s", result.Callback.Status)
	}
	if result.Callback.PaymentID == nil || *result.Callback.PaymentID != record.ID {
		t.Fatalf("callback should be linked to payment %d, got %+v", record.ID, result.Callback.PaymentID)
	}

	var got models.Payment
	if err := db.First(&got, record.ID).Error; err != nil {
		t.Fatalf("reload payment failed: %v", err)
	}
	if got.Status != constants.PaymentStatusSucceeded || got.PaidAt == nil {
		t.Fatalf("payment should be succeeded with paid_at, got %+v", got)
	}

	eventID := fmt.Sprintf("%d_%s", record.ID, constants.PaymentStatusSucceeded)
	var delivery models.WebhookDelivery
	if err := db.Where("event_id = ?", eventID).First(&delivery).Error; err != nil {
		t.Fatalf("succeeded delivery should be enqueued: %v", err)
	}
}

func TestProcessEventDeduplication(t *testing.T) {
	svc, db := setupCallbackServiceTest(t)
	createPendingPayment(t, db, 1, "ORDER-CB-DUP", "pi_cb_dup")

	event := paymentEvent("evt_dup", "ORDER-CB-DUP", "pi_cb_dup", constants.OutcomeSucceeded)
	if _, err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("first process failed: %v", err)
	}
	result, err := svc.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("replay process failed: %v", err)
	}
	if !result.Replayed {
		t.Fatalf("second delivery of the same event should be a replay")
	}

	var count int64
	if err := db.Model(&models.Callback{}).Where("provider = ? AND provider_event_id = ?", constants.ProviderStripe, "evt_dup").Count(&count).Error; err != nil {
		t.Fatalf("count callbacks failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("duplicate events must collapse to one row, got %d", count)
	}
}

func TestProcessTerminalStickiness(t *testing.T) {
	svc, db := setupCallbackServiceTest(t)
	record := createPendingPayment(t, db, 1, "ORDER-CB-TERM", "pi_cb_term")

	if _, err := svc.Process(context.Background(), paymentEvent("evt_t1", "ORDER-CB-TERM", "pi_cb_term", constants.OutcomeSucceeded)); err != nil {
		t.Fatalf("first process failed: %v", err)
	}

	// 不同终态的后续事件只记录分歧，状态不回退
	result, err := svc.Process(context.Background(), paymentEvent("evt_t2", "ORDER-CB-TERM", "pi_cb_term", constants.OutcomeFailed))
	if err != nil {
		t.Fatalf("divergent process failed: %v", err)
	}
	if result.Callback.Status != constants.CallbackStatusProcessed {
		t.Fatalf("divergent callback should still be processed, got %s", result.Callback.Status)
	}
	var got models.Payment
	if err := db.First(&got, record.ID).Error; err != nil {
		t.Fatalf("reload payment failed: %v", err)
	}
	if got.Status != constants.PaymentStatusSucceeded {
		t.Fatalf("terminal status must stick, got %s", got.Status)
	}

	// 同终态的新事件触发出站补投：把既有通知标记为 dead 后应被重置
	eventID := fmt.Sprintf("%d_%s", record.ID, constants.PaymentStatusSucceeded)
	if err := db.Model(&models.WebhookDelivery{}).Where("event_id = ?", eventID).
		Updates(map[string]interface{}{"status": constants.DeliveryStatusDead, "attempt_count": 10}).Error; err != nil {
		t.Fatalf("mark delivery dead failed: %v", err)
	}
	if _, err := svc.Process(context.Background(), paymentEvent("evt_t3", "ORDER-CB-TERM", "pi_cb_term", constants.OutcomeSucceeded)); err != nil {
		t.Fatalf("same-terminal replay failed: %v", err)
	}
	var delivery models.WebhookDelivery
	if err := db.Where("event_id = ?", eventID).First(&delivery).Error; err != nil {
		t.Fatalf("reload delivery failed: %v", err)
	}
	if delivery.Status != constants.DeliveryStatusPending || delivery.AttemptCount != 0 {
		t.Fatalf("replay should requeue delivery, got %+v", delivery)
	}
}

func TestProcessPaymentNotFound(t *testing.T) {
	svc, db := setupCallbackServiceTest(t)

	result, err := svc.Process(context.Background(), paymentEvent("evt_orphan", "NO-SUCH-ORDER", "pi_none", constants.OutcomeSucceeded))
	if err != nil {
		t.Fatalf("orphan event should be acknowledged, got %v", err)
	}
	if result.Callback.Status != constants.CallbackStatusFailed {
		t.Fatalf("orphan callback want failed got %s", result.Callback.Status)
	}

	var count int64
	if err := db.Model(&models.WebhookDelivery{}).Count(&count).Error; err != nil {
		t.Fatalf("count deliveries failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("orphan event must not enqueue deliveries, got %d", count)
	}
}

func TestProcessRefundEvent(t *testing.T) {
	svc, db := setupCallbackServiceTest(t)
	parent := createPendingPayment(t, db, 1, "ORDER-CB-RF", "pi_cb_rf")
	if err := db.Model(&models.Payment{}).Where("id = ?", parent.ID).Update("status", constants.PaymentStatusSucceeded).Error; err != nil {
		t.Fatalf("mark payment succeeded failed: %v", err)
	}
	record := models.Refund{
		PaymentID: parent.ID, Provider: constants.ProviderStripe, ProviderRefundID: "re_cb_1",
		RefundAmount: 1000, Currency: constants.CurrencyUSD, Status: constants.RefundStatusPending,
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("create refund failed: %v", err)
	}

	// 退款事件经 ProviderTxnID 携带提供方退款单号
	event := &payment.CallbackEvent{
		Provider:        constants.ProviderStripe,
		ProviderEventID: "evt_rf_1",
		ProviderTxnID:   "re_cb_1",
		Outcome:         constants.OutcomeRefundSucceeded,
		RawPayload:      map[string]interface{}{"id": "evt_rf_1"},
	}
	result, err := svc.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("process refund event failed: %v", err)
	}
	if result.Callback.Status != constants.CallbackStatusProcessed {
		t.Fatalf("callback want processed got %s", result.Callback.Status)
	}

	var got models.Refund
	if err := db.First(&got, record.ID).Error; err != nil {
		t.Fatalf("reload refund failed: %v", err)
	}
	if got.Status != constants.RefundStatusSucceeded || got.RefundedAt == nil {
		t.Fatalf("refund should be succeeded with refunded_at, got %+v", got)
	}

	eventID := fmt.Sprintf("%d_%s", record.ID, constants.RefundStatusSucceeded)
	var delivery models.WebhookDelivery
	if err := db.Where("event_id = ?", eventID).First(&delivery).Error; err != nil {
		t.Fatalf("refund delivery should be enqueued: %v", err)
	}

	// 定位不到退款单时记录失败并确认
	orphan := &payment.CallbackEvent{
		Provider:        constants.ProviderStripe,
		ProviderEventID: "evt_rf_orphan",
		ProviderTxnID:   "re_missing",
		Outcome:         constants.OutcomeRefundSucceeded,
	}
	orphanResult, err := svc.Process(context.Background(), orphan)
	if err != nil {
		t.Fatalf("orphan refund event should be acknowledged, got %v", err)
	}
	if orphanResult.Callback.Status != constants.CallbackStatusFailed {
		t.Fatalf("orphan refund callback want failed got %s", orphanResult.Callback.Status)
	}
}

func TestTestMarkPaymentSucceeded(t *testing.T) {
	svc, db := setupCallbackServiceTest(t)
	record := createPendingPayment(t, db, 1, "ORDER-CB-TEST", "pi_cb_test")

	updated, err := svc.TestMarkPaymentSucceeded(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("test mark succeeded failed: %v", err)
	}
	if updated.Status != constants.PaymentStatusSucceeded {
		t.Fatalf("payment want succeeded got %s", updated.Status)
	}

	// 已成功的支付单幂等返回
	again, err := svc.TestMarkPaymentSucceeded(context.Background(), record.ID)
	if err != nil || again.Status != constants.PaymentStatusSucceeded {
		t.Fatalf("repeat mark should be idempotent: %v %+v", err, again)
	}

	// 非 stripe 支付单拒绝
	alipay := createPendingPayment(t, db, 1, "ORDER-CB-ALI", "2024_txn")
	if err := db.Model(&models.Payment{}).Where("id = ?", alipay.ID).Update("provider", constants.ProviderAlipay).Error; err != nil {
		t.Fatalf("switch provider failed: %v", err)
	}
	if _, err := svc.TestMarkPaymentSucceeded(context.Background(), alipay.ID); !errors.Is(err, ErrTestSuccessNotStripe) {
		t.Fatalf("expected ErrTestSuccessNotStripe, got %v", err)
	}

	// 未拿到第三方交易号的支付单拒绝
	bare := createPendingPayment(t, db, 1, "ORDER-CB-BARE", "")
	if _, err := svc.TestMarkPaymentSucceeded(context.Background(), bare.ID); !errors.Is(err, ErrTestSuccessNoTxnID) {
		t.Fatalf("expected ErrTestSuccessNoTxnID, got %v", err)
	}

	if _, err := svc.TestMarkPaymentSucceeded(context.Background(), 9999); !errors.Is(err, ErrTestPaymentNotFound) {
		t.Fatalf("expected ErrTestPaymentNotFound, got %v", err)
	}
}

func TestProcessResumesInterruptedCallback(t *testing.T) {
	svc, db := setupCallbackServiceTest(t)
	record := createPendingPayment(t, db, 1, "ORDER-CB-RESUME", "pi_cb_resume")

	// 上一次处理中断：行存在但停留在 processing
	stale := models.Callback{
		Provider:        constants.ProviderStripe,
		ProviderEventID: "evt_resume",
		ProviderTxnID:   "pi_cb_resume",
		Status:          constants.CallbackStatusProcessing,
		ReceivedAt:      time.Now().Add(-time.Minute),
	}
	if err := db.Create(&stale).Error; err != nil {
		t.Fatalf("create stale callback failed: %v", err)
	}

	result, err := svc.Process(context.Background(), paymentEvent("evt_resume", "ORDER-CB-RESUME", "pi_cb_resume", constants.OutcomeSucceeded))
	if err != nil {
		t.Fatalf("resume process failed: %v", err)
	}
	if result.Replayed {
		t.Fatalf("interrupted callback should be resumed, not replayed")
	}
	if result.Callback.ID != stale.ID {
		t.Fatalf("resume should reuse existing row %d, got %d", stale.ID, result.Callback.ID)
	}

	var got models.Payment
	if err := db.First(&got, record.ID).Error; err != nil {
		t.Fatalf("reload payment failed: %v", err)
	}
	if got.Status != constants.PaymentStatusSucceeded {
		t.Fatalf("resumed processing should advance payment, got %s", got.Status)
	}
}
