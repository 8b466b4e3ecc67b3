package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/gateway-next/internal/constants"
	"github.com/gateway-next/internal/logger"
	"github.com/gateway-next/internal/models"
	"github.com/gateway-next/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const deliveryResponseBodyLimit = 2048

// DeliveryService 出站通知服务：终态事件入列、投递与重试调度
type DeliveryService struct {
	deliveryRepo repository.WebhookDeliveryRepository
	appRepo      repository.AppRepository
	paymentRepo  repository.PaymentRepository
	httpClient   *http.Client
	maxRetries   int
	batchSize    int
}

// NewDeliveryService 创建出站通知服务
func NewDeliveryService(deliveryRepo repository.WebhookDeliveryRepository, appRepo repository.AppRepository, paymentRepo repository.PaymentRepository, httpTimeout time.Duration, maxRetries, batchSize int) *DeliveryService {
	if httpTimeout <= 0 {
		httpTimeout = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 10
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	return &DeliveryService{
		deliveryRepo: deliveryRepo,
		appRepo:      appRepo,
		paymentRepo:  paymentRepo,
		httpClient:   &http.Client{Timeout: httpTimeout},
		maxRetries:   maxRetries,
		batchSize:    batchSize,
	}
}

func deliveryLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// EnqueuePaymentEvent 按支付单当前状态入列 payment.{status} 通知。
// 同一 (app_id, event_id) 的既有行重置重投；通知地址无法解析时丢弃。
func (s *DeliveryService) EnqueuePaymentEvent(tx *gorm.DB, p *models.Payment) error {
	notifyURL, err := s.resolveNotifyURL(tx, p, constants.NotifyPathSuffixPayment)
	if err != nil {
		return err
	}
	if notifyURL == "" {
		deliveryLogger("payment_id", p.ID).Warnw("delivery_notify_url_unresolved", "app_id", p.AppID)
		return nil
	}
	eventID := fmt.Sprintf("%d_%s", p.ID, p.Status)
	eventType := constants.EventTypePaymentPrefix + p.Status
	payload := models.JSON{
		"event_id":          eventID,
		"event_type":        eventType,
		"payment_id":        p.ID,
		"merchant_order_no": p.MerchantOrderNo,
		"status":            p.Status,
		"amount":            p.Amount,
		"currency":          p.Currency,
		"provider_txn_id":   p.ProviderTxnID,
		"paid_at":           formatEventTime(p.PaidAt),
	}
	paymentID := p.ID
	return s.upsert(tx, p.AppID, eventID, eventType, &paymentID, notifyURL, payload)
}

// EnqueueRefundEvent 按退款单当前状态入列 refund.{status} 通知
func (s *DeliveryService) EnqueueRefundEvent(tx *gorm.DB, p *models.Payment, r *models.Refund) error {
	notifyURL, err := s.resolveNotifyURL(tx, p, constants.NotifyPathSuffixRefund)
	if err != nil {
		return err
	}
	if notifyURL == "" {
		deliveryLogger("refund_id", r.ID).Warnw("delivery_notify_url_unresolved", "app_id", p.AppID)
		return nil
	}
	eventID := fmt.Sprintf("%d_%s", r.ID, r.Status)
	eventType := constants.EventTypeRefundPrefix + r.Status
	payload := models.JSON{
		"event_id":           eventID,
		"event_type":         eventType,
		"refund_id":          r.ID,
		"payment_id":         p.ID,
		"merchant_order_no":  p.MerchantOrderNo,
		"status":             r.Status,
		"refund_amount":      r.RefundAmount,
		"currency":           r.Currency,
		"provider_refund_id": r.ProviderRefundID,
		"refunded_at":        formatEventTime(r.RefundedAt),
		"reason":             r.Reason,
	}
	paymentID := p.ID
	return s.upsert(tx, p.AppID, eventID, eventType, &paymentID, notifyURL, payload)
}

func (s *DeliveryService) resolveNotifyURL(tx *gorm.DB, p *models.Payment, suffix string) (string, error) {
	base := strings.TrimSpace(p.NotifyURL)
	if base == "" {
		appRepo := s.appRepo
		if tx != nil {
			appRepo = s.appRepo.WithTx(tx)
		}
		app, err := appRepo.GetByID(p.AppID)
		if err != nil {
			return "", err
		}
		if app != nil {
			base = strings.TrimSpace(app.NotifyURL)
		}
	}
	if base == "" {
		return "", nil
	}
	return strings.TrimRight(base, "/") + suffix, nil
}

func (s *DeliveryService) upsert(tx *gorm.DB, appID uint, eventID, eventType string, paymentID *uint, notifyURL string, payload models.JSON) error {
	repo := s.deliveryRepo
	if tx != nil {
		repo = s.deliveryRepo.WithTx(tx)
	}
	now := time.Now()
	existing, err := repo.GetByAppAndEventID(appID, eventID)
	if err != nil {
		return err
	}
	if existing != nil {
		resetDelivery(existing, notifyURL, payload, now)
		return repo.Update(existing)
	}
	record := &models.WebhookDelivery{
		AppID:         appID,
		EventID:       eventID,
		EventType:     eventType,
		PaymentID:     paymentID,
		NotifyURL:     notifyURL,
		Payload:       payload,
		Status:        constants.DeliveryStatusPending,
		NextAttemptAt: &now,
	}
	if err := repo.Create(record); err != nil {
		if !isUniqueViolation(err) {
			return err
		}
		// 并发入列竞争：复读后走重置路径
		existing, readErr := repo.GetByAppAndEventID(appID, eventID)
		if readErr != nil {
			return readErr
		}
		if existing == nil {
			return err
		}
		resetDelivery(existing, notifyURL, payload, now)
		return repo.Update(existing)
	}
	return nil
}

func resetDelivery(record *models.WebhookDelivery, notifyURL string, payload models.JSON, now time.Time) {
	record.NotifyURL = notifyURL
	record.Payload = payload
	record.Status = constants.DeliveryStatusPending
	record.AttemptCount = 0
	record.NextAttemptAt = &now
	record.LastAttemptAt = nil
	record.LastHTTPStatus = nil
	record.LastError = ""
	record.DeliveredAt = nil
}

// Redeliver 管理端重投：任意状态（含 dead）重置为 pending 重新排队
func (s *DeliveryService) Redeliver(id uint) (*models.WebhookDelivery, error) {
	record, err := s.deliveryRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrDeliveryNotFound
	}
	resetDelivery(record, record.NotifyURL, record.Payload, time.Now())
	if err := s.deliveryRepo.Update(record); err != nil {
		return nil, err
	}
	deliveryLogger("delivery_id", record.ID).Infow("delivery_requeued",
		"event_id", record.EventID, "app_id", record.AppID)
	return record, nil
}

// RunOnce 取一批到期通知并逐条投递，返回处理条数
func (s *DeliveryService) RunOnce(ctx context.Context) int {
	rows, err := s.deliveryRepo.ListDue(time.Now(), s.maxRetries, s.batchSize)
	if err != nil {
		deliveryLogger().Errorw("delivery_list_due_failed", "error", err)
		return 0
	}
	processed := 0
	for i := range rows {
		if ctx.Err() != nil {
			return processed
		}
		s.TryDeliver(ctx, &rows[i])
		processed++
	}
	return processed
}

// TryDeliver 投递一条通知：2xx 记成功，否则按指数退避调度重试，
// 尝试次数达到上限后进入 dead 终态。
func (s *DeliveryService) TryDeliver(ctx context.Context, record *models.WebhookDelivery) {
	now := time.Now()
	record.Status = constants.DeliveryStatusProcessing
	record.AttemptCount++
	record.LastAttemptAt = &now
	if err := s.deliveryRepo.Update(record); err != nil {
		deliveryLogger("delivery_id", record.ID).Errorw("delivery_mark_processing_failed", "error", err)
		return
	}

	status, body, err := s.post(ctx, record.NotifyURL, record.Payload)
	if err != nil {
		record.LastHTTPStatus = nil
		record.LastError = truncateDeliveryError("RequestError: " + err.Error())
		s.scheduleRetry(record)
		return
	}
	record.LastHTTPStatus = &status
	if status >= 200 && status < 300 {
		delivered := time.Now()
		record.Status = constants.DeliveryStatusSucceeded
		record.DeliveredAt = &delivered
		record.NextAttemptAt = nil
		record.LastError = ""
		if updateErr := s.deliveryRepo.Update(record); updateErr != nil {
			deliveryLogger("delivery_id", record.ID).Errorw("delivery_mark_succeeded_failed", "error", updateErr)
			return
		}
		deliveryLogger("delivery_id", record.ID).Infow("delivery_succeeded",
			"event_id", record.EventID, "attempt", record.AttemptCount)
		return
	}
	record.LastError = truncateDeliveryError(fmt.Sprintf("HTTP %d: %s", status, body))
	s.scheduleRetry(record)
}

func (s *DeliveryService) post(ctx context.Context, url string, payload models.JSON) (int, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, deliveryResponseBodyLimit))
	return resp.StatusCode, string(respBody), nil
}

// scheduleRetry 失败后调度：下次尝试时间 = now + 2^k + U(0, 0.2·2^k) 秒（k 为已尝试次数）
func (s *DeliveryService) scheduleRetry(record *models.WebhookDelivery) {
	if record.AttemptCount >= s.maxRetries {
		record.Status = constants.DeliveryStatusDead
		record.NextAttemptAt = nil
		if err := s.deliveryRepo.Update(record); err != nil {
			deliveryLogger("delivery_id", record.ID).Errorw("delivery_mark_dead_failed", "error", err)
			return
		}
		deliveryLogger("delivery_id", record.ID).Warnw("delivery_dead",
			"event_id", record.EventID, "attempt", record.AttemptCount, "last_error", record.LastError)
		return
	}
	base := math.Pow(2, float64(record.AttemptCount))
	delay := time.Duration((base + rand.Float64()*0.2*base) * float64(time.Second))
	next := time.Now().Add(delay)
	record.Status = constants.DeliveryStatusFailed
	record.NextAttemptAt = &next
	if err := s.deliveryRepo.Update(record); err != nil {
		deliveryLogger("delivery_id", record.ID).Errorw("delivery_schedule_retry_failed", "error", err)
		return
	}
	deliveryLogger("delivery_id", record.ID).Warnw("delivery_retry_scheduled",
		"event_id", record.EventID, "attempt", record.AttemptCount,
		"next_attempt_at", next.Format(time.RFC3339), "last_error", record.LastError)
}

// AdminGetByID 管理端按 ID 查询通知
func (s *DeliveryService) AdminGetByID(id uint) (*models.WebhookDelivery, error) {
	record, err := s.deliveryRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrDeliveryNotFound
	}
	return record, nil
}

// AdminList 管理端分页查询通知
func (s *DeliveryService) AdminList(filter repository.DeliveryListFilter) ([]models.WebhookDelivery, int64, error) {
	return s.deliveryRepo.ListAdmin(filter)
}

func truncateDeliveryError(message string) string {
	runes := []rune(message)
	if len(runes) <= constants.DeliveryLastErrorMaxChars {
		return message
	}
	return string(runes[:constants.DeliveryLastErrorMaxChars])
}

func formatEventTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
