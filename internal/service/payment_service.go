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
	"github.com/gateway-next/internal/queue"
	"github.com/gateway-next/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentService 支付服务
type PaymentService struct {
	paymentRepo          repository.PaymentRepository
	appRepo              repository.AppRepository
	registry             *payment.Registry
	queueClient          *queue.Client
	deliverySvc          *DeliveryService
	expireMinutesDefault int
}

// NewPaymentService 创建支付服务
func NewPaymentService(paymentRepo repository.PaymentRepository, appRepo repository.AppRepository, registry *payment.Registry, queueClient *queue.Client, deliverySvc *DeliveryService, expireMinutesDefault int) *PaymentService {
	if expireMinutesDefault < constants.PaymentExpireMinutesMin || expireMinutesDefault > constants.PaymentExpireMinutesMax {
		expireMinutesDefault = 30
	}
	return &PaymentService{
		paymentRepo:          paymentRepo,
		appRepo:              appRepo,
		registry:             registry,
		queueClient:          queueClient,
		deliverySvc:          deliverySvc,
		expireMinutesDefault: expireMinutesDefault,
	}
}

func paymentLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// CreatePaymentInput 创建支付输入（金额为最小货币单位）
type CreatePaymentInput struct {
	MerchantOrderNo string
	Provider        string
	UnitAmount      int64
	Quantity        int
	Currency        string
	ProductName     string
	ProductDesc     string
	NotifyURL       string
	SuccessURL      string
	CancelURL       string
	ExpireMinutes   int
	Metadata        map[string]string
	ClientIP        string
}

// CancelPaymentInput 取消支付输入，两个标识必须指向同一支付单
type CancelPaymentInput struct {
	PaymentID       uint
	MerchantOrderNo string
}

func (s *PaymentService) validateCreateInput(input *CreatePaymentInput) error {
	input.MerchantOrderNo = strings.TrimSpace(input.MerchantOrderNo)
	if input.MerchantOrderNo == "" {
		return fmt.Errorf("%w: merchant_order_no is required", ErrPaymentInvalid)
	}
	input.Provider = strings.ToLower(strings.TrimSpace(input.Provider))
	if !isSupportedProvider(input.Provider) {
		return ErrUnsupportedProvider
	}
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	if !isSupportedCurrency(input.Currency) {
		return ErrUnsupportedCurrency
	}
	if input.UnitAmount <= 0 {
		return fmt.Errorf("%w: unit_amount must be positive", ErrPaymentInvalid)
	}
	if input.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrPaymentInvalid)
	}
	if input.ExpireMinutes == 0 {
		input.ExpireMinutes = s.expireMinutesDefault
	}
	if input.ExpireMinutes < constants.PaymentExpireMinutesMin {
		input.ExpireMinutes = constants.PaymentExpireMinutesMin
	}
	if input.ExpireMinutes > constants.PaymentExpireMinutesMax {
		input.ExpireMinutes = constants.PaymentExpireMinutesMax
	}
	return nil
}

// CreateOrGetPayment 创建支付单。商户订单号在应用内幂等：
// 已存在且参数一致时返回原单（isNew=false），参数不一致时返回冲突错误。
func (s *PaymentService) CreateOrGetPayment(ctx context.Context, app *models.App, input CreatePaymentInput) (*models.Payment, bool, error) {
	if err := s.validateCreateInput(&input); err != nil {
		return nil, false, err
	}
	amount := input.UnitAmount * int64(input.Quantity)

	existing, err := s.paymentRepo.GetByAppAndOrderNo(app.ID, input.MerchantOrderNo)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if paymentParamsMatch(existing, amount, input.Currency, input.Provider) {
			return existing, false, nil
		}
		return nil, false, ErrPaymentConflict
	}

	notifyURL := strings.TrimSpace(input.NotifyURL)
	if notifyURL == "" {
		notifyURL = strings.TrimSpace(app.NotifyURL)
	}
	expiresAt := time.Now().Add(time.Duration(input.ExpireMinutes) * time.Minute)
	record := &models.Payment{
		AppID:           app.ID,
		MerchantOrderNo: input.MerchantOrderNo,
		Provider:        input.Provider,
		UnitAmount:      input.UnitAmount,
		Quantity:        input.Quantity,
		Amount:          amount,
		Currency:        input.Currency,
		Status:          constants.PaymentStatusPending,
		NotifyURL:       notifyURL,
		Metadata:        metadataToJSON(input.Metadata),
		ExpiresAt:       &expiresAt,
	}
	if err := s.paymentRepo.Create(record); err != nil {
		if !isUniqueViolation(err) {
			return nil, false, err
		}
		// 并发创建竞争：败者复读胜者行
		winner, readErr := s.paymentRepo.GetByAppAndOrderNo(app.ID, input.MerchantOrderNo)
		if readErr != nil {
			return nil, false, readErr
		}
		if winner == nil {
			return nil, false, err
		}
		if paymentParamsMatch(winner, amount, input.Currency, input.Provider) {
			return winner, false, nil
		}
		return nil, false, ErrPaymentRaceConflict
	}

	if err := s.requestProviderPayment(ctx, record, input); err != nil {
		return nil, false, err
	}
	if err := s.queueClient.EnqueuePaymentTimeoutExpire(queue.PaymentTimeoutExpirePayload{PaymentID: record.ID}, time.Until(expiresAt)); err != nil {
		paymentLogger("payment_id", record.ID).Warnw("payment_expire_enqueue_failed", "error", err)
	}
	paymentLogger("payment_id", record.ID, "app_id", app.ID).Infow("payment_created",
		"provider", record.Provider, "amount", record.Amount, "currency", record.Currency)
	return record, true, nil
}

func (s *PaymentService) requestProviderPayment(ctx context.Context, record *models.Payment, input CreatePaymentInput) error {
	adapter, err := s.registry.Get(record.Provider)
	if err != nil {
		return err
	}
	result, err := adapter.CreatePayment(ctx, payment.CreatePaymentRequest{
		PaymentID:       record.ID,
		MerchantOrderNo: record.MerchantOrderNo,
		UnitAmount:      record.UnitAmount,
		Quantity:        record.Quantity,
		Amount:          record.Amount,
		Currency:        record.Currency,
		ProductName:     input.ProductName,
		ProductDesc:     input.ProductDesc,
		ExpireMinutes:   input.ExpireMinutes,
		SuccessURL:      input.SuccessURL,
		CancelURL:       input.CancelURL,
		ClientIP:        input.ClientIP,
		Metadata:        input.Metadata,
	})
	if err != nil {
		paymentLogger("payment_id", record.ID).Errorw("payment_provider_create_failed",
			"provider", record.Provider, "error", err)
		return fmt.Errorf("%w: %v", ErrProviderCallFailed, err)
	}
	record.ProviderTxnID = result.ProviderTxnID
	record.PayType = result.PayType
	record.PayPayload = models.JSON(result.Payload)
	return s.paymentRepo.Update(record)
}

// GetByID 按 ID 查询支付单（应用内可见）
func (s *PaymentService) GetByID(app *models.App, id uint) (*models.Payment, error) {
	record, err := s.paymentRepo.GetByAppAndID(app.ID, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrPaymentNotFound
	}
	return record, nil
}

// GetByMerchantOrderNo 按商户订单号查询支付单（应用内可见）
func (s *PaymentService) GetByMerchantOrderNo(app *models.App, merchantOrderNo string) (*models.Payment, error) {
	merchantOrderNo = strings.TrimSpace(merchantOrderNo)
	if merchantOrderNo == "" {
		return nil, ErrPaymentOrderNotFound
	}
	record, err := s.paymentRepo.GetByAppAndOrderNo(app.ID, merchantOrderNo)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrPaymentOrderNotFound
	}
	return record, nil
}

// CancelPayment 取消待支付的支付单：先请求提供方关单，成功后本地转为 canceled。
// 已取消的支付单重复取消为幂等成功。
func (s *PaymentService) CancelPayment(ctx context.Context, app *models.App, input CancelPaymentInput) (*models.Payment, error) {
	record, err := s.GetByID(app, input.PaymentID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.MerchantOrderNo) != record.MerchantOrderNo {
		return nil, fmt.Errorf("%w: merchant_order_no does not match payment", ErrPaymentInvalid)
	}
	switch record.Status {
	case constants.PaymentStatusCanceled:
		return record, nil
	case constants.PaymentStatusSucceeded, constants.PaymentStatusFailed:
		return nil, ErrPaymentNotCancelable
	}

	adapter, err := s.registry.Get(record.Provider)
	if err != nil {
		return nil, err
	}
	result, err := adapter.CancelPayment(ctx, payment.CancelPaymentRequest{
		PaymentID:       record.ID,
		MerchantOrderNo: record.MerchantOrderNo,
		ProviderTxnID:   record.ProviderTxnID,
	})
	if err != nil {
		paymentLogger("payment_id", record.ID).Errorw("payment_provider_cancel_failed",
			"provider", record.Provider, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrProviderCallFailed, err)
	}
	if !result.Success {
		paymentLogger("payment_id", record.ID).Warnw("payment_provider_cancel_rejected",
			"provider", record.Provider, "provider_code", result.Code, "provider_message", result.Message)
		return nil, fmt.Errorf("%w: %s %s", ErrProviderCancelRejected, result.Code, result.Message)
	}

	canceled, err := s.cancelLocally(record.ID, "cancel")
	if err != nil {
		return nil, err
	}
	if canceled == nil {
		// 锁下复读发现已到终态，按当前值返回
		return s.GetByID(app, input.PaymentID)
	}
	return canceled, nil
}

// ExpirePayment 过期处理：仍处于 pending 且已过 expires_at 的支付单转为 canceled。
// 终态或未到期的支付单跳过。
func (s *PaymentService) ExpirePayment(ctx context.Context, paymentID uint) error {
	record, err := s.paymentRepo.GetByID(paymentID)
	if err != nil {
		return err
	}
	if record == nil || record.IsTerminal() {
		return nil
	}
	if record.ExpiresAt == nil || time.Now().Before(*record.ExpiresAt) {
		return nil
	}
	canceled, err := s.cancelLocally(paymentID, "expire")
	if err != nil {
		return err
	}
	if canceled != nil {
		paymentLogger("payment_id", paymentID).Infow("payment_expired",
			"merchant_order_no", canceled.MerchantOrderNo)
	}
	return nil
}

// cancelLocally 行锁下执行 pending → canceled，并入列 payment.canceled 通知。
// 锁下发现已到终态时返回 (nil, nil)。
func (s *PaymentService) cancelLocally(paymentID uint, reason string) (*models.Payment, error) {
	var canceled *models.Payment
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		var locked models.Payment
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", paymentID).
			Limit(1).
			Find(&locked)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrPaymentNotFound
		}
		if locked.IsTerminal() {
			return nil
		}
		locked.Status = constants.PaymentStatusCanceled
		if err := s.paymentRepo.WithTx(tx).Update(&locked); err != nil {
			return err
		}
		if err := s.deliverySvc.EnqueuePaymentEvent(tx, &locked); err != nil {
			return err
		}
		canceled = &locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	if canceled != nil {
		paymentLogger("payment_id", paymentID).Infow("payment_canceled", "reason", reason)
	}
	return canceled, nil
}

// AdminGetByID 管理端按 ID 查询支付单（不限应用）
func (s *PaymentService) AdminGetByID(id uint) (*models.Payment, error) {
	record, err := s.paymentRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrPaymentNotFound
	}
	return record, nil
}

// AdminList 管理端分页查询支付单
func (s *PaymentService) AdminList(filter repository.PaymentListFilter) ([]models.Payment, int64, error) {
	return s.paymentRepo.ListAdmin(filter)
}

func paymentParamsMatch(record *models.Payment, amount int64, currency, provider string) bool {
	return record.Amount == amount && record.Currency == currency && record.Provider == provider
}

func isSupportedProvider(provider string) bool {
	for _, p := range constants.SupportedProviders {
		if provider == p {
			return true
		}
	}
	return false
}

func isSupportedCurrency(currency string) bool {
	for _, c := range constants.SupportedCurrencies {
		if currency == c {
			return true
		}
	}
	return false
}

func metadataToJSON(metadata map[string]string) models.JSON {
	if len(metadata) == 0 {
		return nil
	}
	out := make(models.JSON, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
