package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gateway-next/internal/constants"
	"github.com/gateway-next/internal/models"
	"github.com/gateway-next/internal/payment"
	"github.com/gateway-next/internal/queue"
	"github.com/gateway-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// fakeAdapter 可编程的提供方适配器，按字段控制各操作的返回
type fakeAdapter struct {
	provider string

	createResult *payment.CreatePaymentResult
	createErr    error
	createCalls  int

	cancelResult *payment.CancelPaymentResult
	cancelErr    error

	refundResult *payment.RefundResult
	refundErr    error

	getRefundResult *payment.RefundResult
	getRefundErr    error
	getRefundCalls  int
}

func (f *fakeAdapter) Provider() string {
	if f.provider == "" {
		return constants.ProviderStripe
	}
	return f.provider
}

func (f *fakeAdapter) CreatePayment(ctx context.Context, req payment.CreatePaymentRequest) (*payment.CreatePaymentResult, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createResult != nil {
		return f.createResult, nil
	}
	return &payment.CreatePaymentResult{
		PayType:       constants.PayTypeClientSecret,
		Payload:       map[string]interface{}{"client_secret": "cs_test"},
		ProviderTxnID: fmt.Sprintf("pi_%d", req.PaymentID),
	}, nil
}

func (f *fakeAdapter) CancelPayment(ctx context.Context, req payment.CancelPaymentRequest) (*payment.CancelPaymentResult, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	if f.cancelResult != nil {
		return f.cancelResult, nil
	}
	return &payment.CancelPaymentResult{Success: true}, nil
}

func (f *fakeAdapter) CreateRefund(ctx context.Context, req payment.CreateRefundRequest) (*payment.RefundResult, error) {
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	if f.refundResult != nil {
		return f.refundResult, nil
	}
	return &payment.RefundResult{
		ProviderRefundID: fmt.Sprintf("re_%d", req.RefundID),
		Status:           constants.RefundStatusPending,
	}, nil
}

func (f *fakeAdapter) GetRefund(ctx context.Context, req payment.GetRefundRequest) (*payment.RefundResult, error) {
	f.getRefundCalls++
	if f.getRefundErr != nil {
		return nil, f.getRefundErr
	}
	if f.getRefundResult != nil {
		return f.getRefundResult, nil
	}
	return &payment.RefundResult{ProviderRefundID: req.ProviderRefundID, Status: constants.RefundStatusPending}, nil
}

func (f *fakeAdapter) ParseCallback(ctx context.Context, headers http.Header, body []byte) (*payment.CallbackEvent, error) {
	return nil, payment.ErrNotImplemented
}

func openServiceTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.App{},
		&models.Payment{},
		&models.Refund{},
		&models.Callback{},
		&models.WebhookDelivery{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db
	return db
}

func newTestDeliveryService(db *gorm.DB) *DeliveryService {
	return NewDeliveryService(
		repository.NewWebhookDeliveryRepository(db),
		repository.NewAppRepository(db),
		repository.NewPaymentRepository(db),
		5*time.Second, 10, 20,
	)
}

func setupPaymentServiceTest(t *testing.T, adapter *fakeAdapter) (*PaymentService, *gorm.DB) {
	t.Helper()
	db := openServiceTestDB(t, "payment_service_test")
	registry := payment.NewRegistry()
	registry.Register(adapter)
	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}
	svc := NewPaymentService(
		repository.NewPaymentRepository(db),
		repository.NewAppRepository(db),
		registry,
		queueClient,
		newTestDeliveryService(db),
		30,
	)
	return svc, db
}

func createServiceTestApp(t *testing.T, db *gorm.DB, name string) *models.App {
	t.Helper()
	app := &models.App{
		Name:      name,
		APIKey:    "sk_" + name,
		NotifyURL: "https://merchant.example.com/hooks",
		IsActive:  true,
	}
	if err := db.Create(app).Error; err != nil {
		t.Fatalf("create app failed: %v", err)
	}
	return app
}

func TestCreateOrGetPaymentIdempotency(t *testing.T) {
	adapter := &fakeAdapter{}
	svc, db := setupPaymentServiceTest(t, adapter)
	app := createServiceTestApp(t, db, "shop-a")

	input := CreatePaymentInput{
		MerchantOrderNo: "ORDER-001",
		Provider:        constants.ProviderStripe,
		UnitAmount:      500,
		Quantity:        2,
		Currency:        constants.CurrencyUSD,
		ProductName:     "Pro License",
	}
	record, isNew, err := svc.CreateOrGetPayment(context.Background(), app, input)
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	if !isNew {
		t.Fatalf("first create should be new")
	}
	if record.Amount != 1000 || record.Status != constants.PaymentStatusPending {
		t.Fatalf("unexpected payment: %+v", record)
	}
	if record.ProviderTxnID == "" || record.ExpiresAt == nil {
		t.Fatalf("provider txn id and expires_at should be set: %+v", record)
	}

	// 同参重复创建返回原单
	again, isNew, err := svc.CreateOrGetPayment(context.Background(), app, input)
	if err != nil {
		t.Fatalf("repeat create failed: %v", err)
	}
	if isNew || again.ID != record.ID {
		t.Fatalf("repeat create should return existing row, isNew=%v id=%d want %d", isNew, again.ID, record.ID)
	}
	if adapter.createCalls != 1 {
		t.Fatalf("provider should only be called once, got %d", adapter.createCalls)
	}

	// 同订单号不同金额视为冲突
	conflict := input
	conflict.UnitAmount = 999
	if _, _, err := svc.CreateOrGetPayment(context.Background(), app, conflict); !errors.Is(err, ErrPaymentConflict) {
		t.Fatalf("expected ErrPaymentConflict, got %v", err)
	}
}

func TestCreateOrGetPaymentValidation(t *testing.T) {
	svc, db := setupPaymentServiceTest(t, &fakeAdapter{})
	app := createServiceTestApp(t, db, "shop-v")

	cases := []struct {
		name  string
		input CreatePaymentInput
		want  error
	}{
		{
			name:  "missing order no",
			input: CreatePaymentInput{Provider: constants.ProviderStripe, UnitAmount: 100, Quantity: 1, Currency: constants.CurrencyUSD},
			want:  ErrPaymentInvalid,
		},
		{
			name:  "unknown provider",
			input: CreatePaymentInput{MerchantOrderNo: "O1", Provider: "paypal", UnitAmount: 100, Quantity: 1, Currency: constants.CurrencyUSD},
			want:  ErrUnsupportedProvider,
		},
		{
			name:  "unknown currency",
			input: CreatePaymentInput{MerchantOrderNo: "O2", Provider: constants.ProviderStripe, UnitAmount: 100, Quantity: 1, Currency: "XYZ"},
			want:  ErrUnsupportedCurrency,
		},
		{
			name:  "non positive amount",
			input: CreatePaymentInput{MerchantOrderNo: "O3", Provider: constants.ProviderStripe, UnitAmount: 0, Quantity: 1, Currency: constants.CurrencyUSD},
			want:  ErrPaymentInvalid,
		},
		{
			name:  "non positive quantity",
			input: CreatePaymentInput{MerchantOrderNo: "O4", Provider: constants.ProviderStripe, UnitAmount: 100, Quantity: 0, Currency: constants.CurrencyUSD},
			want:  ErrPaymentInvalid,
		},
	}
	for _, tc := range cases {
		if _, _, err := svc.CreateOrGetPayment(context.Background(), app, tc.input); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestCreateOrGetPaymentProviderFailure(t *testing.T) {
	adapter := &fakeAdapter{createErr: errors.New("stripe unavailable")}
	svc, db := setupPaymentServiceTest(t, adapter)
	app := createServiceTestApp(t, db, "shop-f")

	_, _, err := svc.CreateOrGetPayment(context.Background(), app, CreatePaymentInput{
		MerchantOrderNo: "ORDER-FAIL",
		Provider:        constants.ProviderStripe,
		UnitAmount:      100,
		Quantity:        1,
		Currency:        constants.CurrencyUSD,
	})
	if !errors.Is(err, ErrProviderCallFailed) {
		t.Fatalf("expected ErrProviderCallFailed, got %v", err)
	}
}

func TestCancelPayment(t *testing.T) {
	adapter := &fakeAdapter{}
	svc, db := setupPaymentServiceTest(t, adapter)
	app := createServiceTestApp(t, db, "shop-c")

	record, _, err := svc.CreateOrGetPayment(context.Background(), app, CreatePaymentInput{
		MerchantOrderNo: "ORDER-CXL",
		Provider:        constants.ProviderStripe,
		UnitAmount:      100,
		Quantity:        1,
		Currency:        constants.CurrencyUSD,
	})
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}

	// 订单号不匹配拒绝取消
	if _, err := svc.CancelPayment(context.Background(), app, CancelPaymentInput{PaymentID: record.ID, MerchantOrderNo: "OTHER"}); !errors.Is(err, ErrPaymentInvalid) {
		t.Fatalf("mismatched order no should fail, got %v", err)
	}

	canceled, err := svc.CancelPayment(context.Background(), app, CancelPaymentInput{PaymentID: record.ID, MerchantOrderNo: "ORDER-CXL"})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if canceled.Status != constants.PaymentStatusCanceled {
		t.Fatalf("status want canceled got %s", canceled.Status)
	}

	// payment.canceled 通知已入列
	var delivery models.WebhookDelivery
	eventID := fmt.Sprintf("%d_%s", record.ID, constants.PaymentStatusCanceled)
	if err := db.Where("app_id = ? AND event_id = ?", app.ID, eventID).First(&delivery).Error; err != nil {
		t.Fatalf("canceled delivery should be enqueued: %v", err)
	}
	if delivery.Status != constants.DeliveryStatusPending {
		t.Fatalf("delivery status want pending got %s", delivery.Status)
	}

	// 重复取消幂等成功
	again, err := svc.CancelPayment(context.Background(), app, CancelPaymentInput{PaymentID: record.ID, MerchantOrderNo: "ORDER-CXL"})
	if err != nil {
		t.Fatalf("repeat cancel should be idempotent: %v", err)
	}
	if again.Status != constants.PaymentStatusCanceled {
		t.Fatalf("repeat cancel status want canceled got %s", again.Status)
	}
}

func TestCancelPaymentRejectedAndTerminal(t *testing.T) {
	adapter := &fakeAdapter{cancelResult: &payment.CancelPaymentResult{Success: false, Code: "ORDER_PAID", Message: "already paid"}}
	svc, db := setupPaymentServiceTest(t, adapter)
	app := createServiceTestApp(t, db, "shop-r")

	record, _, err := svc.CreateOrGetPayment(context.Background(), app, CreatePaymentInput{
		MerchantOrderNo: "ORDER-REJ",
		Provider:        constants.ProviderStripe,
		UnitAmount:      100,
		Quantity:        1,
		Currency:        constants.CurrencyUSD,
	})
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}

	if _, err := svc.CancelPayment(context.Background(), app, CancelPaymentInput{PaymentID: record.ID, MerchantOrderNo: "ORDER-REJ"}); !errors.Is(err, ErrProviderCancelRejected) {
		t.Fatalf("expected ErrProviderCancelRejected, got %v", err)
	}

	// 终态支付单不可取消
	if err := db.Model(&models.Payment{}).Where("id = ?", record.ID).Update("status", constants.PaymentStatusSucceeded).Error; err != nil {
		t.Fatalf("mark succeeded failed: %v", err)
	}
	if _, err := svc.CancelPayment(context.Background(), app, CancelPaymentInput{PaymentID: record.ID, MerchantOrderNo: "ORDER-REJ"}); !errors.Is(err, ErrPaymentNotCancelable) {
		t.Fatalf("expected ErrPaymentNotCancelable, got %v", err)
	}
}

func TestExpirePayment(t *testing.T) {
	svc, db := setupPaymentServiceTest(t, &fakeAdapter{})
	app := createServiceTestApp(t, db, "shop-e")

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	overdue := models.Payment{
		AppID: app.ID, MerchantOrderNo: "ORDER-EXP-1", Provider: constants.ProviderStripe,
		UnitAmount: 100, Quantity: 1, Amount: 100, Currency: constants.CurrencyUSD,
		Status: constants.PaymentStatusPending, NotifyURL: "https://merchant.example.com/hooks", ExpiresAt: &past,
	}
	fresh := models.Payment{
		AppID: app.ID, MerchantOrderNo: "ORDER-EXP-2", Provider: constants.ProviderStripe,
		UnitAmount: 100, Quantity: 1, Amount: 100, Currency: constants.CurrencyUSD,
		Status: constants.PaymentStatusPending, ExpiresAt: &future,
	}
	done := models.Payment{
		AppID: app.ID, MerchantOrderNo: "ORDER-EXP-3", Provider: constants.ProviderStripe,
		UnitAmount: 100, Quantity: 1, Amount: 100, Currency: constants.CurrencyUSD,
		Status: constants.PaymentStatusSucceeded, ExpiresAt: &past,
	}
	for _, p := range []*models.Payment{&overdue, &fresh, &done} {
		if err := db.Create(p).Error; err != nil {
			t.Fatalf("create payment failed: %v", err)
		}
	}

	for _, id := range []uint{overdue.ID, fresh.ID, done.ID} {
		if err := svc.ExpirePayment(context.Background(), id); err != nil {
			t.Fatalf("expire payment %d failed: %v", id, err)
		}
	}

	var got models.Payment
	if err := db.First(&got, overdue.ID).Error; err != nil {
		t.Fatalf("reload overdue failed: %v", err)
	}
	if got.Status != constants.PaymentStatusCanceled {
		t.Fatalf("overdue payment want canceled got %s", got.Status)
	}
	got = models.Payment{}
	if err := db.First(&got, fresh.ID).Error; err != nil {
		t.Fatalf("reload fresh failed: %v", err)
	}
	if got.Status != constants.PaymentStatusPending {
		t.Fatalf("fresh payment should stay pending, got %s", got.Status)
	}
	got = models.Payment{}
	if err := db.First(&got, done.ID).Error; err != nil {
		t.Fatalf("reload done failed: %v", err)
	}
	if got.Status != constants.PaymentStatusSucceeded {
		t.Fatalf("terminal payment must not change, got %s", got.Status)
	}
}

func TestGetPaymentAppScoped(t *testing.T) {
	svc, db := setupPaymentServiceTest(t, &fakeAdapter{})
	appA := createServiceTestApp(t, db, "shop-scope-a")
	appB := createServiceTestApp(t, db, "shop-scope-b")

	record, _, err := svc.CreateOrGetPayment(context.Background(), appA, CreatePaymentInput{
		MerchantOrderNo: "ORDER-SCOPE",
		Provider:        constants.ProviderStripe,
		UnitAmount:      100,
		Quantity:        1,
		Currency:        constants.CurrencyUSD,
	})
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}

	if _, err := svc.GetByID(appB, record.ID); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("cross-app get should fail with ErrPaymentNotFound, got %v", err)
	}
	if _, err := svc.GetByMerchantOrderNo(appB, "ORDER-SCOPE"); !errors.Is(err, ErrPaymentOrderNotFound) {
		t.Fatalf("cross-app order lookup should fail, got %v", err)
	}
	got, err := svc.GetByMerchantOrderNo(appA, "ORDER-SCOPE")
	if err != nil || got.ID != record.ID {
		t.Fatalf("own-app order lookup failed: %v %+v", err, got)
	}
}
