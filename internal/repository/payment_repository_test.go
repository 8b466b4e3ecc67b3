package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/gateway-next/internal/constants"
	"github.com/gateway-next/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupPaymentRepositoryTest(t *testing.T) (*GormPaymentRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:payment_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.App{},
		&models.Payment{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewPaymentRepository(db), db
}

func createTestPayment(t *testing.T, db *gorm.DB, appID uint, orderNo, provider, status string) *models.Payment {
	t.Helper()
	payment := models.Payment{
		AppID:           appID,
		MerchantOrderNo: orderNo,
		Provider:        provider,
		UnitAmount:      1000,
		Quantity:        2,
		Amount:          2000,
		Currency:        constants.CurrencyUSD,
		Status:          status,
	}
	if err := db.Create(&payment).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	return &payment
}

func TestPaymentRepositoryAppScopedLookups(t *testing.T) {
	repo, db := setupPaymentRepositoryTest(t)

	payment := createTestPayment(t, db, 1, "ORDER-001", constants.ProviderStripe, constants.PaymentStatusPending)

	got, err := repo.GetByAppAndID(1, payment.ID)
	if err != nil {
		t.Fatalf("get by app and id failed: %v", err)
	}
	if got == nil || got.ID != payment.ID {
		t.Fatalf("expected payment %d, got %+v", payment.ID, got)
	}

	// 其他应用范围内查询应视同不存在
	other, err := repo.GetByAppAndID(2, payment.ID)
	if err != nil {
		t.Fatalf("cross-app get failed: %v", err)
	}
	if other != nil {
		t.Fatalf("payment should be invisible to another app, got %+v", other)
	}

	byOrder, err := repo.GetByAppAndOrderNo(1, "ORDER-001")
	if err != nil {
		t.Fatalf("get by order no failed: %v", err)
	}
	if byOrder == nil || byOrder.ID != payment.ID {
		t.Fatalf("expected payment by order no, got %+v", byOrder)
	}

	missing, err := repo.GetByAppAndOrderNo(2, "ORDER-001")
	if err != nil {
		t.Fatalf("cross-app order lookup failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("order no lookup should be app scoped")
	}
}

func TestPaymentRepositoryUniqueAppOrderNo(t *testing.T) {
	_, db := setupPaymentRepositoryTest(t)

	createTestPayment(t, db, 1, "ORDER-DUP", constants.ProviderStripe, constants.PaymentStatusPending)

	dup := models.Payment{
		AppID:           1,
		MerchantOrderNo: "ORDER-DUP",
		Provider:        constants.ProviderAlipay,
		UnitAmount:      500,
		Quantity:        1,
		Amount:          500,
		Currency:        constants.CurrencyCNY,
		Status:          constants.PaymentStatusPending,
	}
	err := db.Create(&dup).Error
	if err == nil {
		t.Fatalf("duplicate (app_id, merchant_order_no) should fail")
	}
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	// 不同应用下同订单号可以创建
	otherApp := models.Payment{
		AppID:           2,
		MerchantOrderNo: "ORDER-DUP",
		Provider:        constants.ProviderStripe,
		UnitAmount:      500,
		Quantity:        1,
		Amount:          500,
		Currency:        constants.CurrencyUSD,
		Status:          constants.PaymentStatusPending,
	}
	if err := db.Create(&otherApp).Error; err != nil {
		t.Fatalf("same order no under another app should succeed: %v", err)
	}
}

func TestPaymentRepositoryProviderScopedLatestLookups(t *testing.T) {
	repo, db := setupPaymentRepositoryTest(t)

	first := createTestPayment(t, db, 1, "ORDER-A", constants.ProviderStripe, constants.PaymentStatusPending)
	second := createTestPayment(t, db, 2, "ORDER-A", constants.ProviderStripe, constants.PaymentStatusPending)

	got, err := repo.GetLatestByProviderOrderNo(constants.ProviderStripe, "ORDER-A")
	if err != nil {
		t.Fatalf("get latest by provider order no failed: %v", err)
	}
	if got == nil || got.ID != second.ID {
		t.Fatalf("expected the latest row %d, got %+v", second.ID, got)
	}

	// 提供方维度隔离
	none, err := repo.GetLatestByProviderOrderNo(constants.ProviderAlipay, "ORDER-A")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if none != nil {
		t.Fatalf("alipay lookup should not match stripe payments")
	}

	first.ProviderTxnID = "pi_abc"
	if err := repo.Update(first); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	byTxn, err := repo.GetLatestByProviderTxnID(constants.ProviderStripe, "pi_abc")
	if err != nil {
		t.Fatalf("get latest by txn id failed: %v", err)
	}
	if byTxn == nil || byTxn.ID != first.ID {
		t.Fatalf("expected payment %d by txn id, got %+v", first.ID, byTxn)
	}

	empty, err := repo.GetLatestByProviderTxnID(constants.ProviderStripe, "   ")
	if err != nil {
		t.Fatalf("blank txn id lookup failed: %v", err)
	}
	if empty != nil {
		t.Fatalf("blank txn id should not match anything")
	}
}

func TestPaymentRepositoryListAdminFilters(t *testing.T) {
	repo, db := setupPaymentRepositoryTest(t)

	createTestPayment(t, db, 1, "ORDER-1", constants.ProviderStripe, constants.PaymentStatusPending)
	createTestPayment(t, db, 1, "ORDER-2", constants.ProviderStripe, constants.PaymentStatusSucceeded)
	createTestPayment(t, db, 2, "ORDER-3", constants.ProviderAlipay, constants.PaymentStatusSucceeded)

	payments, total, err := repo.ListAdmin(PaymentListFilter{Page: 1, PageSize: 10, AppID: 1})
	if err != nil {
		t.Fatalf("list by app failed: %v", err)
	}
	if total != 2 || len(payments) != 2 {
		t.Fatalf("expected 2 payments for app 1, got total=%d len=%d", total, len(payments))
	}

	payments, total, err = repo.ListAdmin(PaymentListFilter{
		Page: 1, PageSize: 10,
		Status:   constants.PaymentStatusSucceeded,
		Provider: constants.ProviderAlipay,
	})
	if err != nil {
		t.Fatalf("list by status failed: %v", err)
	}
	if total != 1 || payments[0].MerchantOrderNo != "ORDER-3" {
		t.Fatalf("expected ORDER-3, got total=%d %+v", total, payments)
	}

	payments, total, err = repo.ListAdmin(PaymentListFilter{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("paged list failed: %v", err)
	}
	if total != 3 || len(payments) != 1 {
		t.Fatalf("expected page 2 to hold 1 of 3, got total=%d len=%d", total, len(payments))
	}
}

func TestPaymentRepositoryCountByAppID(t *testing.T) {
	repo, db := setupPaymentRepositoryTest(t)

	createTestPayment(t, db, 7, "ORDER-C1", constants.ProviderStripe, constants.PaymentStatusPending)
	createTestPayment(t, db, 7, "ORDER-C2", constants.ProviderStripe, constants.PaymentStatusPending)

	count, err := repo.CountByAppID(7)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 payments, got %d", count)
	}

	zero, err := repo.CountByAppID(8)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if zero != 0 {
		t.Fatalf("expected 0 payments, got %d", zero)
	}
}
