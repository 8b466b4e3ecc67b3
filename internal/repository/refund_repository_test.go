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

func setupRefundRepositoryTest(t *testing.T) (*GormRefundRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:refund_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Refund{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewRefundRepository(db), db
}

func createTestRefund(t *testing.T, db *gorm.DB, paymentID uint, amount int64, status string) *models.Refund {
	t.Helper()
	refund := models.Refund{
		PaymentID:    paymentID,
		Provider:     constants.ProviderStripe,
		RefundAmount: amount,
		Currency:     constants.CurrencyUSD,
		Status:       status,
	}
	if err := db.Create(&refund).Error; err != nil {
		t.Fatalf("create refund failed: %v", err)
	}
	return &refund
}

func TestRefundRepositorySumActiveAmount(t *testing.T) {
	repo, db := setupRefundRepositoryTest(t)

	// pending 与 succeeded 计入已占用额度，failed/canceled 不计
	createTestRefund(t, db, 1, 300, constants.RefundStatusPending)
	createTestRefund(t, db, 1, 500, constants.RefundStatusSucceeded)
	createTestRefund(t, db, 1, 400, constants.RefundStatusFailed)
	createTestRefund(t, db, 1, 200, constants.RefundStatusCanceled)
	createTestRefund(t, db, 2, 999, constants.RefundStatusSucceeded)

	total, err := repo.SumActiveAmountByPaymentID(1)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if total != 800 {
		t.Fatalf("expected active total 800, got %d", total)
	}

	empty, err := repo.SumActiveAmountByPaymentID(42)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if empty != 0 {
		t.Fatalf("expected 0 for payment without refunds, got %d", empty)
	}
}

func TestRefundRepositoryGetLatestByProviderRefundID(t *testing.T) {
	repo, db := setupRefundRepositoryTest(t)

	first := createTestRefund(t, db, 1, 100, constants.RefundStatusPending)
	first.ProviderRefundID = "re_abc"
	if err := repo.Update(first); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	second := createTestRefund(t, db, 2, 200, constants.RefundStatusPending)
	second.ProviderRefundID = "re_abc"
	if err := repo.Update(second); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := repo.GetLatestByProviderRefundID(constants.ProviderStripe, "re_abc")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got == nil || got.ID != second.ID {
		t.Fatalf("expected latest row %d, got %+v", second.ID, got)
	}

	none, err := repo.GetLatestByProviderRefundID(constants.ProviderAlipay, "re_abc")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if none != nil {
		t.Fatalf("provider scope should not match")
	}

	blank, err := repo.GetLatestByProviderRefundID(constants.ProviderStripe, "  ")
	if err != nil {
		t.Fatalf("blank lookup failed: %v", err)
	}
	if blank != nil {
		t.Fatalf("blank refund id should not match anything")
	}
}

func TestRefundRepositoryListByPaymentID(t *testing.T) {
	repo, db := setupRefundRepositoryTest(t)

	for i := 0; i < 3; i++ {
		createTestRefund(t, db, 9, int64(100+i), constants.RefundStatusPending)
	}
	createTestRefund(t, db, 10, 777, constants.RefundStatusPending)

	refunds, total, err := repo.ListByPaymentID(9, 1, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 3 || len(refunds) != 2 {
		t.Fatalf("expected total=3 page len=2, got total=%d len=%d", total, len(refunds))
	}
	// 按 id 倒序
	if refunds[0].ID < refunds[1].ID {
		t.Fatalf("expected descending order, got %d before %d", refunds[0].ID, refunds[1].ID)
	}
}
