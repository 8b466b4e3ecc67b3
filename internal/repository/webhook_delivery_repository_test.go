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

func setupDeliveryRepositoryTest(t *testing.T) (*GormWebhookDeliveryRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:delivery_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.WebhookDelivery{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewWebhookDeliveryRepository(db), db
}

func createTestDelivery(t *testing.T, db *gorm.DB, eventID, status string, attemptCount int, nextAttemptAt *time.Time) *models.WebhookDelivery {
	t.Helper()
	delivery := models.WebhookDelivery{
		AppID:         1,
		EventID:       eventID,
		EventType:     "payment.succeeded",
		NotifyURL:     "https://merchant.example.com/callback/payment",
		Payload:       models.JSON{"event_id": eventID},
		Status:        status,
		AttemptCount:  attemptCount,
		NextAttemptAt: nextAttemptAt,
	}
	if err := db.Create(&delivery).Error; err != nil {
		t.Fatalf("create delivery failed: %v", err)
	}
	return &delivery
}

func TestDeliveryRepositoryListDue(t *testing.T) {
	repo, db := setupDeliveryRepositoryTest(t)

	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due1 := createTestDelivery(t, db, "1_succeeded", constants.DeliveryStatusPending, 0, nil)
	due2 := createTestDelivery(t, db, "2_succeeded", constants.DeliveryStatusFailed, 3, &past)
	createTestDelivery(t, db, "3_succeeded", constants.DeliveryStatusFailed, 2, &future)
	createTestDelivery(t, db, "4_succeeded", constants.DeliveryStatusFailed, 10, &past)
	createTestDelivery(t, db, "5_succeeded", constants.DeliveryStatusSucceeded, 1, nil)
	createTestDelivery(t, db, "6_succeeded", constants.DeliveryStatusDead, 10, nil)
	createTestDelivery(t, db, "7_succeeded", constants.DeliveryStatusProcessing, 1, &past)

	deliveries, err := repo.ListDue(now, 10, 20)
	if err != nil {
		t.Fatalf("list due failed: %v", err)
	}
	if len(deliveries) != 2 {
		t.Fatalf("expected 2 due deliveries, got %d", len(deliveries))
	}
	// created_at 升序：先创建的先投递
	if deliveries[0].ID != due1.ID || deliveries[1].ID != due2.ID {
		t.Fatalf("expected order [%d %d], got [%d %d]", due1.ID, due2.ID, deliveries[0].ID, deliveries[1].ID)
	}
}

func TestDeliveryRepositoryListDueLimit(t *testing.T) {
	repo, db := setupDeliveryRepositoryTest(t)

	for i := 0; i < 5; i++ {
		createTestDelivery(t, db, fmt.Sprintf("%d_succeeded", i), constants.DeliveryStatusPending, 0, nil)
	}

	deliveries, err := repo.ListDue(time.Now(), 10, 3)
	if err != nil {
		t.Fatalf("list due failed: %v", err)
	}
	if len(deliveries) != 3 {
		t.Fatalf("expected batch of 3, got %d", len(deliveries))
	}

	none, err := repo.ListDue(time.Now(), 10, 0)
	if err != nil {
		t.Fatalf("list due failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("limit 0 should return nothing, got %d", len(none))
	}
}

func TestDeliveryRepositoryGetByAppAndEventID(t *testing.T) {
	repo, db := setupDeliveryRepositoryTest(t)

	created := createTestDelivery(t, db, "55_succeeded", constants.DeliveryStatusPending, 0, nil)

	got, err := repo.GetByAppAndEventID(1, "55_succeeded")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got == nil || got.ID != created.ID {
		t.Fatalf("expected delivery %d, got %+v", created.ID, got)
	}

	// 应用维度隔离
	other, err := repo.GetByAppAndEventID(2, "55_succeeded")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if other != nil {
		t.Fatalf("event id lookup should be app scoped")
	}

	dup := models.WebhookDelivery{
		AppID:     1,
		EventID:   "55_succeeded",
		EventType: "payment.succeeded",
		NotifyURL: "https://merchant.example.com/callback/payment",
		Status:    constants.DeliveryStatusPending,
	}
	if err := db.Create(&dup).Error; err == nil {
		t.Fatalf("duplicate (app_id, event_id) should fail")
	}
}
