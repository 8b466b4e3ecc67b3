package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gateway-next/internal/constants"
	"github.com/gateway-next/internal/models"
	"github.com/gateway-next/internal/repository"

	"gorm.io/gorm"
)

func setupAppServiceTest(t *testing.T) (*AppService, *gorm.DB) {
	t.Helper()
	db := openServiceTestDB(t, "app_service_test")
	svc := NewAppService(
		repository.NewAppRepository(db),
		repository.NewPaymentRepository(db),
	)
	return svc, db
}

func TestAppServiceCreate(t *testing.T) {
	svc, _ := setupAppServiceTest(t)

	app, err := svc.Create(CreateAppInput{Name: "  Shop Alpha  ", NotifyURL: "https://alpha.example.com/hooks"})
	if err != nil {
		t.Fatalf("create app failed: %v", err)
	}
	if app.Name != "Shop Alpha" {
		t.Fatalf("name should be trimmed, got %q", app.Name)
	}
	if !strings.HasPrefix(app.APIKey, constants.APIKeyPrefix) {
		t.Fatalf("api key should carry prefix, got %q", app.APIKey)
	}
	if !app.IsActive {
		t.Fatalf("new app should be active")
	}

	if _, err := svc.Create(CreateAppInput{Name: "Shop Alpha"}); !errors.Is(err, ErrAppNameExists) {
		t.Fatalf("duplicate name want ErrAppNameExists, got %v", err)
	}
	if _, err := svc.Create(CreateAppInput{Name: "   "}); !errors.Is(err, ErrPaymentInvalid) {
		t.Fatalf("blank name want ErrPaymentInvalid, got %v", err)
	}
}

func TestAppServiceGetByAPIKey(t *testing.T) {
	svc, _ := setupAppServiceTest(t)

	created, err := svc.Create(CreateAppInput{Name: "Shop Key"})
	if err != nil {
		t.Fatalf("create app failed: %v", err)
	}

	got, err := svc.GetByAPIKey(context.Background(), created.APIKey)
	if err != nil || got.ID != created.ID {
		t.Fatalf("lookup by api key failed: %v %+v", err, got)
	}
	if _, err := svc.GetByAPIKey(context.Background(), "sk_not_exist"); !errors.Is(err, ErrAppNotFound) {
		t.Fatalf("unknown key want ErrAppNotFound, got %v", err)
	}
	if _, err := svc.GetByAPIKey(context.Background(), "   "); !errors.Is(err, ErrAppNotFound) {
		t.Fatalf("blank key want ErrAppNotFound, got %v", err)
	}
}

func TestAppServiceStatusAndDelete(t *testing.T) {
	svc, db := setupAppServiceTest(t)

	app, err := svc.Create(CreateAppInput{Name: "Shop Life"})
	if err != nil {
		t.Fatalf("create app failed: %v", err)
	}

	updated, err := svc.UpdateStatus(app.ID, UpdateAppStatusInput{IsActive: false})
	if err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	if updated.IsActive {
		t.Fatalf("app should be disabled")
	}

	// 有支付单的应用拒绝删除
	payment := models.Payment{
		AppID: app.ID, MerchantOrderNo: "ORDER-APP-DEL", Provider: constants.ProviderStripe,
		UnitAmount: 100, Quantity: 1, Amount: 100, Currency: constants.CurrencyUSD,
		Status: constants.PaymentStatusPending,
	}
	if err := db.Create(&payment).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	if err := svc.Delete(app.ID); !errors.Is(err, ErrAppInUse) {
		t.Fatalf("app with payments want ErrAppInUse, got %v", err)
	}

	if err := db.Delete(&payment).Error; err != nil {
		t.Fatalf("remove payment failed: %v", err)
	}
	if err := svc.Delete(app.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := svc.GetByID(app.ID); !errors.Is(err, ErrAppNotFound) {
		t.Fatalf("deleted app want ErrAppNotFound, got %v", err)
	}
	if err := svc.Delete(app.ID); !errors.Is(err, ErrAppNotFound) {
		t.Fatalf("repeat delete want ErrAppNotFound, got %v", err)
	}
}
