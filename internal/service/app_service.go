package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gateway-next/internal/cache"
	"github.com/gateway-next/internal/constants"
	"github.com/gateway-next/internal/models"
	"github.com/gateway-next/internal/repository"
)

const (
	apiKeyRandomBytes = 16
	apiKeyGenMaxRetry = 5
)

// AppService 商户应用服务
type AppService struct {
	appRepo     repository.AppRepository
	paymentRepo repository.PaymentRepository
}

// NewAppService 创建商户应用服务
func NewAppService(appRepo repository.AppRepository, paymentRepo repository.PaymentRepository) *AppService {
	return &AppService{appRepo: appRepo, paymentRepo: paymentRepo}
}

// CreateAppInput 创建应用输入
type CreateAppInput struct {
	Name      string
	NotifyURL string
}

// UpdateAppStatusInput 更新应用状态输入
type UpdateAppStatusInput struct {
	IsActive bool
}

// Create 创建应用并生成 API 密钥
func (s *AppService) Create(input CreateAppInput) (*models.App, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrPaymentInvalid)
	}
	if existing, err := s.appRepo.GetByName(name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrAppNameExists
	}

	app := &models.App{
		Name:      name,
		NotifyURL: strings.TrimSpace(input.NotifyURL),
		IsActive:  true,
	}
	for attempt := 0; attempt < apiKeyGenMaxRetry; attempt++ {
		key, err := generateAPIKey()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAPIKeyGenFailed, err)
		}
		app.APIKey = key
		err = s.appRepo.Create(app)
		if err == nil {
			return app, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		// 密钥撞库概率极低，名称冲突优先报给调用方
		if existing, getErr := s.appRepo.GetByName(name); getErr == nil && existing != nil {
			return nil, ErrAppNameExists
		}
	}
	return nil, ErrAPIKeyGenFailed
}

// GetByID 按 ID 查询应用
func (s *AppService) GetByID(id uint) (*models.App, error) {
	app, err := s.appRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, ErrAppNotFound
	}
	return app, nil
}

// GetByAPIKey 按 API 密钥查询应用（走缓存快照）
func (s *AppService) GetByAPIKey(ctx context.Context, apiKey string) (*models.App, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrAppNotFound
	}
	if snapshot, hit, err := cache.GetAppAuthState(ctx, apiKey); err == nil && hit {
		return snapshot.ToApp(), nil
	}
	app, err := s.appRepo.GetByAPIKey(apiKey)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, ErrAppNotFound
	}
	_ = cache.SetAppAuthState(ctx, cache.BuildAppAuthState(app))
	return app, nil
}

// List 分页查询应用
func (s *AppService) List(filter repository.AppListFilter) ([]models.App, int64, error) {
	return s.appRepo.List(filter)
}

// UpdateStatus 启用/停用应用
func (s *AppService) UpdateStatus(id uint, input UpdateAppStatusInput) (*models.App, error) {
	app, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	app.IsActive = input.IsActive
	if err := s.appRepo.Update(app); err != nil {
		return nil, err
	}
	_ = cache.DelAppAuthState(context.Background(), app.APIKey)
	return app, nil
}

// Delete 删除应用，被支付单引用时拒绝
func (s *AppService) Delete(id uint) error {
	app, err := s.GetByID(id)
	if err != nil {
		return err
	}
	count, err := s.paymentRepo.CountByAppID(id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrAppInUse
	}
	if err := s.appRepo.Delete(id); err != nil {
		return err
	}
	_ = cache.DelAppAuthState(context.Background(), app.APIKey)
	return nil
}

func generateAPIKey() (string, error) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return constants.APIKeyPrefix + hex.EncodeToString(buf), nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
