package repository

import (
	"errors"
	"strings"

	"github.com/gateway-next/internal/models"

	"gorm.io/gorm"
)

// AppRepository 商户应用数据访问接口
type AppRepository interface {
	Create(app *models.App) error
	Update(app *models.App) error
	Delete(id uint) error
	GetByID(id uint) (*models.App, error)
	GetByName(name string) (*models.App, error)
	GetByAPIKey(apiKey string) (*models.App, error)
	List(filter AppListFilter) ([]models.App, int64, error)
	WithTx(tx *gorm.DB) *GormAppRepository
}

// GormAppRepository GORM 实现
type GormAppRepository struct {
	db *gorm.DB
}

// NewAppRepository 创建应用仓库
func NewAppRepository(db *gorm.DB) *GormAppRepository {
	return &GormAppRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAppRepository) WithTx(tx *gorm.DB) *GormAppRepository {
	if tx == nil {
		return r
	}
	return &GormAppRepository{db: tx}
}

// Create 创建应用
func (r *GormAppRepository) Create(app *models.App) error {
	return r.db.Create(app).Error
}

// Update 更新应用
func (r *GormAppRepository) Update(app *models.App) error {
	return r.db.Save(app).Error
}

// Delete 删除应用
func (r *GormAppRepository) Delete(id uint) error {
	if id == 0 {
		return nil
	}
	return r.db.Delete(&models.App{}, id).Error
}

// GetByID 根据 ID 获取应用
func (r *GormAppRepository) GetByID(id uint) (*models.App, error) {
	var app models.App
	if err := r.db.First(&app, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &app, nil
}

// GetByName 根据名称获取应用
func (r *GormAppRepository) GetByName(name string) (*models.App, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	var app models.App
	result := r.db.Where("name = ?", name).Limit(1).Find(&app)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &app, nil
}

// GetByAPIKey 根据 API 密钥获取应用
func (r *GormAppRepository) GetByAPIKey(apiKey string) (*models.App, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, nil
	}
	var app models.App
	result := r.db.Where("api_key = ?", apiKey).Limit(1).Find(&app)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &app, nil
}

// List 管理端应用列表
func (r *GormAppRepository) List(filter AppListFilter) ([]models.App, int64, error) {
	query := r.db.Model(&models.App{})

	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		like := "%" + keyword + "%"
		condition, argCount := buildKeywordLikeCondition(r.db, []string{"name", "notify_url"})
		query = query.Where(condition, repeatLikeArgs(like, argCount)...)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var apps []models.App
	if err := query.Order("id desc").Find(&apps).Error; err != nil {
		return nil, 0, err
	}
	return apps, total, nil
}
