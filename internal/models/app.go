package models

import (
	"time"
)

// App 商户应用表
type App struct {
	ID        uint      `gorm:"primarykey" json:"id"`                        // 主键
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`            // 应用名称
	APIKey    string    `gorm:"uniqueIndex;not null" json:"api_key"`         // API 密钥（sk_ 前缀）
	NotifyURL string    `gorm:"type:varchar(500)" json:"notify_url"`         // 默认回调地址
	IsActive  bool      `gorm:"not null;default:true;index" json:"is_active"` // 是否启用
	CreatedAt time.Time `gorm:"index" json:"created_at"`                     // 创建时间
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`                     // 更新时间
}

// TableName 指定表名
func (App) TableName() string {
	return "apps"
}
