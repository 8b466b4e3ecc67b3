package models

import (
	"time"
)

// Callback 回调入站记录表（按 (provider, provider_event_id) 去重）
type Callback struct {
	ID              uint       `gorm:"primarykey" json:"id"`                                                    // 主键
	Provider        string     `gorm:"uniqueIndex:idx_callbacks_provider_event;not null" json:"provider"`       // 支付提供方
	ProviderEventID string     `gorm:"uniqueIndex:idx_callbacks_provider_event;not null" json:"provider_event_id"` // 提供方事件号
	ProviderTxnID   string     `gorm:"index" json:"provider_txn_id,omitempty"`                                  // 第三方交易号
	PaymentID       *uint      `gorm:"index" json:"payment_id,omitempty"`                                       // 关联支付单ID（定位成功后回填）
	Payload         JSON       `gorm:"type:json" json:"payload"`                                                // 原始回调数据
	Status          string     `gorm:"index;not null" json:"status"`                                            // 处理状态（received/processing/processed/failed）
	ReceivedAt      time.Time  `gorm:"index;autoCreateTime" json:"received_at"`                                 // 接收时间
	ProcessedAt     *time.Time `gorm:"index" json:"processed_at"`                                               // 处理完成时间
}

// TableName 指定表名
func (Callback) TableName() string {
	return "callbacks"
}
