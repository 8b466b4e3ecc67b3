package models

import (
	"time"

	"github.com/gateway-next/internal/constants"
)

// WebhookDelivery 出站通知表（按 (app_id, event_id) 去重，重复触发时重置重投）
type WebhookDelivery struct {
	ID             uint       `gorm:"primarykey" json:"id"`                                            // 主键
	AppID          uint       `gorm:"uniqueIndex:idx_deliveries_app_event;not null" json:"app_id"`     // 应用ID
	EventID        string     `gorm:"uniqueIndex:idx_deliveries_app_event;not null" json:"event_id"`   // 事件号（{payment_id|refund_id}_{status}）
	EventType      string     `gorm:"index;not null" json:"event_type"`                                // 事件类型（payment.succeeded/refund.failed/...）
	PaymentID      *uint      `gorm:"index" json:"payment_id,omitempty"`                               // 关联支付单ID
	NotifyURL      string     `gorm:"type:varchar(500);not null" json:"notify_url"`                    // 投递地址（已拼接回调路径后缀）
	Payload        JSON       `gorm:"type:json" json:"payload"`                                        // 投递内容快照
	Status         string     `gorm:"index;not null" json:"status"`                                    // 投递状态（pending/processing/succeeded/failed/dead）
	AttemptCount   int        `gorm:"not null;default:0" json:"attempt_count"`                         // 已尝试次数
	NextAttemptAt  *time.Time `gorm:"index" json:"next_attempt_at"`                                    // 下次尝试时间
	LastAttemptAt  *time.Time `json:"last_attempt_at"`                                                 // 最近尝试时间
	LastHTTPStatus *int       `json:"last_http_status"`                                                // 最近一次 HTTP 状态码
	LastError      string     `gorm:"type:varchar(255)" json:"last_error,omitempty"`                   // 最近一次错误（截断保存）
	DeliveredAt    *time.Time `gorm:"index" json:"delivered_at"`                                       // 投递成功时间
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`                                         // 创建时间
	UpdatedAt      time.Time  `gorm:"index" json:"updated_at"`                                         // 更新时间
}

// TableName 指定表名
func (WebhookDelivery) TableName() string {
	return "webhook_deliveries"
}

// IsTerminal 是否已到终态（succeeded/dead 不再投递）
func (d *WebhookDelivery) IsTerminal() bool {
	return d.Status == constants.DeliveryStatusSucceeded || d.Status == constants.DeliveryStatusDead
}
