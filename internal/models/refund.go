package models

import (
	"time"

	"github.com/gateway-next/internal/constants"
)

// Refund 退款单表
type Refund struct {
	ID               uint       `gorm:"primarykey" json:"id"`                       // 主键
	PaymentID        uint       `gorm:"index;not null" json:"payment_id"`           // 支付单ID
	Provider         string     `gorm:"index;not null" json:"provider"`             // 支付提供方（继承自支付单）
	ProviderRefundID string     `gorm:"index" json:"provider_refund_id,omitempty"`  // 第三方退款单号
	RefundAmount     int64      `gorm:"not null" json:"refund_amount"`              // 退款金额（最小货币单位）
	Currency         string     `gorm:"not null" json:"currency"`                   // 币种（继承自支付单）
	Reason           string     `gorm:"type:varchar(500)" json:"reason,omitempty"`  // 退款原因
	Status           string     `gorm:"index;not null" json:"status"`               // 退款状态
	RefundedAt       *time.Time `gorm:"index" json:"refunded_at"`                   // 退款完成时间
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`                    // 创建时间
	UpdatedAt        time.Time  `gorm:"index" json:"updated_at"`                    // 更新时间
}

// TableName 指定表名
func (Refund) TableName() string {
	return "refunds"
}

// IsTerminal 是否已到终态（终态不可再变更）
func (r *Refund) IsTerminal() bool {
	switch r.Status {
	case constants.RefundStatusSucceeded, constants.RefundStatusFailed, constants.RefundStatusCanceled:
		return true
	}
	return false
}
