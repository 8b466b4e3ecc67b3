package models

import (
	"time"

	"github.com/gateway-next/internal/constants"
)

// Payment 支付单表
type Payment struct {
	ID              uint       `gorm:"primarykey" json:"id"`                                                 // 主键
	AppID           uint       `gorm:"uniqueIndex:idx_payments_app_order;not null" json:"app_id"`            // 应用ID
	MerchantOrderNo string     `gorm:"uniqueIndex:idx_payments_app_order;not null" json:"merchant_order_no"` // 商户订单号
	Provider        string     `gorm:"index;not null" json:"provider"`                                       // 支付提供方（stripe/alipay/wechatpay）
	UnitAmount      int64      `gorm:"not null" json:"unit_amount"`                                          // 单价（最小货币单位）
	Quantity        int        `gorm:"not null;default:1" json:"quantity"`                                   // 数量
	Amount          int64      `gorm:"not null" json:"amount"`                                               // 总金额 = 单价 × 数量（最小货币单位）
	Currency        string     `gorm:"not null" json:"currency"`                                             // 币种
	Status          string     `gorm:"index;not null" json:"status"`                                         // 支付状态
	ProviderTxnID   string     `gorm:"index" json:"provider_txn_id,omitempty"`                               // 第三方交易号
	NotifyURL       string     `gorm:"type:varchar(500)" json:"notify_url,omitempty"`                        // 回调地址（为空时回落到应用默认）
	PayType         string     `json:"pay_type,omitempty"`                                                   // 交互方式（redirect/form/qr/client_secret）
	PayPayload      JSON       `gorm:"type:json" json:"pay_payload,omitempty"`                               // 提供方下单返回数据（重复创建时原样返回）
	Metadata        JSON       `gorm:"type:json" json:"metadata,omitempty"`                                  // 商户透传数据
	PaidAt          *time.Time `gorm:"index" json:"paid_at"`                                                 // 支付时间
	ExpiresAt       *time.Time `gorm:"index" json:"expires_at"`                                              // 过期时间
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`                                              // 创建时间
	UpdatedAt       time.Time  `gorm:"index" json:"updated_at"`                                              // 更新时间
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}

// IsTerminal 是否已到终态（终态不可再变更）
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case constants.PaymentStatusSucceeded, constants.PaymentStatusFailed, constants.PaymentStatusCanceled:
		return true
	}
	return false
}
