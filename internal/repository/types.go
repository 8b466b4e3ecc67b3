package repository

import "time"

// AppListFilter 查询应用列表的过滤条件
type AppListFilter struct {
	Page     int
	PageSize int
	Keyword  string
	IsActive *bool
}

// PaymentListFilter 查询支付单列表的过滤条件
type PaymentListFilter struct {
	Page            int
	PageSize        int
	AppID           uint
	Provider        string
	Status          string
	MerchantOrderNo string
	ProviderTxnID   string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}

// RefundListFilter 查询退款单列表的过滤条件
type RefundListFilter struct {
	Page      int
	PageSize  int
	PaymentID uint
	Provider  string
	Status    string
}

// CallbackListFilter 查询回调入站记录列表的过滤条件
type CallbackListFilter struct {
	Page            int
	PageSize        int
	Provider        string
	Status          string
	ProviderEventID string
	PaymentID       uint
	ReceivedFrom    *time.Time
	ReceivedTo      *time.Time
}

// DeliveryListFilter 查询出站通知列表的过滤条件
type DeliveryListFilter struct {
	Page        int
	PageSize    int
	AppID       uint
	PaymentID   uint
	EventType   string
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}
