package queue

import (
	"encoding/json"

	"github.com/gateway-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskPaymentTimeoutExpire 支付超时过期任务
	TaskPaymentTimeoutExpire = constants.TaskPaymentTimeoutExpire
)

// PaymentTimeoutExpirePayload 支付超时过期任务载荷
type PaymentTimeoutExpirePayload struct {
	PaymentID uint `json:"payment_id"`
}

// NewPaymentTimeoutExpireTask 创建支付超时过期任务
func NewPaymentTimeoutExpireTask(payload PaymentTimeoutExpirePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentTimeoutExpire, body), nil
}
