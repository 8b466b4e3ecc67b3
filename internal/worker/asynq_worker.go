package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gateway-next/internal/logger"
	"github.com/gateway-next/internal/provider"
	"github.com/gateway-next/internal/queue"
	"github.com/gateway-next/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPaymentTimeoutExpire, c.handlePaymentTimeoutExpire)
}

func (c *Consumer) handlePaymentTimeoutExpire(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payment_expire_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PaymentTimeoutExpirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payment_expire_unmarshal_failed", "error", err)
		return err
	}
	if payload.PaymentID == 0 {
		logger.Debugw("worker_payment_expire_skip_invalid_payload", "payment_id", payload.PaymentID)
		return nil
	}
	if c.PaymentService == nil {
		logger.Warnw("worker_payment_expire_skip_service_nil", "payment_id", payload.PaymentID)
		return nil
	}
	if err := c.PaymentService.ExpirePayment(ctx, payload.PaymentID); err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			logger.Debugw("worker_payment_expire_skip_not_found", "payment_id", payload.PaymentID)
			return nil
		}
		logger.Warnw("worker_payment_expire_failed", "payment_id", payload.PaymentID, "error", err)
		return err
	}
	return nil
}
