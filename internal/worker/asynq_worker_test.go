package worker

import (
	"context"
	"testing"

	"github.com/gateway-next/internal/provider"
	"github.com/gateway-next/internal/queue"

	"github.com/hibiken/asynq"
)

func TestHandlePaymentTimeoutExpireInvalidPayload(t *testing.T) {
	consumer := NewConsumer(&provider.Container{})

	task := asynq.NewTask(queue.TaskPaymentTimeoutExpire, []byte("{not-json"))
	if err := consumer.handlePaymentTimeoutExpire(context.Background(), task); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}

func TestHandlePaymentTimeoutExpireZeroIDSkipped(t *testing.T) {
	consumer := NewConsumer(&provider.Container{})

	task := asynq.NewTask(queue.TaskPaymentTimeoutExpire, []byte(`{"payment_id":0}`))
	if err := consumer.handlePaymentTimeoutExpire(context.Background(), task); err != nil {
		t.Fatalf("zero payment id should be skipped, got %v", err)
	}
}

func TestHandlePaymentTimeoutExpireNilServiceSkipped(t *testing.T) {
	consumer := NewConsumer(&provider.Container{})

	task, err := queue.NewPaymentTimeoutExpireTask(queue.PaymentTimeoutExpirePayload{PaymentID: 42})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handlePaymentTimeoutExpire(context.Background(), task); err != nil {
		t.Fatalf("nil payment service should be skipped, got %v", err)
	}
}
