package worker

import (
	"context"
	"errors"
	"time"

	"github.com/gateway-next/internal/config"
	"github.com/gateway-next/internal/logger"
	"github.com/gateway-next/internal/queue"

	"github.com/hibiken/asynq"
)

// Service 后台服务：出站通知投递循环 + 异步队列消费
type Service struct {
	name         string
	server       *asynq.Server
	mux          *asynq.ServeMux
	consumer     *Consumer
	pollInterval time.Duration
}

// NewService 创建后台服务。队列未启用时仅运行投递循环。
func NewService(queueCfg *config.QueueConfig, deliveryCfg *config.DeliveryConfig, consumer *Consumer) (*Service, error) {
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	pollInterval := 5 * time.Second
	if deliveryCfg != nil && deliveryCfg.PollIntervalSeconds > 0 {
		pollInterval = time.Duration(deliveryCfg.PollIntervalSeconds) * time.Second
	}
	svc := &Service{
		name:         "worker",
		consumer:     consumer,
		pollInterval: pollInterval,
	}
	if queueCfg != nil && queueCfg.Enabled {
		opt, serverCfg := queue.BuildServerConfig(queueCfg)
		svc.server = asynq.NewServer(opt, serverCfg)
		svc.mux = asynq.NewServeMux()
		consumer.Register(svc.mux)
	}
	return svc, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.consumer == nil {
		return errors.New("worker not initialized")
	}
	if s.server == nil {
		s.runDeliveryLoop(ctx)
		return nil
	}
	go s.runDeliveryLoop(ctx)
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runDeliveryLoop 投递循环：启动先跑一轮，之后按间隔轮询到期通知
func (s *Service) runDeliveryLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.DeliveryService == nil {
		return
	}
	runOnce := func() {
		if n := s.consumer.DeliveryService.RunOnce(ctx); n > 0 {
			logger.Debugw("worker_delivery_batch_done", "processed", n)
		}
	}
	runOnce()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
