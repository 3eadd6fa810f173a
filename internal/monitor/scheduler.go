package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// cycleRunner 被调度的监控管线
type cycleRunner interface {
	RunCycle(ctx context.Context)
}

// Scheduler 监控调度器
// 固定周期驱动监控管线，同时支持运维人员的按需触发（TriggerNow）。
// 按需触发与定时触发并发运行是允许的：每个周期在自己的设备快照上独立执行。
// 周期内的 panic 在周期边界捕获并记录，调度循环永不因此终止
type Scheduler struct {
	pipeline cycleRunner
	interval time.Duration
	logger   *zap.Logger
	trigger  chan struct{}
}

// NewScheduler 创建调度器
func NewScheduler(pipeline cycleRunner, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		pipeline: pipeline,
		interval: interval,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// Start 启动调度循环（阻塞直到 ctx 取消）
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Monitoring scheduler started",
		zap.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// 启动时立即执行一次
	s.safeRun(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Monitoring scheduler stopped")
			return nil
		case <-ticker.C:
			s.safeRun(ctx)
		case <-s.trigger:
			// 按需周期异步执行，不阻塞定时节奏
			go s.safeRun(ctx)
		}
	}
}

// TriggerNow 按需触发一个监控周期，立即返回
// 已有待处理的触发时合并（幂等于定时触发）
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// safeRun 执行一个周期，panic 在此边界捕获
func (s *Scheduler) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Monitoring cycle panicked",
				zap.Any("panic", r),
			)
		}
	}()

	s.pipeline.RunCycle(ctx)
}
