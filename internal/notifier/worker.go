package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Code-Savanna/netpulse/internal/models"
)

// Transport 单个通知渠道的投递实现
type Transport interface {
	Send(ctx context.Context, alert *models.Alert) error
}

// jobSource worker 需要的队列接口
type jobSource interface {
	Read(ctx context.Context, consumer string, count int64) ([]models.NotificationJob, error)
	Ack(ctx context.Context, messageID string) error
}

// alertGetter worker 回查报警详情的接口
type alertGetter interface {
	GetAlert(ctx context.Context, tenantID, alertID string) (*models.Alert, error)
}

// readBatchSize 每次从队列拉取的任务上限
const readBatchSize = 10

// WorkerPool 通知投递 worker 池
// 每个 worker 独立消费队列，按任务的渠道选择 transport 投递。
// 投递失败只记日志并确认消息，不重试：未确认报警会在批量重发周期中再次入队
type WorkerPool struct {
	queue      jobSource
	alerts     alertGetter
	transports map[string]Transport
	workers    int
	logger     *zap.Logger

	wg sync.WaitGroup
}

// NewWorkerPool 创建通知 worker 池
func NewWorkerPool(queue jobSource, alerts alertGetter, transports map[string]Transport, workers int, logger *zap.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	return &WorkerPool{
		queue:      queue,
		alerts:     alerts,
		transports: transports,
		workers:    workers,
		logger:     logger,
	}
}

// Start 启动所有 worker，ctx 取消后退出
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		consumer := fmt.Sprintf("notifier-%d", i)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx, consumer)
		}()
	}

	p.logger.Info("Notification workers started",
		zap.Int("workers", p.workers),
	)
}

// Wait 等待所有 worker 退出
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) run(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobs, err := p.queue.Read(ctx, consumer, readBatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("Failed to read notification jobs",
				zap.String("consumer", consumer),
				zap.Error(err),
			)
			// 避免在 Redis 故障时空转
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, job := range jobs {
			p.handleJob(ctx, consumer, job)
		}
	}
}

// handleJob 投递单个任务并确认
// 一个渠道的失败与其他渠道、其他任务完全隔离
func (p *WorkerPool) handleJob(ctx context.Context, consumer string, job models.NotificationJob) {
	defer func() {
		if err := p.queue.Ack(ctx, job.MessageID); err != nil {
			p.logger.Warn("Failed to ack notification job",
				zap.String("message_id", job.MessageID),
				zap.Error(err),
			)
		}
	}()

	transport, ok := p.transports[job.Channel]
	if !ok {
		p.logger.Warn("No transport for notification channel",
			zap.String("channel", job.Channel),
			zap.String("alert_id", job.AlertID),
		)
		return
	}

	alert, err := p.alerts.GetAlert(ctx, job.TenantID, job.AlertID)
	if err != nil {
		// 报警可能已被删除；任务作废
		p.logger.Warn("Alert not found for notification job",
			zap.String("alert_id", job.AlertID),
			zap.String("channel", job.Channel),
			zap.Error(err),
		)
		return
	}

	if !alert.IsOpen() {
		// 入队和投递之间报警已被解决，通知作废
		p.logger.Info("Skipping notification for resolved alert",
			zap.String("alert_id", job.AlertID),
			zap.String("channel", job.Channel),
		)
		return
	}

	if err := transport.Send(ctx, alert); err != nil {
		p.logger.Error("Notification delivery failed",
			zap.String("alert_id", job.AlertID),
			zap.String("channel", job.Channel),
			zap.String("consumer", consumer),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("Notification delivered",
		zap.String("alert_id", job.AlertID),
		zap.String("channel", job.Channel),
	)
}
