package notifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Code-Savanna/netpulse/internal/models"
)

// jobEnqueuer 分发器需要的队列接口
type jobEnqueuer interface {
	Enqueue(ctx context.Context, job models.NotificationJob) error
}

// unacknowledgedLister 批量重发需要的报警查询接口
type unacknowledgedLister interface {
	ListUnacknowledgedSince(ctx context.Context, tenantID string, since time.Time) ([]*models.Alert, error)
}

// Dispatcher 通知分发器
// 按报警级别展开渠道集合并逐渠道入队。入队即视为分发完成，
// 投递本身由 worker 池异步执行
type Dispatcher struct {
	queue  jobEnqueuer
	alerts unacknowledgedLister
	logger *zap.Logger
}

// NewDispatcher 创建通知分发器
func NewDispatcher(queue jobEnqueuer, alerts unacknowledgedLister, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		queue:  queue,
		alerts: alerts,
		logger: logger,
	}
}

// Dispatch 为一条报警入队各渠道的通知任务
// 单个渠道入队失败只记日志，不影响其余渠道
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.Alert) {
	channels := models.ChannelsForSeverity(alert.Severity)
	if len(channels) == 0 {
		d.logger.Debug("No notification channels for severity",
			zap.String("alert_id", alert.AlertID),
			zap.String("severity", alert.Severity),
		)
		return
	}

	var failed int
	for _, channel := range channels {
		job := models.NotificationJob{
			AlertID:    alert.AlertID,
			TenantID:   alert.TenantID,
			Channel:    channel,
			EnqueuedAt: time.Now().UTC(),
		}

		if err := d.queue.Enqueue(ctx, job); err != nil {
			d.logger.Error("Failed to enqueue notification job",
				zap.String("alert_id", alert.AlertID),
				zap.String("channel", channel),
				zap.Error(err),
			)
			failed++
			continue
		}
	}

	if failed > 0 {
		d.logger.Warn("Alert dispatched with enqueue failures",
			zap.String("alert_id", alert.AlertID),
			zap.String("severity", alert.Severity),
			zap.Strings("channels", channels),
			zap.Int("enqueue_failures", failed),
		)
		return
	}

	d.logger.Info("Alert dispatched to notification channels",
		zap.String("alert_id", alert.AlertID),
		zap.String("severity", alert.Severity),
		zap.Strings("channels", channels),
	)
}

// RedispatchUnacknowledged 重发当天 0 点（UTC）以来仍未确认的报警
// 定时触发，作为实时通知丢失后的补偿路径
func (d *Dispatcher) RedispatchUnacknowledged(ctx context.Context, tenantID string) error {
	now := time.Now().UTC()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	alerts, err := d.alerts.ListUnacknowledgedSince(ctx, tenantID, since)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		return nil
	}

	d.logger.Info("Redispatching unacknowledged alerts",
		zap.String("tenant_id", tenantID),
		zap.Int("count", len(alerts)),
		zap.Time("since", since),
	)

	for _, alert := range alerts {
		d.Dispatch(ctx, alert)
	}

	return nil
}
