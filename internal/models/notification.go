package models

import "time"

// 通知渠道
const (
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
	ChannelWebhook = "webhook"
)

// NotificationJob 通知任务（入队到 Redis Streams，由 notifier worker 消费）
// 任务是瞬态的，不做持久存储；每次投递尝试的成功/失败单独记录日志
type NotificationJob struct {
	AlertID    string    `json:"alert_id"`
	TenantID   string    `json:"tenant_id"`
	Channel    string    `json:"channel"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	// Redis Streams 消息ID（消费侧回填，用于 ACK）
	MessageID string `json:"-"`
}

// ChannelsForSeverity 按级别决定通知渠道集合
// critical → 全渠道；warning → 仅邮件；info → 不自动通知
func ChannelsForSeverity(severity string) []string {
	switch severity {
	case SeverityCritical:
		return []string{ChannelEmail, ChannelSMS, ChannelWebhook}
	case SeverityWarning:
		return []string{ChannelEmail}
	default:
		return nil
	}
}
