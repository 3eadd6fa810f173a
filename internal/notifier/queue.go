package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/Code-Savanna/netpulse/internal/models"
)

// readBlock 消费侧阻塞等待时长
const readBlock = 5 * time.Second

// JobQueue 基于 Redis Streams 的通知任务队列
// 生产侧 XADD 入队，消费侧通过消费者组 XREADGROUP 读取、XACK 确认。
// 任务本身是瞬态的：投递结果只记日志，不回写队列
type JobQueue struct {
	client *redis.Client
	stream string
	group  string
	logger *zap.Logger
}

// NewJobQueue 创建通知任务队列
func NewJobQueue(client *redis.Client, stream, group string, logger *zap.Logger) *JobQueue {
	return &JobQueue{
		client: client,
		stream: stream,
		group:  group,
		logger: logger,
	}
}

// EnsureGroup 创建消费者组（stream 不存在时一并创建）
// 组已存在时返回 nil
func (q *JobQueue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Enqueue 入队一个通知任务
func (q *JobQueue) Enqueue(ctx context.Context, job models.NotificationJob) error {
	jsonBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal notification job: %w", err)
	}

	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{
			"data":        string(jsonBytes),
			"enqueued_at": job.EnqueuedAt.Unix(),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to enqueue notification job: %w", err)
	}

	q.logger.Debug("Notification job enqueued",
		zap.String("message_id", id),
		zap.String("alert_id", job.AlertID),
		zap.String("channel", job.Channel),
	)

	return nil
}

// Read 以指定消费者身份读取最多 count 个任务
// 无新任务时阻塞等待 readBlock 后返回空切片
func (q *JobQueue) Read(ctx context.Context, consumer string, count int64) ([]models.NotificationJob, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, ">"},
		Count:    count,
		Block:    readBlock,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read notification jobs: %w", err)
	}

	var jobs []models.NotificationJob
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			data, ok := msg.Values["data"].(string)
			if !ok {
				// 格式不对的消息直接确认丢弃，避免反复投递
				q.logger.Warn("Discarding malformed stream message",
					zap.String("message_id", msg.ID),
				)
				q.client.XAck(ctx, q.stream, q.group, msg.ID)
				continue
			}

			var job models.NotificationJob
			if err := json.Unmarshal([]byte(data), &job); err != nil {
				q.logger.Warn("Discarding undecodable notification job",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
				q.client.XAck(ctx, q.stream, q.group, msg.ID)
				continue
			}

			job.MessageID = msg.ID
			jobs = append(jobs, job)
		}
	}

	return jobs, nil
}

// Ack 确认任务已处理
func (q *JobQueue) Ack(ctx context.Context, messageID string) error {
	return q.client.XAck(ctx, q.stream, q.group, messageID).Err()
}
