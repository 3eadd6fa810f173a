package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Code-Savanna/netpulse/internal/models"
)

// metricSink 指标样本的评估入口
type metricSink interface {
	HandleMetric(ctx context.Context, tenantID string, device *models.Device, sample models.MetricSample) error
}

// subscriber 消费者需要的 MQTT 接口
type subscriber interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// MetricConsumer 指标消费者
// 订阅 "netpulse/metrics/<device_id>"，把上报样本交给报警引擎评估。
// 设备 ID 以主题后缀为准，payload 里的 device_id 字段被忽略
type MetricConsumer struct {
	tenantID string
	topic    string
	qos      byte
	sink     metricSink
	logger   *zap.Logger
}

// NewMetricConsumer 创建指标消费者
func NewMetricConsumer(tenantID, topic string, qos byte, sink metricSink, logger *zap.Logger) *MetricConsumer {
	return &MetricConsumer{
		tenantID: tenantID,
		topic:    topic,
		qos:      qos,
		sink:     sink,
		logger:   logger,
	}
}

// Start 订阅指标主题
func (c *MetricConsumer) Start(client subscriber) error {
	if err := client.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		return err
	}

	c.logger.Info("Metric consumer subscribed",
		zap.String("topic", c.topic),
		zap.Uint8("qos", c.qos),
	)

	return nil
}

// metricPayload 设备上报的指标消息体
type metricPayload struct {
	MetricType string  `json:"metric_type"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Timestamp  int64   `json:"timestamp"` // Unix 秒，可选
}

// handleMessage 解析一条指标消息并交给引擎
func (c *MetricConsumer) handleMessage(topic string, payload []byte) error {
	deviceID := topic[strings.LastIndex(topic, "/")+1:]
	if deviceID == "" {
		return fmt.Errorf("metric topic missing device id: %s", topic)
	}

	var p metricPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal metric payload: %w", err)
	}
	if p.MetricType == "" {
		return fmt.Errorf("metric payload missing metric_type")
	}

	timestamp := time.Now().UTC()
	if p.Timestamp > 0 {
		timestamp = time.Unix(p.Timestamp, 0).UTC()
	}

	sample := models.MetricSample{
		DeviceID:   deviceID,
		MetricType: p.MetricType,
		Value:      p.Value,
		Unit:       p.Unit,
		Timestamp:  timestamp,
	}

	c.logger.Debug("Metric sample received",
		zap.String("device_id", deviceID),
		zap.String("metric_type", p.MetricType),
		zap.Float64("value", p.Value),
	)

	return c.sink.HandleMetric(context.Background(), c.tenantID, nil, sample)
}
