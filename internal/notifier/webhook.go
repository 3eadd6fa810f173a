package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Code-Savanna/netpulse/internal/models"
)

// WebhookTransport 向外部系统 POST 报警 JSON
type WebhookTransport struct {
	httpClient *resty.Client
	urls       []string
	logger     *zap.Logger
}

// NewWebhookTransport 创建 webhook 通知通道
func NewWebhookTransport(urls []string, logger *zap.Logger) *WebhookTransport {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &WebhookTransport{
		httpClient: client,
		urls:       urls,
		logger:     logger,
	}
}

// Send 向所有已配置 URL 投递报警
// 每个 URL 独立尝试；任一失败则整体返回错误，但不中断其余投递
func (t *WebhookTransport) Send(ctx context.Context, alert *models.Alert) error {
	if len(t.urls) == 0 {
		return fmt.Errorf("no webhook urls configured")
	}

	payload := alert.ToJSON()

	var failed int
	for _, url := range t.urls {
		resp, err := t.httpClient.R().
			SetContext(ctx).
			SetBody(payload).
			Post(url)
		if err != nil {
			t.logger.Error("Webhook delivery failed",
				zap.String("alert_id", alert.AlertID),
				zap.String("url", url),
				zap.Error(err),
			)
			failed++
			continue
		}
		if resp.IsError() {
			t.logger.Error("Webhook endpoint returned error",
				zap.String("alert_id", alert.AlertID),
				zap.String("url", url),
				zap.Int("status_code", resp.StatusCode()),
			)
			failed++
			continue
		}
	}

	if failed > 0 {
		return fmt.Errorf("webhook delivery failed for %d of %d urls", failed, len(t.urls))
	}

	t.logger.Debug("Alert webhooks delivered",
		zap.String("alert_id", alert.AlertID),
		zap.Int("urls", len(t.urls)),
	)

	return nil
}
