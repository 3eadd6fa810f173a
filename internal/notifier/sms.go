package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Code-Savanna/netpulse/internal/models"
)

// smsRequest SMS 网关请求体
type smsRequest struct {
	To      []string `json:"to"`
	Message string   `json:"message"`
}

// SMSTransport 通过 HTTP 网关发送短信
type SMSTransport struct {
	httpClient *resty.Client
	apiURL     string
	recipients []string
	logger     *zap.Logger
}

// NewSMSTransport 创建短信通知通道
func NewSMSTransport(apiURL, apiKey string, recipients []string, logger *zap.Logger) *SMSTransport {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+apiKey)

	return &SMSTransport{
		httpClient: client,
		apiURL:     apiURL,
		recipients: recipients,
		logger:     logger,
	}
}

// Send 发送报警短信
func (t *SMSTransport) Send(ctx context.Context, alert *models.Alert) error {
	if t.apiURL == "" {
		return fmt.Errorf("sms gateway url not configured")
	}
	if len(t.recipients) == 0 {
		return fmt.Errorf("no sms recipients configured")
	}

	request := smsRequest{
		To:      t.recipients,
		Message: fmt.Sprintf("[%s] %s", alert.Severity, alert.Message),
	}

	resp, err := t.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		Post(t.apiURL)
	if err != nil {
		return fmt.Errorf("failed to call sms gateway: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode(), resp.String())
	}

	t.logger.Debug("Alert SMS sent",
		zap.String("alert_id", alert.AlertID),
		zap.Int("recipients", len(t.recipients)),
	)

	return nil
}
