package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Code-Savanna/netpulse/internal/models"
)

// EmailTransport SMTP 邮件通知
type EmailTransport struct {
	addr       string // host:port
	from       string
	recipients []string
	logger     *zap.Logger

	// 测试注入
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailTransport 创建邮件通知通道
func NewEmailTransport(smtpHost string, smtpPort int, from string, recipients []string, logger *zap.Logger) *EmailTransport {
	return &EmailTransport{
		addr:       fmt.Sprintf("%s:%d", smtpHost, smtpPort),
		from:       from,
		recipients: recipients,
		logger:     logger,
		sendMail:   smtp.SendMail,
	}
}

// Send 发送报警邮件
func (t *EmailTransport) Send(ctx context.Context, alert *models.Alert) error {
	if len(t.recipients) == 0 {
		return fmt.Errorf("no email recipients configured")
	}

	subject := fmt.Sprintf("[%s] NetPulse alert: %s", strings.ToUpper(alert.Severity), alert.AlertType)

	var body strings.Builder
	body.WriteString(fmt.Sprintf("From: %s\r\n", t.from))
	body.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(t.recipients, ", ")))
	body.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	body.WriteString("\r\n")
	body.WriteString(alert.Message)
	body.WriteString("\r\n\r\n")
	body.WriteString(fmt.Sprintf("Alert ID: %s\r\n", alert.AlertID))
	if alert.DeviceID != nil {
		body.WriteString(fmt.Sprintf("Device: %s\r\n", *alert.DeviceID))
	}
	body.WriteString(fmt.Sprintf("Created: %s\r\n", alert.CreatedAt.Format(time.RFC3339)))

	if err := t.sendMail(t.addr, nil, t.from, t.recipients, []byte(body.String())); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	t.logger.Debug("Alert email sent",
		zap.String("alert_id", alert.AlertID),
		zap.Int("recipients", len(t.recipients)),
	)

	return nil
}
