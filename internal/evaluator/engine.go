package evaluator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Code-Savanna/netpulse/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// alertStore 引擎需要的报警存储接口
type alertStore interface {
	FindOpenAlert(ctx context.Context, tenantID string, deviceID *string, alertType string) (*models.Alert, error)
	CreateAlertIfAbsent(ctx context.Context, tenantID string, alert *models.Alert) (bool, error)
}

// alertDispatcher 通知分发（创建路径不阻塞在投递上）
type alertDispatcher interface {
	Dispatch(ctx context.Context, alert *models.Alert)
}

// alertBroadcaster 实时报警广播
type alertBroadcaster interface {
	BroadcastAlert(alert *models.Alert)
}

// Engine 阈值报警引擎
// 对指标样本和状态转换事件做阈值评估，在去重约束下创建报警：
// 同一 (device, alert_type) 同时最多存在一条未解决报警。
// 创建成功的报警交给通知分发器和广播 hub
type Engine struct {
	thresholds map[string]Threshold
	alerts     alertStore
	dispatcher alertDispatcher
	hub        alertBroadcaster
	logger     *zap.Logger
}

// NewEngine 创建报警引擎
func NewEngine(
	thresholds map[string]Threshold,
	alerts alertStore,
	dispatcher alertDispatcher,
	hub alertBroadcaster,
	logger *zap.Logger,
) *Engine {
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	return &Engine{
		thresholds: thresholds,
		alerts:     alerts,
		dispatcher: dispatcher,
		hub:        hub,
		logger:     logger,
	}
}

// HandleMetric 评估一个指标样本，必要时创建阈值报警
func (e *Engine) HandleMetric(ctx context.Context, tenantID string, device *models.Device, sample models.MetricSample) error {
	severity, hit := SeverityFor(e.thresholds, sample.MetricType, sample.Value)
	if !hit {
		return nil
	}

	alertType := AlertTypeFor(sample.MetricType)
	deviceName := sample.DeviceID
	if device != nil {
		deviceName = device.DeviceName
	}

	message := fmt.Sprintf("%s - %s usage is %s: %.1f%s",
		deviceName, strings.ToUpper(sample.MetricType), severity, sample.Value, sample.Unit)

	deviceID := sample.DeviceID
	return e.createAlert(ctx, tenantID, &deviceID, alertType, severity, message)
}

// HandleStatusChanges 处理状态转换变更集
// 转换为 offline 的设备通过同一条去重/创建路径产生 device_down 报警
func (e *Engine) HandleStatusChanges(ctx context.Context, tenantID string, changed []*models.Device) {
	for _, device := range changed {
		if device.Status != models.DeviceStatusOffline {
			continue
		}

		message := fmt.Sprintf("%s (%s) is unreachable", device.DeviceName, device.IPAddress)
		deviceID := device.DeviceID

		if err := e.createAlert(ctx, tenantID, &deviceID, models.AlertTypeDeviceDown, models.SeverityCritical, message); err != nil {
			e.logger.Error("Failed to create device_down alert",
				zap.String("device_id", device.DeviceID),
				zap.Error(err),
			)
		}
	}
}

// createAlert 去重检查 + 原子创建 + 下发
func (e *Engine) createAlert(ctx context.Context, tenantID string, deviceID *string, alertType, severity, message string) error {
	existing, err := e.alerts.FindOpenAlert(ctx, tenantID, deviceID, alertType)
	if err != nil {
		return fmt.Errorf("failed to check for open alert: %w", err)
	}
	if existing != nil {
		// 去重抑制。注意：即使级别已经升级（warning → critical）也保持抑制，
		// 与原有行为一致；级别升级只记录 WARN 日志供运维观察
		if models.SeverityRank(severity) > models.SeverityRank(existing.Severity) {
			e.logger.Warn("Suppressed alert with escalated severity",
				zap.String("alert_type", alertType),
				zap.String("open_severity", existing.Severity),
				zap.String("new_severity", severity),
				zap.Stringp("device_id", deviceID),
			)
		} else {
			e.logger.Debug("Suppressed duplicate alert",
				zap.String("alert_type", alertType),
				zap.Stringp("device_id", deviceID),
			)
		}
		return nil
	}

	alert := &models.Alert{
		AlertID:   uuid.New().String(),
		TenantID:  tenantID,
		DeviceID:  deviceID,
		AlertType: alertType,
		Severity:  severity,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	created, err := e.alerts.CreateAlertIfAbsent(ctx, tenantID, alert)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	if !created {
		// 并发周期在检查和插入之间抢先创建了同类报警
		e.logger.Debug("Alert creation lost dedup race",
			zap.String("alert_type", alertType),
			zap.Stringp("device_id", deviceID),
		)
		return nil
	}

	e.logger.Info("Alert created",
		zap.String("alert_id", alert.AlertID),
		zap.String("alert_type", alertType),
		zap.String("severity", severity),
		zap.Stringp("device_id", deviceID),
	)

	// 投递与创建解耦：分发只入队，广播失败只影响对应订阅者
	if e.dispatcher != nil {
		e.dispatcher.Dispatch(ctx, alert)
	}
	if e.hub != nil {
		e.hub.BroadcastAlert(alert)
	}

	return nil
}
