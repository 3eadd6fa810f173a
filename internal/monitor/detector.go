package monitor

import (
	"context"
	"time"

	"github.com/Code-Savanna/netpulse/internal/models"

	"go.uber.org/zap"
)

// deviceWriter 检测器需要的存储写入接口
type deviceWriter interface {
	UpdateDeviceStatus(ctx context.Context, tenantID, deviceID, status string, lastSeen time.Time) error
	TouchLastSeen(ctx context.Context, tenantID, deviceID string, lastSeen time.Time) error
}

// TransitionDetector 状态转换检测器
// 对比持久化状态与本周期的探测判定，决定新状态并选择性写回：
//   - 状态转换：写 status + last_seen，设备进入变更集
//   - 在线且未转换：仅刷新 last_seen（持续存活证明）
//   - 离线且未转换：不写
//
// 状态只由本周期的显式探测结果驱动，从不因缺少数据而推断降级
type TransitionDetector struct {
	repo   deviceWriter
	logger *zap.Logger
}

// NewTransitionDetector 创建状态转换检测器
func NewTransitionDetector(repo deviceWriter, logger *zap.Logger) *TransitionDetector {
	return &TransitionDetector{
		repo:   repo,
		logger: logger,
	}
}

// Detect 处理一个周期的探测判定，返回状态发生变化的设备子集
// 存储写入失败的设备记录日志并从变更集中剔除，周期对其余设备继续
func (d *TransitionDetector) Detect(ctx context.Context, tenantID string, devices []*models.Device, verdicts map[string]bool) []*models.Device {
	changed := []*models.Device{}
	now := time.Now().UTC()

	for _, device := range devices {
		reachable, ok := verdicts[device.DeviceID]
		if !ok {
			// 本周期没有该设备的探测结果，不做任何推断
			continue
		}

		newStatus := models.DeviceStatusOffline
		if reachable {
			newStatus = models.DeviceStatusOnline
		}

		if device.Status != newStatus {
			if err := d.repo.UpdateDeviceStatus(ctx, tenantID, device.DeviceID, newStatus, now); err != nil {
				d.logger.Error("Failed to persist status transition",
					zap.String("device_id", device.DeviceID),
					zap.String("new_status", newStatus),
					zap.Error(err),
				)
				continue
			}

			d.logger.Info("Device status changed",
				zap.String("device_id", device.DeviceID),
				zap.String("device_name", device.DeviceName),
				zap.String("old_status", device.Status),
				zap.String("new_status", newStatus),
			)

			device.Status = newStatus
			lastSeen := now
			device.LastSeen = &lastSeen
			changed = append(changed, device)
			continue
		}

		if reachable {
			// 状态未变但设备在线：刷新 last_seen，不进入变更集
			if err := d.repo.TouchLastSeen(ctx, tenantID, device.DeviceID, now); err != nil {
				d.logger.Error("Failed to refresh last_seen",
					zap.String("device_id", device.DeviceID),
					zap.Error(err),
				)
			}
		}
	}

	return changed
}
