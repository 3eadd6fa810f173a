package monitor

import (
	"context"

	"github.com/Code-Savanna/netpulse/internal/models"

	"go.uber.org/zap"
)

// deviceLister 周期开始时获取设备快照
type deviceLister interface {
	ListDevices(ctx context.Context, tenantID string) ([]*models.Device, error)
}

// fleetProber 并发探测整个设备群
type fleetProber interface {
	ProbeAll(ctx context.Context, devices []*models.Device) map[string]bool
}

// changeSink 变更集的下游消费者（报警引擎）
type changeSink interface {
	HandleStatusChanges(ctx context.Context, tenantID string, changed []*models.Device)
}

// updateBroadcaster 实时状态广播（WebSocket hub）
type updateBroadcaster interface {
	BroadcastDeviceUpdate(devices []*models.Device)
}

// Monitor 监控周期执行器
// 一个周期 = 设备快照 → 并发探测 → 状态转换检测 → 变更集下发（报警引擎 + 广播）。
// 每个周期在自己的快照上独立运行，并发周期允许交错（store 层 last-write-wins）
type Monitor struct {
	devices  deviceLister
	prober   fleetProber
	detector *TransitionDetector
	sink     changeSink
	hub      updateBroadcaster
	tenantID string
	logger   *zap.Logger
}

// NewMonitor 创建监控周期执行器
func NewMonitor(
	devices deviceLister,
	prober fleetProber,
	detector *TransitionDetector,
	sink changeSink,
	hub updateBroadcaster,
	tenantID string,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		devices:  devices,
		prober:   prober,
		detector: detector,
		sink:     sink,
		hub:      hub,
		tenantID: tenantID,
		logger:   logger,
	}
}

// RunCycle 执行一个完整监控周期
// 周期内所有错误都在边界处消化，不向调度器传播
func (m *Monitor) RunCycle(ctx context.Context) {
	devices, err := m.devices.ListDevices(ctx, m.tenantID)
	if err != nil {
		m.logger.Error("Failed to snapshot device list, skipping cycle",
			zap.Error(err),
		)
		return
	}

	if len(devices) == 0 {
		m.logger.Debug("No devices to monitor")
		return
	}

	verdicts := m.prober.ProbeAll(ctx, devices)
	changed := m.detector.Detect(ctx, m.tenantID, devices, verdicts)

	m.logger.Info("Monitoring cycle completed",
		zap.Int("device_count", len(devices)),
		zap.Int("changed_count", len(changed)),
	)

	if len(changed) == 0 {
		return
	}

	if m.hub != nil {
		m.hub.BroadcastDeviceUpdate(changed)
	}
	if m.sink != nil {
		m.sink.HandleStatusChanges(ctx, m.tenantID, changed)
	}
}
