package models

import "time"

// 报警级别
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// 报警类型
// 阈值报警使用 "high_<metric>"（见 evaluator.AlertTypeFor），
// 设备离线转换使用固定类型 device_down
const (
	AlertTypeDeviceDown = "device_down"
)

// Alert 报警领域模型（对应 alerts 表）
// 生命周期：open → acknowledged → resolved
// acknowledged 和 resolved 是独立的布尔标志，不互斥；报警只变更状态，从不删除
type Alert struct {
	AlertID  string `db:"alert_id"`
	TenantID string `db:"tenant_id"` // NOT NULL

	// 设备引用（可空 — 报警可以不关联设备）
	DeviceID *string `db:"device_id"`

	AlertType string `db:"alert_type"` // high_cpu, device_down 等
	Severity  string `db:"severity"`   // info, warning, critical
	Message   string `db:"message"`

	// 确认字段
	Acknowledged   bool       `db:"acknowledged"`
	AcknowledgedBy *string    `db:"acknowledged_by"`
	AcknowledgedAt *time.Time `db:"acknowledged_at"`

	// 解决字段
	Resolved   bool       `db:"resolved"`
	ResolvedAt *time.Time `db:"resolved_at"`

	CreatedAt time.Time `db:"created_at"`
}

// IsOpen 是否为未解决报警
func (a *Alert) IsOpen() bool {
	return !a.Resolved
}

// ToJSON 转换为JSON格式（用于WebSocket广播）
func (a *Alert) ToJSON() map[string]any {
	m := map[string]any{
		"id":         a.AlertID,
		"alert_type": a.AlertType,
		"severity":   a.Severity,
		"message":    a.Message,
		"created_at": a.CreatedAt.Format(time.RFC3339),
	}
	if a.DeviceID != nil {
		m["device_id"] = *a.DeviceID
	}
	return m
}

// SeverityRank 报警级别排序值（用于比较级别升级）
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}
