package models

import (
	"database/sql"
	"time"
)

// 设备状态枚举
// 状态只能由探测结果显式驱动，不允许从"没有数据"推断
const (
	DeviceStatusUnknown = "unknown"
	DeviceStatusOnline  = "online"
	DeviceStatusOffline = "offline"
)

// Device 设备领域模型（对应 devices 表）
type Device struct {
	// 主键和租户
	DeviceID string `db:"device_id"`
	TenantID string `db:"tenant_id"` // NOT NULL

	// 标识/网络
	DeviceName string `db:"device_name"` // NOT NULL
	IPAddress  string `db:"ip_address"`  // NOT NULL
	DeviceType string `db:"device_type"` // router, switch, server 等

	// 位置（可选）
	Location sql.NullString `db:"location"` // nullable

	// 监控状态
	Status   string     `db:"status"`    // NOT NULL, default 'unknown'
	LastSeen *time.Time `db:"last_seen"` // nullable，最后一次探测到在线的时间

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ToJSON 转换为JSON格式（用于WebSocket广播）
func (d *Device) ToJSON() map[string]any {
	m := map[string]any{
		"id":          d.DeviceID,
		"name":        d.DeviceName,
		"ip_address":  d.IPAddress,
		"device_type": d.DeviceType,
		"status":      d.Status,
	}
	if d.Location.Valid {
		m["location"] = d.Location.String
	}
	if d.LastSeen != nil {
		m["last_seen"] = d.LastSeen.Format(time.RFC3339)
	} else {
		m["last_seen"] = nil
	}
	return m
}
