package models

import "time"

// 指标类型
const (
	MetricTypeCPU    = "cpu"
	MetricTypeMemory = "memory"
	MetricTypePing   = "ping" // 响应时间（ms）
)

// MetricSample 指标样本（由外部采集路径产生，只读输入）
type MetricSample struct {
	DeviceID   string    `json:"device_id"`
	MetricType string    `json:"metric_type"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"` // %, MB, ms 等
	Timestamp  time.Time `json:"timestamp"`
}
