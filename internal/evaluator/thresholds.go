package evaluator

import (
	"fmt"

	"github.com/Code-Savanna/netpulse/internal/models"
)

// Threshold 单个指标的报警阈值
type Threshold struct {
	Warning  float64
	Critical float64
}

// DefaultThresholds 默认阈值表（value >= 阈值时触发；critical 优先于 warning）
func DefaultThresholds() map[string]Threshold {
	return map[string]Threshold{
		models.MetricTypeCPU:    {Warning: 70, Critical: 90},
		models.MetricTypeMemory: {Warning: 80, Critical: 95},
		models.MetricTypePing:   {Warning: 1000, Critical: 5000}, // 响应时间（ms）
	}
}

// SeverityFor 根据阈值表计算指标值的报警级别
// 返回 (级别, true)；未达到任何阈值或指标类型未配置时返回 ("", false)
func SeverityFor(thresholds map[string]Threshold, metricType string, value float64) (string, bool) {
	threshold, ok := thresholds[metricType]
	if !ok {
		return "", false
	}

	// critical 优先：同时满足两档时永远不降级为 warning
	if value >= threshold.Critical {
		return models.SeverityCritical, true
	}
	if value >= threshold.Warning {
		return models.SeverityWarning, true
	}
	return "", false
}

// AlertTypeFor 指标类型到报警类型的映射
func AlertTypeFor(metricType string) string {
	return fmt.Sprintf("high_%s", metricType)
}
