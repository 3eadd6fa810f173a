package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Code-Savanna/netpulse/internal/models"

	"go.uber.org/zap"
)

// DeviceRepository 设备仓库
// 监控管线只读取全量设备快照，只写回 status 和 last_seen 两个字段
type DeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceRepository 创建设备仓库
func NewDeviceRepository(db *sql.DB, logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{
		db:     db,
		logger: logger,
	}
}

// ListDevices 获取租户的全量设备列表（每个监控周期开始时取一次快照）
func (r *DeviceRepository) ListDevices(ctx context.Context, tenantID string) ([]*models.Device, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := `
		SELECT
			device_id,
			tenant_id,
			device_name,
			ip_address,
			device_type,
			location,
			status,
			last_seen,
			created_at,
			updated_at
		FROM devices
		WHERE tenant_id = $1
		ORDER BY device_name
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := []*models.Device{}
	for rows.Next() {
		var device models.Device
		var lastSeen sql.NullTime

		err := rows.Scan(
			&device.DeviceID,
			&device.TenantID,
			&device.DeviceName,
			&device.IPAddress,
			&device.DeviceType,
			&device.Location,
			&device.Status,
			&lastSeen,
			&device.CreatedAt,
			&device.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}

		// 处理可空字段
		if lastSeen.Valid {
			device.LastSeen = &lastSeen.Time
		}

		devices = append(devices, &device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	return devices, nil
}

// UpdateDeviceStatus 更新设备状态和最后在线时间（状态转换时调用）
func (r *DeviceRepository) UpdateDeviceStatus(ctx context.Context, tenantID, deviceID, status string, lastSeen time.Time) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if deviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	query := `
		UPDATE devices
		SET status = $1,
		    last_seen = $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE device_id = $3
		  AND tenant_id = $4
	`

	result, err := r.db.ExecContext(ctx, query, status, lastSeen, deviceID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update device status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("device not found: device_id=%s, tenant_id=%s", deviceID, tenantID)
	}

	return nil
}

// TouchLastSeen 仅刷新 last_seen（设备在线且状态未变化时的持续存活证明）
func (r *DeviceRepository) TouchLastSeen(ctx context.Context, tenantID, deviceID string, lastSeen time.Time) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if deviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	query := `
		UPDATE devices
		SET last_seen = $1
		WHERE device_id = $2
		  AND tenant_id = $3
	`

	result, err := r.db.ExecContext(ctx, query, lastSeen, deviceID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to touch last_seen: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("device not found: device_id=%s, tenant_id=%s", deviceID, tenantID)
	}

	return nil
}
