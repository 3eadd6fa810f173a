package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Code-Savanna/netpulse/internal/models"

	"go.uber.org/zap"
)

// AlertRepository 报警仓库
// 去重不变量：同一 (device_id, alert_type) 最多存在一条未解决报警。
// 通过条件 INSERT 保证检查+插入的原子性；建表时配合部分唯一索引
// uq_alerts_open(tenant_id, device_id, alert_type) WHERE NOT resolved 兜底并发写入
type AlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertRepository 创建报警仓库
func NewAlertRepository(db *sql.DB, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{
		db:     db,
		logger: logger,
	}
}

// AlertFilters 报警查询过滤条件
type AlertFilters struct {
	DeviceID  *string // 设备ID
	AlertType *string // 报警类型
	Severity  *string // 报警级别
}

const alertColumns = `
	alert_id,
	tenant_id,
	device_id,
	alert_type,
	severity,
	message,
	acknowledged,
	acknowledged_by,
	acknowledged_at,
	resolved,
	resolved_at,
	created_at
`

// scanAlert 扫描单行报警记录
func scanAlert(row interface {
	Scan(dest ...interface{}) error
}) (*models.Alert, error) {
	var alert models.Alert
	var deviceID, acknowledgedBy sql.NullString
	var acknowledgedAt, resolvedAt sql.NullTime

	err := row.Scan(
		&alert.AlertID,
		&alert.TenantID,
		&deviceID,
		&alert.AlertType,
		&alert.Severity,
		&alert.Message,
		&alert.Acknowledged,
		&acknowledgedBy,
		&acknowledgedAt,
		&alert.Resolved,
		&resolvedAt,
		&alert.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	// 处理可空字段
	if deviceID.Valid {
		alert.DeviceID = &deviceID.String
	}
	if acknowledgedBy.Valid {
		alert.AcknowledgedBy = &acknowledgedBy.String
	}
	if acknowledgedAt.Valid {
		alert.AcknowledgedAt = &acknowledgedAt.Time
	}
	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}

	return &alert, nil
}

// CreateAlertIfAbsent 创建报警（原子的检查+插入去重）
// 返回 (true, nil) 表示已创建；(false, nil) 表示同类型未解决报警已存在，被抑制
func (r *AlertRepository) CreateAlertIfAbsent(ctx context.Context, tenantID string, alert *models.Alert) (bool, error) {
	if tenantID == "" {
		return false, fmt.Errorf("tenant_id is required")
	}
	if alert == nil {
		return false, fmt.Errorf("alert is required")
	}
	if alert.TenantID != tenantID {
		return false, fmt.Errorf("alert.tenant_id must match tenant_id parameter")
	}

	query := `
		INSERT INTO alerts (
			alert_id,
			tenant_id,
			device_id,
			alert_type,
			severity,
			message,
			acknowledged,
			resolved,
			created_at
		)
		SELECT $1, $2, $3, $4, $5, $6, FALSE, FALSE, $7
		WHERE NOT EXISTS (
			SELECT 1 FROM alerts
			WHERE tenant_id = $2
			  AND device_id IS NOT DISTINCT FROM $3
			  AND alert_type = $4
			  AND resolved = FALSE
		)
	`

	result, err := r.db.ExecContext(ctx, query,
		alert.AlertID,
		alert.TenantID,
		alert.DeviceID,
		alert.AlertType,
		alert.Severity,
		alert.Message,
		alert.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create alert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// GetAlert 根据 alert_id 获取单条报警（需验证 tenant_id）
func (r *AlertRepository) GetAlert(ctx context.Context, tenantID, alertID string) (*models.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		WHERE alert_id = $1
		  AND tenant_id = $2
	`, alertColumns)

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alert not found: alert_id=%s, tenant_id=%s", alertID, tenantID)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return alert, nil
}

// FindOpenAlert 查找同 (device_id, alert_type) 的未解决报警（去重检查）
// 没有命中时返回 (nil, nil)
func (r *AlertRepository) FindOpenAlert(ctx context.Context, tenantID string, deviceID *string, alertType string) (*models.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if alertType == "" {
		return nil, fmt.Errorf("alert_type is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		WHERE tenant_id = $1
		  AND device_id IS NOT DISTINCT FROM $2
		  AND alert_type = $3
		  AND resolved = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`, alertColumns)

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, tenantID, deviceID, alertType))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 没有未解决的同类报警
		}
		return nil, fmt.Errorf("failed to query open alert: %w", err)
	}

	return alert, nil
}

// AcknowledgeAlert 确认报警（记录确认人和时间）
// 幂等：已确认或已解决的报警再次确认是空操作，不是错误
func (r *AlertRepository) AcknowledgeAlert(ctx context.Context, tenantID, alertID, actorID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if actorID == "" {
		return fmt.Errorf("actor_id is required")
	}

	query := `
		UPDATE alerts
		SET acknowledged = TRUE,
		    acknowledged_by = $1,
		    acknowledged_at = $2
		WHERE alert_id = $3
		  AND tenant_id = $4
		  AND acknowledged = FALSE
		  AND resolved = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, actorID, time.Now().UTC(), alertID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// 区分"报警不存在"和"已是目标状态"（幂等空操作）
		return r.ensureAlertExists(ctx, tenantID, alertID)
	}

	return nil
}

// ResolveAlert 解决报警（记录解决时间）
// 幂等：重复解决是空操作；报警从不删除
func (r *AlertRepository) ResolveAlert(ctx context.Context, tenantID, alertID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}

	query := `
		UPDATE alerts
		SET resolved = TRUE,
		    resolved_at = $1
		WHERE alert_id = $2
		  AND tenant_id = $3
		  AND resolved = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), alertID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return r.ensureAlertExists(ctx, tenantID, alertID)
	}

	return nil
}

// ensureAlertExists 验证报警存在（UPDATE 影响 0 行时区分 not found 与幂等空操作）
func (r *AlertRepository) ensureAlertExists(ctx context.Context, tenantID, alertID string) error {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM alerts WHERE alert_id = $1 AND tenant_id = $2)`,
		alertID, tenantID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check alert existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("alert not found: alert_id=%s, tenant_id=%s", alertID, tenantID)
	}
	return nil
}

// ListOpenAlerts 查询未解决报警（支持设备/类型/级别过滤）
func (r *AlertRepository) ListOpenAlerts(ctx context.Context, tenantID string, filters AlertFilters) ([]*models.Alert, error) {
	if tenantID == "" {
		return []*models.Alert{}, nil
	}

	// 构建 WHERE 子句
	where := []string{"tenant_id = $1", "resolved = FALSE"}
	args := []interface{}{tenantID}
	argN := 2

	if filters.DeviceID != nil {
		where = append(where, fmt.Sprintf("device_id = $%d", argN))
		args = append(args, *filters.DeviceID)
		argN++
	}
	if filters.AlertType != nil {
		where = append(where, fmt.Sprintf("alert_type = $%d", argN))
		args = append(args, *filters.AlertType)
		argN++
	}
	if filters.Severity != nil {
		where = append(where, fmt.Sprintf("severity = $%d", argN))
		args = append(args, *filters.Severity)
		argN++
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		WHERE %s
		ORDER BY created_at DESC
	`, alertColumns, strings.Join(where, " AND "))

	return r.queryAlerts(ctx, query, args...)
}

// ListUnacknowledgedSince 查询某时间之后创建且未确认的报警（用于通知补发扫描）
func (r *AlertRepository) ListUnacknowledgedSince(ctx context.Context, tenantID string, since time.Time) ([]*models.Alert, error) {
	if tenantID == "" {
		return []*models.Alert{}, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		WHERE tenant_id = $1
		  AND acknowledged = FALSE
		  AND created_at >= $2
		ORDER BY created_at DESC
	`, alertColumns)

	return r.queryAlerts(ctx, query, tenantID, since)
}

// queryAlerts 执行多行报警查询
func (r *AlertRepository) queryAlerts(ctx context.Context, query string, args ...interface{}) ([]*models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, nil
}
