package config

import (
	"fmt"
	"os"
	"strings"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置（指标采集路径；Broker 为空时不启用）
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	Topic    string // 指标主题，如 "netpulse/metrics/+"
}

// Config 监控服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 监控周期配置
	Monitor struct {
		Interval           int // 周期间隔（秒），默认 30秒
		ProbeTimeout       int // 单设备探测超时（秒），默认 5秒
		MaxInFlight        int // 并发探测上限，默认 64
		RedispatchInterval int // 未确认报警补发间隔（秒），默认 3600秒
	}

	// 通知配置
	Notify struct {
		Stream  string // Redis Streams 队列名
		Group   string // 消费者组名
		Workers int    // worker 数量

		Email struct {
			SMTPHost   string
			SMTPPort   int
			From       string
			Recipients []string
		}
		SMS struct {
			APIURL     string
			APIKey     string
			Recipients []string
		}
		Webhook struct {
			URLs []string
		}
	}

	// WebSocket 广播配置
	Hub struct {
		ListenAddr        string
		HeartbeatInterval int // 心跳间隔（秒），默认 10秒
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "netpulse")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "netpulse-monitor")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))
	cfg.MQTT.Topic = getEnv("MQTT_METRICS_TOPIC", "netpulse/metrics/+")

	cfg.Monitor.Interval = getEnvInt("MONITOR_INTERVAL", 30)
	cfg.Monitor.ProbeTimeout = getEnvInt("MONITOR_PROBE_TIMEOUT", 5)
	cfg.Monitor.MaxInFlight = getEnvInt("MONITOR_MAX_IN_FLIGHT", 64)
	cfg.Monitor.RedispatchInterval = getEnvInt("MONITOR_REDISPATCH_INTERVAL", 3600)

	cfg.Notify.Stream = getEnv("NOTIFY_STREAM", "netpulse:notifications")
	cfg.Notify.Group = getEnv("NOTIFY_GROUP", "notifiers")
	cfg.Notify.Workers = getEnvInt("NOTIFY_WORKERS", 4)
	cfg.Notify.Email.SMTPHost = getEnv("NOTIFY_SMTP_HOST", "localhost")
	cfg.Notify.Email.SMTPPort = getEnvInt("NOTIFY_SMTP_PORT", 25)
	cfg.Notify.Email.From = getEnv("NOTIFY_SMTP_FROM", "alerts@netpulse.local")
	cfg.Notify.Email.Recipients = getEnvList("NOTIFY_EMAIL_RECIPIENTS")
	cfg.Notify.SMS.APIURL = getEnv("NOTIFY_SMS_API_URL", "")
	cfg.Notify.SMS.APIKey = getEnv("NOTIFY_SMS_API_KEY", "")
	cfg.Notify.SMS.Recipients = getEnvList("NOTIFY_SMS_RECIPIENTS")
	cfg.Notify.Webhook.URLs = getEnvList("NOTIFY_WEBHOOK_URLS")

	cfg.Hub.ListenAddr = getEnv("WS_LISTEN_ADDR", ":8090")
	cfg.Hub.HeartbeatInterval = getEnvInt("WS_HEARTBEAT_INTERVAL", 10)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var n int
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return defaultValue
	}
	return n
}

// getEnvList 解析逗号分隔的列表（空值返回 nil）
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
