package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/Code-Savanna/netpulse/internal/config"
	"github.com/Code-Savanna/netpulse/internal/consumer"
	"github.com/Code-Savanna/netpulse/internal/database"
	"github.com/Code-Savanna/netpulse/internal/evaluator"
	"github.com/Code-Savanna/netpulse/internal/hub"
	"github.com/Code-Savanna/netpulse/internal/models"
	"github.com/Code-Savanna/netpulse/internal/monitor"
	"github.com/Code-Savanna/netpulse/internal/notifier"
	"github.com/Code-Savanna/netpulse/internal/prober"
	"github.com/Code-Savanna/netpulse/internal/repository"
)

// MonitorService 设备健康监控服务（整合各层）
type MonitorService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
	tenantID    string

	// 各层组件
	deviceRepo     *repository.DeviceRepository
	alertRepo      *repository.AlertRepository
	pingProber     *prober.PingProber
	detector       *monitor.TransitionDetector
	engine         *evaluator.Engine
	dispatcher     *notifier.Dispatcher
	workers        *notifier.WorkerPool
	broadcastHub   *hub.Hub
	scheduler      *monitor.Scheduler
	mqttClient     *consumer.MQTTClient
	metricConsumer *consumer.MetricConsumer

	httpServer *http.Server
}

// NewMonitorService 创建监控服务
func NewMonitorService(cfg *config.Config, logger *zap.Logger, tenantID string) (*MonitorService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, err
	}

	// 2. 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 创建 Repository 层
	deviceRepo := repository.NewDeviceRepository(db, logger)
	alertRepo := repository.NewAlertRepository(db, logger)

	// 4. 创建通知管道：队列 → 分发器 → worker 池
	queue := notifier.NewJobQueue(redisClient, cfg.Notify.Stream, cfg.Notify.Group, logger)
	if err := queue.EnsureGroup(ctx); err != nil {
		redisClient.Close()
		db.Close()
		return nil, err
	}

	dispatcher := notifier.NewDispatcher(queue, alertRepo, logger)

	transports := map[string]notifier.Transport{
		models.ChannelEmail: notifier.NewEmailTransport(
			cfg.Notify.Email.SMTPHost,
			cfg.Notify.Email.SMTPPort,
			cfg.Notify.Email.From,
			cfg.Notify.Email.Recipients,
			logger,
		),
		models.ChannelSMS: notifier.NewSMSTransport(
			cfg.Notify.SMS.APIURL,
			cfg.Notify.SMS.APIKey,
			cfg.Notify.SMS.Recipients,
			logger,
		),
		models.ChannelWebhook: notifier.NewWebhookTransport(cfg.Notify.Webhook.URLs, logger),
	}
	workers := notifier.NewWorkerPool(queue, alertRepo, transports, cfg.Notify.Workers, logger)

	// 5. 创建广播中心
	broadcastHub := hub.NewHub(time.Duration(cfg.Hub.HeartbeatInterval)*time.Second, logger)

	// 6. 创建报警引擎
	engine := evaluator.NewEngine(nil, alertRepo, dispatcher, broadcastHub, logger)

	// 7. 创建监控管道：探测 → 状态转换 → 报警/广播
	pingProber := prober.NewPingProber(
		time.Duration(cfg.Monitor.ProbeTimeout)*time.Second,
		cfg.Monitor.MaxInFlight,
		logger,
	)
	detector := monitor.NewTransitionDetector(deviceRepo, logger)
	pipeline := monitor.NewMonitor(deviceRepo, pingProber, detector, engine, broadcastHub, tenantID, logger)
	scheduler := monitor.NewScheduler(pipeline, time.Duration(cfg.Monitor.Interval)*time.Second, logger)

	s := &MonitorService{
		config:       cfg,
		db:           db,
		redisClient:  redisClient,
		logger:       logger,
		tenantID:     tenantID,
		deviceRepo:   deviceRepo,
		alertRepo:    alertRepo,
		pingProber:   pingProber,
		detector:     detector,
		engine:       engine,
		dispatcher:   dispatcher,
		workers:      workers,
		broadcastHub: broadcastHub,
		scheduler:    scheduler,
	}

	// 8. MQTT 指标采集（可选，Broker 为空时不启用）
	if cfg.MQTT.Broker != "" {
		mqttClient, err := consumer.NewMQTTClient(&cfg.MQTT, logger)
		if err != nil {
			s.closeResources()
			return nil, err
		}
		s.mqttClient = mqttClient
		s.metricConsumer = consumer.NewMetricConsumer(tenantID, cfg.MQTT.Topic, cfg.MQTT.QoS, engine, logger)
	}

	return s, nil
}

// Start 启动服务（阻塞，直到 ctx 取消或调度器出错）
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting monitor service",
		zap.String("tenant_id", s.tenantID),
		zap.Int("interval_seconds", s.config.Monitor.Interval),
	)

	// 广播中心心跳
	go s.broadcastHub.Start(ctx)

	// 通知 worker 池
	s.workers.Start(ctx)

	// MQTT 指标消费
	if s.metricConsumer != nil {
		if err := s.metricConsumer.Start(s.mqttClient); err != nil {
			return fmt.Errorf("failed to start metric consumer: %w", err)
		}
	}

	// 未确认报警补发
	go s.runRedispatchLoop(ctx)

	// WebSocket 接入
	if err := s.startHTTPServer(ctx); err != nil {
		return err
	}

	// 监控周期调度（阻塞）
	return s.scheduler.Start(ctx)
}

// TriggerCycleNow 立即触发一个监控周期
func (s *MonitorService) TriggerCycleNow() {
	s.scheduler.TriggerNow()
}

// runRedispatchLoop 周期性重发未确认报警
func (s *MonitorService) runRedispatchLoop(ctx context.Context) {
	interval := time.Duration(s.config.Monitor.RedispatchInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.dispatcher.RedispatchUnacknowledged(ctx, s.tenantID); err != nil {
				s.logger.Error("Failed to redispatch unacknowledged alerts",
					zap.Error(err),
				)
			}
		}
	}
}

// startHTTPServer 启动 WebSocket 接入端口
func (s *MonitorService) startHTTPServer(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.broadcastHub.ServeWS)

	s.httpServer = &http.Server{
		Addr:    s.config.Hub.ListenAddr,
		Handler: mux,
	}

	go func() {
		s.logger.Info("WebSocket server listening",
			zap.String("addr", s.config.Hub.ListenAddr),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("WebSocket server error",
				zap.Error(err),
			)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	return nil
}

// Stop 停止服务并释放资源
func (s *MonitorService) Stop() error {
	s.logger.Info("Stopping monitor service")

	// 等待通知 worker 退出（ctx 已在调用方取消）
	s.workers.Wait()

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	s.closeResources()
	return nil
}

// closeResources 关闭数据库和 Redis 连接
func (s *MonitorService) closeResources() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}
}
