package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Code-Savanna/netpulse/internal/config"
	"github.com/Code-Savanna/netpulse/internal/logger"
	"github.com/Code-Savanna/netpulse/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "netpulse-monitor")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	// 获取租户ID（从环境变量）
	tenantID := os.Getenv("TENANT_ID")
	if tenantID == "" {
		zapLogger.Fatal("TENANT_ID environment variable is required")
	}

	zapLogger.Info("Starting netpulse-monitor service",
		zap.String("tenant_id", tenantID),
		zap.Int("interval_seconds", cfg.Monitor.Interval),
		zap.String("ws_listen_addr", cfg.Hub.ListenAddr),
	)

	// 创建服务
	monitorService, err := service.NewMonitorService(cfg, zapLogger, tenantID)
	if err != nil {
		zapLogger.Fatal("Failed to create monitor service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 在 goroutine 中启动服务
	serviceErrChan := make(chan error, 1)
	go func() {
		if err := monitorService.Start(ctx); err != nil {
			serviceErrChan <- err
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serviceErrChan:
		zapLogger.Error("Service error", zap.Error(err))
	}

	// 优雅关闭
	cancel()
	if err := monitorService.Stop(); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
