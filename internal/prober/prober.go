package prober

import (
	"context"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/Code-Savanna/netpulse/internal/models"

	"go.uber.org/zap"
)

// PingProber 存活探测器
// 对设备地址发起一次 ICMP ping，在固定超时内给出可达性判定。
// 探测是尽力而为的：传输失败、超时、非零退出码一律判定为不可达，
// 从不向调用方返回错误，以保证监控周期不会因单个设备中断
type PingProber struct {
	timeout     time.Duration
	maxInFlight int
	logger      *zap.Logger

	// 可注入的单次探测实现（测试用）
	probeFn func(ctx context.Context, ipAddress string) bool
}

// NewPingProber 创建探测器
// timeout: 单设备探测超时；maxInFlight: 并发探测上限（防止大规模设备群耗尽资源）
func NewPingProber(timeout time.Duration, maxInFlight int, logger *zap.Logger) *PingProber {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	p := &PingProber{
		timeout:     timeout,
		maxInFlight: maxInFlight,
		logger:      logger,
	}
	p.probeFn = p.pingOnce
	return p
}

// Probe 探测单个地址，返回可达性判定（超时边界内）
func (p *PingProber) Probe(ctx context.Context, ipAddress string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		done <- p.probeFn(ctx, ipAddress)
	}()

	select {
	case reachable := <-done:
		return reachable
	case <-ctx.Done():
		// 超时判定为不可达，慢设备不拖慢其他设备的判定
		return false
	}
}

// ProbeAll 并发探测一个周期内的全部设备
// 返回 device_id → 可达性判定的完整映射；所有设备都在各自超时内完成
func (p *PingProber) ProbeAll(ctx context.Context, devices []*models.Device) map[string]bool {
	verdicts := make(map[string]bool, len(devices))
	if len(devices) == 0 {
		return verdicts
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.maxInFlight)

	for _, device := range devices {
		wg.Add(1)
		go func(d *models.Device) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			reachable := p.Probe(ctx, d.IPAddress)

			mu.Lock()
			verdicts[d.DeviceID] = reachable
			mu.Unlock()
		}(device)
	}

	wg.Wait()

	p.logger.Debug("Fleet probe completed",
		zap.Int("device_count", len(devices)),
	)

	return verdicts
}

// pingOnce 发送一次系统 ping
func (p *PingProber) pingOnce(ctx context.Context, ipAddress string) bool {
	// Windows 使用 -n，其他系统使用 -c
	countFlag := "-c"
	if runtime.GOOS == "windows" {
		countFlag = "-n"
	}

	cmd := exec.CommandContext(ctx, "ping", countFlag, "1", ipAddress)
	if err := cmd.Run(); err != nil {
		return false
	}
	return true
}
